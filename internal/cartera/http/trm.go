package carterahttp

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cartera-ar/cartera/internal/cartera"
	"github.com/cartera-ar/cartera/internal/platform/httpx"
	"github.com/cartera-ar/cartera/internal/shared"
)

// trmUpdateRequest carries manual rate entry. Values are strings so clerical
// input like "4.000,50" survives the trip; both decimal conventions parse.
type trmUpdateRequest struct {
	Rates map[string]string `json:"rates" validate:"required,min=1"`
}

func (h *Handler) listTRMDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.rates.Dates(r.Context())
	if err != nil {
		h.logger.Error("list trm dates", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(dateLayout)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"dates": out})
}

func (h *Handler) getTRM(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateLayout, chi.URLParam(r, "date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "expected YYYY-MM-DD")
		return
	}
	rates, err := h.rates.RatesFor(r.Context(), date)
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("get trm", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"date":  date.Format(dateLayout),
		"rates": rates,
	})
}

func (h *Handler) putTRM(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateLayout, chi.URLParam(r, "date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "expected YYYY-MM-DD")
		return
	}

	var req trmUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "json body expected")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rates := make(map[string]float64, len(req.Rates))
	for currency, raw := range req.Rates {
		rate, err := cartera.ParseAmount(currency, raw)
		if err != nil || rate <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
				"rate for "+currency+" must be a positive amount")
			return
		}
		rates[currency] = rate
	}

	if err := h.rates.Save(r.Context(), date, rates); err != nil {
		h.logger.Error("save trm", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"date":  date.Format(dateLayout),
		"rates": rates,
	})
}

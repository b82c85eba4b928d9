// Package carterahttp exposes the debt-model engine over HTTP: run
// submission (inline or queued), run history, artifact download and the
// exchange-rate table.
package carterahttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/cartera-ar/cartera/internal/cartera"
	"github.com/cartera-ar/cartera/internal/cartera/fx"
	"github.com/cartera-ar/cartera/internal/ingest"
	"github.com/cartera-ar/cartera/internal/platform/httpx"
	"github.com/cartera-ar/cartera/internal/runs"
	"github.com/cartera-ar/cartera/internal/shared"
	"github.com/cartera-ar/cartera/jobs"
)

const dateLayout = "2006-01-02"

type runService interface {
	Start(ctx context.Context, in cartera.BuildInput) (*runs.Run, error)
	Run(ctx context.Context, in cartera.BuildInput) (*runs.Run, *cartera.Model, error)
	Get(ctx context.Context, id string) (*runs.Run, error)
	List(ctx context.Context, limit int) ([]runs.Run, error)
}

type rateStore interface {
	RatesFor(ctx context.Context, date time.Time) (map[string]float64, error)
	Save(ctx context.Context, date time.Time, rates map[string]float64) error
	Dates(ctx context.Context) ([]time.Time, error)
}

type enqueuer interface {
	EnqueueDebtModelBuild(ctx context.Context, payload jobs.DebtModelBuildPayload) (*asynq.TaskInfo, error)
}

// Config carries the handler's operational limits.
type Config struct {
	// UploadDir receives extracts submitted for queued runs.
	UploadDir      string
	MaxUploadBytes int64
}

// Handler wires the cartera HTTP endpoints.
type Handler struct {
	logger     *slog.Logger
	service    runService
	rates      rateStore
	normalizer *ingest.Normalizer
	queue      enqueuer
	cfg        Config
	validator  *validator.Validate
}

// NewHandler constructs a Handler instance. A nil queue disables the async
// submission mode.
func NewHandler(logger *slog.Logger, service runService, rates rateStore, normalizer *ingest.Normalizer, queue enqueuer, cfg Config) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if normalizer == nil {
		normalizer = ingest.NewNormalizer(logger)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	return &Handler{
		logger:     logger,
		service:    service,
		rates:      rates,
		normalizer: normalizer,
		queue:      queue,
		cfg:        cfg,
		validator:  validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/runs", h.createRun)
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.getRun)
	r.Get("/runs/{id}/artifacts/{name}", h.downloadArtifact)

	r.Get("/trm", h.listTRMDates)
	r.Get("/trm/{date}", h.getTRM)
	r.Put("/trm/{date}", h.putTRM)
}

type runForm struct {
	ClosingDate string `validate:"omitempty,datetime=2006-01-02"`
	Policy      string `validate:"omitempty,oneof=UNION COMPENSATE"`
	Async       bool
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "multipart form expected")
		return
	}
	form := runForm{
		ClosingDate: r.FormValue("closing_date"),
		Policy:      r.FormValue("policy"),
		Async:       r.FormValue("async") == "true",
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	overrides, err := rateOverrides(r.MultipartForm.Value)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	provca, _, err := r.FormFile("provca")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Extract", "provca file is required")
		return
	}
	defer func() { _ = provca.Close() }()

	var clanti multipart.File
	if f, _, err := r.FormFile("clanti"); err == nil {
		clanti = f
		defer func() { _ = clanti.Close() }()
	}

	if form.Async {
		h.createRunAsync(w, r, form, overrides, provca, clanti)
		return
	}
	h.createRunSync(w, r, form, overrides, provca, clanti)
}

func (h *Handler) createRunSync(w http.ResponseWriter, r *http.Request, form runForm, overrides map[string]float64, provca, clanti io.Reader) {
	in, diags, err := h.buildInput(form, overrides, provca, clanti)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Extract", err.Error())
		return
	}

	run, model, err := h.service.Run(r.Context(), in)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newRunResponse(run, model, diags))
}

func (h *Handler) createRunAsync(w http.ResponseWriter, r *http.Request, form runForm, overrides map[string]float64, provca, clanti io.Reader) {
	if h.queue == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "async submission is not configured")
		return
	}

	in := cartera.BuildInput{Policy: cartera.NettingPolicy(form.Policy)}
	if form.ClosingDate != "" {
		closing, _ := time.Parse(dateLayout, form.ClosingDate)
		in.ClosingDate = cartera.MonthEnd(closing)
	}
	run, err := h.service.Start(r.Context(), in)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	payload := jobs.DebtModelBuildPayload{
		RunID:         run.ID,
		ClosingDate:   form.ClosingDate,
		Policy:        form.Policy,
		RateOverrides: overrides,
	}
	payload.ProvcaPath, err = h.saveUpload(run.ID, "provca", provca)
	if err == nil && clanti != nil {
		payload.ClantiPath, err = h.saveUpload(run.ID, "clanti", clanti)
	}
	if err != nil {
		h.logger.Error("persist upload", slog.String("run_id", run.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	if _, err := h.queue.EnqueueDebtModelBuild(r.Context(), payload); err != nil {
		h.logger.Error("enqueue debt model build", slog.String("run_id", run.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"status": run.Status,
	})
}

func (h *Handler) buildInput(form runForm, overrides map[string]float64, provca, clanti io.Reader) (cartera.BuildInput, []cartera.Diagnostic, error) {
	var (
		in    cartera.BuildInput
		diags []cartera.Diagnostic
		err   error
	)
	in.Invoices, diags, err = h.normalizer.ReadInvoices(provca)
	if err != nil {
		return in, nil, err
	}
	if clanti != nil {
		var advDiags []cartera.Diagnostic
		in.Advances, advDiags, err = h.normalizer.ReadAdvances(clanti)
		if err != nil {
			return in, nil, err
		}
		diags = append(diags, advDiags...)
	}
	if form.ClosingDate != "" {
		closing, _ := time.Parse(dateLayout, form.ClosingDate)
		in.ClosingDate = cartera.MonthEnd(closing)
	}
	in.Policy = cartera.NettingPolicy(form.Policy)
	in.RateOverrides = overrides
	return in, diags, nil
}

func (h *Handler) saveUpload(runID, name string, src io.Reader) (string, error) {
	dir := h.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", runID, name))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", err
	}
	return path, dst.Close()
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]runSummary, len(list))
	for i := range list {
		out[i] = newRunSummary(&list[i])
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newRunSummary(run))
}

func (h *Handler) downloadArtifact(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	for _, artifact := range run.Artifacts {
		if artifact.Name != name {
			continue
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", filepath.Base(artifact.Path)))
		http.ServeFile(w, r, artifact.Path)
		return
	}
	httpx.Problem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("run has no %q artifact", name))
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	var missing *fx.MissingRateError
	switch {
	case errors.Is(err, runs.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &missing), errors.Is(err, shared.ErrNotFound):
		// No usable exchange rate for the period: the run is rejected, never
		// converted at a default rate.
		httpx.Problem(w, http.StatusUnprocessableEntity, "Exchange Rates Missing", err.Error())
	case errors.Is(err, cartera.ErrClosingDateUnknown):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Closing Date Unknown", err.Error())
	default:
		h.logger.Error("run request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

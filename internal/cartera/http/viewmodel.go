package carterahttp

import (
	"fmt"
	"strings"
	"time"

	"github.com/cartera-ar/cartera/internal/cartera"
	"github.com/cartera-ar/cartera/internal/runs"
)

// overridePrefix marks form fields carrying a manual exchange rate, e.g.
// rate_USD=4.000,50. Values accept both decimal conventions.
const overridePrefix = "rate_"

func rateOverrides(values map[string][]string) (map[string]float64, error) {
	var overrides map[string]float64
	for field, vals := range values {
		if !strings.HasPrefix(field, overridePrefix) || len(vals) == 0 {
			continue
		}
		currency := strings.ToUpper(strings.TrimPrefix(field, overridePrefix))
		rate, err := cartera.ParseAmount(field, vals[0])
		if err != nil {
			return nil, err
		}
		if rate <= 0 {
			return nil, fmt.Errorf("rate for %s must be positive", currency)
		}
		if overrides == nil {
			overrides = make(map[string]float64)
		}
		overrides[currency] = rate
	}
	return overrides, nil
}

type runSummary struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ClosingDate string `json:"closing_date,omitempty"`
	Policy      string `json:"policy"`

	InvoiceCount   int `json:"invoice_count"`
	AdvanceCount   int `json:"advance_count"`
	RowCount       int `json:"row_count"`
	ViolationCount int `json:"violation_count"`

	TotalBalance   float64            `json:"total_balance"`
	TotalOverdue   float64            `json:"total_overdue"`
	TotalProvision float64            `json:"total_provision"`
	Rates          map[string]float64 `json:"rates,omitempty"`

	Artifacts []string `json:"artifacts,omitempty"`
	Error     string   `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func newRunSummary(run *runs.Run) runSummary {
	out := runSummary{
		ID:             run.ID,
		Status:         string(run.Status),
		Policy:         string(run.Policy),
		InvoiceCount:   run.InvoiceCount,
		AdvanceCount:   run.AdvanceCount,
		RowCount:       run.RowCount,
		ViolationCount: run.ViolationCount,
		TotalBalance:   run.TotalBalance,
		TotalOverdue:   run.TotalOverdue,
		TotalProvision: run.TotalProvision,
		Rates:          run.Rates,
		Error:          run.Error,
		CreatedAt:      run.CreatedAt,
	}
	if !run.ClosingDate.IsZero() {
		out.ClosingDate = run.ClosingDate.Format(dateLayout)
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		out.FinishedAt = &finished
	}
	for _, artifact := range run.Artifacts {
		out.Artifacts = append(out.Artifacts, artifact.Name)
	}
	return out
}

type bucketView struct {
	NotDue         float64 `json:"not_due"`
	Overdue30      float64 `json:"overdue_30"`
	Overdue60      float64 `json:"overdue_60"`
	Overdue90      float64 `json:"overdue_90"`
	Overdue180     float64 `json:"overdue_180"`
	Overdue360     float64 `json:"overdue_360"`
	Overdue360Plus float64 `json:"overdue_360_plus"`
}

func newBucketView(b cartera.BucketAmounts) bucketView {
	return bucketView{
		NotDue:         b.NotDue,
		Overdue30:      b.Overdue30,
		Overdue60:      b.Overdue60,
		Overdue90:      b.Overdue90,
		Overdue180:     b.Overdue180,
		Overdue360:     b.Overdue360,
		Overdue360Plus: b.Overdue360Plus,
	}
}

type totalView struct {
	Currency     string     `json:"currency"`
	Converted    bool       `json:"converted,omitempty"`
	Rate         float64    `json:"rate,omitempty"`
	Balance      float64    `json:"balance"`
	Buckets      bucketView `json:"buckets"`
	TotalOverdue float64    `json:"total_overdue"`
	TotalNotDue  float64    `json:"total_not_due"`
	Over90       float64    `json:"over_90"`
	Provision    float64    `json:"provision"`
}

type violationView struct {
	RecordID string  `json:"record_id"`
	Check    string  `json:"check"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	Delta    float64 `json:"delta"`
}

type diagnosticView struct {
	RecordID string `json:"record_id,omitempty"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
}

type runResponse struct {
	Run         runSummary       `json:"run"`
	Totals      []totalView      `json:"totals"`
	Violations  []violationView  `json:"violations,omitempty"`
	Diagnostics []diagnosticView `json:"diagnostics,omitempty"`
}

func newRunResponse(run *runs.Run, model *cartera.Model, ingestDiags []cartera.Diagnostic) runResponse {
	out := runResponse{Run: newRunSummary(run)}
	for _, t := range append(append([]cartera.GrandTotal{}, model.Totals...), model.ConvertedTotals...) {
		out.Totals = append(out.Totals, totalView{
			Currency:     t.Currency,
			Converted:    t.Converted,
			Rate:         t.Rate,
			Balance:      t.Balance,
			Buckets:      newBucketView(t.Buckets),
			TotalOverdue: t.TotalOverdue,
			TotalNotDue:  t.TotalNotDue,
			Over90:       t.Over90,
			Provision:    t.Provision,
		})
	}
	for _, v := range model.Violations {
		out.Violations = append(out.Violations, violationView{
			RecordID: v.RecordID,
			Check:    string(v.Check),
			Expected: v.Expected,
			Actual:   v.Actual,
			Delta:    v.Delta,
		})
	}
	for _, d := range append(append([]cartera.Diagnostic{}, ingestDiags...), model.Diagnostics...) {
		out.Diagnostics = append(out.Diagnostics, diagnosticView{
			RecordID: d.RecordID,
			Code:     string(d.Code),
			Detail:   d.Detail,
		})
	}
	return out
}

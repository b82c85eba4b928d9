package cartera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cartera-ar/cartera/internal/cartera/fx"
)

// ErrClosingDateUnknown means the caller gave no closing date and the batch
// carries no issue dates to derive one from.
var ErrClosingDateUnknown = errors.New("cartera: closing date not supplied and not derivable from the batch")

// Engine runs the debt-model pipeline: classification, advance integration,
// currency conversion and aggregation, strictly in that order. It holds no
// state across runs; each invocation is a pure batch transform of one input
// snapshot.
type Engine struct {
	classifier *Classifier
	taxonomy   Taxonomy
	rates      fx.Provider
	logger     *slog.Logger
}

// NewEngine constructs the engine. The rate provider and logger are injected;
// there is no process-wide rate cache or logger singleton.
func NewEngine(classifier *Classifier, taxonomy Taxonomy, rates fx.Provider, logger *slog.Logger) *Engine {
	if classifier == nil {
		classifier = NewClassifier(ClassifierConfig{GraceDays: DefaultGraceDays}, logger)
	}
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{classifier: classifier, taxonomy: taxonomy, rates: rates, logger: logger}
}

// BuildInput is one snapshot of records plus run options.
type BuildInput struct {
	Invoices []InvoiceRecord
	Advances []AdvanceRecord

	// ClosingDate overrides the derived closing date when non-zero.
	ClosingDate time.Time
	Policy      NettingPolicy

	// RateOverrides replace sourced rates, e.g. manual TRM values supplied by
	// the caller. Zero and negative values are ignored.
	RateOverrides map[string]float64
}

// BuildDebtModel executes the full pipeline. An empty input yields an empty
// model, not an error: a period with zero receivables is valid. The only
// fatal conditions are configuration-level: an unresolvable closing date, a
// rate snapshot that cannot be sourced, or a missing rate for a currency
// present in the data.
func (e *Engine) BuildDebtModel(ctx context.Context, in BuildInput) (*Model, error) {
	policy, err := ParseNettingPolicy(string(in.Policy))
	if err != nil {
		return nil, err
	}

	closing := in.ClosingDate
	if closing.IsZero() {
		closing = ClosingDateFor(in.Invoices)
	}
	if closing.IsZero() && (len(in.Invoices) > 0 || len(in.Advances) > 0) {
		return nil, ErrClosingDateUnknown
	}

	model := &Model{ClosingDate: closing, Policy: policy}
	if len(in.Invoices) == 0 && len(in.Advances) == 0 {
		return model, nil
	}

	classified, diags, err := e.classifier.ClassifyBatch(ctx, in.Invoices, closing)
	if err != nil {
		return nil, err
	}
	model.Diagnostics = append(model.Diagnostics, diags...)

	integrator := NewIntegrator(policy, e.logger)
	population, err := integrator.Integrate(classified, in.Advances, closing)
	if err != nil {
		return nil, err
	}

	// Currency assignment precedes conversion so the snapshot validation
	// sees the currencies the aggregation will actually use.
	for idx := range population {
		if population[idx].Currency == "" {
			entry, _ := e.taxonomy.Lookup(population[idx].BusinessLine)
			population[idx].Currency = entry.Currency
		}
	}

	snapshot, err := e.snapshotFor(ctx, closing, in.RateOverrides)
	if err != nil {
		return nil, err
	}
	model.Rates = snapshot

	aggregator := NewAggregator(e.taxonomy, e.logger)
	rows, totals, converted, violations, aggDiags, err := aggregator.Aggregate(population, snapshot)
	if err != nil {
		return nil, err
	}
	model.Rows = rows
	model.Totals = totals
	model.ConvertedTotals = converted
	model.Violations = violations
	model.Diagnostics = append(model.Diagnostics, aggDiags...)

	e.logger.Info("debt model built",
		slog.Time("closing", closing),
		slog.String("policy", string(policy)),
		slog.Int("invoices", len(in.Invoices)),
		slog.Int("advances", len(in.Advances)),
		slog.Int("rows", len(rows)),
		slog.Int("violations", len(violations)))
	return model, nil
}

// snapshotFor sources the rate snapshot for the month preceding closing and
// applies caller overrides. When every rate is overridden the provider may be
// nil; otherwise a sourcing failure is fatal.
func (e *Engine) snapshotFor(ctx context.Context, closing time.Time, overrides map[string]float64) (fx.Snapshot, error) {
	reference := RateReferenceDate(closing)
	if e.rates == nil {
		return fx.Snapshot{AsOf: reference}.WithOverrides(overrides), nil
	}
	snapshot, err := e.rates.SnapshotFor(ctx, reference)
	if err != nil {
		return fx.Snapshot{}, fmt.Errorf("cartera: source exchange rates: %w", err)
	}
	return snapshot.WithOverrides(overrides), nil
}

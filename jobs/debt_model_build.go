package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cartera-ar/cartera/internal/cartera"
	"github.com/cartera-ar/cartera/internal/ingest"
	"github.com/cartera-ar/cartera/internal/runs"
)

// DebtModelProcessor executes debt-model builds from the queue.
type DebtModelProcessor struct {
	runs       *runs.Service
	normalizer *ingest.Normalizer
	logger     *slog.Logger
}

// NewDebtModelProcessor constructs the processor.
func NewDebtModelProcessor(svc *runs.Service, normalizer *ingest.Normalizer, logger *slog.Logger) *DebtModelProcessor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if normalizer == nil {
		normalizer = ingest.NewNormalizer(logger)
	}
	return &DebtModelProcessor{runs: svc, normalizer: normalizer, logger: logger}
}

// ProcessTask handles TaskTypeDebtModelBuild. A malformed payload is never
// retried; build failures are recorded on the run by the service and retried
// per the task's policy.
func (p *DebtModelProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload DebtModelBuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.logger.Error("debt model payload malformed", slog.Any("error", err))
		return asynq.SkipRetry
	}

	in, err := p.buildInput(payload)
	if err != nil {
		p.logger.Error("debt model input",
			slog.String("run_id", payload.RunID), slog.Any("error", err))
		if failErr := p.runs.Fail(ctx, payload.RunID, err); failErr != nil {
			p.logger.Error("record input failure",
				slog.String("run_id", payload.RunID), slog.Any("error", failErr))
		}
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if _, err := p.runs.Execute(ctx, payload.RunID, in); err != nil {
		return fmt.Errorf("jobs: debt model build %s: %w", payload.RunID, err)
	}
	return nil
}

func (p *DebtModelProcessor) buildInput(payload DebtModelBuildPayload) (cartera.BuildInput, error) {
	var in cartera.BuildInput

	provca, err := os.Open(payload.ProvcaPath)
	if err != nil {
		return in, fmt.Errorf("open provca extract: %w", err)
	}
	defer func() { _ = provca.Close() }()
	in.Invoices, _, err = p.normalizer.ReadInvoices(provca)
	if err != nil {
		return in, err
	}

	if payload.ClantiPath != "" {
		clanti, err := os.Open(payload.ClantiPath)
		if err != nil {
			return in, fmt.Errorf("open clanti extract: %w", err)
		}
		defer func() { _ = clanti.Close() }()
		in.Advances, _, err = p.normalizer.ReadAdvances(clanti)
		if err != nil {
			return in, err
		}
	}

	if payload.ClosingDate != "" {
		closing, err := time.Parse("2006-01-02", payload.ClosingDate)
		if err != nil {
			return in, fmt.Errorf("parse closing date: %w", err)
		}
		in.ClosingDate = cartera.MonthEnd(closing)
	}
	in.Policy = cartera.NettingPolicy(payload.Policy)
	in.RateOverrides = payload.RateOverrides
	return in, nil
}

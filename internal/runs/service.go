package runs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cartera-ar/cartera/internal/cartera"
	"github.com/cartera-ar/cartera/internal/cartera/fx"
	"github.com/cartera-ar/cartera/internal/export"
)

// Store is the persistence port for run records.
type Store interface {
	Create(ctx context.Context, input CreateInput) (*Run, error)
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, input CompleteInput) error
	Fail(ctx context.Context, id string, cause error) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
}

// Service executes debt-model runs and records their outcome.
type Service struct {
	store     Store
	engine    *cartera.Engine
	exportDir string
	logger    *slog.Logger
}

// NewService constructs the run service.
func NewService(store Store, engine *cartera.Engine, exportDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, engine: engine, exportDir: exportDir, logger: logger}
}

// Start registers a pending run and returns its identifier. The heavy work
// happens in Execute, either inline or on a worker.
func (s *Service) Start(ctx context.Context, closing cartera.BuildInput) (*Run, error) {
	policy, err := cartera.ParseNettingPolicy(string(closing.Policy))
	if err != nil {
		return nil, err
	}
	return s.store.Create(ctx, CreateInput{
		ID:          uuid.NewString(),
		ClosingDate: closing.ClosingDate,
		Policy:      policy,
	})
}

// Execute builds the debt model for a previously started run, exports its
// artifacts and finalises the record. Build failures are recorded on the run
// and returned.
func (s *Service) Execute(ctx context.Context, id string, in cartera.BuildInput) (*cartera.Model, error) {
	if err := s.store.MarkRunning(ctx, id); err != nil {
		return nil, err
	}

	model, err := s.engine.BuildDebtModel(ctx, in)
	if err != nil {
		if failErr := s.store.Fail(ctx, id, err); failErr != nil {
			s.logger.Error("record run failure", slog.String("run_id", id), slog.Any("error", failErr))
		}
		return nil, err
	}

	artifacts, err := s.exportArtifacts(id, model)
	if err != nil {
		if failErr := s.store.Fail(ctx, id, err); failErr != nil {
			s.logger.Error("record run failure", slog.String("run_id", id), slog.Any("error", failErr))
		}
		return nil, err
	}

	balance, overdue, provision := headlineTotals(model)
	complete := CompleteInput{
		ClosingDate:    model.ClosingDate,
		InvoiceCount:   len(in.Invoices),
		AdvanceCount:   len(in.Advances),
		RowCount:       len(model.Rows),
		ViolationCount: len(model.Violations),
		TotalBalance:   balance,
		TotalOverdue:   overdue,
		TotalProvision: provision,
		Rates:          model.Rates.Rates,
		Artifacts:      artifacts,
	}
	if err := s.store.Complete(ctx, id, complete); err != nil {
		return nil, fmt.Errorf("runs: finalise %s: %w", id, err)
	}

	s.logger.Info("run completed",
		slog.String("run_id", id),
		slog.Int("rows", len(model.Rows)),
		slog.Int("violations", len(model.Violations)))
	return model, nil
}

// Run starts and executes in one call, the synchronous path.
func (s *Service) Run(ctx context.Context, in cartera.BuildInput) (*Run, *cartera.Model, error) {
	run, err := s.Start(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	model, err := s.Execute(ctx, run.ID, in)
	if err != nil {
		return run, nil, err
	}
	finished, err := s.store.Get(ctx, run.ID)
	if err != nil {
		return run, model, nil
	}
	return finished, model, nil
}

// Get fetches one run.
func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	return s.store.Get(ctx, id)
}

// Fail marks a run as failed without executing it, for callers that hit an
// error before the build could start.
func (s *Service) Fail(ctx context.Context, id string, cause error) error {
	return s.store.Fail(ctx, id, cause)
}

// List returns recent runs.
func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	return s.store.List(ctx, limit)
}

func (s *Service) exportArtifacts(id string, model *cartera.Model) ([]Artifact, error) {
	if s.exportDir == "" {
		return nil, nil
	}
	written, err := export.WriteModel(s.exportDir, id, model)
	if err != nil {
		return nil, err
	}
	artifacts := make([]Artifact, len(written))
	for i, a := range written {
		artifacts[i] = Artifact{Name: a.Name, Path: a.Path}
	}
	return artifacts, nil
}

// headlineTotals expresses the run's totals in local currency: local totals
// as-is plus the converted foreign totals.
func headlineTotals(model *cartera.Model) (balance, overdue, provision float64) {
	for _, t := range model.Totals {
		if t.Currency != fx.Local {
			continue
		}
		balance += t.Balance
		overdue += t.TotalOverdue
		provision += t.Provision
	}
	for _, t := range model.ConvertedTotals {
		balance += t.Balance
		overdue += t.TotalOverdue
		provision += t.Provision
	}
	return balance, overdue, provision
}

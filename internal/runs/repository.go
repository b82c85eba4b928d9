package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartera-ar/cartera/internal/shared"
)

// ErrNotFound indicates the run does not exist.
var ErrNotFound = errors.New("runs: not found")

// Repository provides PostgreSQL backed persistence for runs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending run.
func (r *Repository) Create(ctx context.Context, input CreateInput) (*Run, error) {
	query := `
		INSERT INTO cartera_runs (id, status, closing_date, policy, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at`

	run := Run{
		ID:          input.ID,
		Status:      StatusPending,
		ClosingDate: input.ClosingDate,
		Policy:      input.Policy,
	}
	err := r.pool.QueryRow(ctx, query, input.ID, StatusPending, input.ClosingDate, input.Policy).
		Scan(&run.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, fmt.Errorf("runs: create %s: %w", input.ID, shared.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("runs: create: %w", err)
	}
	return &run, nil
}

// MarkRunning transitions a run to RUNNING.
func (r *Repository) MarkRunning(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cartera_runs SET status = $2 WHERE id = $1 AND status = $3`,
		id, StatusRunning, StatusPending)
	if err != nil {
		return fmt.Errorf("runs: mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete stores the results of a successful run.
func (r *Repository) Complete(ctx context.Context, id string, input CompleteInput) error {
	rates, err := json.Marshal(input.Rates)
	if err != nil {
		return fmt.Errorf("runs: encode rates: %w", err)
	}
	artifacts, err := json.Marshal(input.Artifacts)
	if err != nil {
		return fmt.Errorf("runs: encode artifacts: %w", err)
	}

	query := `
		UPDATE cartera_runs SET
			status = $2,
			closing_date = $3,
			invoice_count = $4,
			advance_count = $5,
			row_count = $6,
			violation_count = $7,
			total_balance = $8,
			total_overdue = $9,
			total_provision = $10,
			rates = $11,
			artifacts = $12,
			finished_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, StatusCompleted, input.ClosingDate,
		input.InvoiceCount, input.AdvanceCount, input.RowCount, input.ViolationCount,
		input.TotalBalance, input.TotalOverdue, input.TotalProvision,
		rates, artifacts)
	if err != nil {
		return fmt.Errorf("runs: complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail stores a failed run with its error message.
func (r *Repository) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE cartera_runs SET status = $2, error = $3, finished_at = NOW() WHERE id = $1`,
		id, StatusFailed, msg)
	if err != nil {
		return fmt.Errorf("runs: fail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches one run by id.
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, status, closing_date, policy,
		       invoice_count, advance_count, row_count, violation_count,
		       total_balance, total_overdue, total_provision,
		       rates, artifacts, error, created_at, finished_at
		FROM cartera_runs
		WHERE id = $1`

	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("runs: get: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, status, closing_date, policy,
		       invoice_count, advance_count, row_count, violation_count,
		       total_balance, total_overdue, total_provision,
		       rates, artifacts, error, created_at, finished_at
		FROM cartera_runs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("runs: list: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("runs: list scan: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		rates      []byte
		artifacts  []byte
		errMsg     pgtype.Text
		finishedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&run.ID, &run.Status, &run.ClosingDate, &run.Policy,
		&run.InvoiceCount, &run.AdvanceCount, &run.RowCount, &run.ViolationCount,
		&run.TotalBalance, &run.TotalOverdue, &run.TotalProvision,
		&rates, &artifacts, &errMsg, &run.CreatedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rates) > 0 {
		if err := json.Unmarshal(rates, &run.Rates); err != nil {
			return nil, err
		}
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &run.Artifacts); err != nil {
			return nil, err
		}
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

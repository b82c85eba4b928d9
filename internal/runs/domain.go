// Package runs records the history of debt-model executions: one row per
// run with its parameters, headline totals and artifact locations.
package runs

import (
	"time"

	"github.com/cartera-ar/cartera/internal/cartera"
)

// Status enumerates run states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Run is one debt-model execution.
type Run struct {
	ID          string
	Status      Status
	ClosingDate time.Time
	Policy      cartera.NettingPolicy

	InvoiceCount   int
	AdvanceCount   int
	RowCount       int
	ViolationCount int

	TotalBalance   float64
	TotalOverdue   float64
	TotalProvision float64
	Rates          map[string]float64

	Artifacts []Artifact
	Error     string

	CreatedAt  time.Time
	FinishedAt time.Time
}

// Artifact is one exported file of a run.
type Artifact struct {
	Name string
	Path string
}

// CreateInput starts a run record.
type CreateInput struct {
	ID          string
	ClosingDate time.Time
	Policy      cartera.NettingPolicy
}

// CompleteInput finalises a run record from a built model.
type CompleteInput struct {
	// ClosingDate records the date the build actually used, which may have
	// been derived from the batch rather than supplied up front.
	ClosingDate time.Time

	InvoiceCount   int
	AdvanceCount   int
	RowCount       int
	ViolationCount int
	TotalBalance   float64
	TotalOverdue   float64
	TotalProvision float64
	Rates          map[string]float64
	Artifacts      []Artifact
}

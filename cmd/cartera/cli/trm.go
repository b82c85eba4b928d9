package cli

import (
	"context"
	"errors"
	"time"
)

// rateStore is the slice of the TRM table the CLI needs.
type rateStore interface {
	RatesFor(ctx context.Context, date time.Time) (map[string]float64, error)
	Save(ctx context.Context, date time.Time, rates map[string]float64) error
	Dates(ctx context.Context) ([]time.Time, error)
}

// TRMOpsCLI offers operational helpers to manage the exchange-rate table
// used for foreign-currency conversion.
type TRMOpsCLI struct {
	store rateStore
}

// NewTRMOpsCLI constructs a new helper instance.
func NewTRMOpsCLI(store rateStore) (*TRMOpsCLI, error) {
	if store == nil {
		return nil, errors.New("trm cli: store is required")
	}
	return &TRMOpsCLI{store: store}, nil
}

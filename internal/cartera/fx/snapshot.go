// Package fx holds the exchange-rate snapshot used to express foreign
// currency exposure in local currency, and the provider port that sources it.
package fx

import (
	"context"
	"fmt"
	"time"
)

// Local is the reporting currency; amounts in it never go through a rate.
const Local = "COP"

// Snapshot maps currency codes to their rate into local currency, valid for a
// single reference date: the last calendar day of the month preceding the
// closing month. Immutable for the duration of a run.
type Snapshot struct {
	AsOf  time.Time
	Rates map[string]float64
}

// MissingRateError reports a currency present in the data with no rate in the
// snapshot. It is fatal for the run: conversion must never default to 1.0.
type MissingRateError struct {
	Currency string
	AsOf     time.Time
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("fx: no rate for %s as of %s", e.Currency, e.AsOf.Format("2006-01-02"))
}

// Rate returns the conversion rate into local currency. The local currency
// itself always converts at 1.
func (s Snapshot) Rate(currency string) (float64, error) {
	if currency == Local {
		return 1, nil
	}
	rate, ok := s.Rates[currency]
	if !ok || rate <= 0 {
		return 0, &MissingRateError{Currency: currency, AsOf: s.AsOf}
	}
	return rate, nil
}

// Convert expresses an original-currency value in local currency.
func (s Snapshot) Convert(value float64, currency string) (float64, error) {
	rate, err := s.Rate(currency)
	if err != nil {
		return 0, err
	}
	return value * rate, nil
}

// WithOverrides returns a copy of the snapshot with caller-supplied rates
// replacing the sourced ones. Zero or negative overrides are ignored.
func (s Snapshot) WithOverrides(overrides map[string]float64) Snapshot {
	if len(overrides) == 0 {
		return s
	}
	rates := make(map[string]float64, len(s.Rates)+len(overrides))
	for ccy, rate := range s.Rates {
		rates[ccy] = rate
	}
	for ccy, rate := range overrides {
		if rate > 0 {
			rates[ccy] = rate
		}
	}
	return Snapshot{AsOf: s.AsOf, Rates: rates}
}

// Validate checks that every listed currency has a usable rate, returning one
// error per gap. An empty return means the snapshot covers the run.
func (s Snapshot) Validate(currencies []string) []error {
	var gaps []error
	seen := make(map[string]struct{}, len(currencies))
	for _, ccy := range currencies {
		if ccy == Local {
			continue
		}
		if _, dup := seen[ccy]; dup {
			continue
		}
		seen[ccy] = struct{}{}
		if _, err := s.Rate(ccy); err != nil {
			gaps = append(gaps, err)
		}
	}
	return gaps
}

// Provider sources the snapshot valid for a reference date.
type Provider interface {
	SnapshotFor(ctx context.Context, reference time.Time) (Snapshot, error)
}

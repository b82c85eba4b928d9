// Package trm manages the market exchange-rate table (TRM) that backs
// currency conversion: a JSON file keyed by date, each entry holding the
// rates into local currency, plus an optional Redis read-through cache.
package trm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cartera-ar/cartera/internal/cartera/fx"
	"github.com/cartera-ar/cartera/internal/shared"
)

const dateLayout = "2006-01-02"

// rateTable is the on-disk shape: {"2025-10-31": {"USD": 4000.5, "EUR": 4400}}.
type rateTable map[string]map[string]float64

// FileStore reads and writes the TRM file. It implements fx.Provider and is
// safe for concurrent use; writes rewrite the whole file atomically.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu sync.RWMutex
}

// NewFileStore opens a store over a TRM file path. The file may not exist
// yet; reads then report no rates and the first Save creates it.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) load() (rateTable, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return rateTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trm: read %s: %w", s.path, err)
	}
	var table rateTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("trm: decode %s: %w", s.path, err)
	}
	return table, nil
}

// RatesFor returns the rates recorded for one date. A date with no entry is
// shared.ErrNotFound; conversion never falls back to a neighbouring date
// silently.
func (s *FileStore) RatesFor(_ context.Context, date time.Time) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.load()
	if err != nil {
		return nil, err
	}
	rates, ok := table[date.Format(dateLayout)]
	if !ok || len(rates) == 0 {
		return nil, fmt.Errorf("trm: no rates for %s: %w", date.Format(dateLayout), shared.ErrNotFound)
	}
	return rates, nil
}

// SnapshotFor implements fx.Provider.
func (s *FileStore) SnapshotFor(ctx context.Context, reference time.Time) (fx.Snapshot, error) {
	rates, err := s.RatesFor(ctx, reference)
	if err != nil {
		return fx.Snapshot{}, err
	}
	return fx.Snapshot{AsOf: reference, Rates: rates}, nil
}

// Save merges the given rates into the date's entry and rewrites the file.
// Non-positive rates are rejected before anything touches disk.
func (s *FileStore) Save(_ context.Context, date time.Time, rates map[string]float64) error {
	if len(rates) == 0 {
		return errors.New("trm: no rates to save")
	}
	for ccy, rate := range rates {
		if rate <= 0 {
			return fmt.Errorf("trm: rate for %s must be positive, got %v", ccy, rate)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.load()
	if err != nil {
		return err
	}
	key := date.Format(dateLayout)
	entry := table[key]
	if entry == nil {
		entry = make(map[string]float64, len(rates))
	}
	for ccy, rate := range rates {
		entry[ccy] = rate
	}
	table[key] = entry

	raw, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("trm: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("trm: ensure dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("trm: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("trm: replace %s: %w", s.path, err)
	}

	s.logger.Info("trm rates saved", slog.String("date", key), slog.Int("currencies", len(rates)))
	return nil
}

// Dates lists the dates with recorded rates, newest first.
func (s *FileStore) Dates(_ context.Context) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.load()
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(table))
	for key := range table {
		t, err := time.Parse(dateLayout, key)
		if err != nil {
			continue
		}
		dates = append(dates, t)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

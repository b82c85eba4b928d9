package cartera

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/cartera-ar/cartera/internal/cartera/fx"
)

// ReconcileTolerance is the absolute tolerance, in currency units, for the
// per-record reconciliation identities.
const ReconcileTolerance = 0.01

// ConsolidatedRow is one output aggregate keyed by business unit, channel,
// currency and client.
type ConsolidatedRow struct {
	BusinessUnit string
	Channel      string
	Currency     string
	ClientName   string

	Balance        float64
	Buckets        BucketAmounts
	TotalOverdue   float64
	TotalNotDue    float64
	OverdueBalance float64
	Over90         float64
	DueMonth1      float64
	DueMonth2      float64
	DueMonth3      float64
	Provision      float64
}

// GrandTotal is a per-currency total row. Converted rows express a foreign
// currency in local units at the snapshot rate.
type GrandTotal struct {
	Currency  string
	Converted bool
	Rate      float64

	Balance        float64
	Buckets        BucketAmounts
	TotalOverdue   float64
	TotalNotDue    float64
	OverdueBalance float64
	Over90         float64
	DueMonth1      float64
	DueMonth2      float64
	DueMonth3      float64
	Provision      float64
}

// ViolationCheck names the reconciliation identity that failed.
type ViolationCheck string

const (
	CheckBucketSum       ViolationCheck = "BUCKET_SUM"
	CheckOverdueIdentity ViolationCheck = "OVERDUE_IDENTITY"
	CheckProvision       ViolationCheck = "PROVISION"
)

// Violation records one failed identity with the magnitude of the mismatch.
// Violations accumulate; they never halt a run.
type Violation struct {
	RecordID string
	Check    ViolationCheck
	Expected float64
	Actual   float64
	Delta    float64
}

// Model is the consolidated output of one engine run.
type Model struct {
	ClosingDate     time.Time
	Policy          NettingPolicy
	Rates           fx.Snapshot
	Rows            []ConsolidatedRow
	Totals          []GrandTotal
	ConvertedTotals []GrandTotal
	Violations      []Violation
	Diagnostics     []Diagnostic
}

// Aggregator groups classified records by the business taxonomy and currency,
// computes grand totals, and cross-validates every record.
type Aggregator struct {
	taxonomy Taxonomy
	logger   *slog.Logger
}

// NewAggregator constructs an aggregator over a taxonomy.
func NewAggregator(taxonomy Taxonomy, logger *slog.Logger) *Aggregator {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{taxonomy: taxonomy, logger: logger}
}

type groupKey struct {
	businessUnit string
	channel      string
	currency     string
	client       string
}

// Aggregate builds consolidated rows, per-currency grand totals and the
// converted grand totals. A missing rate for a currency actually present in
// the records is fatal; reconciliation failures are not.
func (a *Aggregator) Aggregate(records []ClassifiedRecord, snapshot fx.Snapshot) ([]ConsolidatedRow, []GrandTotal, []GrandTotal, []Violation, []Diagnostic, error) {
	groups := make(map[groupKey]*ConsolidatedRow)
	var violations []Violation
	var diagnostics []Diagnostic
	currencies := make(map[string]struct{})

	for _, rec := range records {
		violations = append(violations, reconcile(rec)...)

		entry, mapped := a.taxonomy.Lookup(rec.BusinessLine)
		if !mapped {
			diagnostics = append(diagnostics, Diagnostic{
				RecordID: rec.InvoiceNumber,
				Code:     DiagUnmappedBusinessKey,
				Detail:   fmt.Sprintf("business line %q routed to %s/%s", rec.BusinessLine, Others, Others),
			})
		}
		currency := rec.Currency
		if currency == "" {
			currency = entry.Currency
		}
		currencies[currency] = struct{}{}

		key := groupKey{
			businessUnit: entry.BusinessUnit,
			channel:      entry.Channel,
			currency:     currency,
			client:       rec.ClientName,
		}
		row, ok := groups[key]
		if !ok {
			row = &ConsolidatedRow{
				BusinessUnit: entry.BusinessUnit,
				Channel:      entry.Channel,
				Currency:     currency,
				ClientName:   rec.ClientName,
			}
			groups[key] = row
		}
		row.Balance += rec.Balance
		row.Buckets.Add(rec.Buckets)
		row.TotalOverdue += rec.TotalOverdue
		row.TotalNotDue += rec.TotalNotDue
		row.OverdueBalance += rec.OverdueBalance
		row.Over90 += rec.Over90
		row.DueMonth1 += rec.DueMonth1
		row.DueMonth2 += rec.DueMonth2
		row.DueMonth3 += rec.DueMonth3
		row.Provision += rec.ProvisionAmount
	}

	// Rate coverage is a configuration-level failure: refuse to emit a
	// converted grand total rather than defaulting.
	present := make([]string, 0, len(currencies))
	for ccy := range currencies {
		present = append(present, ccy)
	}
	sort.Strings(present)
	if gaps := snapshot.Validate(present); len(gaps) > 0 {
		return nil, nil, nil, nil, nil, gaps[0]
	}

	rows := make([]ConsolidatedRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BusinessUnit != rows[j].BusinessUnit {
			return rows[i].BusinessUnit < rows[j].BusinessUnit
		}
		if rows[i].Channel != rows[j].Channel {
			return rows[i].Channel < rows[j].Channel
		}
		if rows[i].Currency != rows[j].Currency {
			return rows[i].Currency < rows[j].Currency
		}
		return rows[i].ClientName < rows[j].ClientName
	})

	totals := make([]GrandTotal, 0, len(present))
	converted := make([]GrandTotal, 0, len(present))
	for _, ccy := range present {
		var t GrandTotal
		t.Currency = ccy
		for _, row := range rows {
			if row.Currency != ccy {
				continue
			}
			t.Balance += row.Balance
			t.Buckets.Add(row.Buckets)
			t.TotalOverdue += row.TotalOverdue
			t.TotalNotDue += row.TotalNotDue
			t.OverdueBalance += row.OverdueBalance
			t.Over90 += row.Over90
			t.DueMonth1 += row.DueMonth1
			t.DueMonth2 += row.DueMonth2
			t.DueMonth3 += row.DueMonth3
			t.Provision += row.Provision
		}
		totals = append(totals, t)

		if ccy == fx.Local {
			continue
		}
		rate, err := snapshot.Rate(ccy)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		converted = append(converted, GrandTotal{
			Currency:       ccy,
			Converted:      true,
			Rate:           rate,
			Balance:        t.Balance * rate,
			Buckets:        t.Buckets.Scale(rate),
			TotalOverdue:   t.TotalOverdue * rate,
			TotalNotDue:    t.TotalNotDue * rate,
			OverdueBalance: t.OverdueBalance * rate,
			Over90:         t.Over90 * rate,
			DueMonth1:      t.DueMonth1 * rate,
			DueMonth2:      t.DueMonth2 * rate,
			DueMonth3:      t.DueMonth3 * rate,
			Provision:      t.Provision * rate,
		})
	}

	a.logger.Debug("aggregated records",
		slog.Int("records", len(records)),
		slog.Int("rows", len(rows)),
		slog.Int("violations", len(violations)))
	return rows, totals, converted, violations, diagnostics, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// reconcile checks the per-record identities: the seven buckets must sum to
// the balance, overdue plus not-due must equal the balance, and the provision
// must be all-or-nothing on the 180-day threshold.
func reconcile(rec ClassifiedRecord) []Violation {
	var out []Violation

	if sum := round2(rec.Buckets.Sum()); math.Abs(sum-round2(rec.Balance)) > ReconcileTolerance {
		out = append(out, Violation{
			RecordID: rec.InvoiceNumber,
			Check:    CheckBucketSum,
			Expected: round2(rec.Balance),
			Actual:   sum,
			Delta:    sum - round2(rec.Balance),
		})
	}

	if got := round2(rec.TotalOverdue + rec.TotalNotDue); math.Abs(got-round2(rec.Balance)) > ReconcileTolerance {
		out = append(out, Violation{
			RecordID: rec.InvoiceNumber,
			Check:    CheckOverdueIdentity,
			Expected: round2(rec.Balance),
			Actual:   got,
			Delta:    got - round2(rec.Balance),
		})
	}

	expected := 0.0
	if rec.DaysOverdue >= ProvisionThresholdDays {
		expected = rec.Balance
	}
	if math.Abs(round2(rec.ProvisionAmount)-round2(expected)) > ReconcileTolerance {
		out = append(out, Violation{
			RecordID: rec.InvoiceNumber,
			Check:    CheckProvision,
			Expected: round2(expected),
			Actual:   round2(rec.ProvisionAmount),
			Delta:    round2(rec.ProvisionAmount) - round2(expected),
		})
	}
	return out
}

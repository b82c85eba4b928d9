package cartera

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// NettingPolicy selects how advances are applied against the invoice
// population. The two strategies are not interchangeable and are never mixed
// within a single run.
type NettingPolicy string

const (
	// PolicyUnion adds each advance as an independent synthetic record with
	// its full negative amount in NOT_DUE. Invoice records are not touched.
	// This is the documented department procedure and the default.
	PolicyUnion NettingPolicy = "UNION"
	// PolicyCompensate subtracts the client's summed advances from that
	// client's invoice balances, distributing the reduction across the
	// client's existing bucket composition.
	PolicyCompensate NettingPolicy = "COMPENSATE"
)

// ParseNettingPolicy validates a policy name, defaulting the empty string to
// Union. The policy is always explicit caller input, never inferred from the
// shape of the data.
func ParseNettingPolicy(s string) (NettingPolicy, error) {
	switch NettingPolicy(s) {
	case "":
		return PolicyUnion, nil
	case PolicyUnion, PolicyCompensate:
		return NettingPolicy(s), nil
	default:
		return "", fmt.Errorf("cartera: unknown netting policy %q", s)
	}
}

// Integrator merges advance records into a classified invoice population.
type Integrator struct {
	policy NettingPolicy
	logger *slog.Logger
}

// NewIntegrator constructs an integrator for one policy.
func NewIntegrator(policy NettingPolicy, logger *slog.Logger) *Integrator {
	if policy == "" {
		policy = PolicyUnion
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Integrator{policy: policy, logger: logger}
}

// Integrate applies the configured policy. Inputs are never mutated; the
// returned slice is a fresh population.
func (i *Integrator) Integrate(invoices []ClassifiedRecord, advances []AdvanceRecord, closing time.Time) ([]ClassifiedRecord, error) {
	switch i.policy {
	case PolicyUnion:
		return i.union(invoices, advances, closing), nil
	case PolicyCompensate:
		return i.compensate(invoices, advances, closing), nil
	default:
		return nil, fmt.Errorf("cartera: unknown netting policy %q", i.policy)
	}
}

// advanceRecord builds the synthetic classified record for one advance: its
// effective due date is the closing date, so the full (negative) amount sits
// in NOT_DUE with zero day counts and no provision.
func advanceRecord(adv AdvanceRecord, closing time.Time) ClassifiedRecord {
	rec := ClassifiedRecord{
		InvoiceRecord: InvoiceRecord{
			InvoiceNumber: adv.AdvanceNumber,
			ClientID:      adv.ClientID,
			ClientName:    adv.ClientName,
			BusinessLine:  adv.BusinessLine,
			Currency:      adv.Currency,
			IssueDate:     adv.Date,
			DueDate:       closing,
			Balance:       adv.Amount,
		},
		Source: SourceAdvance,
	}
	rec.Buckets.NotDue = adv.Amount
	rec.TotalNotDue = adv.Amount
	return rec
}

func (i *Integrator) union(invoices []ClassifiedRecord, advances []AdvanceRecord, closing time.Time) []ClassifiedRecord {
	out := make([]ClassifiedRecord, 0, len(invoices)+len(advances))
	out = append(out, invoices...)
	for _, adv := range advances {
		out = append(out, advanceRecord(adv, closing))
	}
	i.logger.Debug("advances unioned",
		slog.Int("invoices", len(invoices)),
		slog.Int("advances", len(advances)))
	return out
}

func (i *Integrator) compensate(invoices []ClassifiedRecord, advances []AdvanceRecord, closing time.Time) []ClassifiedRecord {
	// Advance amounts carry the reduces-exposure sign, so summing per client
	// yields the (negative) adjustment to that client's exposure.
	perClient := make(map[string]float64)
	sample := make(map[string]AdvanceRecord)
	for _, adv := range advances {
		perClient[adv.ClientID] += adv.Amount
		if _, ok := sample[adv.ClientID]; !ok {
			sample[adv.ClientID] = adv
		}
	}

	clientBalance := make(map[string]float64)
	for _, inv := range invoices {
		clientBalance[inv.ClientID] += inv.Balance
	}

	out := make([]ClassifiedRecord, 0, len(invoices)+len(perClient))
	for _, inv := range invoices {
		adjustment, ok := perClient[inv.ClientID]
		total := clientBalance[inv.ClientID]
		if !ok || adjustment == 0 || math.Abs(total) < 1e-9 {
			out = append(out, inv)
			continue
		}
		// Scale the record so the client's total drops by the advance sum
		// while the bucket composition keeps its proportions.
		factor := (total + adjustment) / total
		scaled := inv
		scaled.Balance = inv.Balance * factor
		scaled.Buckets = inv.Buckets.Scale(factor)
		scaled.OverdueBalance = inv.OverdueBalance * factor
		scaled.TotalOverdue = scaled.Buckets.Overdue()
		scaled.TotalNotDue = scaled.Buckets.NotDue
		scaled.Over90 = scaled.Buckets.Over90()
		scaled.DueMonth1 = inv.DueMonth1 * factor
		scaled.DueMonth2 = inv.DueMonth2 * factor
		scaled.DueMonth3 = inv.DueMonth3 * factor
		scaled.ProvisionAmount = scaled.Balance * scaled.ProvisionRate
		out = append(out, scaled)
	}

	// Clients holding advances without any open invoice keep their exposure
	// as an unmatched negative record. Sorted for stable output order.
	unmatched := make([]string, 0, len(perClient))
	for clientID := range perClient {
		unmatched = append(unmatched, clientID)
	}
	sort.Strings(unmatched)
	for _, clientID := range unmatched {
		adjustment := perClient[clientID]
		if adjustment == 0 {
			continue
		}
		if total, ok := clientBalance[clientID]; ok && math.Abs(total) >= 1e-9 {
			continue
		}
		adv := sample[clientID]
		adv.Amount = adjustment
		out = append(out, advanceRecord(adv, closing))
	}

	i.logger.Debug("advances compensated",
		slog.Int("invoices", len(invoices)),
		slog.Int("clients_with_advances", len(perClient)))
	return out
}

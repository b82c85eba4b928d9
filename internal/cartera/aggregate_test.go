package cartera

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cartera-ar/cartera/internal/cartera/fx"
)

func copSnapshot() fx.Snapshot {
	return fx.Snapshot{AsOf: closing, Rates: map[string]float64{}}
}

func TestAggregateGroupsByTaxonomy(t *testing.T) {
	recs := []ClassifiedRecord{
		classifiedInvoice("ACME", 0, 100),
		classifiedInvoice("ACME", 0, 50),
		classifiedInvoice("BETA", 40, 200),
	}

	agg := NewAggregator(nil, nil)
	rows, totals, converted, violations, diags, err := agg.Aggregate(recs, copSnapshot())
	require.NoError(t, err)
	require.Empty(t, violations)
	require.Empty(t, diags)
	require.Empty(t, converted)

	require.Len(t, rows, 2)
	require.Equal(t, "ACME", rows[0].ClientName)
	require.InDelta(t, 150.0, rows[0].Balance, ReconcileTolerance)
	require.InDelta(t, 200.0, rows[1].Balance, ReconcileTolerance)
	require.InDelta(t, 200.0, rows[1].Buckets.Overdue30, ReconcileTolerance)

	require.Len(t, totals, 1)
	require.Equal(t, fx.Local, totals[0].Currency)
	require.InDelta(t, 350.0, totals[0].Balance, ReconcileTolerance)
	require.InDelta(t, 200.0, totals[0].TotalOverdue, ReconcileTolerance)
	require.InDelta(t, 150.0, totals[0].TotalNotDue, ReconcileTolerance)
	require.InDelta(t, 200.0, totals[0].OverdueBalance, ReconcileTolerance)
	require.InDelta(t, 0.0, totals[0].Over90, ReconcileTolerance)
}

func TestAggregateCarriesOver90AndDueMonths(t *testing.T) {
	overdue := classifiedInvoice("ACME", 95, 500)
	future := classifiedInvoice("ACME", 0, 300)
	future.DueMonth2 = 300 // due two months past closing

	agg := NewAggregator(nil, nil)
	rows, totals, _, _, _, err := agg.Aggregate([]ClassifiedRecord{overdue, future}, copSnapshot())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InDelta(t, 500.0, rows[0].Over90, ReconcileTolerance)
	require.InDelta(t, 500.0, rows[0].OverdueBalance, ReconcileTolerance)
	require.InDelta(t, 300.0, rows[0].DueMonth2, ReconcileTolerance)
	require.InDelta(t, 500.0, totals[0].Over90, ReconcileTolerance)
	require.InDelta(t, 300.0, totals[0].DueMonth2, ReconcileTolerance)
}

func TestAggregateRoutesUnmappedLinesToOthers(t *testing.T) {
	rec := classifiedInvoice("ACME", 0, 100)
	rec.BusinessLine = "PL99"

	agg := NewAggregator(nil, nil)
	rows, _, _, _, diags, err := agg.Aggregate([]ClassifiedRecord{rec}, copSnapshot())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, Others, rows[0].BusinessUnit)
	require.Equal(t, Others, rows[0].Channel)
	require.Len(t, diags, 1)
	require.Equal(t, DiagUnmappedBusinessKey, diags[0].Code)
}

func TestAggregateConvertsForeignCurrency(t *testing.T) {
	rec := classifiedInvoice("ACME", 0, 1000)
	rec.BusinessLine = "PL11" // USD line
	rec.Currency = CurrencyUSD

	snap := fx.Snapshot{AsOf: closing, Rates: map[string]float64{CurrencyUSD: 4000}}
	agg := NewAggregator(nil, nil)
	_, totals, converted, _, _, err := agg.Aggregate([]ClassifiedRecord{rec}, snap)
	require.NoError(t, err)

	require.Len(t, totals, 1)
	require.Equal(t, CurrencyUSD, totals[0].Currency)
	require.InDelta(t, 1000.0, totals[0].Balance, ReconcileTolerance)

	require.Len(t, converted, 1)
	require.True(t, converted[0].Converted)
	require.Equal(t, 4000.0, converted[0].Rate)
	require.InDelta(t, 4_000_000.0, converted[0].Balance, ReconcileTolerance)
	require.InDelta(t, 4_000_000.0, converted[0].Buckets.NotDue, ReconcileTolerance)
}

func TestAggregateMissingRateIsFatal(t *testing.T) {
	rec := classifiedInvoice("ACME", 0, 1000)
	rec.BusinessLine = "PL41" // EUR line
	rec.Currency = CurrencyEUR

	agg := NewAggregator(nil, nil)
	_, _, _, _, _, err := agg.Aggregate([]ClassifiedRecord{rec}, copSnapshot())
	require.Error(t, err)
	var missing *fx.MissingRateError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, CurrencyEUR, missing.Currency)
}

func TestAggregateCollectsViolationsWithoutHalting(t *testing.T) {
	good := classifiedInvoice("ACME", 40, 300)
	bad := classifiedInvoice("BETA", 40, 300)
	bad.Buckets.Overdue30 += 5 // break BUCKET_SUM only

	agg := NewAggregator(nil, nil)
	rows, _, _, violations, _, err := agg.Aggregate([]ClassifiedRecord{good, bad}, copSnapshot())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, violations, 1)
	require.Equal(t, CheckBucketSum, violations[0].Check)
	require.Equal(t, "F-BETA", violations[0].RecordID)
	require.InDelta(t, 5.0, violations[0].Delta, ReconcileTolerance)
}

func TestAggregateProvisionIdentityViolation(t *testing.T) {
	rec := classifiedInvoice("ACME", 200, 1000)
	rec.ProvisionAmount = 500 // partial provision is never legal

	agg := NewAggregator(nil, nil)
	_, _, _, violations, _, err := agg.Aggregate([]ClassifiedRecord{rec}, copSnapshot())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, CheckProvision, violations[0].Check)
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := NewAggregator(nil, nil)
	rows, totals, converted, violations, diags, err := agg.Aggregate(nil, copSnapshot())
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Empty(t, totals)
	require.Empty(t, converted)
	require.Empty(t, violations)
	require.Empty(t, diags)
}

func TestAggregateRowOrderIsStable(t *testing.T) {
	mk := func(client, line string, balance float64) ClassifiedRecord {
		rec := classifiedInvoice(client, 0, balance)
		rec.BusinessLine = line
		return rec
	}
	recs := []ClassifiedRecord{
		mk("ZETA", "PL15", 10),
		mk("ALFA", "PL15", 20),
		mk("ALFA", "PL99", 30),
	}
	agg := NewAggregator(nil, nil)
	rows, _, _, _, _, err := agg.Aggregate(recs, copSnapshot())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// OTROS sorts after the named business units; clients alphabetical within.
	require.Equal(t, "ALFA", rows[0].ClientName)
	require.Equal(t, "ZETA", rows[1].ClientName)
	require.Equal(t, Others, rows[2].BusinessUnit)
}

func TestReconcileCleanRecordHasNoViolations(t *testing.T) {
	for _, days := range []int{0, 29, 30, 95, 200, 400} {
		require.Empty(t, reconcile(classifiedInvoice("ACME", days, 1234.56)))
	}
}

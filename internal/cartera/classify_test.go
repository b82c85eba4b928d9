package cartera

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var closing = time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

func invoiceDueDaysBefore(days int, balance float64) InvoiceRecord {
	return InvoiceRecord{
		InvoiceNumber: "F-1",
		ClientID:      "C-1",
		ClientName:    "ACME",
		BusinessLine:  "PL15",
		IssueDate:     closing.AddDate(0, -2, 0),
		DueDate:       closing.AddDate(0, 0, -days),
		Balance:       balance,
	}
}

func newTestClassifier() *Classifier {
	return NewClassifier(ClassifierConfig{GraceDays: DefaultGraceDays}, nil)
}

func TestClassifyOverdue90Bucket(t *testing.T) {
	rec, diags := newTestClassifier().Classify(invoiceDueDaysBefore(95, 1_000_000), closing)
	require.Empty(t, diags)
	require.Equal(t, 95, rec.DaysOverdue)
	require.Equal(t, 0, rec.DaysToDue)
	require.Equal(t, 1_000_000.0, rec.Buckets.Overdue90)
	require.Equal(t, 1_000_000.0, rec.Buckets.Sum())
	require.Equal(t, 0.0, rec.ProvisionAmount)
}

func TestClassifyDeepOverdueFullyProvisioned(t *testing.T) {
	rec, _ := newTestClassifier().Classify(invoiceDueDaysBefore(400, 500_000), closing)
	require.Equal(t, 500_000.0, rec.Buckets.Overdue360Plus)
	require.Equal(t, 1.0, rec.ProvisionRate)
	require.Equal(t, 500_000.0, rec.ProvisionAmount)
}

func TestClassifyBucketBoundaries(t *testing.T) {
	c := newTestClassifier()
	cases := []struct {
		days int
		want func(BucketAmounts) float64
	}{
		{0, func(b BucketAmounts) float64 { return b.NotDue }},
		{29, func(b BucketAmounts) float64 { return b.NotDue }},
		{30, func(b BucketAmounts) float64 { return b.Overdue30 }},
		{59, func(b BucketAmounts) float64 { return b.Overdue30 }},
		{60, func(b BucketAmounts) float64 { return b.Overdue60 }},
		{89, func(b BucketAmounts) float64 { return b.Overdue60 }},
		{90, func(b BucketAmounts) float64 { return b.Overdue90 }},
		{179, func(b BucketAmounts) float64 { return b.Overdue90 }},
		{180, func(b BucketAmounts) float64 { return b.Overdue180 }},
		{359, func(b BucketAmounts) float64 { return b.Overdue180 }},
		{360, func(b BucketAmounts) float64 { return b.Overdue360 }},
		{369, func(b BucketAmounts) float64 { return b.Overdue360 }},
		{370, func(b BucketAmounts) float64 { return b.Overdue360Plus }},
		{1000, func(b BucketAmounts) float64 { return b.Overdue360Plus }},
	}
	for _, tc := range cases {
		rec, _ := c.Classify(invoiceDueDaysBefore(tc.days, 100), closing)
		require.Equal(t, 100.0, tc.want(rec.Buckets), "days overdue %d", tc.days)
		require.Equal(t, 100.0, rec.Buckets.Sum(), "partition must hold the full balance at %d days", tc.days)
	}
}

func TestClassifyZeroGraceLeavesNoGap(t *testing.T) {
	c := NewClassifier(ClassifierConfig{GraceDays: 0}, nil)
	rec, _ := c.Classify(invoiceDueDaysBefore(15, 100), closing)
	require.Equal(t, 100.0, rec.Buckets.Overdue30)
	require.Equal(t, 100.0, rec.Buckets.Sum())
	require.Equal(t, 100.0, rec.OverdueBalance)
}

func TestClassifyGraceWindowStaysNotDueButMarkedOverdue(t *testing.T) {
	// Between 1 and 29 days the bucket view and the overdue-balance view
	// intentionally disagree, matching the department's dual columns.
	rec, _ := newTestClassifier().Classify(invoiceDueDaysBefore(15, 100), closing)
	require.Equal(t, 100.0, rec.Buckets.NotDue)
	require.Equal(t, 100.0, rec.OverdueBalance)
	require.Equal(t, 0.0, rec.TotalOverdue)
}

func TestClassifyMissingDueDateFailsSoft(t *testing.T) {
	rec := invoiceDueDaysBefore(0, 250)
	rec.DueDate = time.Time{}
	classified, diags := newTestClassifier().Classify(rec, closing)
	require.Equal(t, 0, classified.DaysOverdue)
	require.Equal(t, 0, classified.DaysToDue)
	require.Equal(t, 250.0, classified.Buckets.NotDue)
	require.Len(t, diags, 1)
	require.Equal(t, DiagMissingDueDate, diags[0].Code)
}

func TestClassifyFutureDueDates(t *testing.T) {
	c := newTestClassifier()

	rec, diags := c.Classify(invoiceDueDaysBefore(-40, 100), closing)
	require.Empty(t, diags)
	require.Equal(t, 40, rec.DaysToDue)
	require.Equal(t, 100.0, rec.Buckets.NotDue)
	require.Equal(t, 100.0, rec.DueMonth1+rec.DueMonth2+rec.DueMonth3)

	stale := invoiceDueDaysBefore(0, 100)
	stale.DueDate = closing.AddDate(0, 5, 0)
	_, diags = c.Classify(stale, closing)
	require.Len(t, diags, 1)
	require.Equal(t, DiagFutureDueMonth, diags[0].Code)
}

func TestClassifyDueMonths(t *testing.T) {
	c := newTestClassifier()

	rec := invoiceDueDaysBefore(0, 100)
	rec.DueDate = time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	got, _ := c.Classify(rec, closing)
	require.Equal(t, 100.0, got.DueMonth1)

	rec.DueDate = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	got, _ = c.Classify(rec, closing)
	require.Equal(t, 100.0, got.DueMonth3)
	require.Equal(t, 0.0, got.DueMonth1)
}

func TestClassifyBatchKeepsOrder(t *testing.T) {
	c := newTestClassifier()
	records := make([]InvoiceRecord, 1200)
	for i := range records {
		records[i] = invoiceDueDaysBefore(i%400, float64(i+1))
	}
	classified, _, err := c.ClassifyBatch(context.Background(), records, closing)
	require.NoError(t, err)
	require.Len(t, classified, len(records))
	for i, rec := range classified {
		require.Equal(t, float64(i+1), rec.Balance)
		require.InDelta(t, rec.Balance, rec.Buckets.Sum(), ReconcileTolerance)
	}
}

func TestClosingDateDerivation(t *testing.T) {
	records := []InvoiceRecord{
		{IssueDate: time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)},
		{IssueDate: time.Date(2025, 11, 12, 0, 0, 0, 0, time.UTC)},
		{IssueDate: time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC)},
	}
	require.Equal(t, closing, ClosingDateFor(records))
	require.True(t, ClosingDateFor(nil).IsZero())
}

func TestRateReferenceDate(t *testing.T) {
	require.Equal(t, time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), RateReferenceDate(closing))
	require.Equal(t,
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		RateReferenceDate(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))
}

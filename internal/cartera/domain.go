package cartera

import (
	"time"
)

// Currency codes used by the business taxonomy. COP is the local currency;
// everything else is converted only in the converted grand-total view.
const (
	CurrencyCOP = "COP"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// Bucket identifies one of the seven mutually exclusive aging bands.
type Bucket string

const (
	BucketNotDue         Bucket = "NOT_DUE"
	BucketOverdue30      Bucket = "OVERDUE_30"
	BucketOverdue60      Bucket = "OVERDUE_60"
	BucketOverdue90      Bucket = "OVERDUE_90"
	BucketOverdue180     Bucket = "OVERDUE_180"
	BucketOverdue360     Bucket = "OVERDUE_360"
	BucketOverdue360Plus Bucket = "OVERDUE_360_PLUS"
)

// AllBuckets lists the buckets in reporting order.
var AllBuckets = []Bucket{
	BucketNotDue,
	BucketOverdue30,
	BucketOverdue60,
	BucketOverdue90,
	BucketOverdue180,
	BucketOverdue360,
	BucketOverdue360Plus,
}

// InvoiceRecord is one open receivable line after normalisation. Immutable
// inside the engine: every transformation produces derived copies.
type InvoiceRecord struct {
	InvoiceNumber string
	ClientID      string
	ClientName    string
	BusinessLine  string // company + activity code, e.g. "PL15"
	Currency      string // filled from the taxonomy when empty
	IssueDate     time.Time
	DueDate       time.Time // zero when missing or unparseable
	Balance       float64
}

// AdvanceRecord is a prepayment applied by a client. Amount carries the
// "reduces exposure" sign convention: the additive inverse of the disbursed
// value, so it is negative for a normal advance.
type AdvanceRecord struct {
	AdvanceNumber string
	ClientID      string
	ClientName    string
	BusinessLine  string
	Currency      string
	Date          time.Time
	Amount        float64
}

// BucketAmounts holds the balance split across the seven aging bands.
// Exactly one field carries the full balance for a classified record.
type BucketAmounts struct {
	NotDue         float64
	Overdue30      float64
	Overdue60      float64
	Overdue90      float64
	Overdue180     float64
	Overdue360     float64
	Overdue360Plus float64
}

// Sum returns the total across all bands.
func (b BucketAmounts) Sum() float64 {
	return b.NotDue + b.Overdue30 + b.Overdue60 + b.Overdue90 +
		b.Overdue180 + b.Overdue360 + b.Overdue360Plus
}

// Overdue returns the total across the six overdue bands.
func (b BucketAmounts) Overdue() float64 {
	return b.Overdue30 + b.Overdue60 + b.Overdue90 +
		b.Overdue180 + b.Overdue360 + b.Overdue360Plus
}

// Over90 returns the total at ninety days or more.
func (b BucketAmounts) Over90() float64 {
	return b.Overdue90 + b.Overdue180 + b.Overdue360 + b.Overdue360Plus
}

// Add accumulates o into b.
func (b *BucketAmounts) Add(o BucketAmounts) {
	b.NotDue += o.NotDue
	b.Overdue30 += o.Overdue30
	b.Overdue60 += o.Overdue60
	b.Overdue90 += o.Overdue90
	b.Overdue180 += o.Overdue180
	b.Overdue360 += o.Overdue360
	b.Overdue360Plus += o.Overdue360Plus
}

// Scale returns a copy with every band multiplied by factor.
func (b BucketAmounts) Scale(factor float64) BucketAmounts {
	return BucketAmounts{
		NotDue:         b.NotDue * factor,
		Overdue30:      b.Overdue30 * factor,
		Overdue60:      b.Overdue60 * factor,
		Overdue90:      b.Overdue90 * factor,
		Overdue180:     b.Overdue180 * factor,
		Overdue360:     b.Overdue360 * factor,
		Overdue360Plus: b.Overdue360Plus * factor,
	}
}

// RecordSource distinguishes invoice lines from integrated advances.
type RecordSource string

const (
	SourceInvoice RecordSource = "INVOICE"
	SourceAdvance RecordSource = "ADVANCE"
)

// ClassifiedRecord is an InvoiceRecord augmented with the temporal fields and
// bucket assignment produced by the classifier.
type ClassifiedRecord struct {
	InvoiceRecord

	Source      RecordSource
	DaysOverdue int
	DaysToDue   int

	Buckets        BucketAmounts
	OverdueBalance float64 // full balance when DaysOverdue > 0
	TotalOverdue   float64
	TotalNotDue    float64
	Over90         float64

	// Balance falling due one, two and three calendar months after closing.
	DueMonth1 float64
	DueMonth2 float64
	DueMonth3 float64

	ProvisionRate   float64
	ProvisionAmount float64
}

// DiagnosticCode enumerates non-fatal conditions recorded during a run.
type DiagnosticCode string

const (
	DiagUnparseableDate     DiagnosticCode = "UNPARSEABLE_DATE"
	DiagUnparseableAmount   DiagnosticCode = "UNPARSEABLE_AMOUNT"
	DiagMissingDueDate      DiagnosticCode = "MISSING_DUE_DATE"
	DiagFutureDueMonth      DiagnosticCode = "FUTURE_DUE_MONTH"
	DiagUnmappedBusinessKey DiagnosticCode = "UNMAPPED_BUSINESS_LINE"
)

// Diagnostic is a non-fatal finding attached to a record.
type Diagnostic struct {
	RecordID string
	Code     DiagnosticCode
	Detail   string
}

// MonthEnd returns the last calendar day of t's month, at midnight UTC.
func MonthEnd(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// ClosingDateFor derives the period closing date as the last calendar day of
// the month containing the most recent issue date in the batch. Records with
// a zero issue date are ignored; when no usable date exists the zero time is
// returned and the caller must supply an explicit closing date.
func ClosingDateFor(records []InvoiceRecord) time.Time {
	var max time.Time
	for _, rec := range records {
		if rec.IssueDate.After(max) {
			max = rec.IssueDate
		}
	}
	if max.IsZero() {
		return time.Time{}
	}
	return MonthEnd(max)
}

// RateReferenceDate returns the last calendar day of the month preceding the
// closing month, the date the exchange-rate snapshot must be valid for.
func RateReferenceDate(closing time.Time) time.Time {
	firstOfMonth := time.Date(closing.Year(), closing.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 0, -1)
}

func toDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns whole calendar days from a to b, negative when b < a.
func daysBetween(a, b time.Time) int {
	return int(toDate(b).Sub(toDate(a)).Hours() / 24)
}

// monthsBetween returns whole calendar months from a's month to b's month.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

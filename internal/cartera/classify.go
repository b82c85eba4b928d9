package cartera

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultGraceDays is the upper bound of the NOT_DUE band. The department
// procedure treats 0-29 days overdue as not yet due; setting GraceDays to 0
// restores the strict "overdue from day one" reading, with days 1-29 falling
// into the 30-day band so the partition never has a gap.
const DefaultGraceDays = 29

// ProvisionThresholdDays is the overdue age at which the full balance is
// provisioned as expected credit loss.
const ProvisionThresholdDays = 180

// ClassifierConfig tunes bucket boundaries.
type ClassifierConfig struct {
	GraceDays int
}

// Classifier computes temporal fields and bucket assignment per record.
type Classifier struct {
	cfg    ClassifierConfig
	logger *slog.Logger
}

// NewClassifier constructs a classifier. A nil logger disables logging.
func NewClassifier(cfg ClassifierConfig, logger *slog.Logger) *Classifier {
	if cfg.GraceDays < 0 {
		cfg.GraceDays = DefaultGraceDays
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Classify augments one invoice record with day counts, bucket assignment and
// provision. A missing due date is fail-soft: zero day counts, NOT_DUE, and a
// diagnostic. A due date in a calendar month strictly after the closing month
// indicates upstream staleness and is flagged, not silently processed.
func (c *Classifier) Classify(rec InvoiceRecord, closing time.Time) (ClassifiedRecord, []Diagnostic) {
	out := ClassifiedRecord{InvoiceRecord: rec, Source: SourceInvoice}
	var diags []Diagnostic

	if rec.DueDate.IsZero() {
		diags = append(diags, Diagnostic{
			RecordID: rec.InvoiceNumber,
			Code:     DiagMissingDueDate,
			Detail:   "due date missing or unparseable, record treated as not due",
		})
	} else {
		raw := daysBetween(rec.DueDate, closing)
		if raw > 0 {
			out.DaysOverdue = raw
		} else {
			out.DaysToDue = -raw
		}
		switch monthsBetween(closing, rec.DueDate) {
		case 1:
			out.DueMonth1 = rec.Balance
		case 2:
			out.DueMonth2 = rec.Balance
		case 3:
			out.DueMonth3 = rec.Balance
		}
		if monthsBetween(closing, rec.DueDate) > 3 {
			diags = append(diags, Diagnostic{
				RecordID: rec.InvoiceNumber,
				Code:     DiagFutureDueMonth,
				Detail: fmt.Sprintf("due date %s is more than three months after closing %s",
					rec.DueDate.Format("2006-01-02"), closing.Format("2006-01-02")),
			})
		}
	}

	out.Buckets = c.bucketFor(out.DaysOverdue, rec.Balance)
	if out.DaysOverdue > 0 {
		out.OverdueBalance = rec.Balance
	}
	out.TotalOverdue = out.Buckets.Overdue()
	out.TotalNotDue = out.Buckets.NotDue
	out.Over90 = out.Buckets.Over90()

	if out.DaysOverdue >= ProvisionThresholdDays {
		out.ProvisionRate = 1.0
		out.ProvisionAmount = rec.Balance
	}

	return out, diags
}

// bucketFor places the full balance into exactly one band.
func (c *Classifier) bucketFor(daysOverdue int, balance float64) BucketAmounts {
	var b BucketAmounts
	switch {
	case daysOverdue <= c.cfg.GraceDays:
		b.NotDue = balance
	case daysOverdue <= 59:
		b.Overdue30 = balance
	case daysOverdue <= 89:
		b.Overdue60 = balance
	case daysOverdue <= 179:
		b.Overdue90 = balance
	case daysOverdue <= 359:
		b.Overdue180 = balance
	case daysOverdue <= 369:
		b.Overdue360 = balance
	default:
		b.Overdue360Plus = balance
	}
	return b
}

// classifyChunkSize bounds per-goroutine work for batch classification.
const classifyChunkSize = 512

// ClassifyBatch classifies every record against the closing date.
// Classification of one record never depends on another, so chunks run in
// parallel; output order matches input order.
func (c *Classifier) ClassifyBatch(ctx context.Context, records []InvoiceRecord, closing time.Time) ([]ClassifiedRecord, []Diagnostic, error) {
	if len(records) == 0 {
		return nil, nil, nil
	}
	out := make([]ClassifiedRecord, len(records))
	diagnostics := make([][]Diagnostic, (len(records)+classifyChunkSize-1)/classifyChunkSize)

	g, ctx := errgroup.WithContext(ctx)
	for chunk := 0; chunk*classifyChunkSize < len(records); chunk++ {
		start := chunk * classifyChunkSize
		end := start + classifyChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := chunk
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var local []Diagnostic
			for i := start; i < end; i++ {
				rec, diags := c.Classify(records[i], closing)
				out[i] = rec
				local = append(local, diags...)
			}
			diagnostics[chunk] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var diags []Diagnostic
	for _, d := range diagnostics {
		diags = append(diags, d...)
	}
	c.logger.Debug("classified batch",
		slog.Int("records", len(records)),
		slog.Int("diagnostics", len(diags)),
		slog.Time("closing", closing))
	return out, diags, nil
}

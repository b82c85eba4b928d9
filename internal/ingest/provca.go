package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cartera-ar/cartera/internal/cartera"
)

// PROVCA field codes. The extract carries more columns (agent, collector,
// address, phone); only the ones the debt model consumes are read, which also
// drops the unused PCIMCO column.
const (
	provcaCompany    = "PCCDEM"
	provcaActivity   = "PCCDAC"
	provcaClientCode = "PCCDCL"
	provcaName       = "PCNMCL"
	provcaTradeName  = "PCNMCM"
	provcaInvoice    = "PCNUFC"
	provcaIssueDate  = "PCFEFA"
	provcaDueDate    = "PCFEVE"
	provcaBalance    = "PCSALD"
)

// excludedLine is the business line stripped from the invoice extract before
// classification, per the department procedure.
const excludedLine = "PL30"

// Normalizer converts raw extracts into typed records. Row-level problems
// are fail-soft: the row survives with a zero value and a diagnostic.
type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{logger: logger}
}

// ReadInvoices parses a PROVCA extract. Rows on the excluded PL30 line are
// dropped, the client name falls back from the trade name to the legal name,
// and the business line is the company code concatenated with the activity.
func (n *Normalizer) ReadInvoices(r io.Reader) ([]cartera.InvoiceRecord, []cartera.Diagnostic, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, nil, err
	}
	idx := columnIndex(header,
		provcaCompany, provcaActivity, provcaClientCode, provcaName,
		provcaTradeName, provcaInvoice, provcaIssueDate, provcaDueDate, provcaBalance)
	if idx[provcaBalance] == -1 {
		return nil, nil, fmt.Errorf("ingest: provca extract has no %s column", provcaBalance)
	}

	invoices := make([]cartera.InvoiceRecord, 0, len(rows))
	var diags []cartera.Diagnostic
	dropped := 0

	for _, row := range rows {
		line := cell(row, idx[provcaCompany]) + cell(row, idx[provcaActivity])
		if line == excludedLine {
			dropped++
			continue
		}

		rec := cartera.InvoiceRecord{
			InvoiceNumber: cell(row, idx[provcaInvoice]),
			ClientID:      cell(row, idx[provcaClientCode]),
			ClientName:    clientName(cell(row, idx[provcaTradeName]), cell(row, idx[provcaName])),
			BusinessLine:  line,
		}

		rec.Balance, diags = n.amount(diags, rec.InvoiceNumber, "PCSALD", cell(row, idx[provcaBalance]))
		rec.IssueDate, diags = n.date(diags, rec.InvoiceNumber, "PCFEFA", cell(row, idx[provcaIssueDate]))
		rec.DueDate, diags = n.date(diags, rec.InvoiceNumber, "PCFEVE", cell(row, idx[provcaDueDate]))

		invoices = append(invoices, rec)
	}

	n.logger.Info("provca extract normalized",
		slog.Int("invoices", len(invoices)),
		slog.Int("dropped_pl30", dropped),
		slog.Int("diagnostics", len(diags)))
	return invoices, diags, nil
}

// clientName prefers the commercial denomination, falling back to the legal
// name when it is blank.
func clientName(trade, legal string) string {
	if trade != "" {
		return trade
	}
	return legal
}

func (n *Normalizer) amount(diags []cartera.Diagnostic, recordID, field, raw string) (float64, []cartera.Diagnostic) {
	v, err := cartera.ParseAmount(field, raw)
	if err != nil {
		diags = append(diags, cartera.Diagnostic{
			RecordID: recordID,
			Code:     cartera.DiagUnparseableAmount,
			Detail:   err.Error(),
		})
		return 0, diags
	}
	return v, diags
}

func (n *Normalizer) date(diags []cartera.Diagnostic, recordID, field, raw string) (time.Time, []cartera.Diagnostic) {
	parsed, err := cartera.ParseDate(field, raw)
	if err != nil {
		diags = append(diags, cartera.Diagnostic{
			RecordID: recordID,
			Code:     cartera.DiagUnparseableDate,
			Detail:   err.Error(),
		})
		return time.Time{}, diags
	}
	return parsed, diags
}

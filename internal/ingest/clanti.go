package ingest

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cartera-ar/cartera/internal/cartera"
)

// CLANTI field codes for the advances extract.
const (
	clantiCompany    = "NCCDEM"
	clantiActivity   = "NCCDAC"
	clantiClientCode = "NCCDCL"
	clantiClientName = "WWNMCL"
	clantiAdvance    = "NCCDR3"
	clantiAmount     = "NCIMAN"
	clantiDate       = "NCFEGR"
)

// ReadAdvances parses a CLANTI extract. The ledger books advances as
// positive amounts; they are negated here so an advance always reduces
// exposure downstream.
func (n *Normalizer) ReadAdvances(r io.Reader) ([]cartera.AdvanceRecord, []cartera.Diagnostic, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, nil, err
	}
	idx := columnIndex(header,
		clantiCompany, clantiActivity, clantiClientCode, clantiClientName,
		clantiAdvance, clantiAmount, clantiDate)
	if idx[clantiAmount] == -1 {
		return nil, nil, fmt.Errorf("ingest: clanti extract has no %s column", clantiAmount)
	}

	advances := make([]cartera.AdvanceRecord, 0, len(rows))
	var diags []cartera.Diagnostic

	for _, row := range rows {
		rec := cartera.AdvanceRecord{
			AdvanceNumber: cell(row, idx[clantiAdvance]),
			ClientID:      cell(row, idx[clantiClientCode]),
			ClientName:    cell(row, idx[clantiClientName]),
			BusinessLine:  cell(row, idx[clantiCompany]) + cell(row, idx[clantiActivity]),
		}

		amount, d := n.amount(diags, rec.AdvanceNumber, "NCIMAN", cell(row, idx[clantiAmount]))
		diags = d
		rec.Amount = -amount

		rec.Date, diags = n.date(diags, rec.AdvanceNumber, "NCFEGR", cell(row, idx[clantiDate]))

		advances = append(advances, rec)
	}

	n.logger.Info("clanti extract normalized",
		slog.Int("advances", len(advances)),
		slog.Int("diagnostics", len(diags)))
	return advances, diags, nil
}

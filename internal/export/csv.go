// Package export serialises a consolidated debt model to the CSV layout the
// collections department consumes.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/cartera-ar/cartera/internal/cartera"
)

var bucketHeaders = []string{
	"SALDO NO VENCIDO", "VENCIDO 30", "VENCIDO 60", "VENCIDO 90",
	"VENCIDO 180", "VENCIDO 360", "VENCIDO + 360",
}

var tailHeaders = []string{
	"MORA TOTAL", "TOTAL POR VENCER", "SALDO VENCIDO", "MAYOR 90 DIAS",
	"POR VENCER M1", "POR VENCER M2", "POR VENCER M3", "PROVISION",
}

func bucketCells(b cartera.BucketAmounts) []string {
	return []string{
		formatFloat(b.NotDue),
		formatFloat(b.Overdue30),
		formatFloat(b.Overdue60),
		formatFloat(b.Overdue90),
		formatFloat(b.Overdue180),
		formatFloat(b.Overdue360),
		formatFloat(b.Overdue360Plus),
	}
}

// WriteConsolidatedCSV emits the per-client consolidated rows.
func WriteConsolidatedCSV(w io.Writer, rows []cartera.ConsolidatedRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := append([]string{"NEGOCIO", "CANAL", "MONEDA", "CLIENTE", "SALDO"}, bucketHeaders...)
	header = append(header, tailHeaders...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := append([]string{
			row.BusinessUnit, row.Channel, row.Currency, row.ClientName,
			formatFloat(row.Balance),
		}, bucketCells(row.Buckets)...)
		record = append(record,
			formatFloat(row.TotalOverdue),
			formatFloat(row.TotalNotDue),
			formatFloat(row.OverdueBalance),
			formatFloat(row.Over90),
			formatFloat(row.DueMonth1),
			formatFloat(row.DueMonth2),
			formatFloat(row.DueMonth3),
			formatFloat(row.Provision))
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTotalsCSV emits the per-currency grand totals followed by the
// converted totals, one row each.
func WriteTotalsCSV(w io.Writer, totals, converted []cartera.GrandTotal) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := append([]string{"MONEDA", "TRM", "SALDO"}, bucketHeaders...)
	header = append(header, tailHeaders...)
	if err := writer.Write(header); err != nil {
		return err
	}
	write := func(t cartera.GrandTotal) error {
		currency := t.Currency
		rate := ""
		if t.Converted {
			currency = fmt.Sprintf("%s EN COP", t.Currency)
			rate = formatFloat(t.Rate)
		}
		record := append([]string{currency, rate, formatFloat(t.Balance)}, bucketCells(t.Buckets)...)
		record = append(record,
			formatFloat(t.TotalOverdue),
			formatFloat(t.TotalNotDue),
			formatFloat(t.OverdueBalance),
			formatFloat(t.Over90),
			formatFloat(t.DueMonth1),
			formatFloat(t.DueMonth2),
			formatFloat(t.DueMonth3),
			formatFloat(t.Provision))
		return writer.Write(record)
	}
	for _, t := range totals {
		if err := write(t); err != nil {
			return err
		}
	}
	for _, t := range converted {
		if err := write(t); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteViolationsCSV emits the reconciliation failures.
func WriteViolationsCSV(w io.Writer, violations []cartera.Violation) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"REGISTRO", "CONTROL", "ESPERADO", "OBTENIDO", "DIFERENCIA"}); err != nil {
		return err
	}
	for _, v := range violations {
		if err := writer.Write([]string{
			v.RecordID,
			string(v.Check),
			formatFloat(v.Expected),
			formatFloat(v.Actual),
			formatFloat(v.Delta),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteDiagnosticsCSV emits the non-fatal findings collected during a run.
func WriteDiagnosticsCSV(w io.Writer, diags []cartera.Diagnostic) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"REGISTRO", "CODIGO", "DETALLE"}); err != nil {
		return err
	}
	for _, d := range diags {
		if err := writer.Write([]string{d.RecordID, string(d.Code), d.Detail}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/cartera-ar/cartera/internal/cartera"
)

const provcaSample = `PCCDEM;PCCDAC;PCCDCL;PCNMCL;PCNMCM;PCNUFC;PCFEFA;PCFEVE;PCSALD;PCIMCO
PL;15;C001;ACME SAS;ACME;F-001;20251103;20250827;1.000.000,00;IGNORED
PL;30;C002;INTERCO;INTERCO;F-002;20251105;20251205;500;IGNORED
PL;11;C003;EXPORTADORA LTDA;;F-003;20251110;20251220;1000;IGNORED
`

func TestReadInvoices(t *testing.T) {
	invoices, diags, err := NewNormalizer(nil).ReadInvoices(strings.NewReader(provcaSample))
	require.NoError(t, err)
	require.Empty(t, diags)

	// PL30 row is dropped.
	require.Len(t, invoices, 2)

	first := invoices[0]
	require.Equal(t, "F-001", first.InvoiceNumber)
	require.Equal(t, "C001", first.ClientID)
	require.Equal(t, "ACME", first.ClientName)
	require.Equal(t, "PL15", first.BusinessLine)
	require.Equal(t, 1_000_000.0, first.Balance)
	require.Equal(t, time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), first.IssueDate)
	require.Equal(t, time.Date(2025, 8, 27, 0, 0, 0, 0, time.UTC), first.DueDate)

	// Blank trade name falls back to the legal name.
	require.Equal(t, "EXPORTADORA LTDA", invoices[1].ClientName)
	require.Equal(t, "PL11", invoices[1].BusinessLine)
}

func TestReadInvoicesFailSoftDiagnostics(t *testing.T) {
	sample := `PCCDEM;PCCDAC;PCNUFC;PCFEVE;PCSALD
PL;15;F-001;garbage;not-a-number
PL;15;F-002;;250
`
	invoices, diags, err := NewNormalizer(nil).ReadInvoices(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	require.Len(t, diags, 2)

	codes := map[cartera.DiagnosticCode]bool{}
	for _, d := range diags {
		require.Equal(t, "F-001", d.RecordID)
		codes[d.Code] = true
	}
	require.True(t, codes[cartera.DiagUnparseableDate])
	require.True(t, codes[cartera.DiagUnparseableAmount])

	require.Equal(t, 0.0, invoices[0].Balance)
	require.True(t, invoices[0].DueDate.IsZero())

	// Empty due date is missing, not unparseable.
	require.True(t, invoices[1].DueDate.IsZero())
	require.Equal(t, 250.0, invoices[1].Balance)
}

func TestReadInvoicesWindows1252(t *testing.T) {
	sample := "PCCDEM;PCCDAC;PCNUFC;PCNMCM;PCFEVE;PCSALD\nPL;15;F-001;LIBRERÍA ÑANDÚ;20251215;100\n"
	encoded, _, err := transform.Bytes(charmap.Windows1252.NewEncoder(), []byte(sample))
	require.NoError(t, err)

	invoices, diags, err := NewNormalizer(nil).ReadInvoices(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Len(t, invoices, 1)
	require.Equal(t, "LIBRERÍA ÑANDÚ", invoices[0].ClientName)
}

func TestReadInvoicesBOM(t *testing.T) {
	sample := "\ufeffPCCDEM;PCCDAC;PCNUFC;PCSALD\nPL;15;F-001;100\n"
	invoices, _, err := NewNormalizer(nil).ReadInvoices(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.Equal(t, "PL15", invoices[0].BusinessLine)
}

func TestReadInvoicesMissingBalanceColumn(t *testing.T) {
	_, _, err := NewNormalizer(nil).ReadInvoices(strings.NewReader("PCCDEM;PCCDAC\nPL;15\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "PCSALD")
}

func TestReadAdvancesNegatesAmounts(t *testing.T) {
	sample := `NCCDEM;NCCDAC;NCCDCL;WWNMCL;NCCDR3;NCIMAN;NCFEGR
PL;15;C001;ACME;A-001;200.000,00;20251120
`
	advances, diags, err := NewNormalizer(nil).ReadAdvances(strings.NewReader(sample))
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Len(t, advances, 1)

	adv := advances[0]
	require.Equal(t, "A-001", adv.AdvanceNumber)
	require.Equal(t, "C001", adv.ClientID)
	require.Equal(t, "PL15", adv.BusinessLine)
	require.Equal(t, -200_000.0, adv.Amount)
	require.Equal(t, time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC), adv.Date)
}

func TestReadAdvancesMissingAmountColumn(t *testing.T) {
	_, _, err := NewNormalizer(nil).ReadAdvances(strings.NewReader("NCCDEM;NCCDAC\nPL;15\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "NCIMAN")
}

func TestReadTableEmptyExtract(t *testing.T) {
	_, _, err := NewNormalizer(nil).ReadInvoices(strings.NewReader(""))
	require.Error(t, err)
}

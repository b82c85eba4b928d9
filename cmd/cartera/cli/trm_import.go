package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cartera-ar/cartera/internal/cartera"
)

// TRMImportMode enumerates supported execution strategies.
type TRMImportMode string

const (
	// TRMImportModeDry previews the rates without applying changes.
	TRMImportModeDry TRMImportMode = "dry"
	// TRMImportModeApply persists rates after confirmation.
	TRMImportModeApply TRMImportMode = "apply"
)

// TRMImportOptions configures the import command execution.
type TRMImportOptions struct {
	Mode         TRMImportMode
	Source       string
	SourceReader io.Reader
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
	Confirm      func(io.Reader, io.Writer) (bool, error)
}

// TRMImportSummary captures the structured reporting outcome.
type TRMImportSummary struct {
	Mode    TRMImportMode        `json:"mode"`
	Rates   []TRMImportCandidate `json:"rates"`
	Applied []TRMImportCandidate `json:"applied,omitempty"`
}

// TRMImportCandidate is one sourced rate entry.
type TRMImportCandidate struct {
	Date     string  `json:"date"`
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
}

// ImportCommand reads reference rates from a CSV source and loads them into
// the rate table. Amounts accept both decimal conventions, so a spreadsheet
// export with "4.035,25" works as-is.
func (c *TRMOpsCLI) ImportCommand(ctx context.Context, opts TRMImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = TRMImportModeDry
	}
	mode := TRMImportMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case TRMImportModeDry, TRMImportModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "trm import: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}

	candidates, err := loadImportCandidates(opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "trm import: %v\n", err)
		return 1
	}
	if len(candidates) == 0 {
		fmt.Fprintln(opts.Stderr, "trm import: source contains no rates")
		return 1
	}

	summary := TRMImportSummary{Mode: mode, Rates: candidates}
	if mode == TRMImportModeDry {
		if err := writeImportOutput(opts, summary); err != nil {
			fmt.Fprintf(opts.Stderr, "trm import: %v\n", err)
			return 1
		}
		return 0
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = defaultImportConfirm
	}
	ok, err := confirm(opts.Stdin, opts.Stdout)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "trm import: confirmation failed: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(opts.Stderr, "trm import: cancelled by user")
		return 1
	}

	byDate := make(map[string]map[string]float64)
	for _, candidate := range candidates {
		if byDate[candidate.Date] == nil {
			byDate[candidate.Date] = make(map[string]float64)
		}
		byDate[candidate.Date][candidate.Currency] = candidate.Rate
	}
	for date, rates := range byDate {
		asOf, err := time.Parse("2006-01-02", date)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "trm import: %v\n", err)
			return 1
		}
		if err := c.store.Save(ctx, asOf, rates); err != nil {
			fmt.Fprintf(opts.Stderr, "trm import: apply failed for %s: %v\n", date, err)
			return 1
		}
	}
	summary.Applied = candidates
	if err := writeImportOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "trm import: %v\n", err)
		return 1
	}
	return 0
}

func loadImportCandidates(opts TRMImportOptions) ([]TRMImportCandidate, error) {
	var data []byte
	var err error
	switch {
	case opts.SourceReader != nil:
		data, err = io.ReadAll(opts.SourceReader)
	case opts.Source == "-":
		if opts.Stdin == nil {
			return nil, errors.New("source - requires stdin")
		}
		data, err = io.ReadAll(opts.Stdin)
	case strings.TrimSpace(opts.Source) == "":
		return nil, errors.New("--source is required")
	default:
		data, err = os.ReadFile(opts.Source)
	}
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = ';'
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	indexes := map[string]int{"date": -1, "currency": -1, "rate": -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "date", "fecha":
			indexes["date"] = i
		case "currency", "moneda":
			indexes["currency"] = i
		case "rate", "tasa", "trm":
			indexes["rate"] = i
		}
	}
	if indexes["date"] < 0 || indexes["currency"] < 0 || indexes["rate"] < 0 {
		return nil, fmt.Errorf("missing required columns in source (need date, currency, rate)")
	}

	var result []TRMImportCandidate
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if indexes["date"] >= len(record) || indexes["currency"] >= len(record) || indexes["rate"] >= len(record) {
			return nil, fmt.Errorf("invalid record length in source")
		}
		dateStr := strings.TrimSpace(record[indexes["date"]])
		if dateStr == "" {
			continue
		}
		asOf, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q in source", dateStr)
		}
		currency := strings.ToUpper(strings.TrimSpace(record[indexes["currency"]]))
		if currency == "" {
			return nil, fmt.Errorf("missing currency for %s", dateStr)
		}
		rate, err := cartera.ParseAmount(currency, record[indexes["rate"]])
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s %s: %v", currency, dateStr, err)
		}
		if rate <= 0 {
			return nil, fmt.Errorf("non-positive rate for %s %s", currency, dateStr)
		}
		result = append(result, TRMImportCandidate{
			Date:     asOf.Format("2006-01-02"),
			Currency: currency,
			Rate:     rate,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date == result[j].Date {
			return result[i].Currency < result[j].Currency
		}
		return result[i].Date < result[j].Date
	})
	return result, nil
}

func writeImportOutput(opts TRMImportOptions, summary TRMImportSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	renderImportHuman(opts.Stdout, summary)
	return nil
}

func renderImportHuman(out io.Writer, summary TRMImportSummary) {
	fmt.Fprintf(out, "TRM import (%s): %d rate(s) sourced\n", summary.Mode, len(summary.Rates))
	for _, candidate := range summary.Rates {
		fmt.Fprintf(out, " - %s %s %.4f\n", candidate.Date, candidate.Currency, candidate.Rate)
	}
	if len(summary.Applied) > 0 {
		fmt.Fprintf(out, "Applied %d rate(s).\n", len(summary.Applied))
	}
}

func defaultImportConfirm(r io.Reader, w io.Writer) (bool, error) {
	fmt.Fprint(w, "Apply TRM import? Type YES to confirm: ")
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	response := strings.TrimSpace(line)
	return strings.EqualFold(response, "YES"), nil
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cartera-ar/cartera/internal/cartera"
	"github.com/cartera-ar/cartera/internal/shared"
)

// TRMValidateOptions defines available flags for the trm validate command.
type TRMValidateOptions struct {
	Closing    string
	Currencies []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// TRMValidateSummary describes the JSON response for trm validate.
type TRMValidateSummary struct {
	OK        bool               `json:"ok"`
	Closing   string             `json:"closing"`
	Reference string             `json:"reference"`
	Missing   []string           `json:"missing"`
	Available map[string]float64 `json:"available"`
}

// ValidateCommand checks that the rate table covers the reference date a run
// at the given closing would use. A conversion with gaps would be rejected at
// run time; this surfaces the gap before the extracts are submitted.
func (c *TRMOpsCLI) ValidateCommand(ctx context.Context, opts TRMValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	closing, err := time.Parse("2006-01-02", strings.TrimSpace(opts.Closing))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "trm validate: invalid closing %q (expected YYYY-MM-DD)\n", opts.Closing)
		return 1
	}
	reference := cartera.RateReferenceDate(cartera.MonthEnd(closing))

	available, err := c.store.RatesFor(ctx, reference)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		fmt.Fprintf(opts.Stderr, "trm validate: %v\n", err)
		return 1
	}

	var missing []string
	for _, currency := range opts.Currencies {
		currency = strings.ToUpper(strings.TrimSpace(currency))
		if currency == "" || currency == "COP" {
			continue
		}
		if available[currency] <= 0 {
			missing = append(missing, currency)
		}
	}
	sort.Strings(missing)

	summary := TRMValidateSummary{
		OK:        len(missing) == 0,
		Closing:   cartera.MonthEnd(closing).Format("2006-01-02"),
		Reference: reference.Format("2006-01-02"),
		Missing:   missing,
		Available: available,
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "trm validate: encode json: %v\n", err)
			return 1
		}
	} else {
		renderValidateHuman(opts.Stdout, summary)
	}
	if len(missing) > 0 {
		return 10
	}
	return 0
}

func renderValidateHuman(out io.Writer, summary TRMValidateSummary) {
	fmt.Fprintf(out, "TRM validation for closing %s (reference %s)\n", summary.Closing, summary.Reference)
	if len(summary.Missing) == 0 {
		fmt.Fprintln(out, "All required rates are present.")
	} else {
		fmt.Fprintf(out, "%d gap(s) detected: %s\n", len(summary.Missing), strings.Join(summary.Missing, ", "))
	}
	if len(summary.Available) > 0 {
		currencies := make([]string, 0, len(summary.Available))
		for currency := range summary.Available {
			currencies = append(currencies, currency)
		}
		sort.Strings(currencies)
		fmt.Fprintln(out, "Available rates:")
		for _, currency := range currencies {
			fmt.Fprintf(out, " - %s %.4f\n", currency, summary.Available[currency])
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/adapter/geojson"
	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var geometryFlag string

var errValidationFailed = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a case table (and optionally a boundary file) for join and history problems",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&geometryFlag, "geometry", "", "district GeoJSON file to check as well")
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func runValidate(cmd *cobra.Command, _ []string) error {
	logger := cliLogger(cmd.ErrOrStderr())
	src := caseSource(sourceFlag, timeoutFlag, observability.NewUnregisteredMetrics(), logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	data, err := src.CaseData(ctx)
	if err != nil {
		return fmt.Errorf("load case table: %w", err)
	}

	phases := []*phase{
		validateDistrictColumns(data),
		validateHistory(data),
		validatePopulationJoin(data, domain.BerlinPopulation()),
	}
	if geometryFlag != "" {
		f, err := os.Open(geometryFlag)
		if err != nil {
			return fmt.Errorf("open geometry: %w", err)
		}
		defer f.Close()
		phases = append(phases, validateGeometry(f))
	}

	if !report(cmd.OutOrStdout(), data, phases) {
		return errValidationFailed
	}
	return nil
}

// report prints the phase summary followed by detailed errors and returns
// whether every phase passed.
func report(w io.Writer, data domain.CaseData, phases []*phase) bool {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintfFunc()

	fmt.Fprintln(w, "=== Case Data Validation ===")
	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := pass("PASS")
		if !p.passed() {
			status = fail("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-36s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Records: %d reporting dates", len(data.Records))
	if n := len(data.Records); n > 0 {
		fmt.Fprintf(w, " (%s to %s)", data.Records[0].Date.Format(time.DateOnly), data.Records[n-1].Date.Format(time.DateOnly))
	}
	fmt.Fprintln(w)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
	} else {
		fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return allPassed
}

// ── Validation phases ──

// validateDistrictColumns checks that every column resolves to a district
// and every district has a column.
func validateDistrictColumns(data domain.CaseData) *phase {
	p := &phase{name: "District columns"}
	for _, label := range data.Unmatched {
		p.errorf("column %q matches no district", label)
	}
	seen := make(map[domain.District]bool)
	for _, rec := range data.Records {
		for d := range rec.Counts {
			seen[d] = true
		}
	}
	for _, d := range domain.Districts() {
		if !seen[d] {
			p.errorf("no column for %s", d)
		}
	}
	return p
}

// validateHistory checks for a complete 7-day window, duplicate or missing
// dates and negative counts.
func validateHistory(data domain.CaseData) *phase {
	p := &phase{name: "Reporting history"}
	dates := make(map[string]int)
	var first, last time.Time
	for i, rec := range data.Records {
		key := rec.Date.Format(time.DateOnly)
		if prev, dup := dates[key]; dup {
			p.errorf("record %d repeats %s from record %d", i+1, key, prev+1)
		}
		dates[key] = i
		if first.IsZero() || rec.Date.Before(first) {
			first = rec.Date
		}
		if rec.Date.After(last) {
			last = rec.Date
		}
		for _, d := range domain.Districts() {
			if n, ok := rec.Counts[d]; ok && n < 0 {
				p.errorf("%s: negative count %d for %s", key, n, d)
			}
		}
	}

	if len(dates) < domain.WindowDays {
		p.errorf("%d distinct dates, need at least %d for a 7-day window", len(dates), domain.WindowDays)
		return p
	}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if _, ok := dates[day.Format(time.DateOnly)]; !ok {
			p.errorf("no report for %s", day.Format(time.DateOnly))
		}
	}
	return p
}

// validatePopulationJoin checks that every reported district has a
// population entry.
func validatePopulationJoin(data domain.CaseData, pop domain.Population) *phase {
	p := &phase{name: "Population join"}
	series, err := domain.Normalize(data, pop)
	if err != nil {
		p.errorf("normalize: %v", err)
		return p
	}
	for _, d := range series.MissingPopulation {
		p.errorf("%s has cases but no population", d)
	}
	return p
}

// validateGeometry checks that the boundary file covers every district.
func validateGeometry(r io.Reader) *phase {
	p := &phase{name: "Geometry coverage"}
	b, err := geojson.Decode(r)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, name := range b.Unmatched {
		p.errorf("feature %q matches no district", name)
	}
	have := make(map[domain.District]bool, len(b.Districts))
	for _, g := range b.Districts {
		have[g.District] = true
	}
	for _, d := range domain.Districts() {
		if !have[d] {
			p.errorf("no boundary for %s", d)
		}
	}
	return p
}

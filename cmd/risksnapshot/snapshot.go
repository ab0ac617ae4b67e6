package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/couchcryptid/event-risk-service/internal/adapter/lageso"
	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/couchcryptid/event-risk-service/internal/pipeline"
	"github.com/couchcryptid/event-risk-service/internal/retry"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	biasFlag      float64
	eventSizeFlag int
	formatFlag    string
)

// snapshot is the rendered risk table.
type snapshot struct {
	Date                 string        `json:"date" yaml:"date"`
	FetchedAt            time.Time     `json:"fetched_at" yaml:"fetched_at"`
	Bias                 float64       `json:"bias" yaml:"bias"`
	EventSize            int           `json:"event_size" yaml:"event_size"`
	CityIncidencePer100k float64       `json:"city_incidence_per_100k" yaml:"city_incidence_per_100k"`
	Districts            []snapshotRow `json:"districts" yaml:"districts"`
}

type snapshotRow struct {
	District         string  `json:"district" yaml:"district"`
	Cases7d          int     `json:"cases_7d" yaml:"cases_7d"`
	IncidencePer100k float64       `json:"incidence_per_100k" yaml:"incidence_per_100k"`
	Prevalence       domain.Number `json:"prevalence" yaml:"prevalence"`
	Risk             domain.Number `json:"risk" yaml:"risk"`
}

// fileSource reads a case table from disk.
type fileSource struct {
	path string
}

func (f fileSource) CaseData(context.Context) (domain.CaseData, error) {
	body, err := os.ReadFile(f.path)
	if err != nil {
		return domain.CaseData{}, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}
	data, err := lageso.Parse(lageso.DetectFormat("", body), body)
	if err != nil {
		return domain.CaseData{}, fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, f.path, err)
	}
	if info, err := os.Stat(f.path); err == nil {
		data.FetchedAt = info.ModTime().UTC()
	}
	return data, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// caseSource picks the upstream client for URLs and a file reader otherwise.
func caseSource(source string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) pipeline.CaseSource {
	if !isURL(source) {
		return fileSource{path: source}
	}
	client := lageso.NewClient(source, timeout, metrics, logger)
	return lageso.NewSource(client, retry.DefaultPolicy(), 0, clockwork.NewRealClock(), metrics, logger)
}

func cliLogger(w io.Writer) *slog.Logger {
	level := "error"
	if verboseFlag {
		level = "debug"
	}
	return observability.NewTextLogger(w, level)
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	switch formatFlag {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", formatFlag)
	}
	if err := domain.CheckBias(biasFlag); err != nil {
		return err
	}
	if err := domain.CheckEventSize(eventSizeFlag); err != nil {
		return err
	}

	logger := cliLogger(cmd.ErrOrStderr())
	metrics := observability.NewUnregisteredMetrics()
	pop := domain.BerlinPopulation()
	p := pipeline.New(caseSource(sourceFlag, timeoutFlag, metrics, logger), nil, pop, logger, metrics)

	a, err := p.Assess(cmd.Context(), biasFlag, eventSizeFlag)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), formatFlag, buildSnapshot(a))
}

func buildSnapshot(a pipeline.Assessment) snapshot {
	latest := a.Series.Latest()
	s := snapshot{
		Date:                 a.Series.MaxDate.Format(time.DateOnly),
		FetchedAt:            a.Series.FetchedAt,
		Bias:                 a.Bias,
		EventSize:            a.EventSize,
		CityIncidencePer100k: domain.Per100k(latest.CityWide),
	}
	for _, d := range domain.Districts() {
		inc, ok := latest.Incidence[d]
		if !ok {
			continue
		}
		s.Districts = append(s.Districts, snapshotRow{
			District:         d.String(),
			Cases7d:          latest.Sums[d],
			IncidencePer100k: domain.Per100k(inc),
			Prevalence:       domain.Number(a.Prevalence[d]),
			Risk:             domain.Number(a.Risk[d]),
		})
	}
	return s
}

func render(w io.Writer, format string, s snapshot) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderTable(w, s)
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	noteStyle   = lipgloss.NewStyle().Faint(true)
)

func renderTable(w io.Writer, s snapshot) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("District", "7-day cases", "Incidence/100k", "Prevalence", "Risk").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		})
	for _, r := range s.Districts {
		t.Row(
			r.District,
			strconv.Itoa(r.Cases7d),
			strconv.FormatFloat(r.IncidencePer100k, 'f', 1, 64),
			percent(float64(r.Prevalence), 3),
			percent(float64(r.Risk), 1),
		)
	}

	title := fmt.Sprintf("Event risk on %s: %d attendees, bias %g", s.Date, s.EventSize, s.Bias)
	note := fmt.Sprintf("Berlin 7-day incidence: %.1f per 100k", s.CityIncidencePer100k)
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", titleStyle.Render(title), t.Render(), noteStyle.Render(note))
	return err
}

func percent(v float64, prec int) string {
	return strconv.FormatFloat(v*100, 'f', prec, 64) + "%"
}

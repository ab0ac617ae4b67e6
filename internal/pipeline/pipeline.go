package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
)

// CaseSource supplies the (cached) upstream case data.
type CaseSource interface {
	CaseData(ctx context.Context) (domain.CaseData, error)
}

// GeometrySource supplies the district boundaries.
type GeometrySource interface {
	Geometries(ctx context.Context) ([]domain.DistrictGeometry, error)
}

// Assessment is the risk picture for one bias and event size.
type Assessment struct {
	Series     domain.IncidenceSeries
	Bias       float64
	EventSize  int
	Prevalence domain.PrevalenceEstimate
	Risk       domain.RiskEstimate
	Trend      []domain.PrevalencePoint
}

// MapView joins an assessment with district boundaries.
type MapView struct {
	Assessment
	Districts []domain.GeoJoin
}

// LocateResult is the assessment for the district containing a point.
type LocateResult struct {
	Point      domain.LatLng
	District   domain.District
	Date       time.Time
	Incidence  float64
	Prevalence float64
	Risk       float64
}

// Pipeline turns case data into incidence, prevalence and risk estimates.
type Pipeline struct {
	cases      CaseSource
	geometry   GeometrySource
	population domain.Population
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool

	mu           sync.Mutex
	lastReported time.Time
}

// New creates a Pipeline over the given sources.
func New(cases CaseSource, geometry GeometrySource, population domain.Population, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		cases:      cases,
		geometry:   geometry,
		population: population,
		logger:     logger,
		metrics:    metrics,
	}
}

// Population returns the reference population the pipeline divides by.
func (p *Pipeline) Population() domain.Population {
	return p.population
}

// CheckReadiness returns nil once case data has been normalized at least once.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("case data has not been loaded yet")
	}
	return nil
}

// Warm loads case data and geometry so the first request does not pay for
// the download. Failures are logged; requests retry on their own.
func (p *Pipeline) Warm(ctx context.Context) {
	if _, err := p.Incidence(ctx); err != nil {
		p.logger.Warn("initial case data load failed", "error", err)
	}
	if p.geometry == nil {
		return
	}
	if _, err := p.geometry.Geometries(ctx); err != nil {
		p.logger.Warn("initial geometry load failed", "error", err)
	}
}

// Incidence returns the rolling 7-day incidence series for the current case data.
func (p *Pipeline) Incidence(ctx context.Context) (domain.IncidenceSeries, error) {
	data, err := p.cases.CaseData(ctx)
	if err != nil {
		return domain.IncidenceSeries{}, err
	}
	series, err := domain.Normalize(data, p.population)
	if err != nil {
		return domain.IncidenceSeries{}, err
	}

	p.ready.Store(true)
	p.report(series)
	return series, nil
}

// Assess estimates prevalence and attendance risk for every district.
func (p *Pipeline) Assess(ctx context.Context, bias float64, eventSize int) (Assessment, error) {
	if err := domain.CheckBias(bias); err != nil {
		return Assessment{}, err
	}
	if err := domain.CheckEventSize(eventSize); err != nil {
		return Assessment{}, err
	}

	series, err := p.Incidence(ctx)
	if err != nil {
		return Assessment{}, err
	}
	trend, err := domain.PrevalenceSeries(series, bias)
	if err != nil {
		return Assessment{}, err
	}
	prevalence := trend[len(trend)-1].Prevalence
	risk, err := domain.ProjectRisk(prevalence, eventSize)
	if err != nil {
		return Assessment{}, err
	}

	if over := prevalence.Exceeding(); len(over) > 0 {
		p.logger.Warn("prevalence above 1, risk values leave [0, 1]",
			"districts", over,
			"bias", bias,
		)
		p.metrics.PrevalenceExceeding.Add(float64(len(over)))
	}

	return Assessment{
		Series:     series,
		Bias:       bias,
		EventSize:  eventSize,
		Prevalence: prevalence,
		Risk:       risk,
		Trend:      trend,
	}, nil
}

// Map joins the assessment with district boundaries.
func (p *Pipeline) Map(ctx context.Context, bias float64, eventSize int) (MapView, error) {
	a, err := p.Assess(ctx, bias, eventSize)
	if err != nil {
		return MapView{}, err
	}
	geoms, err := p.geometry.Geometries(ctx)
	if err != nil {
		return MapView{}, err
	}

	joined, noGeometry, noEstimate := domain.JoinGeometry(geoms, a.Prevalence, a.Risk)
	if len(noGeometry) > 0 {
		p.logger.Warn("districts without geometry", "districts", noGeometry)
		p.metrics.JoinMismatches.WithLabelValues("geometry").Add(float64(len(noGeometry)))
	}
	if len(noEstimate) > 0 {
		p.logger.Warn("geometries without estimate", "districts", noEstimate)
		p.metrics.JoinMismatches.WithLabelValues("estimates").Add(float64(len(noEstimate)))
	}
	return MapView{Assessment: a, Districts: joined}, nil
}

// Locate assesses the district that contains pt. A district with geometry
// but no estimate yields a *domain.JoinMismatchError.
func (p *Pipeline) Locate(ctx context.Context, pt domain.LatLng, bias float64, eventSize int) (LocateResult, error) {
	if err := domain.CheckBias(bias); err != nil {
		return LocateResult{}, err
	}
	if err := domain.CheckEventSize(eventSize); err != nil {
		return LocateResult{}, err
	}
	geoms, err := p.geometry.Geometries(ctx)
	if err != nil {
		return LocateResult{}, err
	}
	d, err := domain.Locate(geoms, pt)
	if err != nil {
		return LocateResult{}, err
	}
	a, err := p.Assess(ctx, bias, eventSize)
	if err != nil {
		return LocateResult{}, err
	}
	incidence, okIncidence := a.Series.Latest().Incidence[d]
	prevalence, okPrevalence := a.Prevalence[d]
	risk, okRisk := a.Risk[d]
	if !okIncidence || !okPrevalence || !okRisk {
		p.logger.Warn("located district has no estimate", "district", d)
		p.metrics.JoinMismatches.WithLabelValues("estimates").Inc()
		return LocateResult{}, &domain.JoinMismatchError{Source: "estimates", Keys: []string{d.String()}}
	}
	return LocateResult{
		Point:      pt,
		District:   d,
		Date:       a.Series.MaxDate,
		Incidence:  incidence,
		Prevalence: prevalence,
		Risk:       risk,
	}, nil
}

// report updates gauges and logs population mismatches once per fetched
// data set.
func (p *Pipeline) report(series domain.IncidenceSeries) {
	p.mu.Lock()
	fresh := !series.FetchedAt.Equal(p.lastReported) || p.lastReported.IsZero()
	p.lastReported = series.FetchedAt
	p.mu.Unlock()
	if !fresh {
		return
	}

	latest := series.Latest()
	for d, inc := range latest.Incidence {
		p.metrics.DistrictIncidence.WithLabelValues(d.String()).Set(domain.Per100k(inc))
	}
	p.metrics.CityIncidence.Set(domain.Per100k(latest.CityWide))

	if err := series.Mismatch(); err != nil {
		p.logger.Warn("case districts missing from population reference", "error", err)
		p.metrics.JoinMismatches.WithLabelValues("population").Add(float64(len(series.MissingPopulation)))
	}
	p.logger.Info("incidence updated",
		"min_date", series.MinDate.Format(time.DateOnly),
		"max_date", series.MaxDate.Format(time.DateOnly),
		"city_incidence_per_100k", domain.Per100k(latest.CityWide),
	)
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// publishAttempts bounds retries within one tick.
	publishAttempts = 5
)

// IncidenceSource yields the current incidence series.
type IncidenceSource interface {
	Incidence(ctx context.Context) (domain.IncidenceSeries, error)
}

// BatchLoader writes district records to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.DistrictIncidence) error
}

// Publisher periodically pushes the latest incidence row downstream, once
// per fetched data set.
type Publisher struct {
	source     IncidenceSource
	loader     BatchLoader
	population domain.Population
	interval   time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	lastPublished time.Time
}

// NewPublisher creates a Publisher that checks for new data every interval.
func NewPublisher(source IncidenceSource, loader BatchLoader, population domain.Population, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		source:     source,
		loader:     loader,
		population: population,
		interval:   interval,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run publishes immediately and then on every tick until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("publisher started", "interval", p.interval)
	p.metrics.PublisherRunning.Set(1)
	defer p.metrics.PublisherRunning.Set(0)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.publishWithBackoff(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// PublishOnce writes the latest row if its data set has not been published
// yet. It returns the number of records written.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	series, err := p.source.Incidence(ctx)
	if err != nil {
		return 0, err
	}
	if !p.lastPublished.IsZero() && series.FetchedAt.Equal(p.lastPublished) {
		p.logger.Debug("no new case data to publish", "fetched_at", series.FetchedAt)
		return 0, nil
	}

	records := domain.LatestByDistrict(series, p.population, domain.Now())
	if len(records) == 0 {
		return 0, nil
	}
	if err := p.loader.LoadBatch(ctx, records); err != nil {
		return 0, err
	}

	p.metrics.MessagesProduced.Add(float64(len(records)))
	p.lastPublished = series.FetchedAt
	p.logger.Info("incidence published", "records", len(records), "date", series.MaxDate.Format(time.DateOnly))
	return len(records), nil
}

// publishWithBackoff retries a failed publish with exponential backoff,
// starting at 200ms and doubling up to 5s.
func (p *Publisher) publishWithBackoff(ctx context.Context) {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		_, err := p.PublishOnce(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		p.metrics.PublishErrors.Inc()
		if attempt == publishAttempts {
			p.logger.Error("publish failed, waiting for next tick", "error", err, "attempts", attempt)
			return
		}
		p.logger.Warn("publish failed", "error", err, "attempt", attempt, "retry_in", backoff)
		if !p.sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func (p *Publisher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

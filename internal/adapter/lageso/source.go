package lageso

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/cache"
	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/couchcryptid/event-risk-service/internal/retry"
	"github.com/jonboulle/clockwork"
)

// Fetcher performs one attempt at loading case data.
type Fetcher interface {
	Fetch(ctx context.Context) (domain.CaseData, error)
}

// Source serves case data through a retrying fetch behind a single-slot
// cache. The retry runs inside the cache fill.
type Source struct {
	slot *cache.Slot[domain.CaseData]
}

// NewSource composes fetcher, retry policy and cache.
func NewSource(fetcher Fetcher, policy retry.Policy, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Source {
	slot := cache.NewSlot(func(ctx context.Context) (domain.CaseData, error) {
		data, err := retry.Do(ctx, policy, logger, fetcher.Fetch)
		if err == nil {
			return data, nil
		}
		logger.Error("case data unavailable", "error", err)
		return domain.CaseData{}, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}, ttl, clock, metrics.CacheObserver("cases"))
	return &Source{slot: slot}
}

// CaseData returns the cached case data, refreshing it when stale.
func (s *Source) CaseData(ctx context.Context) (domain.CaseData, error) {
	return s.slot.Get(ctx)
}

// Loaded reports whether a fetch has ever succeeded.
func (s *Source) Loaded() bool {
	_, _, ok := s.slot.Peek()
	return ok
}

//go:build lageso

package lageso

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/config"
	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the live berlin.de export.
// Run with: go test -tags=lageso ./internal/adapter/lageso/ -v -count=1

func TestSmoke_FetchLiveTable(t *testing.T) {
	c := NewClient(config.DefaultCasesURL, 30*time.Second, observability.NewMetricsForTesting(), discardLogger())

	data, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, data.Records)

	counts := data.Records[len(data.Records)-1].Counts
	for _, d := range domain.Districts() {
		assert.Contains(t, counts, d, "missing column for %s", d)
	}
	assert.Empty(t, data.Unmatched)
}

func TestSmoke_LiveTableNormalizes(t *testing.T) {
	c := NewClient(config.DefaultCasesURL, 30*time.Second, observability.NewMetricsForTesting(), discardLogger())

	data, err := c.Fetch(context.Background())
	require.NoError(t, err)

	series, err := domain.Normalize(data, domain.BerlinPopulation())
	require.NoError(t, err)
	assert.Empty(t, series.MissingPopulation)
	assert.True(t, series.MaxDate.After(series.MinDate))
}

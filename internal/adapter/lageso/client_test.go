package lageso

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	headerContentType = "Content-Type"

	testCSV = "id;datum;mitte;friedrichshain_kreuzberg;tempelhof_schoeneberg\n" +
		"1;2021-06-01;10;4;2\n" +
		"2;2021-06-02;12;5;3\n"

	testJSON = `{"index":[
		{"id":"1","datum":"2021-06-01","mitte":"10","neukoelln":7},
		{"id":"2","datum":"2021-06-02","mitte":"12","neukoelln":8}
	]}`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(url string, metrics *observability.Metrics) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		metrics:    metrics,
		logger:     discardLogger(),
	}
}

func serve(contentType, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set(headerContentType, contentType)
		}
		_, _ = io.WriteString(w, body)
	}))
}

func TestClient_Fetch_CSV(t *testing.T) {
	fetched := time.Date(2021, time.June, 2, 9, 30, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fetched))
	t.Cleanup(func() { domain.SetClock(nil) })

	srv := serve("text/csv; charset=utf-8", testCSV)
	defer srv.Close()
	metrics := observability.NewMetricsForTesting()

	data, err := testClient(srv.URL, metrics).Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, data.Records, 2)
	assert.Equal(t, 12, data.Records[1].Counts[domain.Mitte])
	assert.Equal(t, 3, data.Records[1].Counts[domain.TempelhofSchoeneberg])
	assert.Empty(t, data.Unmatched)
	assert.Equal(t, fetched, data.FetchedAt)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.FetchAttempts.WithLabelValues("csv", "success")), 0)
}

func TestClient_Fetch_JSONByContentType(t *testing.T) {
	srv := serve("application/json", testJSON)
	defer srv.Close()

	data, err := testClient(srv.URL, observability.NewMetricsForTesting()).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, data.Records, 2)
	assert.Equal(t, 8, data.Records[1].Counts[domain.Neukoelln])
}

func TestClient_Fetch_JSONBySniffing(t *testing.T) {
	srv := serve("text/plain", "\n  "+testJSON)
	defer srv.Close()

	data, err := testClient(srv.URL, observability.NewMetricsForTesting()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, data.Records[0].Counts[domain.Mitte])
}

func TestClient_Fetch_UnmatchedColumnsCounted(t *testing.T) {
	srv := serve("text/csv", "datum;mitte;berlin_gesamt;unbekannt\n2021-06-01;1;9;0\n")
	defer srv.Close()
	metrics := observability.NewMetricsForTesting()

	data, err := testClient(srv.URL, metrics).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"berlin_gesamt", "unbekannt"}, data.Unmatched)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.JoinMismatches.WithLabelValues("cases")), 0)
}

func TestClient_Fetch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream gone"))
	}))
	defer srv.Close()
	metrics := observability.NewMetricsForTesting()

	_, err := testClient(srv.URL, metrics).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.FetchAttempts.WithLabelValues("unknown", "error")), 0)
}

func TestClient_Fetch_MalformedPayload(t *testing.T) {
	srv := serve("text/csv", "datum;mitte\n2021-06-01;many\n")
	defer srv.Close()
	metrics := observability.NewMetricsForTesting()

	_, err := testClient(srv.URL, metrics).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid case count")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.FetchAttempts.WithLabelValues("csv", "error")), 0)
}

func TestClient_Fetch_OversizedBodyRejected(t *testing.T) {
	srv := serve("text/csv", testCSV)
	defer srv.Close()

	// Cutting the last count leaves an empty cell, which would parse as zero.
	c := testClient(srv.URL, observability.NewMetricsForTesting())
	c.maxBody = int64(len(testCSV) - 2)

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body exceeds")

	c.maxBody = int64(len(testCSV))
	data, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Records, 2)
}

func TestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond, observability.NewMetricsForTesting(), discardLogger())
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        Format
	}{
		{"json media type", "application/json; charset=utf-8", "datum;mitte", FormatJSON},
		{"json suffix", "application/vnd.lageso+json", "", FormatJSON},
		{"csv media type", "text/csv", `{"index":[]}`, FormatCSV},
		{"sniff json", "application/octet-stream", " {\"index\":[]}", FormatJSON},
		{"sniff json after bom", "", "\ufeff{\"index\":[]}", FormatJSON},
		{"sniff csv", "", "datum;mitte\n", FormatCSV},
		{"empty", "", "", FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.contentType, []byte(tt.body)))
		})
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse(Format("xml"), nil)
	assert.ErrorContains(t, err, "unsupported")
}

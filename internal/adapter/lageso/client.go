// Package lageso fetches the Berlin district case table published by the
// Landesamt für Gesundheit und Soziales.
package lageso

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
)

// maxBodyBytes caps the downloaded table. A larger body is rejected rather
// than parsed truncated.
const maxBodyBytes = 32 << 20

// Format is the payload encoding of a case table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Client downloads and parses the case table. Each Fetch is a single attempt.
type Client struct {
	url        string
	maxBody    int64
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a case table client with a per-request timeout.
func NewClient(url string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		url:     url,
		maxBody: maxBodyBytes,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch downloads the table once and parses it. FetchedAt is stamped from the
// domain clock.
func (c *Client) Fetch(ctx context.Context) (domain.CaseData, error) {
	start := time.Now()
	data, format, err := c.doRequest(ctx)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if format == "" {
			format = "unknown"
		}
		c.metrics.FetchAttempts.WithLabelValues(string(format), "error").Inc()
		return domain.CaseData{}, err
	}
	c.metrics.FetchAttempts.WithLabelValues(string(format), "success").Inc()

	if len(data.Unmatched) > 0 {
		c.logger.Warn("case columns matched no district", "columns", data.Unmatched)
		c.metrics.JoinMismatches.WithLabelValues("cases").Add(float64(len(data.Unmatched)))
	}
	c.logger.Debug("case data fetched", "format", format, "records", len(data.Records))
	return data, nil
}

func (c *Client) doRequest(ctx context.Context) (domain.CaseData, Format, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.CaseData{}, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, application/json;q=0.9, */*;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.CaseData{}, "", fmt.Errorf("case data request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.CaseData{}, "", fmt.Errorf("lageso API error: status %d: %s", resp.StatusCode, body)
	}

	limit := c.maxBody
	if limit <= 0 {
		limit = maxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return domain.CaseData{}, "", fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > limit {
		return domain.CaseData{}, "", fmt.Errorf("read response: body exceeds %d bytes", limit)
	}

	format := DetectFormat(resp.Header.Get("Content-Type"), body)
	data, err := Parse(format, body)
	if err != nil {
		return domain.CaseData{}, format, err
	}
	data.FetchedAt = domain.Now()
	return data, format, nil
}

// DetectFormat picks the payload format from the media type and falls back to
// sniffing the first non-space byte.
func DetectFormat(contentType string, body []byte) Format {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mt == "application/json", strings.HasSuffix(mt, "+json"):
			return FormatJSON
		case mt == "text/csv", mt == "application/csv":
			return FormatCSV
		}
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(body, []byte("\ufeff")), " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatCSV
}

// Parse decodes a case table in the given format.
func Parse(format Format, body []byte) (domain.CaseData, error) {
	switch format {
	case FormatJSON:
		return domain.ParseCaseJSON(body)
	case FormatCSV:
		return domain.ParseCaseCSV(bytes.NewReader(body))
	default:
		return domain.CaseData{}, fmt.Errorf("unsupported case data format %q", format)
	}
}

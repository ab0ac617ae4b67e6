// Package geojson loads district boundaries from a GeoJSON FeatureCollection.
package geojson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/couchcryptid/event-risk-service/internal/cache"
	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// nameProperties are the feature properties tried, in order, for the
// district label.
var nameProperties = []string{"name", "Gemeinde_name", "BEZ_NAME"}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *geometry      `json:"geometry"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Boundaries is the decoded collection. Unmatched holds feature names that
// resolved to no district.
type Boundaries struct {
	Districts []domain.DistrictGeometry
	Unmatched []string
}

// Decode reads a FeatureCollection of Polygon and MultiPolygon features.
// Features of one district are merged; the result is in district order.
func Decode(r io.Reader) (Boundaries, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return Boundaries{}, fmt.Errorf("decode geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return Boundaries{}, fmt.Errorf("decode geojson: expected FeatureCollection, got %q", fc.Type)
	}

	polygons := make(map[domain.District][]domain.Polygon)
	var unmatched []string
	for i, f := range fc.Features {
		label := featureName(f.Properties)
		d, ok := domain.ParseDistrict(label)
		if !ok {
			unmatched = append(unmatched, label)
			continue
		}
		if f.Geometry == nil {
			return Boundaries{}, fmt.Errorf("feature %d (%s): missing geometry", i, d)
		}
		polys, err := decodePolygons(*f.Geometry)
		if err != nil {
			return Boundaries{}, fmt.Errorf("feature %d (%s): %w", i, d, err)
		}
		polygons[d] = append(polygons[d], polys...)
	}

	out := Boundaries{Unmatched: unmatched}
	for _, d := range domain.Districts() {
		polys, ok := polygons[d]
		if !ok {
			continue
		}
		g, err := domain.NewDistrictGeometry(d, polys)
		if err != nil {
			return Boundaries{}, err
		}
		out.Districts = append(out.Districts, g)
	}
	sort.Strings(out.Unmatched)
	return out, nil
}

func featureName(props map[string]any) string {
	for _, key := range nameProperties {
		if s, ok := props[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func decodePolygons(g geometry) ([]domain.Polygon, error) {
	switch g.Type {
	case "Polygon":
		var p domain.Polygon
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return nil, fmt.Errorf("decode polygon coordinates: %w", err)
		}
		return []domain.Polygon{p}, nil
	case "MultiPolygon":
		var mp []domain.Polygon
		if err := json.Unmarshal(g.Coordinates, &mp); err != nil {
			return nil, fmt.Errorf("decode multipolygon coordinates: %w", err)
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

// Provider loads the boundary file once and serves it from memory.
type Provider struct {
	path string
	slot *cache.Slot[[]domain.DistrictGeometry]
}

// NewProvider creates a provider for the GeoJSON file at path. Nothing is
// read until the first call to Geometries.
func NewProvider(path string, metrics *observability.Metrics, logger *slog.Logger) *Provider {
	p := &Provider{path: path}
	p.slot = cache.NewSlot(func(context.Context) ([]domain.DistrictGeometry, error) {
		b, err := p.load()
		if err != nil {
			logger.Error("load district geometry failed", "path", path, "error", err)
			return nil, err
		}
		if len(b.Unmatched) > 0 {
			logger.Warn("geometry features matched no district", "names", b.Unmatched)
			metrics.JoinMismatches.WithLabelValues("geometry").Add(float64(len(b.Unmatched)))
		}
		logger.Info("district geometry loaded", "path", path, "districts", len(b.Districts))
		return b.Districts, nil
	}, 0, clockwork.NewRealClock(), metrics.CacheObserver("geometry"))
	return p
}

// Geometries returns every district boundary found in the file.
func (p *Provider) Geometries(ctx context.Context) ([]domain.DistrictGeometry, error) {
	return p.slot.Get(ctx)
}

// Locate returns the district containing pt.
func (p *Provider) Locate(ctx context.Context, pt domain.LatLng) (domain.District, error) {
	geoms, err := p.Geometries(ctx)
	if err != nil {
		return 0, err
	}
	return domain.Locate(geoms, pt)
}

func (p *Provider) load() (Boundaries, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return Boundaries{}, fmt.Errorf("open geometry file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

package http

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/domain"
)

type districtIncidence struct {
	District         domain.District `json:"district"`
	Cases7d          int             `json:"cases_7d"`
	Population       int             `json:"population"`
	IncidencePer100k float64         `json:"incidence_per_100k"`
}

type incidencePoint struct {
	Date            string                      `json:"date"`
	CityWidePer100k float64                     `json:"city_wide_per_100k"`
	Districts       map[domain.District]float64 `json:"districts"`
}

type incidenceResponse struct {
	MinDate           string              `json:"min_date"`
	MaxDate           string              `json:"max_date"`
	FetchedAt         time.Time           `json:"fetched_at"`
	CityPer100k       float64             `json:"city_incidence_per_100k"`
	Districts         []districtIncidence `json:"districts"`
	Series            []incidencePoint    `json:"series"`
	MissingPopulation []domain.District   `json:"missing_population,omitempty"`
	UnmatchedLabels   []string            `json:"unmatched_labels,omitempty"`
}

type districtRisk struct {
	District         domain.District `json:"district"`
	IncidencePer100k float64         `json:"incidence_per_100k"`
	Prevalence       domain.Number   `json:"prevalence"`
	Risk             domain.Number   `json:"risk"`
}

type prevalencePoint struct {
	Date       string                            `json:"date"`
	Prevalence map[domain.District]domain.Number `json:"prevalence"`
}

type riskResponse struct {
	Date      string            `json:"date"`
	Bias      float64           `json:"bias"`
	EventSize int               `json:"event_size"`
	Districts []districtRisk    `json:"districts"`
	Trend     []prevalencePoint `json:"trend"`
}

type locateResponse struct {
	Lat              float64         `json:"lat"`
	Lng              float64         `json:"lng"`
	District         domain.District `json:"district"`
	Date             string          `json:"date"`
	Bias             float64         `json:"bias"`
	EventSize        int             `json:"event_size"`
	IncidencePer100k float64         `json:"incidence_per_100k"`
	Prevalence       domain.Number   `json:"prevalence"`
	Risk             domain.Number   `json:"risk"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	Geometry   multiPolygon      `json:"geometry"`
	Properties featureProperties `json:"properties"`
}

type multiPolygon struct {
	Type        string           `json:"type"`
	Coordinates []domain.Polygon `json:"coordinates"`
}

type featureProperties struct {
	District   domain.District `json:"district"`
	Date       string          `json:"date"`
	Prevalence domain.Number   `json:"prevalence"`
	Risk       domain.Number   `json:"risk"`
	Lat        float64         `json:"lat"`
	Lng        float64         `json:"lng"`
}

func (s *Server) handleIncidence(w http.ResponseWriter, r *http.Request) {
	series, err := s.service.Incidence(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	latest := series.Latest()
	resp := incidenceResponse{
		MinDate:           series.MinDate.Format(time.DateOnly),
		MaxDate:           series.MaxDate.Format(time.DateOnly),
		FetchedAt:         series.FetchedAt,
		CityPer100k:       domain.Per100k(latest.CityWide),
		Series:            make([]incidencePoint, 0, len(series.Rows)),
		MissingPopulation: series.MissingPopulation,
		UnmatchedLabels:   series.Unmatched,
	}
	for _, rec := range domain.LatestByDistrict(series, s.service.Population(), series.FetchedAt) {
		resp.Districts = append(resp.Districts, districtIncidence{
			District:         rec.District,
			Cases7d:          rec.Cases7d,
			Population:       rec.Population,
			IncidencePer100k: rec.IncidencePer100k,
		})
	}
	for _, row := range series.Rows {
		pt := incidencePoint{
			Date:            row.Date.Format(time.DateOnly),
			CityWidePer100k: domain.Per100k(row.CityWide),
			Districts:       make(map[domain.District]float64, len(row.Incidence)),
		}
		for d, v := range row.Incidence {
			pt.Districts[d] = domain.Per100k(v)
		}
		resp.Series = append(resp.Series, pt)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	bias, eventSize, err := riskParams(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.service.Assess(r.Context(), bias, eventSize)
	if err != nil {
		s.writeError(w, err)
		return
	}

	latest := a.Series.Latest()
	resp := riskResponse{
		Date:      a.Series.MaxDate.Format(time.DateOnly),
		Bias:      a.Bias,
		EventSize: a.EventSize,
		Trend:     make([]prevalencePoint, 0, len(a.Trend)),
	}
	for _, d := range domain.Districts() {
		p, ok := a.Prevalence[d]
		if !ok {
			continue
		}
		resp.Districts = append(resp.Districts, districtRisk{
			District:         d,
			IncidencePer100k: domain.Per100k(latest.Incidence[d]),
			Prevalence:       domain.Number(p),
			Risk:             domain.Number(a.Risk[d]),
		})
	}
	for _, pt := range a.Trend {
		resp.Trend = append(resp.Trend, prevalencePoint{Date: pt.Date.Format(time.DateOnly), Prevalence: domain.Numbers(pt.Prevalence)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	bias, eventSize, err := riskParams(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	view, err := s.service.Map(r.Context(), bias, eventSize)
	if err != nil {
		s.writeError(w, err)
		return
	}

	date := view.Series.MaxDate.Format(time.DateOnly)
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(view.Districts))}
	for _, j := range view.Districts {
		fc.Features = append(fc.Features, feature{
			Type:     "Feature",
			Geometry: multiPolygon{Type: "MultiPolygon", Coordinates: j.Geometry.Polygons},
			Properties: featureProperties{
				District:   j.Geometry.District,
				Date:       date,
				Prevalence: domain.Number(j.Prevalence),
				Risk:       domain.Number(j.Risk),
				Lat:        j.Geometry.Centroid.Lat,
				Lng:        j.Geometry.Centroid.Lng,
			},
		})
	}
	writeBody(w, "application/geo+json", http.StatusOK, fc)
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := floatParam(q, "lat", math.NaN())
	if err != nil {
		s.writeError(w, err)
		return
	}
	lng, err := floatParam(q, "lng", math.NaN())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		s.writeError(w, &paramError{name: "lat/lng", msg: "valid coordinates are required"})
		return
	}
	bias, eventSize, err := riskParams(q)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.service.Locate(r.Context(), domain.LatLng{Lat: lat, Lng: lng}, bias, eventSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locateResponse{
		Lat:              lat,
		Lng:              lng,
		District:         res.District,
		Date:             res.Date.Format(time.DateOnly),
		Bias:             bias,
		EventSize:        eventSize,
		IncidencePer100k: domain.Per100k(res.Incidence),
		Prevalence:       domain.Number(res.Prevalence),
		Risk:             domain.Number(res.Risk),
	})
}

// paramError reports a malformed query parameter.
type paramError struct {
	name string
	msg  string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("query parameter %s: %s", e.name, e.msg)
}

func riskParams(q url.Values) (float64, int, error) {
	bias, err := floatParam(q, "bias", domain.DefaultBias)
	if err != nil {
		return 0, 0, err
	}
	size := domain.DefaultEventSize
	if v := q.Get("event_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, &paramError{name: "event_size", msg: "must be an integer"}
		}
		size = n
	}
	return bias, size, nil
}

func floatParam(q url.Values, name string, def float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &paramError{name: name, msg: "must be a number"}
	}
	return f, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var pe *paramError
	var mismatch *domain.JoinMismatchError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &pe),
		errors.Is(err, domain.ErrInvalidBias),
		errors.Is(err, domain.ErrInvalidEventSize):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownDistrict),
		errors.As(err, &mismatch):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDataUnavailable),
		errors.Is(err, domain.ErrInsufficientHistory):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package domain

import "time"

// DistrictIncidence is one district's figures from the latest incidence row,
// in the shape downstream consumers receive.
type DistrictIncidence struct {
	District         District  `json:"district"`
	Date             time.Time `json:"date"`
	Cases7d          int       `json:"cases_7d"`
	Incidence        float64   `json:"incidence"`
	IncidencePer100k float64   `json:"incidence_per_100k"`
	Population       int       `json:"population"`

	PublishedAt time.Time `json:"-"`
}

// LatestByDistrict flattens the latest row of the series into one record per
// district with a known population, in district order.
func LatestByDistrict(series IncidenceSeries, pop Population, publishedAt time.Time) []DistrictIncidence {
	if len(series.Rows) == 0 {
		return nil
	}
	row := series.Latest()
	out := make([]DistrictIncidence, 0, len(row.Incidence))
	for _, d := range Districts() {
		inc, ok := row.Incidence[d]
		if !ok {
			continue
		}
		out = append(out, DistrictIncidence{
			District:         d,
			Date:             row.Date,
			Cases7d:          row.Sums[d],
			Incidence:        inc,
			IncidencePer100k: Per100k(inc),
			Population:       pop[d],
			PublishedAt:      publishedAt,
		})
	}
	return out
}

package domain

import (
	"math"
	"sort"
	"time"
)

// DefaultBias is the assumed ratio of true to reported infections.
const DefaultBias = 5.0

// PrevalenceEstimate maps each district to its estimated fraction of
// currently infected residents. Values above 1 are possible and kept.
type PrevalenceEstimate map[District]float64

// PrevalencePoint is the estimate for one incidence row, used for trends.
type PrevalencePoint struct {
	Date       time.Time
	Prevalence PrevalenceEstimate
}

// CheckBias rejects a bias that is not a positive finite number.
func CheckBias(bias float64) error {
	if !(bias > 0) || math.IsInf(bias, 0) {
		return ErrInvalidBias
	}
	return nil
}

// EstimatePrevalence multiplies each district's incidence by the
// ascertainment bias. No saturation is applied.
func EstimatePrevalence(incidence map[District]float64, bias float64) (PrevalenceEstimate, error) {
	if err := CheckBias(bias); err != nil {
		return nil, err
	}
	out := make(PrevalenceEstimate, len(incidence))
	for d, v := range incidence {
		out[d] = bias * v
	}
	return out, nil
}

// PrevalenceSeries applies EstimatePrevalence to every row of the series.
func PrevalenceSeries(series IncidenceSeries, bias float64) ([]PrevalencePoint, error) {
	points := make([]PrevalencePoint, 0, len(series.Rows))
	for _, row := range series.Rows {
		p, err := EstimatePrevalence(row.Incidence, bias)
		if err != nil {
			return nil, err
		}
		points = append(points, PrevalencePoint{Date: row.Date, Prevalence: p})
	}
	return points, nil
}

// Exceeding lists districts whose prevalence is above 1, in district order.
func (p PrevalenceEstimate) Exceeding() []District {
	var out []District
	for d, v := range p {
		if v > 1 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

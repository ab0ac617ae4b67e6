package domain

import "math"

// DefaultEventSize is the attendee count used when none is given.
const DefaultEventSize = 50

// RiskEstimate maps each district to the probability that at least one
// attendee of an event is infected.
type RiskEstimate map[District]float64

// AttendanceRisk returns 1 - (1 - prevalence)^n. An empty event carries no
// risk regardless of prevalence. For prevalence above 1 the result leaves
// [0, 1] and is returned unchanged.
func AttendanceRisk(prevalence float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return 1 - math.Pow(1-prevalence, float64(n))
}

// CheckEventSize rejects a negative event size.
func CheckEventSize(n int) error {
	if n < 0 {
		return ErrInvalidEventSize
	}
	return nil
}

// ProjectRisk applies AttendanceRisk to every district.
func ProjectRisk(prevalence PrevalenceEstimate, n int) (RiskEstimate, error) {
	if err := CheckEventSize(n); err != nil {
		return nil, err
	}
	out := make(RiskEstimate, len(prevalence))
	for d, p := range prevalence {
		out[d] = AttendanceRisk(p, n)
	}
	return out, nil
}

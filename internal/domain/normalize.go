package domain

import (
	"sort"
	"time"
)

// WindowDays is the length of the trailing incidence window.
const WindowDays = 7

// IncidenceRow is one complete 7-day window ending on Date.
type IncidenceRow struct {
	Date time.Time
	// Sums holds the trailing 7-day case sum per district.
	Sums map[District]int
	// Incidence holds Sums divided by population, as an unscaled fraction.
	Incidence map[District]float64
	// CityWide is summed cases over summed population.
	CityWide float64
}

// IncidenceSeries is the chronological rolling-window view of the case data.
type IncidenceSeries struct {
	Rows    []IncidenceRow
	MinDate time.Time
	MaxDate time.Time
	// MissingPopulation lists districts with counts but no population entry.
	// They are excluded from Incidence and CityWide.
	MissingPopulation []District
	// Unmatched holds upstream labels that resolved to no district.
	Unmatched []string
	// FetchedAt is copied from the CaseData the series was derived from.
	FetchedAt time.Time
}

// Latest returns the most recent row. The series must be non-empty.
func (s IncidenceSeries) Latest() IncidenceRow {
	return s.Rows[len(s.Rows)-1]
}

// Mismatch reports districts missing from the population reference, or nil.
func (s IncidenceSeries) Mismatch() error {
	if len(s.MissingPopulation) == 0 {
		return nil
	}
	keys := make([]string, len(s.MissingPopulation))
	for i, d := range s.MissingPopulation {
		keys[i] = d.String()
	}
	return &JoinMismatchError{Source: "population", Keys: keys}
}

// Per100k scales an incidence fraction for display.
func Per100k(fraction float64) float64 {
	return fraction * 100_000
}

// Normalize sorts the records by date, sums each district over a trailing
// 7-day window and divides by population. Dates with fewer than six
// preceding records produce no row. A later record for an already seen date
// replaces the earlier one.
func Normalize(data CaseData, pop Population) (IncidenceSeries, error) {
	records := dedupeByDate(data.Records)
	if len(records) < WindowDays {
		return IncidenceSeries{}, ErrInsufficientHistory
	}

	missing := make(map[District]struct{})
	rows := make([]IncidenceRow, 0, len(records)-WindowDays+1)
	for end := WindowDays - 1; end < len(records); end++ {
		sums := make(map[District]int)
		for _, rec := range records[end-WindowDays+1 : end+1] {
			for d, n := range rec.Counts {
				sums[d] += n
			}
		}

		incidence := make(map[District]float64, len(sums))
		for d, sum := range sums {
			n := pop[d]
			if n <= 0 {
				missing[d] = struct{}{}
				continue
			}
			incidence[d] = float64(sum) / float64(n)
		}

		rows = append(rows, IncidenceRow{
			Date:      records[end].Date,
			Sums:      sums,
			Incidence: incidence,
			CityWide:  CityIncidence(sums, pop),
		})
	}

	return IncidenceSeries{
		Rows:              rows,
		MinDate:           rows[0].Date,
		MaxDate:           rows[len(rows)-1].Date,
		MissingPopulation: sortedDistricts(missing),
		Unmatched:         data.Unmatched,
		FetchedAt:         data.FetchedAt,
	}, nil
}

// CityIncidence divides summed cases by summed population for districts
// present in both maps.
func CityIncidence(sums map[District]int, pop Population) float64 {
	var cases, residents int
	for d, sum := range sums {
		n := pop[d]
		if n <= 0 {
			continue
		}
		cases += sum
		residents += n
	}
	if residents == 0 {
		return 0
	}
	return float64(cases) / float64(residents)
}

func dedupeByDate(in []RawCaseRecord) []RawCaseRecord {
	byDate := make(map[int64]int, len(in))
	out := make([]RawCaseRecord, 0, len(in))
	for _, rec := range in {
		key := rec.Date.UnixNano()
		if i, ok := byDate[key]; ok {
			out[i] = rec
			continue
		}
		byDate[key] = len(out)
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func sortedDistricts(set map[District]struct{}) []District {
	if len(set) == 0 {
		return nil
	}
	out := make([]District, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

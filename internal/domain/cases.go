package domain

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RawCaseRecord is one upstream report row: newly reported cases per
// district on a single date.
type RawCaseRecord struct {
	Date   time.Time
	Counts map[District]int
}

// CaseData is the result of one successful ingestion. Records keep upstream
// order; Unmatched holds column labels that resolved to no district.
type CaseData struct {
	Records   []RawCaseRecord
	Unmatched []string
	FetchedAt time.Time
}

// Mismatch returns the unmatched labels as a JoinMismatchError, or nil.
func (c CaseData) Mismatch() error {
	if len(c.Unmatched) == 0 {
		return nil
	}
	return &JoinMismatchError{Source: "cases", Keys: c.Unmatched}
}

const (
	dateColumn = "datum"
	idColumn   = "id"
)

var reportDateLayouts = []string{"2006-01-02", "02.01.2006", time.RFC3339}

// ParseCaseCSV decodes the semicolon-separated LAGeSo table.
func ParseCaseCSV(r io.Reader) (CaseData, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return CaseData{}, fmt.Errorf("read csv header: %w", err)
	}

	cols, err := classifyColumns(header)
	if err != nil {
		return CaseData{}, err
	}

	var records []RawCaseRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return CaseData{}, fmt.Errorf("read csv row %d: %w", line, err)
		}
		if len(row) <= cols.maxIndex {
			return CaseData{}, fmt.Errorf("csv row %d: expected at least %d fields, got %d", line, cols.maxIndex+1, len(row))
		}

		date, err := parseReportDate(row[cols.date])
		if err != nil {
			return CaseData{}, fmt.Errorf("csv row %d: %w", line, err)
		}
		counts := make(map[District]int, len(cols.districts))
		for idx, d := range cols.districts {
			n, err := parseCount(row[idx])
			if err != nil {
				return CaseData{}, fmt.Errorf("csv row %d, %s: %w", line, d, err)
			}
			counts[d] = n
		}
		records = append(records, RawCaseRecord{Date: date, Counts: counts})
	}

	return CaseData{Records: records, Unmatched: cols.unmatched}, nil
}

// ParseCaseJSON decodes the JSON export: an object whose "index" array holds
// one flat record per reporting date.
func ParseCaseJSON(data []byte) (CaseData, error) {
	var doc struct {
		Index []map[string]json.RawMessage `json:"index"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return CaseData{}, fmt.Errorf("decode case json: %w", err)
	}
	if doc.Index == nil {
		return CaseData{}, errors.New("decode case json: missing index array")
	}

	unmatched := make(map[string]struct{})
	records := make([]RawCaseRecord, 0, len(doc.Index))
	for i, rec := range doc.Index {
		var date time.Time
		counts := make(map[District]int, len(rec))
		labels := make(map[District]string, len(rec))
		for key, raw := range rec {
			switch strings.ToLower(strings.TrimSpace(key)) {
			case idColumn:
				continue
			case dateColumn:
				s, err := jsonScalar(raw)
				if err != nil {
					return CaseData{}, fmt.Errorf("json record %d, %s: %w", i, key, err)
				}
				if date, err = parseReportDate(s); err != nil {
					return CaseData{}, fmt.Errorf("json record %d: %w", i, err)
				}
				continue
			}

			d, ok := ParseDistrict(key)
			if !ok {
				unmatched[key] = struct{}{}
				continue
			}
			if prev, dup := labels[d]; dup {
				return CaseData{}, fmt.Errorf("json record %d: keys %q and %q both map to %s", i, prev, key, d)
			}
			labels[d] = key
			s, err := jsonScalar(raw)
			if err != nil {
				return CaseData{}, fmt.Errorf("json record %d, %s: %w", i, key, err)
			}
			n, err := parseCount(s)
			if err != nil {
				return CaseData{}, fmt.Errorf("json record %d, %s: %w", i, d, err)
			}
			counts[d] = n
		}
		if date.IsZero() {
			return CaseData{}, fmt.Errorf("json record %d: missing %s", i, dateColumn)
		}
		records = append(records, RawCaseRecord{Date: date, Counts: counts})
	}

	return CaseData{Records: records, Unmatched: sortedKeys(unmatched)}, nil
}

type columnLayout struct {
	date      int
	districts map[int]District
	unmatched []string
	maxIndex  int
}

// classifyColumns drops the id column, locates the date column and resolves
// every other label to a district. Two labels for one district are an error.
func classifyColumns(header []string) (columnLayout, error) {
	layout := columnLayout{date: -1, districts: make(map[int]District)}
	unmatched := make(map[string]struct{})
	seen := make(map[District]string)
	for i, label := range header {
		label = strings.TrimPrefix(strings.TrimSpace(label), "\ufeff")
		switch strings.ToLower(label) {
		case "":
			continue
		case idColumn:
			continue
		case dateColumn:
			layout.date = i
		default:
			d, ok := ParseDistrict(label)
			if !ok {
				unmatched[label] = struct{}{}
				continue
			}
			if prev, dup := seen[d]; dup {
				return columnLayout{}, fmt.Errorf("csv header: columns %q and %q both map to %s", prev, label, d)
			}
			seen[d] = label
			layout.districts[i] = d
		}
		layout.maxIndex = i
	}

	if layout.date < 0 {
		return columnLayout{}, fmt.Errorf("csv header: missing %s column", dateColumn)
	}
	if len(layout.districts) == 0 {
		return columnLayout{}, errors.New("csv header: no district columns")
	}
	layout.unmatched = sortedKeys(unmatched)
	return layout, nil
}

func parseReportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid report date %q", s)
}

// parseCount coerces a case count to an integer. Empty cells count as zero;
// fractional values are rejected.
func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid case count %q", s)
	}
	return int(f), nil
}

// jsonScalar returns a JSON string or number as text.
func jsonScalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wxarchive/station-etl/internal/domain"
)

// NormalsDaily parses the long-format climate-normals CSV: one row per
// station-date-element, dates as MM-DD without a year. The registry's
// nominal year (a leap year, so Feb 29 normals validate) supplies the
// missing component. Element rows merge into one record per calendar day.
type NormalsDaily struct {
	elements map[string]bool
	year     int
}

// NewNormalsDaily keeps only the given element names (case-insensitive)
// and stamps records with the nominal year.
func NewNormalsDaily(elements []string, nominalYear int) *NormalsDaily {
	keep := make(map[string]bool, len(elements))
	for _, e := range elements {
		keep[strings.ToLower(e)] = true
	}
	return &NormalsDaily{elements: keep, year: nominalYear}
}

func (p *NormalsDaily) Parse(payload []byte) ([]domain.ObservationRecord, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, &domain.ParseError{Dataset: domain.DatasetNormalsDaily, Reason: "missing header row"}
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "element", "value"} {
		if _, ok := col[required]; !ok {
			return nil, &domain.ParseError{
				Dataset: domain.DatasetNormalsDaily,
				Reason:  fmt.Sprintf("header has no %s column", required),
			}
		}
	}
	stationIdx, hasStation := col["station"]

	type dayObs struct {
		stationID string
		values    map[string]float64
	}
	days := make(map[domain.ObsTime]*dayObs)

	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetNormalsDaily, Line: line, Reason: err.Error()}
		}

		element := strings.ToLower(strings.TrimSpace(row[col["element"]]))
		if !p.elements[element] {
			continue
		}

		month, day, err := splitMonthDay(row[col["date"]])
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetNormalsDaily, Line: line, Reason: err.Error()}
		}

		cell := strings.TrimSpace(row[col["value"]])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &domain.ParseError{
				Dataset: domain.DatasetNormalsDaily,
				Line:    line,
				Reason:  fmt.Sprintf("non-numeric %s value %q", element, cell),
			}
		}

		t := domain.ObsTime{Year: p.year, Month: month, Day: day}
		obs, ok := days[t]
		if !ok {
			obs = &dayObs{values: make(map[string]float64, len(p.elements))}
			if hasStation {
				obs.stationID = strings.TrimSpace(row[stationIdx])
			}
			days[t] = obs
		}
		obs.values[element] = v
	}

	recs := make([]domain.ObservationRecord, 0, len(days))
	for t, obs := range days {
		recs = append(recs, domain.ObservationRecord{
			StationID: obs.stationID,
			Time:      t,
			Values:    obs.values,
		})
	}
	sortByTime(recs)
	return recs, nil
}

func splitMonthDay(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unparseable date %q", s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("unparseable date %q", s)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("unparseable date %q", s)
	}
	return month, day, nil
}

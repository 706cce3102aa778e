package parser

import (
	"strconv"
	"strings"

	"github.com/wxarchive/station-etl/internal/domain"
)

// Fixed-width daily layout: station ID, year, month, element code, then 31
// packed day slots of value + measurement/quality/source flags. Months
// shorter than 31 days pad the tail slots with the no-observation value.
const (
	ghcndIDEnd      = 11
	ghcndYearEnd    = 15
	ghcndMonthEnd   = 17
	ghcndElementEnd = 21
	ghcndValueWidth = 5
	ghcndSlotWidth  = 8
	ghcndDaySlots   = 31
	ghcndLineLen    = ghcndElementEnd + ghcndDaySlots*ghcndSlotWidth

	// ghcndNoObs marks a day slot with nothing recorded, including the
	// nonexistent tail days of short months. Distinct from a field-level
	// missing sentinel: a slot carrying it yields no record at all.
	ghcndNoObs = -9999
)

// GHCND parses the packed fixed-width daily format. One input line holds a
// whole station-month of one element; lines merge into one record per
// calendar day. A day survives only if its value is present and its quality
// flag is blank; any non-blank quality flag means the value failed a
// quality-assurance check, and only that day is dropped.
type GHCND struct {
	elements map[string]bool
}

// NewGHCND keeps only the given element codes; other element lines are
// skipped whole.
func NewGHCND(elements []string) *GHCND {
	keep := make(map[string]bool, len(elements))
	for _, e := range elements {
		keep[e] = true
	}
	return &GHCND{elements: keep}
}

func (p *GHCND) Parse(payload []byte) ([]domain.ObservationRecord, error) {
	type dayObs struct {
		stationID string
		values    map[string]float64
	}
	days := make(map[domain.ObsTime]*dayObs)

	for n, line := range splitLines(payload) {
		if line == "" {
			continue
		}
		if len(line) < ghcndElementEnd+ghcndSlotWidth {
			return nil, &domain.ParseError{Dataset: domain.DatasetGHCND, Line: n + 1, Reason: "line too short"}
		}
		// Archive mirrors strip trailing blanks; restore the full width
		// so flag columns stay addressable.
		if len(line) < ghcndLineLen {
			line += strings.Repeat(" ", ghcndLineLen-len(line))
		}

		stationID := strings.TrimSpace(line[:ghcndIDEnd])
		element := strings.TrimSpace(line[ghcndMonthEnd:ghcndElementEnd])
		if !p.elements[element] {
			continue
		}

		year, err := strconv.Atoi(strings.TrimSpace(line[ghcndIDEnd:ghcndYearEnd]))
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetGHCND, Line: n + 1, Reason: "non-numeric year"}
		}
		month, err := strconv.Atoi(strings.TrimSpace(line[ghcndYearEnd:ghcndMonthEnd]))
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetGHCND, Line: n + 1, Reason: "non-numeric month"}
		}

		for day := 1; day <= ghcndDaySlots; day++ {
			base := ghcndElementEnd + (day-1)*ghcndSlotWidth
			raw := strings.TrimSpace(line[base : base+ghcndValueWidth])
			if raw == "" {
				continue
			}
			value, err := strconv.Atoi(raw)
			if err != nil {
				return nil, &domain.ParseError{
					Dataset: domain.DatasetGHCND,
					Line:    n + 1,
					Reason:  "non-numeric value for day " + strconv.Itoa(day),
				}
			}
			if value == ghcndNoObs {
				continue
			}
			if qflag := line[base+ghcndValueWidth+1]; qflag != ' ' {
				continue
			}

			t := domain.ObsTime{Year: year, Month: month, Day: day}
			obs, ok := days[t]
			if !ok {
				obs = &dayObs{stationID: stationID, values: make(map[string]float64, len(p.elements))}
				days[t] = obs
			}
			obs.values[element] = float64(value)
		}
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

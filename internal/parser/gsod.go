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

// GSOD parses the daily-summary CSV format. Columns are located by header
// name, never by position; the archive has reordered columns across
// vintages. A mapped column missing from the header means that field is
// absent for the whole file; only a missing date column is structural.
// Empty cells are absent values, never zero.
type GSOD struct {
	fields []string
}

// NewGSOD extracts the given native column names (case-insensitive).
func NewGSOD(fields []string) *GSOD {
	return &GSOD{fields: fields}
}

func (p *GSOD) Parse(payload []byte) ([]domain.ObservationRecord, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, &domain.ParseError{Dataset: domain.DatasetGSOD, Reason: "missing header row"}
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	dateIdx, ok := col["DATE"]
	if !ok {
		return nil, &domain.ParseError{Dataset: domain.DatasetGSOD, Reason: "header has no DATE column"}
	}
	stationIdx, hasStation := col["STATION"]

	var recs []domain.ObservationRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetGSOD, Line: line, Reason: err.Error()}
		}

		t, err := splitDate(row[dateIdx])
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetGSOD, Line: line, Reason: err.Error()}
		}

		rec := domain.ObservationRecord{
			Time:   t,
			Values: make(map[string]float64, len(p.fields)),
		}
		if hasStation {
			rec.StationID = strings.TrimSpace(row[stationIdx])
		}
		for _, name := range p.fields {
			idx, ok := col[strings.ToUpper(name)]
			if !ok {
				continue
			}
			cell := strings.TrimSpace(row[idx])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &domain.ParseError{
					Dataset: domain.DatasetGSOD,
					Line:    line,
					Reason:  fmt.Sprintf("non-numeric %s value %q", name, cell),
				}
			}
			rec.Values[name] = v
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// splitDate breaks "YYYY-MM-DD" into raw components. Only the shape is
// checked here; whether the components form a real calendar date is the
// normalizer's call.
func splitDate(s string) (domain.ObsTime, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return domain.ObsTime{}, fmt.Errorf("unparseable date %q", s)
	}
	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return domain.ObsTime{}, fmt.Errorf("unparseable date %q", s)
		}
		nums[i] = n
	}
	return domain.ObsTime{Year: nums[0], Month: nums[1], Day: nums[2]}, nil
}

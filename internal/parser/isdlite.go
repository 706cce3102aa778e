package parser

import (
	"strconv"
	"strings"

	"github.com/wxarchive/station-etl/internal/domain"
)

// Hourly fixed-width layout: timestamp components, then six-wide
// space-padded measurement fields. All measured fields are scaled by ten in
// the source; -9999 is the missing sentinel and flows through as a value.
var isdliteFields = []struct {
	name       string
	start, end int
}{
	{"TEMP", 13, 19},
	{"DEWP", 19, 25},
	{"SLP", 25, 31},
	{"WNDDIR", 31, 37},
	{"WNDSPD", 37, 43},
	{"SKY", 43, 49},
	{"PRCP1H", 49, 55},
	{"PRCP6H", 55, 61},
}

// isdliteMinLen requires at least the fields the canonical schema draws
// from (through wind speed); sky and precipitation columns are absent from
// some early years and simply go missing.
const isdliteMinLen = 43

// ISDLite parses the hourly fixed-width format, one line per observation
// hour.
type ISDLite struct{}

// NewISDLite returns the hourly parser.
func NewISDLite() *ISDLite {
	return &ISDLite{}
}

func (p *ISDLite) Parse(payload []byte) ([]domain.ObservationRecord, error) {
	var recs []domain.ObservationRecord
	for n, line := range splitLines(payload) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < isdliteMinLen {
			return nil, &domain.ParseError{Dataset: domain.DatasetISDLite, Line: n + 1, Reason: "line too short"}
		}

		year, err := atoiField(line, 0, 4)
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetISDLite, Line: n + 1, Reason: "non-numeric year"}
		}
		month, err := atoiField(line, 5, 7)
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetISDLite, Line: n + 1, Reason: "non-numeric month"}
		}
		day, err := atoiField(line, 8, 11)
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetISDLite, Line: n + 1, Reason: "non-numeric day"}
		}
		hour, err := atoiField(line, 11, 13)
		if err != nil {
			return nil, &domain.ParseError{Dataset: domain.DatasetISDLite, Line: n + 1, Reason: "non-numeric hour"}
		}

		rec := domain.ObservationRecord{
			Time:   domain.ObsTime{Year: year, Month: month, Day: day, Hour: hour},
			Values: make(map[string]float64, len(isdliteFields)),
		}
		for _, f := range isdliteFields {
			if f.end > len(line) {
				break
			}
			cell := strings.TrimSpace(line[f.start:f.end])
			if cell == "" {
				continue
			}
			v, err := strconv.Atoi(cell)
			if err != nil {
				return nil, &domain.ParseError{
					Dataset: domain.DatasetISDLite,
					Line:    n + 1,
					Reason:  "non-numeric " + f.name + " value",
				}
			}
			rec.Values[f.name] = float64(v)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func atoiField(line string, start, end int) (int, error) {
	return strconv.Atoi(strings.TrimSpace(line[start:end]))
}

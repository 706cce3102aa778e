package domain

import (
	"fmt"
	"time"
)

// Dataset identifies one archive collection. Each dataset has its own file
// format, unit conventions, and missing-value sentinels; the registry holds
// the per-dataset knobs and the parser package holds one variant per format.
type Dataset string

const (
	// DatasetGHCND is the daily observation archive: one fixed-width file
	// per station covering all years, one line per station-month-element.
	DatasetGHCND Dataset = "ghcnd"
	// DatasetGSOD is the daily summary archive: one CSV file per
	// station-year with a header row.
	DatasetGSOD Dataset = "gsod"
	// DatasetISDLite is the hourly archive: one fixed-width file per
	// station-year, one line per observation hour.
	DatasetISDLite Dataset = "isd_lite"
	// DatasetNormalsDaily is the daily climate-normals archive: one CSV
	// file per station covering a fixed reference period.
	DatasetNormalsDaily Dataset = "normals_daily"
)

// ParseDataset validates a dataset name from the command line.
func ParseDataset(s string) (Dataset, error) {
	switch Dataset(s) {
	case DatasetGHCND, DatasetGSOD, DatasetISDLite, DatasetNormalsDaily:
		return Dataset(s), nil
	}
	return "", fmt.Errorf("unknown dataset %q", s)
}

// Station is one row of a station inventory after regional filtering.
//
// ID is the canonical station identity used in output paths and logs.
// FileID is the identity as it appears in archive file names; the
// integrated-surface inventory joins its two identifier columns with a
// hyphen for ID and concatenates them for FileID, while the daily-archive
// inventory uses the same string for both.
type Station struct {
	ID        string
	FileID    string
	Country   string
	Name      string
	Latitude  float64
	Longitude float64
	Elevation float64
	State     string
}

// WorkUnit is the unit of fetching, parsing, failure isolation, and output
// partitioning: one dataset-station-year. Yearless datasets carry the
// registry's nominal reference year.
type WorkUnit struct {
	Dataset   Dataset
	Country   string
	StationID string
	FileID    string
	Year      int
}

func (u WorkUnit) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", u.Dataset, u.Country, u.StationID, u.Year)
}

// ObsTime carries a timestamp as raw integer components so that calendar
// validation happens in exactly one place, after parsing. Parsers must not
// reject impossible dates; they emit the components they read and the
// normalizer decides. Hour is zero for daily cadences.
type ObsTime struct {
	Year  int
	Month int
	Day   int
	Hour  int
}

// Key returns a scalar that orders ObsTimes chronologically and serves as a
// deduplication key. Only meaningful for calendar-valid components.
func (t ObsTime) Key() int64 {
	return ((int64(t.Year)*100+int64(t.Month))*100+int64(t.Day))*100 + int64(t.Hour)
}

// Time converts to a UTC time.Time. Callers must validate first:
// time.Date normalizes out-of-range components instead of failing.
func (t ObsTime) Time() time.Time {
	return time.Date(t.Year, time.Month(t.Month), t.Day, t.Hour, 0, 0, 0, time.UTC)
}

// ObservationRecord is parser output: one observation (a station-day or
// station-hour) with values still in the dataset's native units. Values
// holds only the variables actually present in the payload; a native
// missing sentinel passes through as its literal value for the normalizer
// to recognize. Treated as immutable once produced.
type ObservationRecord struct {
	StationID string
	Time      ObsTime
	Values    map[string]float64
}

// CanonicalField names one column of the canonical schema.
type CanonicalField string

const (
	FieldTmaxC       CanonicalField = "tmax_c"
	FieldTminC       CanonicalField = "tmin_c"
	FieldTempC       CanonicalField = "temp_c"
	FieldDewPointC   CanonicalField = "dew_point_c"
	FieldPressureHPa CanonicalField = "pressure_hpa"
	FieldWindSpeedMS CanonicalField = "wind_speed_ms"
	FieldPrcpMM      CanonicalField = "prcp_mm"
)

// CanonicalFields is the canonical schema in output column order. Every
// CanonicalRecord carries exactly this field set regardless of dataset, so
// downstream consumers can treat all datasets uniformly.
var CanonicalFields = []CanonicalField{
	FieldTmaxC,
	FieldTminC,
	FieldTempC,
	FieldDewPointC,
	FieldPressureHPa,
	FieldWindSpeedMS,
	FieldPrcpMM,
}

// CanonicalRecord is normalizer output: one observation in canonical units.
// A nil value is the missing marker, distinct from zero, which is a real
// observed value (0.0 mm of rain is an observation; nil is the absence of
// one).
type CanonicalRecord struct {
	StationID string
	Time      ObsTime
	Values    map[CanonicalField]*float64
}

// NewCanonicalRecord returns a record with every canonical field present
// and missing-marked.
func NewCanonicalRecord(stationID string, t ObsTime) CanonicalRecord {
	values := make(map[CanonicalField]*float64, len(CanonicalFields))
	for _, f := range CanonicalFields {
		values[f] = nil
	}
	return CanonicalRecord{StationID: stationID, Time: t, Values: values}
}

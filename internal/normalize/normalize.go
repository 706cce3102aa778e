// Package normalize converts parsed observation records into canonical
// records. All dataset-specific knowledge arrives through the registry's
// conversion table, so supporting a new dataset means a new table entry and
// parser variant, with no changes here.
package normalize

import (
	"fmt"
	"sort"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
)

// Normalize maps native variables onto the canonical schema. For every
// record: the timestamp must be a real calendar moment (ValidationError
// otherwise; corrupt fixed-width offsets read impossible dates), each
// table row converts affinely unless the native value is absent or a
// sentinel (both yield the missing marker, never zero), and unmapped
// native variables are dropped. Duplicate timestamps keep the last
// occurrence; archives ship corrected duplicates later in the same file.
// Output is sorted by time.
func Normalize(spec registry.DatasetSpec, recs []domain.ObservationRecord) ([]domain.CanonicalRecord, error) {
	byTime := make(map[int64]domain.CanonicalRecord, len(recs))

	for _, rec := range recs {
		if err := validateTime(rec, spec.Hourly); err != nil {
			return nil, err
		}

		out := domain.NewCanonicalRecord(rec.StationID, rec.Time)
		for _, m := range spec.Fields {
			native, ok := rec.Values[m.Native]
			if !ok || isSentinel(native, m.Sentinels) {
				continue
			}
			v := native*m.Scale + m.Offset
			out.Values[m.Canonical] = &v
		}
		byTime[rec.Time.Key()] = out
	}

	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]domain.CanonicalRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, byTime[k])
	}
	return out, nil
}

func isSentinel(v float64, sentinels []float64) bool {
	for _, s := range sentinels {
		if v == s {
			return true
		}
	}
	return false
}

func validateTime(rec domain.ObservationRecord, hourly bool) error {
	t := rec.Time
	if t.Year < 1000 || t.Year > 9999 {
		return &domain.ValidationError{
			StationID: rec.StationID,
			Reason:    fmt.Sprintf("year %d out of range", t.Year),
		}
	}
	if t.Month < 1 || t.Month > 12 {
		return &domain.ValidationError{
			StationID: rec.StationID,
			Reason:    fmt.Sprintf("month %d is not a calendar month", t.Month),
		}
	}
	if t.Day < 1 || t.Day > daysIn(t.Year, t.Month) {
		return &domain.ValidationError{
			StationID: rec.StationID,
			Reason:    fmt.Sprintf("day %d does not exist in %04d-%02d", t.Day, t.Year, t.Month),
		}
	}
	if hourly && (t.Hour < 0 || t.Hour > 23) {
		return &domain.ValidationError{
			StationID: rec.StationID,
			Reason:    fmt.Sprintf("hour %d is not a clock hour", t.Hour),
		}
	}
	return nil
}

func daysIn(year, month int) int {
	switch month {
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeap(year) {
			return 29
		}
		return 28
	default:
		return 31
	}
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

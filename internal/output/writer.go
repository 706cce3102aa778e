// Package output writes canonical records to per-unit CSV partitions under
// processed/{dataset}/{country}/{station}/{year}.csv. Every partition
// carries the full canonical header regardless of dataset, so downstream
// readers never branch on the source format.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
)

// Writer renders and atomically replaces partition files.
type Writer struct {
	root string
	reg  *registry.Registry
}

// NewWriter creates a partition writer rooted at root.
func NewWriter(root string, reg *registry.Registry) *Writer {
	return &Writer{root: root, reg: reg}
}

// PathFor returns the partition location for one work unit.
func (w *Writer) PathFor(unit domain.WorkUnit) string {
	return filepath.Join(w.root, string(unit.Dataset), unit.Country, unit.StationID,
		strconv.Itoa(unit.Year)+".csv")
}

// Exists reports whether the unit's partition is already on disk.
func (w *Writer) Exists(unit domain.WorkUnit) bool {
	_, err := os.Stat(w.PathFor(unit))
	return err == nil
}

// Write renders the records and replaces the unit's partition. Records are
// expected in time order; a unit with no surviving records still gets a
// header-only partition so reruns can tell "processed, nothing usable"
// from "never processed". The same records always render to identical
// bytes.
func (w *Writer) Write(unit domain.WorkUnit, recs []domain.CanonicalRecord) error {
	spec, err := w.reg.Dataset(unit.Dataset)
	if err != nil {
		return err
	}

	path := w.PathFor(unit)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err := render(f, spec.Hourly, recs); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func render(f *os.File, hourly bool, recs []domain.CanonicalRecord) error {
	cw := csv.NewWriter(f)

	header := make([]string, 0, len(domain.CanonicalFields)+1)
	header = append(header, "date")
	for _, field := range domain.CanonicalFields {
		header = append(header, string(field))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, rec := range recs {
		row[0] = timestamp(hourly, rec.Time)
		for i, field := range domain.CanonicalFields {
			v := rec.Values[field]
			if v == nil {
				row[i+1] = ""
				continue
			}
			row[i+1] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func timestamp(hourly bool, t domain.ObsTime) string {
	if hourly {
		return t.Time().Format(time.RFC3339)
	}
	return fmt.Sprintf("%04d-%02d-%02d", t.Year, t.Month, t.Day)
}

package stations

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
)

// ghcnd station master list layout (fixed width, space padded).
const (
	ghcndInvIDEnd      = 11
	ghcndInvLatStart   = 12
	ghcndInvLatEnd     = 20
	ghcndInvLonStart   = 21
	ghcndInvLonEnd     = 30
	ghcndInvElevStart  = 31
	ghcndInvElevEnd    = 37
	ghcndInvStateStart = 38
	ghcndInvStateEnd   = 40
	ghcndInvNameStart  = 41
	ghcndInvNameEnd    = 71
)

// parseGHCNDInventory filters the daily-archive master list to stations
// whose two-letter ID prefix matches one of the configured countries. The
// same ID keys both the archive file name and the station directory, so
// FileID and ID are equal here.
func parseGHCNDInventory(payload []byte, countries []string) ([]domain.Station, error) {
	wanted := make(map[string]bool, len(countries))
	for _, c := range countries {
		wanted[c] = true
	}

	var list []domain.Station
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < ghcndInvNameStart {
			continue
		}
		id := strings.TrimSpace(line[:ghcndInvIDEnd])
		if len(id) < 2 || !wanted[id[:2]] {
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(line[ghcndInvLatStart:ghcndInvLatEnd]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(line[ghcndInvLonStart:ghcndInvLonEnd]), 64)
		elev, errElev := strconv.ParseFloat(strings.TrimSpace(line[ghcndInvElevStart:ghcndInvElevEnd]), 64)
		if errLat != nil || errLon != nil || errElev != nil {
			continue
		}
		end := len(line)
		if end > ghcndInvNameEnd {
			end = ghcndInvNameEnd
		}
		list = append(list, domain.Station{
			ID:        id,
			FileID:    id,
			Country:   id[:2],
			Name:      strings.TrimSpace(line[ghcndInvNameStart:end]),
			Latitude:  lat,
			Longitude: lon,
			Elevation: elev,
			State:     strings.TrimSpace(line[ghcndInvStateStart:ghcndInvStateEnd]),
		})
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no stations matched countries %v", countries)
	}
	return list, nil
}

// parseISDInventory filters the integrated-surface history file. Country
// matching goes through the registry's FIPS mapping because the history
// file codes a few countries differently from the daily archive. Station
// IDs join the USAF and WBAN identifiers with a dash; archive file names
// concatenate them bare, which FileID records.
func parseISDInventory(payload []byte, reg *registry.Registry) ([]domain.Station, error) {
	wanted := make(map[string]string, len(reg.Countries))
	for _, c := range reg.Countries {
		wanted[reg.FIPSFor(c)] = c
	}

	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"USAF", "WBAN", "CTRY", "END"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("history file missing %s column", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var list []domain.Station
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		country, ok := wanted[cell(row, "CTRY")]
		if !ok {
			continue
		}
		end := cell(row, "END")
		if len(end) < 4 {
			continue
		}
		endYear, err := strconv.Atoi(end[:4])
		if err != nil || endYear < reg.StartYear {
			continue
		}
		usaf, wban := cell(row, "USAF"), cell(row, "WBAN")
		if usaf == "" || wban == "" {
			continue
		}
		st := domain.Station{
			ID:      usaf + "-" + wban,
			FileID:  usaf + wban,
			Country: country,
			Name:    cell(row, "STATION NAME"),
			State:   cell(row, "STATE"),
		}
		st.Latitude, _ = strconv.ParseFloat(cell(row, "LAT"), 64)
		st.Longitude, _ = strconv.ParseFloat(cell(row, "LON"), 64)
		st.Elevation, _ = strconv.ParseFloat(cell(row, "ELEV(M)"), 64)
		list = append(list, st)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no stations matched countries %v", reg.Countries)
	}
	return list, nil
}

var listHeader = []string{"station_id", "file_id", "country", "name", "latitude", "longitude", "elevation", "state"}

// ListPath returns where the persisted list for an inventory lives under
// dir.
func ListPath(dir, inventory string) string {
	return filepath.Join(dir, inventory+"_stations.csv")
}

// SaveList writes a station list in the persisted-inventory format, the
// same file the service reads on startup. The sample generator writes
// these directly so a fresh checkout can run without touching the archive.
func SaveList(path string, list []domain.Station) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(listHeader); err != nil {
		return err
	}
	for _, st := range list {
		row := []string{
			st.ID,
			st.FileID,
			st.Country,
			st.Name,
			strconv.FormatFloat(st.Latitude, 'f', -1, 64),
			strconv.FormatFloat(st.Longitude, 'f', -1, 64),
			strconv.FormatFloat(st.Elevation, 'f', -1, 64),
			st.State,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadList(path string) ([]domain.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) != len(listHeader) {
		return nil, fmt.Errorf("malformed station list")
	}

	list := make([]domain.Station, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(listHeader) {
			return nil, fmt.Errorf("malformed station list row")
		}
		st := domain.Station{
			ID:      row[0],
			FileID:  row[1],
			Country: row[2],
			Name:    row[3],
			State:   row[7],
		}
		if st.Latitude, err = strconv.ParseFloat(row[4], 64); err != nil {
			return nil, fmt.Errorf("malformed latitude %q", row[4])
		}
		if st.Longitude, err = strconv.ParseFloat(row[5], 64); err != nil {
			return nil, fmt.Errorf("malformed longitude %q", row[5])
		}
		if st.Elevation, err = strconv.ParseFloat(row[6], 64); err != nil {
			return nil, fmt.Errorf("malformed elevation %q", row[6])
		}
		list = append(list, st)
	}
	return list, nil
}

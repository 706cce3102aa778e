// Command gensample writes a synthetic slice of the climate archive into a
// local data directory: persisted regional station lists plus raw payloads
// in each dataset's native format, laid out exactly as the fetcher would
// stage them. A fresh checkout can then exercise the whole process step
// without touching the network.
//
// Usage:
//
//	go run ./cmd/gensample -data-dir data -stations 3 -years 2
//	DATA_DIR=data go run ./cmd/stationetl -step process
package main

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
	"github.com/wxarchive/station-etl/internal/stations"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "", "data directory to populate (the pipeline's DATA_DIR)")
	registryPath := flag.String("registry", "", "optional registry overlay file (the pipeline's REGISTRY_FILE)")
	stationCount := flag.Int("stations", 2, "stations to synthesize per inventory")
	yearCount := flag.Int("years", 2, "years of history per station, ending at the registry's end year")
	seed := flag.Int64("seed", 1, "random seed; fixed by default so fixtures are reproducible")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -data-dir")
	}

	reg, err := registry.Load(*registryPath)
	if err != nil {
		return err
	}

	lists := map[string][]domain.Station{
		"ghcnd": syntheticDailyStations(reg, *stationCount),
		"isd":   syntheticSurfaceStations(reg, *stationCount),
	}

	stationsDir := filepath.Join(*dataDir, "stations")
	for inventory := range reg.Inventories {
		list, ok := lists[inventory]
		if !ok {
			return fmt.Errorf("no station synthesizer for inventory %q", inventory)
		}
		path := stations.ListPath(stationsDir, inventory)
		if err := stations.SaveList(path, list); err != nil {
			return fmt.Errorf("write %s station list: %w", inventory, err)
		}
		log.Printf("%s inventory: %d stations -> %s", inventory, len(list), path)
	}

	g := &generator{
		reg:    reg,
		rng:    rand.New(rand.NewSource(*seed)),
		rawDir: filepath.Join(*dataDir, "raw"),
		years:  sampleYears(reg, *yearCount),
	}

	var files, size int
	for _, name := range reg.DatasetNames() {
		spec := reg.Datasets[name]
		f, n, err := g.dataset(name, spec, lists[spec.Inventory])
		if err != nil {
			return fmt.Errorf("generate %s: %w", name, err)
		}
		log.Printf("%s: %d files, %d bytes", name, f, n)
		files += f
		size += n
	}
	log.Printf("total: %d files, %d bytes under %s", files, size, g.rawDir)
	return nil
}

// sampleYears picks the tail of the configured range so sample data stays
// small regardless of how far back the registry reaches.
func sampleYears(reg *registry.Registry, n int) []int {
	start := reg.EndYear - n + 1
	if start < reg.StartYear {
		start = reg.StartYear
	}
	years := make([]int, 0, reg.EndYear-start+1)
	for y := start; y <= reg.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// --- station synthesis ---

var sampleNames = []string{
	"PRETORIA UNIV PROEF",
	"CAPE TOWN INTL",
	"BLANTYRE CHILEKA",
	"BEIRA",
	"HARARE KUTSAGA",
	"LUANDA",
	"BRAZZAVILLE MAYA-MAYA",
	"DAR ES SALAAM INTL",
	"WINDHOEK EROS",
	"BULAWAYO GOETZ",
}

func syntheticDailyStations(reg *registry.Registry, n int) []domain.Station {
	list := make([]domain.Station, 0, n)
	for i := 0; i < n; i++ {
		country := reg.Countries[i%len(reg.Countries)]
		id := fmt.Sprintf("%s%09d", country, 68000+i*37)
		list = append(list, domain.Station{
			ID:        id,
			FileID:    id,
			Country:   country,
			Name:      sampleNames[i%len(sampleNames)],
			Latitude:  -(8.0 + float64((i*3)%25)),
			Longitude: 14.0 + float64((i*7)%25),
			Elevation: 100 + float64((i*211)%1500),
		})
	}
	return list
}

func syntheticSurfaceStations(reg *registry.Registry, n int) []domain.Station {
	list := make([]domain.Station, 0, n)
	for i := 0; i < n; i++ {
		country := reg.Countries[i%len(reg.Countries)]
		usaf := fmt.Sprintf("68%04d", 1000+i*13)
		list = append(list, domain.Station{
			ID:        usaf + "-99999",
			FileID:    usaf + "99999",
			Country:   country,
			Name:      sampleNames[(i+3)%len(sampleNames)],
			Latitude:  -(10.0 + float64((i*5)%20)),
			Longitude: 16.0 + float64((i*11)%22),
			Elevation: 50 + float64((i*307)%1800),
		})
	}
	return list
}

// --- payload generation ---

type generator struct {
	reg    *registry.Registry
	rng    *rand.Rand
	rawDir string
	years  []int
}

// dataset writes one staged payload per distinct staging path. Datasets
// whose staging path ignores the year get one file spanning every sample
// year.
func (g *generator) dataset(name domain.Dataset, spec registry.DatasetSpec, list []domain.Station) (files, size int, err error) {
	written := make(map[string]bool)
	for _, st := range list {
		for _, year := range g.datasetYears(spec) {
			unit := domain.WorkUnit{
				Dataset:   name,
				Country:   st.Country,
				StationID: st.ID,
				FileID:    st.FileID,
				Year:      year,
			}
			rel := spec.StagingPathFor(unit)
			if written[rel] {
				continue
			}
			written[rel] = true

			payload, err := g.payload(name, spec, st, year)
			if err != nil {
				return files, size, err
			}
			if spec.Compression == "gzip" {
				payload, err = gzipBytes(payload)
				if err != nil {
					return files, size, err
				}
			}

			path := filepath.Join(g.rawDir, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return files, size, err
			}
			if err := os.WriteFile(path, payload, 0o644); err != nil {
				return files, size, err
			}
			files++
			size += len(payload)
		}
	}
	return files, size, nil
}

func (g *generator) datasetYears(spec registry.DatasetSpec) []int {
	if spec.Yearless {
		return []int{spec.NominalYear}
	}
	return g.years
}

func (g *generator) payload(name domain.Dataset, spec registry.DatasetSpec, st domain.Station, year int) ([]byte, error) {
	switch name {
	case domain.DatasetGHCND:
		return g.packedDaily(spec, st), nil
	case domain.DatasetGSOD:
		return g.dailySummary(st, year)
	case domain.DatasetISDLite:
		return g.hourly(year), nil
	case domain.DatasetNormalsDaily:
		return g.dailyNormals(spec, st)
	}
	return nil, fmt.Errorf("no payload generator for dataset %q", name)
}

// packedDaily renders the fixed-width daily format: one line per
// station-month-element with 31 packed day slots. Day slots beyond the
// month's end carry the no-observation value, and an occasional slot gets
// a failing quality flag.
func (g *generator) packedDaily(spec registry.DatasetSpec, st domain.Station) []byte {
	var b strings.Builder
	for _, year := range g.years {
		for month := 1; month <= 12; month++ {
			for _, element := range spec.Elements {
				lo, hi := dailyElementRange(element)
				fmt.Fprintf(&b, "%-11s%04d%02d%-4s", st.FileID, year, month, element)
				days := daysIn(year, month)
				for day := 1; day <= 31; day++ {
					value := -9999
					if day <= days && g.rng.Intn(20) != 0 {
						value = lo + g.rng.Intn(hi-lo)
					}
					qflag := " "
					if value != -9999 && g.rng.Intn(60) == 0 {
						qflag = "X"
					}
					fmt.Fprintf(&b, "%5d %s ", value, qflag)
				}
				b.WriteByte('\n')
			}
		}
	}
	return []byte(b.String())
}

// dailyElementRange gives plausible value bounds in each element's native
// unit (tenths of a degree or millimeter).
func dailyElementRange(element string) (lo, hi int) {
	switch element {
	case "TMIN":
		return 40, 190
	case "PRCP":
		return 0, 250
	default:
		return 180, 340
	}
}

// dailySummary renders the daily-summary CSV for one station-year. Sentinel
// values stand in for unreported fields, as in the real archive.
func (g *generator) dailySummary(st domain.Station, year int) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"STATION", "DATE", "LATITUDE", "LONGITUDE", "ELEVATION", "NAME",
		"TEMP", "DEWP", "SLP", "WDSP", "MAX", "MIN", "PRCP",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC); t.Year() == year; t = t.AddDate(0, 0, 1) {
		temp := 50 + g.rng.Float64()*35
		row := []string{
			st.FileID,
			t.Format("2006-01-02"),
			formatCoord(st.Latitude),
			formatCoord(st.Longitude),
			strconv.FormatFloat(st.Elevation, 'f', 1, 64),
			st.Name,
			formatTenth(temp),
			orSentinel(g.rng, 10, "9999.9", formatTenth(temp-15-g.rng.Float64()*10)),
			orSentinel(g.rng, 8, "9999.9", formatTenth(1005+g.rng.Float64()*20)),
			orSentinel(g.rng, 12, "999.9", formatTenth(g.rng.Float64()*25)),
			formatTenth(temp + 5 + g.rng.Float64()*10),
			formatTenth(temp - 10 - g.rng.Float64()*10),
			orSentinel(g.rng, 3, "99.99", strconv.FormatFloat(g.rng.Float64()*1.2, 'f', 2, 64)),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// hourly renders the fixed-width hourly format, one observation every
// three hours. Measured fields are scaled by ten; -9999 marks a missing
// field.
func (g *generator) hourly(year int) []byte {
	var b strings.Builder
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	for t := start; t.Year() == year; t = t.Add(3 * time.Hour) {
		temp := 50 + g.rng.Intn(250)
		dewp := temp - 50 - g.rng.Intn(100)
		slp := 10080 + g.rng.Intn(200)
		wnddir := g.rng.Intn(36) * 10
		wndspd := g.rng.Intn(120)
		prcp1h := 0
		if g.rng.Intn(8) == 0 {
			prcp1h = g.rng.Intn(60)
		}
		if g.rng.Intn(15) == 0 {
			slp = -9999
		}
		fmt.Fprintf(&b, "%04d %02d %02d %02d%6d%6d%6d%6d%6d%6d%6d%6d\n",
			t.Year(), int(t.Month()), t.Day(), t.Hour(),
			temp, dewp, slp, wnddir, wndspd, g.rng.Intn(9), prcp1h, -9999)
	}
	return []byte(b.String())
}

// dailyNormals renders the long-format normals CSV over the reference
// year: one row per day and element.
func (g *generator) dailyNormals(spec registry.DatasetSpec, st domain.Station) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"STATION", "DATE", "ELEMENT", "VALUE", "MEAS_FLAG", "COMP_FLAG"}); err != nil {
		return nil, err
	}

	year := spec.NominalYear
	for t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC); t.Year() == year; t = t.AddDate(0, 0, 1) {
		for _, element := range spec.Elements {
			lo, hi := normalsElementRange(element)
			row := []string{
				st.ID,
				t.Format("01-02"),
				element,
				strconv.Itoa(lo + g.rng.Intn(hi-lo)),
				"P",
				"S",
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// normalsElementRange gives plausible bounds in the normals archive's
// native units (tenths of a degree Fahrenheit, hundredths of an inch).
func normalsElementRange(element string) (lo, hi int) {
	switch {
	case strings.Contains(element, "tmin"):
		return 350, 650
	case strings.Contains(element, "prcp"):
		return 0, 50
	default:
		return 600, 900
	}
}

// --- helpers ---

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatTenth(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// orSentinel returns the sentinel once in n draws, else the value.
func orSentinel(rng *rand.Rand, n int, sentinel, value string) string {
	if rng.Intn(n) == 0 {
		return sentinel
	}
	return value
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

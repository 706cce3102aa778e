// Package registry holds the immutable description of the climate archive:
// which datasets exist, where their files live, which station inventory
// lists them, and how their native units and sentinels map onto the
// canonical schema. Nothing outside this package hardcodes a URL, a unit
// factor, or a sentinel literal.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wxarchive/station-etl/internal/domain"
)

// FieldMapping is one row of a dataset's unit-conversion table. Conversion
// is affine: canonical = native*Scale + Offset. Sentinels are native values
// meaning "missing"; the normalizer maps them to the canonical missing
// marker, never to zero.
type FieldMapping struct {
	Native    string                `yaml:"native"`
	Canonical domain.CanonicalField `yaml:"canonical"`
	Scale     float64               `yaml:"scale"`
	Offset    float64               `yaml:"offset"`
	Sentinels []float64             `yaml:"sentinels"`
}

// InventorySpec locates one station inventory file. Format selects the
// inventory parser: "ghcnd" (fixed-width master list) or "isd" (CSV
// history).
type InventorySpec struct {
	URL    string `yaml:"url"`
	Format string `yaml:"format"`
}

// DatasetSpec describes one archive collection. URLTemplate and
// StagingTemplate expand {station}, {file}, and {year}; the staging
// template mirrors the archive layout so the raw cache stays
// human-navigable.
type DatasetSpec struct {
	Description     string         `yaml:"description"`
	URLTemplate     string         `yaml:"url_template"`
	StagingTemplate string         `yaml:"staging_template"`
	Compression     string         `yaml:"compression"` // "gzip" or empty
	Inventory       string         `yaml:"inventory"`
	Hourly          bool           `yaml:"hourly"`
	Yearless        bool           `yaml:"yearless"`
	NominalYear     int            `yaml:"nominal_year"`
	Elements        []string       `yaml:"elements"`
	Fields          []FieldMapping `yaml:"fields"`
}

// Registry is the full archive description plus the regional scope of a
// deployment (countries and year range). Treated as immutable once loaded.
type Registry struct {
	Countries     []string                       `yaml:"countries"`
	StartYear     int                            `yaml:"start_year"`
	EndYear       int                            `yaml:"end_year"`
	FIPSByCountry map[string]string              `yaml:"fips_by_country"`
	Inventories   map[string]InventorySpec       `yaml:"inventories"`
	Datasets      map[domain.Dataset]DatasetSpec `yaml:"datasets"`
}

// Load returns the built-in registry, overlaid from the YAML file at path
// when path is non-empty. Top-level fields in the file override the
// defaults; a dataset or inventory entry in the file replaces the default
// entry of the same name wholesale.
func Load(path string) (*Registry, error) {
	reg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read registry file: %w", err)
		}
		if err := yaml.Unmarshal(raw, reg); err != nil {
			return nil, fmt.Errorf("parse registry file: %w", err)
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return reg, nil
}

// Validate checks internal consistency: every dataset must reference a
// known inventory and map only canonical fields.
func (r *Registry) Validate() error {
	if len(r.Countries) == 0 {
		return fmt.Errorf("no countries configured")
	}
	if r.StartYear <= 0 || r.EndYear < r.StartYear {
		return fmt.Errorf("invalid year range %d..%d", r.StartYear, r.EndYear)
	}
	if len(r.Datasets) == 0 {
		return fmt.Errorf("no datasets configured")
	}

	canonical := make(map[domain.CanonicalField]bool, len(domain.CanonicalFields))
	for _, f := range domain.CanonicalFields {
		canonical[f] = true
	}

	for name, ds := range r.Datasets {
		if ds.URLTemplate == "" {
			return fmt.Errorf("dataset %s: empty url_template", name)
		}
		if ds.StagingTemplate == "" {
			return fmt.Errorf("dataset %s: empty staging_template", name)
		}
		if strings.HasPrefix(ds.StagingTemplate, "/") || strings.Contains(ds.StagingTemplate, "..") {
			return fmt.Errorf("dataset %s: staging_template must be a clean relative path", name)
		}
		if ds.Compression != "" && ds.Compression != "gzip" {
			return fmt.Errorf("dataset %s: unsupported compression %q", name, ds.Compression)
		}
		if _, ok := r.Inventories[ds.Inventory]; !ok {
			return fmt.Errorf("dataset %s: unknown inventory %q", name, ds.Inventory)
		}
		if ds.Yearless && ds.NominalYear == 0 {
			return fmt.Errorf("dataset %s: yearless dataset needs a nominal_year", name)
		}
		if len(ds.Fields) == 0 {
			return fmt.Errorf("dataset %s: empty conversion table", name)
		}
		for _, f := range ds.Fields {
			if !canonical[f.Canonical] {
				return fmt.Errorf("dataset %s: field %s maps to unknown canonical field %q", name, f.Native, f.Canonical)
			}
			if f.Scale == 0 {
				return fmt.Errorf("dataset %s: field %s has zero scale", name, f.Native)
			}
		}
	}
	return nil
}

// Dataset returns the spec for one dataset.
func (r *Registry) Dataset(name domain.Dataset) (DatasetSpec, error) {
	ds, ok := r.Datasets[name]
	if !ok {
		return DatasetSpec{}, fmt.Errorf("dataset %s not in registry", name)
	}
	return ds, nil
}

// DatasetNames returns the configured datasets in stable order.
func (r *Registry) DatasetNames() []domain.Dataset {
	names := make([]domain.Dataset, 0, len(r.Datasets))
	for name := range r.Datasets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// FIPSFor maps an archive country code to the code the integrated-surface
// inventory uses. Codes without an override map to themselves.
func (r *Registry) FIPSFor(country string) string {
	if fips, ok := r.FIPSByCountry[country]; ok {
		return fips
	}
	return country
}

// Years returns the years a dataset spans: the configured range, or just
// the nominal year for yearless datasets.
func (r *Registry) Years(ds DatasetSpec) []int {
	if ds.Yearless {
		return []int{ds.NominalYear}
	}
	years := make([]int, 0, r.EndYear-r.StartYear+1)
	for y := r.StartYear; y <= r.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// URLFor expands the dataset's URL template for one work unit.
func (ds DatasetSpec) URLFor(u domain.WorkUnit) string {
	return expand(ds.URLTemplate, u)
}

// StagingPathFor expands the dataset's staging-path template for one work
// unit. Units that expand to the same path share one staged payload; the
// per-station daily archive relies on this to download each station once
// for the whole year range.
func (ds DatasetSpec) StagingPathFor(u domain.WorkUnit) string {
	return expand(ds.StagingTemplate, u)
}

func expand(template string, u domain.WorkUnit) string {
	return strings.NewReplacer(
		"{station}", u.StationID,
		"{file}", u.FileID,
		"{year}", strconv.Itoa(u.Year),
	).Replace(template)
}

// Default is the built-in archive description: the public NCEI layout,
// scoped to southern Africa for the years 1981-2025.
func Default() *Registry {
	const (
		fToC       = 5.0 / 9.0
		fToCOffset = -160.0 / 9.0
		// Tenths of °F to °C: (v/10 - 32) * 5/9.
		tenthsFToC = 1.0 / 18.0
		inchesToMM = 25.4
		// Hundredths of inches to mm.
		centiInchToMM = 0.254
		knotsToMS     = 0.514444
		tenths        = 0.1
	)

	return &Registry{
		Countries: []string{"ZA", "MI", "MZ", "ZI", "AO", "CG", "TZ", "WA"},
		StartYear: 1981,
		EndYear:   2025,
		FIPSByCountry: map[string]string{
			"ZA": "SF",
			"CG": "CF",
		},
		Inventories: map[string]InventorySpec{
			"ghcnd": {
				URL:    "https://www.ncei.noaa.gov/pub/data/ghcn/daily/ghcnd-stations.txt",
				Format: "ghcnd",
			},
			"isd": {
				URL:    "https://www.ncei.noaa.gov/pub/data/noaa/isd-history.csv",
				Format: "isd",
			},
		},
		Datasets: map[domain.Dataset]DatasetSpec{
			domain.DatasetGHCND: {
				Description:     "daily observations, packed fixed-width, one gzipped file per station",
				URLTemplate:     "https://www.ncei.noaa.gov/pub/data/ghcn/daily/all/{station}.dly.gz",
				StagingTemplate: "ghcnd/{station}.dly.gz",
				Compression:     "gzip",
				Inventory:       "ghcnd",
				Elements:        []string{"TMAX", "TMIN", "PRCP"},
				Fields: []FieldMapping{
					{Native: "TMAX", Canonical: domain.FieldTmaxC, Scale: tenths, Sentinels: []float64{-9999}},
					{Native: "TMIN", Canonical: domain.FieldTminC, Scale: tenths, Sentinels: []float64{-9999}},
					{Native: "PRCP", Canonical: domain.FieldPrcpMM, Scale: tenths, Sentinels: []float64{-9999}},
				},
			},
			domain.DatasetGSOD: {
				Description:     "daily summaries, CSV with header, one file per station-year",
				URLTemplate:     "https://www.ncei.noaa.gov/data/global-summary-of-the-day/access/{year}/{file}.csv",
				StagingTemplate: "gsod/{year}/{file}.csv",
				Inventory:       "isd",
				Fields: []FieldMapping{
					{Native: "MAX", Canonical: domain.FieldTmaxC, Scale: fToC, Offset: fToCOffset, Sentinels: []float64{9999.9}},
					{Native: "MIN", Canonical: domain.FieldTminC, Scale: fToC, Offset: fToCOffset, Sentinels: []float64{9999.9}},
					{Native: "TEMP", Canonical: domain.FieldTempC, Scale: fToC, Offset: fToCOffset, Sentinels: []float64{9999.9}},
					{Native: "DEWP", Canonical: domain.FieldDewPointC, Scale: fToC, Offset: fToCOffset, Sentinels: []float64{9999.9}},
					{Native: "SLP", Canonical: domain.FieldPressureHPa, Scale: 1, Sentinels: []float64{9999.9}},
					{Native: "WDSP", Canonical: domain.FieldWindSpeedMS, Scale: knotsToMS, Sentinels: []float64{999.9}},
					{Native: "PRCP", Canonical: domain.FieldPrcpMM, Scale: inchesToMM, Sentinels: []float64{99.99}},
				},
			},
			domain.DatasetISDLite: {
				Description:     "hourly observations, fixed-width, one gzipped file per station-year",
				URLTemplate:     "https://www.ncei.noaa.gov/pub/data/noaa/isd-lite/{year}/{station}-{year}.gz",
				StagingTemplate: "isd_lite/{year}/{station}-{year}.gz",
				Compression:     "gzip",
				Inventory:       "isd",
				Hourly:          true,
				Fields: []FieldMapping{
					{Native: "TEMP", Canonical: domain.FieldTempC, Scale: tenths, Sentinels: []float64{-9999}},
					{Native: "DEWP", Canonical: domain.FieldDewPointC, Scale: tenths, Sentinels: []float64{-9999}},
					{Native: "SLP", Canonical: domain.FieldPressureHPa, Scale: tenths, Sentinels: []float64{-9999}},
					{Native: "WNDSPD", Canonical: domain.FieldWindSpeedMS, Scale: tenths, Sentinels: []float64{-9999}},
					{Native: "PRCP1H", Canonical: domain.FieldPrcpMM, Scale: tenths, Sentinels: []float64{-9999}},
				},
			},
			domain.DatasetNormalsDaily: {
				Description:     "daily climate normals 1991-2020, long-format CSV, one file per station",
				URLTemplate:     "https://www.ncei.noaa.gov/data/normals-daily/1991-2020/access/{station}.csv",
				StagingTemplate: "normals_daily/{station}.csv",
				Inventory:       "ghcnd",
				Yearless:        true,
				// Leap year at the end of the normals period, so Feb 29
				// normals survive calendar validation.
				NominalYear: 2020,
				Elements:    []string{"dly-tmax-normal", "dly-tmin-normal", "dly-prcp-normal"},
				Fields: []FieldMapping{
					{Native: "dly-tmax-normal", Canonical: domain.FieldTmaxC, Scale: tenthsFToC, Offset: fToCOffset, Sentinels: []float64{-9999}},
					{Native: "dly-tmin-normal", Canonical: domain.FieldTminC, Scale: tenthsFToC, Offset: fToCOffset, Sentinels: []float64{-9999}},
					{Native: "dly-prcp-normal", Canonical: domain.FieldPrcpMM, Scale: centiInchToMM, Sentinels: []float64{-9999}},
				},
			},
		},
	}
}

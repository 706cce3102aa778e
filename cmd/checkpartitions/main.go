// Command checkpartitions verifies the integrity of a processed partition
// tree: directory layout, canonical CSV schema, and row content. It is the
// check to run after a large ingestion pass, before handing the tree to
// downstream consumers.
//
// Usage:
//
//	go run ./cmd/checkpartitions -processed-dir data/processed
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// partition is one CSV file located in the tree, addressed by the path
// segments that name it.
type partition struct {
	path    string
	rel     string
	dataset domain.Dataset
	year    int
	valid   bool
}

func main() {
	processedDir := flag.String("processed-dir", "", "root of the processed partition tree (DATA_DIR/processed)")
	registryPath := flag.String("registry", "", "optional registry overlay file (the pipeline's REGISTRY_FILE)")
	flag.Parse()

	if *processedDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*processedDir, *registryPath); code != 0 {
		os.Exit(code)
	}
}

func run(root, registryPath string) int {
	reg, err := registry.Load(registryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load registry: %v\n", err)
		return 1
	}

	fmt.Println("=== Partition Integrity Check ===")
	fmt.Println()

	parts, err := collectPartitions(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: walk %s: %v\n", root, err)
		return 1
	}
	if len(parts) == 0 {
		fmt.Printf("no partitions found under %s\n", root)
		return 1
	}

	layout := checkLayout(reg, parts)
	schema := &phase{name: "Phase 2: Canonical Schema (headers)"}
	content := &phase{name: "Phase 3: Row Content (dates, order, values)"}

	rows := make(map[domain.Dataset]int)
	files := make(map[domain.Dataset]int)
	for i := range parts {
		if !parts[i].valid {
			continue
		}
		files[parts[i].dataset]++
		rows[parts[i].dataset] += checkFile(reg, &parts[i], schema, content)
	}

	phases := []*phase{layout, schema, content}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-46s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Partitions: %d\n", len(parts))
	for _, name := range reg.DatasetNames() {
		if files[name] == 0 {
			continue
		}
		fmt.Printf("  %-14s %5d files  %8d rows\n", name, files[name], rows[name])
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nCheck FAILED.")
	return 1
}

// --- Phase 1: Layout ---
// Every CSV must sit at dataset/country/station/year.csv with a dataset
// the registry knows.

func collectPartitions(root string) ([]partition, error) {
	var parts []partition
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".csv") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts = append(parts, partition{path: path, rel: filepath.ToSlash(rel)})
		return nil
	})
	sort.Slice(parts, func(i, j int) bool { return parts[i].rel < parts[j].rel })
	return parts, err
}

func checkLayout(reg *registry.Registry, parts []partition) *phase {
	p := &phase{name: "Phase 1: Tree Layout (paths)"}

	for i := range parts {
		segs := strings.Split(parts[i].rel, "/")
		if len(segs) != 4 {
			p.errorf("%s: expected dataset/country/station/year.csv", parts[i].rel)
			continue
		}
		name := domain.Dataset(segs[0])
		if _, err := reg.Dataset(name); err != nil {
			p.errorf("%s: unknown dataset %q", parts[i].rel, segs[0])
			continue
		}
		year, err := strconv.Atoi(strings.TrimSuffix(segs[3], ".csv"))
		if err != nil {
			p.errorf("%s: file name is not a year", parts[i].rel)
			continue
		}
		parts[i].dataset = name
		parts[i].year = year
		parts[i].valid = true
	}
	return p
}

// --- Phases 2 and 3: Schema and Content ---

func expectedHeader() []string {
	header := make([]string, 0, 1+len(domain.CanonicalFields))
	header = append(header, "date")
	for _, f := range domain.CanonicalFields {
		header = append(header, string(f))
	}
	return header
}

// checkFile validates one partition and returns its data row count.
func checkFile(reg *registry.Registry, part *partition, schema, content *phase) int {
	spec, err := reg.Dataset(part.dataset)
	if err != nil {
		schema.errorf("%s: %v", part.rel, err)
		return 0
	}

	f, err := os.Open(part.path)
	if err != nil {
		schema.errorf("%s: %v", part.rel, err)
		return 0
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		schema.errorf("%s: %v", part.rel, err)
		return 0
	}
	if len(rows) == 0 {
		schema.errorf("%s: empty file, expected at least a header", part.rel)
		return 0
	}

	want := expectedHeader()
	if !equalRow(rows[0], want) {
		schema.errorf("%s: header %v, expected %v", part.rel, rows[0], want)
		return 0
	}

	prev := ""
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != len(want) {
			content.errorf("%s line %d: %d columns, expected %d", part.rel, line, len(row), len(want))
			continue
		}
		checkTimestamp(content, part, spec.Hourly, row[0], line, prev)
		prev = row[0]

		for j, cell := range row[1:] {
			if cell == "" {
				continue
			}
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				content.errorf("%s line %d: non-numeric %s %q", part.rel, line, want[j+1], cell)
			}
		}
	}
	return len(rows) - 1
}

func checkTimestamp(content *phase, part *partition, hourly bool, cell string, line int, prev string) {
	layout := "2006-01-02"
	if hourly {
		layout = time.RFC3339
	}
	t, err := time.Parse(layout, cell)
	if err != nil {
		content.errorf("%s line %d: bad timestamp %q", part.rel, line, cell)
		return
	}
	if t.UTC().Year() != part.year {
		content.errorf("%s line %d: timestamp %s outside partition year %d", part.rel, line, cell, part.year)
	}
	// Zero-padded timestamps order lexicographically, so a string compare
	// covers both cadences.
	if prev != "" && cell <= prev {
		content.errorf("%s line %d: timestamp %s not after %s", part.rel, line, cell, prev)
	}
}

func equalRow(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

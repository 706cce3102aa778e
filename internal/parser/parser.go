// Package parser converts raw archive payloads into observation records in
// native units. One variant per dataset format, all behind the same
// contract: structural defects (truncated fixed-width lines, missing CSV
// headers, non-numeric text where a number is required) are reported as
// domain.ParseError and fail the work unit; native missing sentinels are
// data, not defects, and pass through untouched for the normalizer.
package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
)

// Parser turns one decompressed payload into observation records.
type Parser interface {
	Parse(payload []byte) ([]domain.ObservationRecord, error)
}

// ForDataset returns the parser variant for a dataset, configured from its
// registry entry.
func ForDataset(name domain.Dataset, spec registry.DatasetSpec) (Parser, error) {
	switch name {
	case domain.DatasetGHCND:
		return NewGHCND(spec.Elements), nil
	case domain.DatasetGSOD:
		return NewGSOD(nativeFields(spec)), nil
	case domain.DatasetISDLite:
		return NewISDLite(), nil
	case domain.DatasetNormalsDaily:
		return NewNormalsDaily(spec.Elements, spec.NominalYear), nil
	}
	return nil, fmt.Errorf("no parser for dataset %s", name)
}

func nativeFields(spec registry.DatasetSpec) []string {
	names := make([]string, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		names = append(names, f.Native)
	}
	return names
}

func splitLines(payload []byte) []string {
	lines := strings.Split(string(payload), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func sortByTime(recs []domain.ObservationRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Time.Key() < recs[j].Time.Key()
	})
}

package stations_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
	"github.com/wxarchive/station-etl/internal/stations"
)

type fakeFetcher struct {
	payloads map[string][]byte
	err      error
	calls    int
}

func (f *fakeFetcher) FetchURL(_ context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	payload, ok := f.payloads[url]
	if !ok {
		return nil, fmt.Errorf("unexpected url %s", url)
	}
	return payload, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ghcndInvLine renders one master-list line: ID, latitude, longitude,
// elevation, state, and name in their fixed columns.
func ghcndInvLine(id string, lat, lon, elev float64, state, name string) string {
	return fmt.Sprintf("%-11s %8.4f %9.4f %6.1f %-2s %-30s", id, lat, lon, elev, state, name)
}

func ghcndMasterList() []byte {
	lines := ghcndInvLine("ZA000068262", -25.7333, 28.1833, 1330.0, "", "PRETORIA") + " GSN     68262\n" +
		ghcndInvLine("USW00094728", 40.7789, -73.9692, 39.6, "NY", "NEW YORK CNTRL PK TWR") + "\n" +
		"junk\n" +
		ghcndInvLine("MZ000067297", -19.8333, 34.85, 16.0, "", "BEIRA") + "\n"
	return []byte(lines)
}

func newService(t *testing.T, dir string, f *fakeFetcher) (*stations.Service, *registry.Registry) {
	t.Helper()
	reg := registry.Default()
	return stations.NewService(dir, reg, f, testLogger()), reg
}

func TestStationsDownloadsAndFiltersDailyInventory(t *testing.T) {
	dir := t.TempDir()
	reg := registry.Default()
	f := &fakeFetcher{payloads: map[string][]byte{
		reg.Inventories["ghcnd"].URL: ghcndMasterList(),
	}}
	svc := stations.NewService(dir, reg, f, testLogger())

	list, err := svc.Stations(context.Background(), domain.DatasetGHCND)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "ZA000068262", list[0].ID)
	assert.Equal(t, "ZA000068262", list[0].FileID)
	assert.Equal(t, "ZA", list[0].Country)
	assert.Equal(t, "PRETORIA", list[0].Name)
	assert.InDelta(t, -25.7333, list[0].Latitude, 1e-9)
	assert.InDelta(t, 28.1833, list[0].Longitude, 1e-9)
	assert.InDelta(t, 1330.0, list[0].Elevation, 1e-9)
	assert.Equal(t, "", list[0].State)

	assert.Equal(t, "MZ000067297", list[1].ID)
	assert.Equal(t, "MZ", list[1].Country)
}

func TestStationsPersistsListForLaterRuns(t *testing.T) {
	dir := t.TempDir()
	reg := registry.Default()
	f := &fakeFetcher{payloads: map[string][]byte{
		reg.Inventories["ghcnd"].URL: ghcndMasterList(),
	}}
	svc := stations.NewService(dir, reg, f, testLogger())

	first, err := svc.Stations(context.Background(), domain.DatasetGHCND)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "ghcnd_stations.csv"))

	// A fresh service with a failing fetcher must come up from the
	// persisted list alone.
	broken := &fakeFetcher{err: errors.New("offline")}
	svc2, _ := newService(t, dir, broken)
	second, err := svc2.Stations(context.Background(), domain.DatasetGHCND)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Zero(t, broken.calls)
}

func TestStationsCachesInMemory(t *testing.T) {
	dir := t.TempDir()
	reg := registry.Default()
	f := &fakeFetcher{payloads: map[string][]byte{
		reg.Inventories["ghcnd"].URL: ghcndMasterList(),
	}}
	svc := stations.NewService(dir, reg, f, testLogger())

	_, err := svc.Stations(context.Background(), domain.DatasetGHCND)
	require.NoError(t, err)
	_, err = svc.Stations(context.Background(), domain.DatasetGHCND)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestRefreshRedownloadsInventory(t *testing.T) {
	dir := t.TempDir()
	reg := registry.Default()
	f := &fakeFetcher{payloads: map[string][]byte{
		reg.Inventories["ghcnd"].URL: ghcndMasterList(),
	}}
	svc := stations.NewService(dir, reg, f, testLogger())

	_, err := svc.Stations(context.Background(), domain.DatasetGHCND)
	require.NoError(t, err)

	f.payloads[reg.Inventories["ghcnd"].URL] = []byte(
		ghcndInvLine("ZA000068263", -26.5, 29.98, 1679.0, "", "BETHAL") + "\n")
	list, err := svc.Refresh(context.Background(), "ghcnd")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ZA000068263", list[0].ID)
	assert.Equal(t, 2, f.calls)

	// The persisted list follows the refresh.
	svc2, _ := newService(t, dir, &fakeFetcher{err: errors.New("offline")})
	reloaded, err := svc2.Stations(context.Background(), domain.DatasetGHCND)
	require.NoError(t, err)
	assert.Equal(t, list, reloaded)
}

func TestStationsSharedInventoryAcrossHourlyAndSummaryDatasets(t *testing.T) {
	dir := t.TempDir()
	reg := registry.Default()
	history := []byte(`"USAF","WBAN","STATION NAME","CTRY","STATE","ICAO","LAT","LON","ELEV(M)","BEGIN","END"
"686160","99999","BLOEMFONTEIN AIRPORT","SF","","FABL","-29.100","+26.302","+1354.0","19400101","20250801"
`)
	f := &fakeFetcher{payloads: map[string][]byte{
		reg.Inventories["isd"].URL: history,
	}}
	svc := stations.NewService(dir, reg, f, testLogger())

	fromGSOD, err := svc.Stations(context.Background(), domain.DatasetGSOD)
	require.NoError(t, err)
	fromHourly, err := svc.Stations(context.Background(), domain.DatasetISDLite)
	require.NoError(t, err)

	assert.Equal(t, fromGSOD, fromHourly)
	assert.Equal(t, 1, f.calls, "both datasets resolve through one history download")
}

func TestStationsSurfacesFetchErrors(t *testing.T) {
	svc, _ := newService(t, t.TempDir(), &fakeFetcher{err: errors.New("boom")})
	_, err := svc.Stations(context.Background(), domain.DatasetGHCND)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch inventory")
}

func TestStationsRejectsCorruptPersistedList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ghcnd_stations.csv"), []byte("not,a,list\n"), 0o644))

	svc, _ := newService(t, dir, &fakeFetcher{})
	_, err := svc.Stations(context.Background(), domain.DatasetGHCND)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load station list")
}

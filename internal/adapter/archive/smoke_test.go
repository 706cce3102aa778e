//go:build archive

package archive

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/observability"
	"github.com/wxarchive/station-etl/internal/registry"
)

// These tests hit the real NCEI archive over the network.
// Run with: go test -tags=archive ./internal/adapter/archive/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(registry.Default(), 60*time.Second, 3, 500*time.Millisecond,
		"station-etl/1.0", observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Cape Town International, a major airport with daily summaries going back
// decades.
func capeTownUnit(year int) domain.WorkUnit {
	return domain.WorkUnit{
		Dataset:   domain.DatasetGSOD,
		Country:   "ZA",
		StationID: "688160-99999",
		FileID:    "68816099999",
		Year:      year,
	}
}

func TestSmoke_FetchDailySummaries(t *testing.T) {
	c := smokeClient(t)

	payload, err := c.Fetch(context.Background(), capeTownUnit(1994))
	require.NoError(t, err)

	body := string(payload)
	assert.Contains(t, body, "STATION")
	assert.Contains(t, body, "DATE")
	lines := strings.Count(body, "\n")
	assert.Greater(t, lines, 100, "a full station-year should carry hundreds of daily rows")
}

func TestSmoke_MissingStationIsNotAvailable(t *testing.T) {
	c := smokeClient(t)

	unit := capeTownUnit(1994)
	unit.StationID = "000000-00000"
	unit.FileID = "00000000000"

	_, err := c.Fetch(context.Background(), unit)
	require.Error(t, err)
	assert.True(t, domain.IsNotAvailable(err), "absent archive files should be reported as not available, got %v", err)
}

type countingFetcher struct {
	inner Fetcher
	calls atomic.Int64
}

func (f *countingFetcher) Fetch(ctx context.Context, unit domain.WorkUnit) ([]byte, error) {
	f.calls.Add(1)
	return f.inner.Fetch(ctx, unit)
}

func TestSmoke_StagingReusesDownloads(t *testing.T) {
	reg := registry.Default()
	origin := &countingFetcher{inner: smokeClient(t)}
	store := NewStore(t.TempDir())
	cached := NewCachingFetcher(origin, store, reg, false,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	unit := capeTownUnit(1994)

	// First call: staging miss, real download.
	first, err := cached.Fetch(context.Background(), unit)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	spec, err := reg.Dataset(unit.Dataset)
	require.NoError(t, err)
	assert.FileExists(t, store.Path(spec.StagingPathFor(unit)))

	// Second call: served from disk, no network.
	second, err := cached.Fetch(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, origin.calls.Load())
}

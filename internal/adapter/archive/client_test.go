package archive_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxarchive/station-etl/internal/adapter/archive"
	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/observability"
	"github.com/wxarchive/station-etl/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// regPointingAt rewires the daily-summary URL template at a test server.
func regPointingAt(base string) *registry.Registry {
	reg := registry.Default()
	spec := reg.Datasets[domain.DatasetGSOD]
	spec.URLTemplate = base + "/access/{year}/{file}.csv"
	reg.Datasets[domain.DatasetGSOD] = spec
	return reg
}

func gsodUnit() domain.WorkUnit {
	return domain.WorkUnit{
		Dataset:   domain.DatasetGSOD,
		Country:   "ZA",
		StationID: "686160-99999",
		FileID:    "68616099999",
		Year:      1994,
	}
}

func newTestClient(reg *registry.Registry, attempts int) *archive.Client {
	return archive.NewClient(reg, 5*time.Second, attempts, time.Millisecond, "station-etl-test/1.0",
		observability.NewMetricsForTesting(), testLogger())
}

func TestClientFetchReturnsPayload(t *testing.T) {
	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		io.WriteString(w, "STATION,DATE\n")
	}))
	defer srv.Close()

	c := newTestClient(regPointingAt(srv.URL), 3)
	payload, err := c.Fetch(context.Background(), gsodUnit())
	require.NoError(t, err)

	assert.Equal(t, "STATION,DATE\n", string(payload))
	assert.Equal(t, "/access/1994/68616099999.csv", gotPath)
	assert.Equal(t, "station-etl-test/1.0", gotAgent)
}

func TestClientFetchMissingFileIsNotAvailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(regPointingAt(srv.URL), 3)
	_, err := c.Fetch(context.Background(), gsodUnit())

	require.Error(t, err)
	assert.True(t, domain.IsNotAvailable(err))
	assert.Equal(t, int32(1), hits.Load(), "missing files must not be retried")
}

func TestClientFetchEmptyBodyIsNotAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(regPointingAt(srv.URL), 3)
	_, err := c.Fetch(context.Background(), gsodUnit())

	require.Error(t, err)
	assert.True(t, domain.IsNotAvailable(err))
}

func TestClientFetchRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "payload")
	}))
	defer srv.Close()

	c := newTestClient(regPointingAt(srv.URL), 3)
	payload, err := c.Fetch(context.Background(), gsodUnit())

	require.NoError(t, err)
	assert.Equal(t, "payload", string(payload))
	assert.Equal(t, int32(3), hits.Load())
}

func TestClientFetchGivesUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(regPointingAt(srv.URL), 3)
	_, err := c.Fetch(context.Background(), gsodUnit())

	require.Error(t, err)
	var transient *domain.TransientError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, 3, transient.Attempts)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.Equal(t, int32(3), hits.Load())
}

func TestClientFetchURLForInventories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "inventory body")
	}))
	defer srv.Close()

	c := newTestClient(registry.Default(), 3)
	payload, err := c.FetchURL(context.Background(), srv.URL+"/pub/data/inventory.txt")
	require.NoError(t, err)
	assert.Equal(t, "inventory body", string(payload))
}

func TestClientFetchStopsWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := archive.NewClient(regPointingAt(srv.URL), 5*time.Second, 3, time.Hour, "station-etl-test/1.0",
		observability.NewMetricsForTesting(), testLogger())
	_, err := c.Fetch(ctx, gsodUnit())
	require.Error(t, err)
}

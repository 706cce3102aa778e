package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/observability"
	"github.com/wxarchive/station-etl/internal/registry"
)

// Store is the disk staging area. Payloads are kept exactly as fetched,
// laid out under root the way the archive lays them out.
type Store struct {
	root string
}

// NewStore creates a staging store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Path resolves a staging-relative path to its location on disk.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Get returns the staged payload for a path, with ok=false when nothing is
// staged there.
func (s *Store) Get(rel string) ([]byte, bool, error) {
	payload, err := os.ReadFile(s.Path(rel))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Put stages a payload, replacing any previous copy. The write goes
// through a unique temp file and a rename so concurrent readers never see
// a partial payload.
func (s *Store) Put(rel string, payload []byte) error {
	full := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), filepath.Base(full)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), full)
}

// CachingFetcher fronts another Fetcher with the staging store. Units that
// expand to the same staging path share one download, which is what keeps
// the per-station daily archive from being fetched once per year.
//
// A CachingFetcher is built per run. force bypasses the staged copy the
// first time each path is seen in the run, so a forced run refreshes every
// payload exactly once. Units the archive reported missing are remembered
// for the rest of the run.
type CachingFetcher struct {
	inner   Fetcher
	store   *Store
	reg     *registry.Registry
	force   bool
	metrics *observability.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	refreshed map[string]bool
	missing   map[string]bool
}

// NewCachingFetcher creates a staging decorator around a fetcher.
func NewCachingFetcher(inner Fetcher, store *Store, reg *registry.Registry, force bool, metrics *observability.Metrics, logger *slog.Logger) *CachingFetcher {
	return &CachingFetcher{
		inner:     inner,
		store:     store,
		reg:       reg,
		force:     force,
		metrics:   metrics,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
		refreshed: make(map[string]bool),
		missing:   make(map[string]bool),
	}
}

func (f *CachingFetcher) Fetch(ctx context.Context, unit domain.WorkUnit) ([]byte, error) {
	spec, err := f.reg.Dataset(unit.Dataset)
	if err != nil {
		return nil, err
	}
	rel := spec.StagingPathFor(unit)
	dataset := string(unit.Dataset)

	// One download per staging path, even with concurrent workers.
	lock := f.lockFor(rel)
	lock.Lock()
	defer lock.Unlock()

	if f.seenMissing(rel) {
		return nil, &domain.NotAvailableError{Source: rel}
	}

	if !f.force || f.wasRefreshed(rel) {
		payload, ok, err := f.store.Get(rel)
		if err != nil {
			return nil, fmt.Errorf("staging read %s: %w", rel, err)
		}
		if ok {
			f.metrics.StagingCache.WithLabelValues(dataset, "hit").Inc()
			return payload, nil
		}
	}
	f.metrics.StagingCache.WithLabelValues(dataset, "miss").Inc()

	payload, err := f.inner.Fetch(ctx, unit)
	if err != nil {
		if domain.IsNotAvailable(err) {
			f.markMissing(rel)
		}
		return nil, err
	}

	if err := f.store.Put(rel, payload); err != nil {
		return nil, fmt.Errorf("stage %s: %w", rel, err)
	}
	f.markRefreshed(rel)
	f.logger.Debug("payload staged", "path", rel, "bytes", len(payload))
	return payload, nil
}

func (f *CachingFetcher) lockFor(rel string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.locks[rel]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[rel] = lock
	}
	return lock
}

func (f *CachingFetcher) wasRefreshed(rel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshed[rel]
}

func (f *CachingFetcher) markRefreshed(rel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed[rel] = true
}

func (f *CachingFetcher) seenMissing(rel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.missing[rel]
}

func (f *CachingFetcher) markMissing(rel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[rel] = true
}

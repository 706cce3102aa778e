// Package stations discovers which archive stations belong to the
// configured countries. Inventories are downloaded once, filtered, and
// persisted as regional station lists under the data dir; later runs load
// the persisted list instead of refetching the inventory.
package stations

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
)

// InventoryFetcher retrieves one inventory file by URL.
type InventoryFetcher interface {
	FetchURL(ctx context.Context, url string) ([]byte, error)
}

// Service resolves a dataset to its regional station list. Safe for
// concurrent use.
type Service struct {
	dir     string
	reg     *registry.Registry
	fetcher InventoryFetcher
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string][]domain.Station
}

// NewService stores persisted lists under dir.
func NewService(dir string, reg *registry.Registry, fetcher InventoryFetcher, logger *slog.Logger) *Service {
	return &Service{
		dir:     dir,
		reg:     reg,
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string][]domain.Station),
	}
}

// Stations returns the regional station list for a dataset: from memory,
// from the persisted list, or by downloading and filtering the inventory.
func (s *Service) Stations(ctx context.Context, name domain.Dataset) ([]domain.Station, error) {
	spec, err := s.reg.Dataset(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[spec.Inventory]; ok {
		return cached, nil
	}

	path := s.listPath(spec.Inventory)
	if list, err := loadList(path); err == nil {
		s.logger.Debug("station list loaded", "inventory", spec.Inventory, "stations", len(list))
		s.cache[spec.Inventory] = list
		return list, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("load station list %s: %w", path, err)
	}

	return s.refreshLocked(ctx, spec.Inventory)
}

// Refresh redownloads one inventory and rewrites the persisted list,
// regardless of what is already on disk.
func (s *Service) Refresh(ctx context.Context, inventory string) ([]domain.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, inventory)
}

func (s *Service) refreshLocked(ctx context.Context, inventory string) ([]domain.Station, error) {
	inv, ok := s.reg.Inventories[inventory]
	if !ok {
		return nil, fmt.Errorf("unknown inventory %q", inventory)
	}

	payload, err := s.fetcher.FetchURL(ctx, inv.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch inventory %s: %w", inventory, err)
	}

	var list []domain.Station
	switch inv.Format {
	case "ghcnd":
		list, err = parseGHCNDInventory(payload, s.reg.Countries)
	case "isd":
		list, err = parseISDInventory(payload, s.reg)
	default:
		return nil, fmt.Errorf("inventory %s: unsupported format %q", inventory, inv.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", inventory, err)
	}

	path := s.listPath(inventory)
	if err := SaveList(path, list); err != nil {
		return nil, fmt.Errorf("persist station list %s: %w", path, err)
	}
	s.logger.Info("station inventory refreshed", "inventory", inventory, "stations", len(list))

	s.cache[inventory] = list
	return list, nil
}

func (s *Service) listPath(inventory string) string {
	return ListPath(s.dir, inventory)
}

package archive

import (
	"context"
	"log/slog"

	"github.com/wxarchive/station-etl/internal/domain"
)

// Fallback tries a primary Fetcher and falls through to a secondary when
// the primary misses or fails. It lets a nearby object-store mirror serve
// most payloads while the public archive stays the source of truth.
type Fallback struct {
	primary   Fetcher
	secondary Fetcher
	logger    *slog.Logger
}

// NewFallback chains two fetchers.
func NewFallback(primary, secondary Fetcher, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Fetch(ctx context.Context, unit domain.WorkUnit) ([]byte, error) {
	payload, err := f.primary.Fetch(ctx, unit)
	if err == nil {
		return payload, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if !domain.IsNotAvailable(err) {
		// Mirror trouble should not fail the unit while the archive can
		// still answer.
		f.logger.Warn("primary fetch failed, trying secondary", "unit", unit.String(), "error", err)
	}
	return f.secondary.Fetch(ctx, unit)
}

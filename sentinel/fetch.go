package sentinel

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mangrove-composite/raster"
)

// Loader reads scene bands onto a grid.
type Loader interface {
	Load(ctx context.Context, s *Scene, g raster.Grid, bands []string) (*raster.Image, error)
}

// LoadAll loads every scene in parallel, at most limit at a time. Results keep the scene order.
// The first error cancels the remaining loads.
func LoadAll(pctx context.Context, l Loader, scenes []*Scene, g raster.Grid, bands []string, limit int) ([]*raster.Image, error) {
	if limit <= 0 {
		limit = 1
	}
	eg, ctx := errgroup.WithContext(pctx)
	eg.SetLimit(limit)

	out := make([]*raster.Image, len(scenes))
	for i, s := range scenes {
		i, s := i, s
		eg.Go(func() error {
			t := time.Now()
			img, err := l.Load(ctx, s, g, bands)
			if err != nil {
				return err
			}
			log.Debugf("Loaded scene %q in %v", s.ID, time.Since(t))
			out[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

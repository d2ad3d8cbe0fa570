package scenecache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"mangrove-composite/raster"
	"mangrove-composite/sentinel"
)

// Archive is the catalog being cached.
type Archive interface {
	Find(ctx context.Context, q *sentinel.Query) ([]*sentinel.Scene, error)
	Load(ctx context.Context, s *sentinel.Scene, g raster.Grid, bands []string) (*raster.Image, error)
}

type cacheKey struct {
	Collection    string    `json:"collection"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	MaxCloudCover float64   `json:"max_cloud_cover"`
}

// MultiCache wraps an archive and caches searches per date range, collection and threshold.
// Results cached for a larger bound are reused for any AOI inside it, after re-filtering.
type MultiCache struct {
	Archive Archive

	m map[string]*SceneCache
	l sync.Mutex
}

func NewMulti(a Archive) *MultiCache {
	return &MultiCache{
		Archive: a,
		m:       make(map[string]*SceneCache),
	}
}

func (c *MultiCache) For(k interface{}) *SceneCache {
	j, err := json.Marshal(k)
	if err != nil {
		panic(err)
	}
	key := string(j)
	c.l.Lock()
	defer c.l.Unlock()
	r, ok := c.m[key]
	if ok {
		return r
	}
	log.Debugf("Building new scene cache for %v", key)
	r = New()
	c.m[key] = r
	return r
}

func (c *MultiCache) Find(ctx context.Context, q *sentinel.Query) ([]*sentinel.Scene, error) {
	cache := c.For(cacheKey{Collection: q.Collection, Start: q.Start, End: q.End, MaxCloudCover: q.MaxCloudCover})
	bound := q.AOI.Bound()
	if scenes, ok := cache.Get(bound); ok {
		log.Debugf("Scene cache hit for %v", bound)
		var out []*sentinel.Scene
		for _, s := range scenes {
			if q.Matches(s) {
				out = append(out, s)
			}
		}
		return out, nil
	}
	scenes, err := c.Archive.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	cache.Put(bound, scenes)
	return scenes, nil
}

func (c *MultiCache) Load(ctx context.Context, s *sentinel.Scene, g raster.Grid, bands []string) (*raster.Image, error) {
	return c.Archive.Load(ctx, s, g, bands)
}

package scenecache

import (
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"mangrove-composite/sentinel"
)

type cachedData struct {
	Scenes []*sentinel.Scene
	Bound  orb.Bound
	Added  time.Time
}

const (
	CacheHistory = 30 * time.Minute
)

// SceneCache holds search results for one date range and threshold, keyed by the searched bound.
type SceneCache struct {
	// TODO replace the linear scan with an rtree once searches cover many AOIs.
	cache []*cachedData

	history time.Duration
	now     func() time.Time

	mu sync.Mutex
}

func New() *SceneCache {
	return &SceneCache{history: CacheHistory, now: time.Now}
}

func (c *SceneCache) get(bound orb.Bound) ([]*sentinel.Scene, bool) {
	trunc := 0
	for i, d := range c.cache {
		if c.now().Sub(d.Added) > c.history {
			trunc = i + 1
			continue
		}
		if d.Bound.Contains(bound.Min) && d.Bound.Contains(bound.Max) {
			return d.Scenes, true
		}
	}
	c.cache = c.cache[trunc:]
	return nil, false
}

// Get returns copies of the cached scenes whose search bound contains bound.
func (c *SceneCache) Get(bound orb.Bound) ([]*sentinel.Scene, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scenes, ok := c.get(bound)
	if !ok {
		return nil, false
	}
	return cloneScenes(scenes), true
}

func (c *SceneCache) Put(bound orb.Bound, scenes []*sentinel.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = append(c.cache, &cachedData{
		Bound:  bound,
		Scenes: cloneScenes(scenes),
		Added:  c.now(),
	})
	log.Debugf("Scene cache has %d entries", len(c.cache))
}

func (c *SceneCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func cloneScenes(in []*sentinel.Scene) []*sentinel.Scene {
	out := make([]*sentinel.Scene, 0, len(in))
	for _, s := range in {
		cp := &sentinel.Scene{}
		if err := copier.Copy(cp, s); err != nil {
			log.Errorf("copy scene %q: %v", s.ID, err)
			out = append(out, s)
			continue
		}
		if s.Properties != nil {
			p := *s.Properties
			cp.Properties = &p
		}
		cp.Assets = make(map[string]sentinel.Asset, len(s.Assets))
		for k, v := range s.Assets {
			cp.Assets[k] = v
		}
		out = append(out, cp)
	}
	return out
}

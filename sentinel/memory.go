package sentinel

import (
	"context"
	"fmt"
	"sync"

	"mangrove-composite/raster"
)

// Memory is an in-process archive. Scene pixels are resampled onto the requested grid.
type Memory struct {
	Scenes []*Scene
	Images map[string]*raster.Image

	mu       sync.Mutex
	searches int
}

func NewMemory() *Memory {
	return &Memory{Images: make(map[string]*raster.Image)}
}

// Add registers a scene and its pixels.
func (m *Memory) Add(s *Scene, img *raster.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scenes = append(m.Scenes, s)
	m.Images[s.ID] = img
}

func (m *Memory) Find(ctx context.Context, q *Query) ([]*Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	var out []*Scene
	for _, s := range m.Scenes {
		if q.Matches(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Searches returns how many times Find was called.
func (m *Memory) Searches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searches
}

func (m *Memory) Load(ctx context.Context, s *Scene, g raster.Grid, bands []string) (*raster.Image, error) {
	m.mu.Lock()
	img, ok := m.Images[s.ID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no pixels for scene %q", s.ID)
	}
	sel, err := img.Select(bands...)
	if err != nil {
		return nil, err
	}
	return Harmonize(s, sel.Resample(g)), nil
}

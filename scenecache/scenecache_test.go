package scenecache

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrove-composite/sentinel"
)

func testScene(id string) *sentinel.Scene {
	cloud := 5.0
	return &sentinel.Scene{
		ID:         id,
		Collection: sentinel.DefaultCollection,
		Geometry:   geojson.NewGeometry(orb.Polygon{{{99, -2}, {101, -2}, {101, 0}, {99, 0}, {99, -2}}}),
		Properties: &sentinel.Properties{Datetime: time.Date(2019, 6, 1, 3, 0, 0, 0, time.UTC), CloudCover: &cloud},
		Assets:     map[string]sentinel.Asset{"nir": {Href: "a.tif"}},
	}
}

func TestSceneCacheContainment(t *testing.T) {
	c := New()
	big := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	c.Put(big, []*sentinel.Scene{testScene("a")})

	got, ok := c.Get(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{2, 2}})
	require.True(t, ok)
	assert.Equal(t, "a", got[0].ID)

	_, ok = c.Get(orb.Bound{Min: orb.Point{9, 9}, Max: orb.Point{11, 11}})
	assert.False(t, ok)
}

func TestSceneCacheReturnsCopies(t *testing.T) {
	c := New()
	b := orb.Bound{Max: orb.Point{1, 1}}
	c.Put(b, []*sentinel.Scene{testScene("a")})

	got, _ := c.Get(b)
	got[0].ID = "mutated"
	got[0].Assets["nir"] = sentinel.Asset{Href: "other.tif"}

	again, _ := c.Get(b)
	assert.Equal(t, "a", again[0].ID)
	assert.Equal(t, "a.tif", again[0].Assets["nir"].Href)
}

func TestSceneCacheExpiry(t *testing.T) {
	c := New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	b := orb.Bound{Max: orb.Point{1, 1}}
	c.Put(b, []*sentinel.Scene{testScene("a")})

	now = now.Add(CacheHistory + time.Second)
	_, ok := c.Get(b)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMultiCacheFind(t *testing.T) {
	mem := sentinel.NewMemory()
	mem.Add(testScene("a"), nil)
	mc := NewMulti(mem)

	start, end, err := sentinel.DateRange("2019-01-01", "2019-12-31")
	require.NoError(t, err)
	q := &sentinel.Query{
		Collection:    sentinel.DefaultCollection,
		AOI:           orb.Polygon{{{100, -1}, {100.5, -1}, {100.5, -0.5}, {100, -0.5}, {100, -1}}},
		Start:         start,
		End:           end,
		MaxCloudCover: 30,
	}

	for i := 0; i < 3; i++ {
		scenes, err := mc.Find(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, scenes, 1)
	}
	assert.Equal(t, 1, mem.Searches())

	other := *q
	other.MaxCloudCover = 1
	scenes, err := mc.Find(context.Background(), &other)
	require.NoError(t, err)
	assert.Empty(t, scenes)
	assert.Equal(t, 2, mem.Searches())
}

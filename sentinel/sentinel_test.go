package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrove-composite/raster"
)

var aoi = orb.Polygon{{{100, -1}, {100.01, -1}, {100.01, -0.99}, {100, -0.99}, {100, -1}}}

func cc(v float64) *float64 { return &v }

func scene(id string, date string, cloud float64) *Scene {
	dt, err := time.Parse(time.RFC3339, date)
	if err != nil {
		panic(err)
	}
	return &Scene{
		ID:         id,
		Collection: DefaultCollection,
		Geometry:   geojson.NewGeometry(orb.Polygon{{{99, -2}, {101, -2}, {101, 0}, {99, 0}, {99, -2}}}),
		Properties: &Properties{Datetime: dt, CloudCover: cc(cloud)},
	}
}

func yearQuery(t *testing.T) *Query {
	start, end, err := DateRange("2019-01-01", "2019-12-31")
	require.NoError(t, err)
	return &Query{Collection: DefaultCollection, AOI: aoi, Start: start, End: end, MaxCloudCover: 30}
}

func TestDateRange(t *testing.T) {
	start, end, err := DateRange("2019-01-01", "2019-12-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = DateRange("2019-13-01", "2019-12-31")
	assert.Error(t, err)
	_, _, err = DateRange("2019-12-31", "2019-01-01")
	assert.Error(t, err)
}

func TestQueryMatchesCloudBoundary(t *testing.T) {
	q := yearQuery(t)
	assert.False(t, q.Matches(scene("a", "2019-06-01T03:00:00Z", 30)))
	assert.True(t, q.Matches(scene("b", "2019-06-01T03:00:00Z", 29.999)))

	s := scene("c", "2019-06-01T03:00:00Z", 0)
	s.Properties.CloudCover = nil
	assert.False(t, q.Matches(s))
}

func TestQueryMatchesDates(t *testing.T) {
	q := yearQuery(t)
	assert.False(t, q.Matches(scene("a", "2018-12-31T23:59:59Z", 10)))
	assert.True(t, q.Matches(scene("b", "2019-01-01T00:00:00Z", 10)))
	assert.True(t, q.Matches(scene("c", "2019-12-31T23:30:00Z", 10)))
	assert.False(t, q.Matches(scene("d", "2020-01-01T00:00:00Z", 10)))
}

func TestQueryMatchesFootprint(t *testing.T) {
	q := yearQuery(t)
	far := scene("far", "2019-06-01T03:00:00Z", 10)
	far.Geometry = geojson.NewGeometry(orb.Polygon{{{10, 10}, {11, 10}, {11, 11}, {10, 11}, {10, 10}}})
	assert.False(t, q.Matches(far))

	partial := scene("partial", "2019-06-01T03:00:00Z", 10)
	partial.Geometry = geojson.NewGeometry(orb.Polygon{{{100.005, -0.995}, {101, -0.995}, {101, 0}, {100.005, 0}, {100.005, -0.995}}})
	assert.True(t, q.Matches(partial))

	// A strip crossing the AOI with no vertex inside it, and no AOI vertex inside the strip.
	strip := scene("strip", "2019-06-01T03:00:00Z", 10)
	strip.Geometry = geojson.NewGeometry(orb.Polygon{{{99, -0.996}, {101, -0.996}, {101, -0.995}, {99, -0.995}, {99, -0.996}}})
	assert.True(t, q.Matches(strip))

	other := scene("other", "2019-06-01T03:00:00Z", 10)
	other.Collection = "landsat-c2-l2"
	assert.False(t, q.Matches(other))
}

func TestIntersectsCrossingEdges(t *testing.T) {
	triangle := orb.Polygon{{{0, 0}, {10, 0}, {5, 10}, {0, 0}}}
	strip := orb.Polygon{{{-100, 4}, {100, 4}, {100, 5}, {-100, 5}, {-100, 4}}}
	assert.True(t, Intersects(triangle, strip))
	assert.True(t, Intersects(strip, triangle))

	below := orb.Polygon{{{-100, -5}, {100, -5}, {100, -4}, {-100, -4}, {-100, -5}}}
	assert.False(t, Intersects(triangle, below))

	// Inside the bound of the triangle but outside its area.
	corner := orb.Polygon{{{0, 9}, {1, 9}, {1, 10}, {0, 10}, {0, 9}}}
	assert.False(t, Intersects(triangle, corner))
}

func TestSearchRequest(t *testing.T) {
	req := yearQuery(t).SearchRequest(50)
	j, err := json.Marshal(req)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(j, &m))
	assert.Equal(t, "2019-01-01T00:00:00Z/2019-12-31T23:59:59.999Z", m["datetime"])
	assert.Equal(t, []interface{}{DefaultCollection}, m["collections"])
	assert.Equal(t, map[string]interface{}{"eo:cloud_cover": map[string]interface{}{"lt": 30.0}}, m["query"])
	assert.Equal(t, "Polygon", m["intersects"].(map[string]interface{})["type"])
}

func TestClientFindPaginates(t *testing.T) {
	var calls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/search", r.URL.Path)

		resp := &Response{Type: "FeatureCollection"}
		switch n {
		case 1:
			resp.Features = []*Scene{scene("in", "2019-06-01T03:00:00Z", 10), scene("cloudy", "2019-06-02T03:00:00Z", 30)}
			resp.Links = []*Link{{Rel: "next", Href: srv.URL + "/search", Method: "POST", Merge: true, Body: json.RawMessage(`{"next":"tok"}`)}}
		case 2:
			assert.Equal(t, "tok", body["next"])
			assert.NotNil(t, body["intersects"])
			resp.Features = []*Scene{scene("late", "2020-01-02T03:00:00Z", 1), scene("in2", "2019-07-01T03:00:00Z", 5)}
		default:
			t.Errorf("unexpected call %d", n)
		}
		w.Header().Set("Content-Type", "application/geo+json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil)
	scenes, err := c.Find(context.Background(), yearQuery(t))
	require.NoError(t, err)

	var ids []string
	for _, s := range scenes {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"in", "in2"}, ids)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClientSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL, 0, nil).Find(context.Background(), yearQuery(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

type fakeReader struct {
	values map[string]float64
}

func (f *fakeReader) ReadBand(ctx context.Context, href string, g raster.Grid) ([]float64, error) {
	v, ok := f.values[href]
	if !ok {
		return nil, fmt.Errorf("missing %s", href)
	}
	d := make([]float64, g.Len())
	for i := range d {
		d[i] = v
	}
	return d, nil
}

func TestClientLoad(t *testing.T) {
	g := raster.Grid{Bound: orb.Bound{Max: orb.Point{2, 1}}, PixelSize: 1, Width: 2, Height: 1}
	s := scene("s", "2022-06-01T03:00:00Z", 10)
	s.Properties.ProcessingBaseline = "04.00"
	s.Assets = map[string]Asset{
		"nir": {Href: "nir.tif"},
		"scl": {Href: "scl.tif"},
	}
	c := New("http://unused", 0, &fakeReader{values: map[string]float64{"nir.tif": 3000, "scl.tif": 9}})
	c.QASource = SCLBand

	img, err := c.Load(context.Background(), s, g, []string{"B8", QABand})
	require.NoError(t, err)
	assert.Equal(t, []string{"B8", QABand}, img.BandNames())
	assert.Equal(t, 2000.0, img.Bands[0].Data[0])
	assert.Equal(t, float64(1<<10), img.Bands[1].Data[0])

	_, err = c.Load(context.Background(), s, g, []string{"B2"})
	assert.Error(t, err)
}

func TestClientLoadWithoutQA60Asset(t *testing.T) {
	g := raster.Grid{Bound: orb.Bound{Max: orb.Point{2, 1}}, PixelSize: 1, Width: 2, Height: 1}
	s := scene("S2B_47NQA_20190601_0_L2A", "2019-06-01T03:00:00Z", 10)
	s.Properties.ProcessingBaseline = "02.12"
	s.Assets = map[string]Asset{
		"red": {Href: "red.tif"},
		"nir": {Href: "nir.tif"},
		"scl": {Href: "scl.tif"},
	}
	c := New("http://unused", 0, &fakeReader{values: map[string]float64{"red.tif": 500, "nir.tif": 3000, "scl.tif": 10}})
	require.Equal(t, QABand, c.QASource)

	img, err := c.Load(context.Background(), s, g, []string{"B4", "B8", QABand})
	require.NoError(t, err)
	assert.Equal(t, []string{"B4", "B8", QABand}, img.BandNames())
	assert.Equal(t, float64(1<<11), img.Bands[2].Data[0])

	delete(s.Assets, "scl")
	_, err = c.Load(context.Background(), s, g, []string{QABand})
	assert.Error(t, err)
}

func TestHarmonize(t *testing.T) {
	g := raster.Grid{Bound: orb.Bound{Max: orb.Point{3, 1}}, PixelSize: 1, Width: 3, Height: 1}
	img := &raster.Image{Grid: g, Bands: []*raster.Band{
		{Name: "B4", Data: []float64{1500, 500, math.NaN()}},
		{Name: QABand, Data: []float64{1024, 0, 0}},
	}}

	old := scene("old", "2019-06-01T03:00:00Z", 10)
	old.Properties.ProcessingBaseline = "02.12"
	assert.Equal(t, []float64{1500, 500}, Harmonize(old, img).Bands[0].Data[:2])

	cur := scene("new", "2024-06-01T03:00:00Z", 10)
	cur.Properties.ProcessingBaseline = "05.10"
	out := Harmonize(cur, img)
	assert.Equal(t, []float64{500, 0}, out.Bands[0].Data[:2])
	assert.True(t, math.IsNaN(out.Bands[0].Data[2]))
	assert.Equal(t, []float64{1024, 0, 0}, out.Bands[1].Data)
	assert.Equal(t, 1500.0, img.Bands[0].Data[0])
}

func TestQAFromSCL(t *testing.T) {
	out := QAFromSCL(&raster.Band{Name: SCLBand, Data: []float64{4, 8, 9, 10, math.NaN()}})
	assert.Equal(t, QABand, out.Name)
	assert.Equal(t, []float64{0, 1 << 10, 1 << 10, 1 << 11}, out.Data[:4])
	assert.True(t, math.IsNaN(out.Data[4]))
}

type slowLoader struct {
	failID string
}

func (l *slowLoader) Load(ctx context.Context, s *Scene, g raster.Grid, bands []string) (*raster.Image, error) {
	if s.ID == l.failID {
		return nil, errors.New("boom")
	}
	img := raster.New(g, bands...)
	img.Bands[0].Data[0] = float64(len(s.ID))
	return img, nil
}

func TestLoadAll(t *testing.T) {
	g := raster.Grid{Bound: orb.Bound{Max: orb.Point{1, 1}}, PixelSize: 1, Width: 1, Height: 1}
	scenes := []*Scene{{ID: "a"}, {ID: "bbb"}, {ID: "cc"}}

	imgs, err := LoadAll(context.Background(), &slowLoader{}, scenes, g, []string{"B2"}, 2)
	require.NoError(t, err)
	require.Len(t, imgs, 3)
	assert.Equal(t, 1.0, imgs[0].Bands[0].Data[0])
	assert.Equal(t, 3.0, imgs[1].Bands[0].Data[0])
	assert.Equal(t, 2.0, imgs[2].Bands[0].Data[0])

	_, err = LoadAll(context.Background(), &slowLoader{failID: "cc"}, scenes, g, []string{"B2"}, 0)
	assert.EqualError(t, err, "boom")
}

package raster

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func smallGrid(t *testing.T) Grid {
	g, err := GridFor(orb.Bound{Min: orb.Point{100, -1}, Max: orb.Point{100.001, -0.999}}, 10)
	require.NoError(t, err)
	return g
}

func band(name string, vals ...float64) *Band {
	return &Band{Name: name, Data: vals}
}

func TestGridFor(t *testing.T) {
	g := smallGrid(t)
	// ~111m across at 10m pixels.
	assert.Equal(t, 12, g.Width)
	assert.Equal(t, 12, g.Height)
	assert.InDelta(t, 10.0015, g.PixelSize, 1e-3)

	gt := g.GeoTransform()
	assert.Equal(t, g.Bound.Min[0], gt[0])
	assert.Equal(t, -g.PixelSize, gt[5])

	_, err := GridFor(orb.Point{1, 1}, 10)
	assert.Error(t, err)
	_, err = GridFor(orb.Bound{Max: orb.Point{1, 1}}, 0)
	assert.Error(t, err)
}

func TestGridIndexCenter(t *testing.T) {
	g := smallGrid(t)
	for _, i := range []int{0, 5, g.Len() - 1} {
		j, ok := g.Index(g.Center(i))
		require.True(t, ok)
		assert.Equal(t, i, j)
	}
	_, ok := g.Index(orb.Point{g.Bound.Min[0] - 1, g.Bound.Max[1]})
	assert.False(t, ok)
}

func TestNormalizedDifference(t *testing.T) {
	nd, err := NormalizedDifference(band("B8", 0.5, 0, nan, 0.2), band("B4", 0.3, 0, 0.1, 0.5), "ndvi")
	require.NoError(t, err)
	assert.Equal(t, "ndvi", nd.Name)
	assert.InDelta(t, 0.25, nd.Data[0], 1e-12)
	assert.Equal(t, 0.0, nd.Data[1])
	assert.True(t, math.IsNaN(nd.Data[2]))
	assert.InDelta(t, -0.3/0.7, nd.Data[3], 1e-12)

	_, err = NormalizedDifference(band("a", 1), band("b", 1, 2), "x")
	assert.Error(t, err)
}

func TestBitsClear(t *testing.T) {
	qa := band("QA60", 0, 1<<10, 1<<11, 1<<10|1<<11, 1<<5, nan)
	assert.Equal(t, []bool{true, false, false, false, true, false}, BitsClear(qa, 10, 11))
}

func TestMedian(t *testing.T) {
	g := Grid{Bound: orb.Bound{Max: orb.Point{3, 1}}, PixelSize: 1, Width: 3, Height: 1}
	mk := func(vals ...float64) *Image {
		return &Image{Grid: g, Bands: []*Band{band("B2", vals...)}}
	}
	out, err := Median([]*Image{mk(1, nan, nan), mk(3, 4, nan), mk(2, 8, nan), mk(10, nan, nan)})
	require.NoError(t, err)

	want := []float64{2.5, 6, nan}
	if diff := cmp.Diff(want, out.Bands[0].Data, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("median mismatch (-want +got):\n%s", diff)
	}

	single, err := Median([]*Image{mk(1, 2, nan)})
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{1, 2, nan}, single.Bands[0].Data, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("median of one mismatch (-want +got):\n%s", diff)
	}

	_, err = Median(nil)
	assert.Error(t, err)
}

func TestSelectAndAddBands(t *testing.T) {
	g := Grid{Bound: orb.Bound{Max: orb.Point{2, 1}}, PixelSize: 1, Width: 2, Height: 1}
	img := &Image{Grid: g, Bands: []*Band{band("B2", 1, 2), band("B3", 3, 4)}}

	sel, err := img.Select("B3", "B2")
	require.NoError(t, err)
	assert.Equal(t, []string{"B3", "B2"}, sel.BandNames())

	_, err = img.Select("B9")
	assert.Error(t, err)

	added, err := img.AddBands(band("ndvi", 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"B2", "B3", "ndvi"}, added.BandNames())
	assert.Equal(t, []string{"B2", "B3"}, img.BandNames())

	_, err = img.AddBands(band("B2", 0, 0))
	assert.Error(t, err)
	_, err = img.AddBands(band("x", 0))
	assert.Error(t, err)
}

func TestMaskAndDivideDoNotMutate(t *testing.T) {
	g := Grid{Bound: orb.Bound{Max: orb.Point{2, 1}}, PixelSize: 1, Width: 2, Height: 1}
	img := &Image{Grid: g, Bands: []*Band{band("B2", 10000, 5000)}}

	out := img.UpdateMask([]bool{true, false}).Divide(10000)
	assert.Equal(t, 1.0, out.Bands[0].Data[0])
	assert.True(t, math.IsNaN(out.Bands[0].Data[1]))
	assert.Equal(t, []float64{10000, 5000}, img.Bands[0].Data)
}

func TestClip(t *testing.T) {
	aoi := orb.Polygon{{{100, -1}, {100.0005, -1}, {100.0005, -0.999}, {100, -0.999}, {100, -1}}}
	g, err := GridFor(orb.Bound{Min: orb.Point{100, -1}, Max: orb.Point{100.001, -0.999}}, 10)
	require.NoError(t, err)
	img := New(g, "B2")
	for i := range img.Bands[0].Data {
		img.Bands[0].Data[i] = 1
	}

	clipped := img.Clip(aoi)
	assert.InDelta(t, 0.5, clipped.ValidShare(), 0.1)
	assert.Equal(t, 1.0, img.ValidShare())

	// Left column is inside, right column outside.
	assert.False(t, math.IsNaN(clipped.Bands[0].Data[0]))
	assert.True(t, math.IsNaN(clipped.Bands[0].Data[g.Width-1]))
}

func TestResample(t *testing.T) {
	g := Grid{Bound: orb.Bound{Max: orb.Point{2, 2}}, PixelSize: 1, Width: 2, Height: 2}
	img := &Image{Grid: g, Bands: []*Band{band("B2", 1, 2, 3, 4)}}

	same := img.Resample(g)
	assert.Equal(t, img.Bands[0].Data, same.Bands[0].Data)

	fine := Grid{Bound: orb.Bound{Max: orb.Point{3, 2}}, PixelSize: 0.5, Width: 6, Height: 4}
	out := img.Resample(fine)
	assert.Equal(t, 1.0, out.Bands[0].Data[0])
	assert.Equal(t, 2.0, out.Bands[0].Data[3])
	assert.True(t, math.IsNaN(out.Bands[0].Data[5]))
	assert.Equal(t, 4.0, out.Bands[0].Data[6*3+3])
}

package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"mangrove-composite/util"
)

// Band is one named layer of an image. Masked pixels are NaN.
type Band struct {
	Name string
	Data []float64
}

func (b *Band) clone(name string) *Band {
	d := make([]float64, len(b.Data))
	copy(d, b.Data)
	return &Band{Name: name, Data: d}
}

// Image is a stack of bands sharing one grid. Operations never modify the receiver.
type Image struct {
	Grid  Grid
	Bands []*Band
}

// New returns an image with fully masked bands.
func New(g Grid, names ...string) *Image {
	img := &Image{Grid: g}
	for _, n := range names {
		d := make([]float64, g.Len())
		for i := range d {
			d[i] = math.NaN()
		}
		img.Bands = append(img.Bands, &Band{Name: n, Data: d})
	}
	return img
}

func (img *Image) BandNames() []string {
	names := make([]string, len(img.Bands))
	for i, b := range img.Bands {
		names[i] = b.Name
	}
	return names
}

func (img *Image) Band(name string) (*Band, error) {
	for _, b := range img.Bands {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("band %q not found in %v", name, img.BandNames())
}

func (img *Image) Clone() *Image {
	out := &Image{Grid: img.Grid}
	for _, b := range img.Bands {
		out.Bands = append(out.Bands, b.clone(b.Name))
	}
	return out
}

// Select returns the named bands in the given order.
func (img *Image) Select(names ...string) (*Image, error) {
	out := &Image{Grid: img.Grid}
	for _, n := range names {
		b, err := img.Band(n)
		if err != nil {
			return nil, err
		}
		out.Bands = append(out.Bands, b.clone(n))
	}
	return out, nil
}

// AddBands appends bands after the existing ones. Names must be unique.
func (img *Image) AddBands(bands ...*Band) (*Image, error) {
	out := img.Clone()
	for _, b := range bands {
		if _, err := out.Band(b.Name); err == nil {
			return nil, fmt.Errorf("band %q already present", b.Name)
		}
		if len(b.Data) != img.Grid.Len() {
			return nil, fmt.Errorf("band %q has %d pixels, grid has %d", b.Name, len(b.Data), img.Grid.Len())
		}
		out.Bands = append(out.Bands, b.clone(b.Name))
	}
	return out, nil
}

// UpdateMask masks every pixel where keep is false, in all bands.
func (img *Image) UpdateMask(keep []bool) *Image {
	out := img.Clone()
	for _, b := range out.Bands {
		for i := range b.Data {
			if !keep[i] {
				b.Data[i] = math.NaN()
			}
		}
	}
	return out
}

// Divide divides every band by d.
func (img *Image) Divide(d float64) *Image {
	out := img.Clone()
	for _, b := range out.Bands {
		for i := range b.Data {
			b.Data[i] /= d
		}
	}
	return out
}

// Clip masks pixels whose center falls outside g (lon/lat degrees).
func (img *Image) Clip(g orb.Geometry) *Image {
	var mp orb.MultiPolygon
	for _, p := range util.Polygons(orb.Clone(g)) {
		mp = append(mp, project.Polygon(p, project.WGS84.ToMercator))
	}
	bound := mp.Bound()

	keep := make([]bool, img.Grid.Len())
	for i := range keep {
		c := img.Grid.Center(i)
		keep[i] = len(mp) > 0 && bound.Contains(c) && planar.MultiPolygonContains(mp, c)
	}
	return img.UpdateMask(keep)
}

// Resample maps the image onto g with nearest neighbour sampling.
func (img *Image) Resample(g Grid) *Image {
	if img.Grid.Equal(g) {
		return img.Clone()
	}
	out := New(g, img.BandNames()...)
	for i := 0; i < g.Len(); i++ {
		src, ok := img.Grid.Index(g.Center(i))
		if !ok {
			continue
		}
		for bi, b := range img.Bands {
			out.Bands[bi].Data[i] = b.Data[src]
		}
	}
	return out
}

// ValidShare returns the share of unmasked pixels in the first band.
func (img *Image) ValidShare() float64 {
	if len(img.Bands) == 0 || img.Grid.Len() == 0 {
		return 0
	}
	n := 0
	for _, v := range img.Bands[0].Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return float64(n) / float64(img.Grid.Len())
}

// Valid returns the unmasked values of a band.
func (b *Band) Valid() []float64 {
	var out []float64
	for _, v := range b.Data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

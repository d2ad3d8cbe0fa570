package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// SRS is the spatial reference of every grid, web mercator.
const SRS = "EPSG:3857"

// Grid is a north-up pixel grid in web mercator meters.
// PixelSize is chosen so that a pixel spans the requested ground distance at the grid's center latitude.
type Grid struct {
	Bound     orb.Bound `json:"bound"`
	PixelSize float64   `json:"pixel_size"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// GridFor builds the grid covering the bound of g (lon/lat degrees) at scale meters per pixel.
func GridFor(g orb.Geometry, scale float64) (Grid, error) {
	if g == nil {
		return Grid{}, fmt.Errorf("nil geometry")
	}
	if scale <= 0 || math.IsNaN(scale) {
		return Grid{}, fmt.Errorf("scale must be positive, got %v", scale)
	}
	b := g.Bound()
	lo := project.Point(b.Min, project.WGS84.ToMercator)
	hi := project.Point(b.Max, project.WGS84.ToMercator)
	dx, dy := hi[0]-lo[0], hi[1]-lo[1]
	if !(dx > 0) || !(dy > 0) {
		return Grid{}, fmt.Errorf("degenerate bound %v", b)
	}

	lat := b.Center().Lat() * math.Pi / 180
	px := scale / math.Cos(lat)
	w := int(math.Ceil(dx / px))
	h := int(math.Ceil(dy / px))
	return Grid{
		Bound: orb.Bound{
			Min: orb.Point{lo[0], hi[1] - float64(h)*px},
			Max: orb.Point{lo[0] + float64(w)*px, hi[1]},
		},
		PixelSize: px,
		Width:     w,
		Height:    h,
	}, nil
}

func (g Grid) Len() int {
	return g.Width * g.Height
}

// GeoTransform returns the GDAL affine transform of the grid.
func (g Grid) GeoTransform() [6]float64 {
	return [6]float64{g.Bound.Min[0], g.PixelSize, 0, g.Bound.Max[1], 0, -g.PixelSize}
}

// Center returns the mercator coordinate of the center of pixel i (row major).
func (g Grid) Center(i int) orb.Point {
	x, y := i%g.Width, i/g.Width
	return orb.Point{
		g.Bound.Min[0] + (float64(x)+0.5)*g.PixelSize,
		g.Bound.Max[1] - (float64(y)+0.5)*g.PixelSize,
	}
}

// Index returns the pixel containing the mercator point p.
func (g Grid) Index(p orb.Point) (int, bool) {
	if g.PixelSize <= 0 {
		return 0, false
	}
	x := int(math.Floor((p[0] - g.Bound.Min[0]) / g.PixelSize))
	y := int(math.Floor((g.Bound.Max[1] - p[1]) / g.PixelSize))
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0, false
	}
	return y*g.Width + x, true
}

func (g Grid) Equal(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height && g.PixelSize == o.PixelSize && g.Bound.Equal(o.Bound)
}

package util

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	hull "github.com/furstenheim/go-convex-hull-2d"
)

type coordinates []orb.Point

func (c coordinates) Take(i int) (x, y float64) {
	return c[i][0], c[i][1]
}

func (c coordinates) Len() int {
	return len(c)
}

func (c coordinates) Swap(i, j int) {
	c[i], c[j] = c[j], c[i]
}

func (c coordinates) Slice(i, j int) hull.Interface {
	return c[i:j]
}

func toOuterRing(p orb.Polygon) coordinates {
	if len(p) == 0 {
		return coordinates{}
	}
	return coordinates(p[0])
}

// PolyUnion approximates the union of two polygons by the convex hull of their outer rings.
func PolyUnion(p1, p2 orb.Polygon) orb.Polygon {
	var c coordinates
	c = append(c, toOuterRing(p1)...)
	c = append(c, toOuterRing(p2)...)
	if len(c) == 0 {
		return nil
	}
	h := hull.New(c)

	var ring orb.Ring
	for i := 0; i < h.Len(); i++ {
		x, y := h.Take(i)
		ring = append(ring, orb.Point{x, y})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}
}

// Polygons flattens polygonal geometries. Anything else is ignored.
func Polygons(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return []orb.Polygon(v)
	case orb.Collection:
		var out []orb.Polygon
		for _, c := range v {
			out = append(out, Polygons(c)...)
		}
		return out
	case orb.Bound:
		return []orb.Polygon{v.ToPolygon()}
	}
	return nil
}

// Coverage returns the share of the AOI bound covered by the hull of the given footprints.
func Coverage(aoi orb.Bound, footprints []orb.Geometry) float64 {
	boundArea := planar.Area(aoi)
	if boundArea == 0 {
		return 0
	}
	var union orb.Polygon
	for _, f := range footprints {
		for _, p := range Polygons(f) {
			union = PolyUnion(union, clip.Polygon(aoi, p.Clone()))
		}
	}
	if len(union) == 0 {
		return 0
	}
	return planar.Area(union) / boundArea
}

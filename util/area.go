package util

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371008.8

func ringLoop(r orb.Ring) *s2.Loop {
	pts := make([]s2.Point, 0, len(r))
	for i, p := range r {
		if i == len(r)-1 && r.Closed() {
			break
		}
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat(), p.Lon())))
	}
	l := s2.LoopFromPoints(pts)
	l.Normalize()
	return l
}

// GeodesicArea returns the area in square meters of the polygonal parts of g (lon/lat degrees).
// Holes are subtracted.
func GeodesicArea(g orb.Geometry) float64 {
	var sum float64
	for _, p := range Polygons(g) {
		for i, r := range p {
			if len(r) < 4 {
				continue
			}
			a := ringLoop(r).Area() * EarthRadius * EarthRadius
			if i == 0 {
				sum += a
			} else {
				sum -= a
			}
		}
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// ValidateAOI rejects empty or zero-area areas of interest.
func ValidateAOI(g orb.Geometry) error {
	if g == nil {
		return Invalidf("area of interest is missing")
	}
	if len(Polygons(g)) == 0 {
		return Invalidf("area of interest must be a polygon or multipolygon, got %s", g.GeoJSONType())
	}
	if GeodesicArea(g) <= 0 {
		return Invalidf("area of interest is degenerate")
	}
	return nil
}

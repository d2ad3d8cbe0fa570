package sentinel

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"mangrove-composite/util"
)

const dateLayout = "2006-01-02"

// Query selects archive entries by footprint, acquisition date and cloud cover.
// Start is inclusive, End exclusive.
type Query struct {
	Collection    string
	AOI           orb.Geometry
	Start         time.Time
	End           time.Time
	MaxCloudCover float64
}

// DateRange parses two calendar dates and returns the instants bounding both days inclusively.
func DateRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.ParseInLocation(dateLayout, start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start date %q: %v", start, err)
	}
	e, err := time.ParseInLocation(dateLayout, end, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad end date %q: %v", end, err)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %q before start date %q", end, start)
	}
	return s, e.AddDate(0, 0, 1), nil
}

// Matches applies the query locally. Cloud cover must be strictly below the threshold.
func (q *Query) Matches(s *Scene) bool {
	if s == nil || s.Properties == nil {
		return false
	}
	if q.Collection != "" && s.Collection != "" && s.Collection != q.Collection {
		return false
	}
	dt := s.Properties.Datetime
	if dt.Before(q.Start) || !dt.Before(q.End) {
		return false
	}
	if s.Properties.CloudCover == nil || !(*s.Properties.CloudCover < q.MaxCloudCover) {
		return false
	}
	if s.Geometry == nil {
		return false
	}
	return Intersects(q.AOI, s.Geometry.Geometry())
}

// Intersects reports whether two polygonal geometries overlap: a vertex of one lies
// inside the other or their edges cross.
func Intersects(aoi, footprint orb.Geometry) bool {
	if aoi == nil || footprint == nil {
		return false
	}
	fps := util.Polygons(footprint)
	for _, a := range util.Polygons(aoi) {
		for _, fp := range fps {
			if polygonsIntersect(a, fp) {
				return true
			}
		}
	}
	return false
}

func polygonsIntersect(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 || !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for _, p := range a[0] {
		if planar.PolygonContains(b, p) {
			return true
		}
	}
	for _, p := range b[0] {
		if planar.PolygonContains(a, p) {
			return true
		}
	}
	for _, ra := range a {
		for _, rb := range b {
			if ringsCross(ra, rb) {
				return true
			}
		}
	}
	return false
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// ringsCross reports whether any edge of r properly crosses an edge of o.
func ringsCross(r, o orb.Ring) bool {
	for i := 1; i < len(r); i++ {
		p1, p2 := r[i-1], r[i]
		for j := 1; j < len(o); j++ {
			q1, q2 := o[j-1], o[j]
			if orient(p1, p2, q1)*orient(p1, p2, q2) < 0 && orient(q1, q2, p1)*orient(q1, q2, p2) < 0 {
				return true
			}
		}
	}
	return false
}

// SearchRequest translates the query into a STAC search body.
func (q *Query) SearchRequest(limit int) *SearchRequest {
	return &SearchRequest{
		Collections: []string{q.Collection},
		Intersects:  geojson.NewGeometry(q.AOI),
		Datetime:    q.Start.UTC().Format(time.RFC3339) + "/" + q.End.Add(-time.Millisecond).UTC().Format(time.RFC3339Nano),
		Query: PropertyFilter{
			"eo:cloud_cover": {"lt": q.MaxCloudCover},
		},
		Limit: limit,
	}
}

package util

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func square(x0, y0, size float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0}}}
}

func TestGeodesicArea(t *testing.T) {
	// One degree square at the equator.
	a := GeodesicArea(square(0, 0, 1))
	assert.InDelta(t, 1.2364e10, a, 0.005e10)

	assert.Equal(t, 0.0, GeodesicArea(orb.Point{1, 2}))
	assert.Equal(t, 0.0, GeodesicArea(orb.Polygon{{{0, 0}, {1, 1}, {0, 0}}}))
}

func TestGeodesicAreaHole(t *testing.T) {
	p := square(0, 0, 1)
	hole := square(0.25, 0.25, 0.5)
	withHole := orb.Polygon{p[0], hole[0]}
	assert.InDelta(t, GeodesicArea(p)*0.75, GeodesicArea(withHole), 0.001e10)
}

func TestPolyUnion(t *testing.T) {
	u := PolyUnion(square(0, 0, 1), square(1, 0, 1))
	b := u.Bound()
	assert.Equal(t, orb.Point{0, 0}, b.Min)
	assert.Equal(t, orb.Point{2, 1}, b.Max)
	assert.True(t, u[0].Closed())
	assert.Nil(t, PolyUnion(nil, nil))
}

func TestCoverage(t *testing.T) {
	aoi := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 2}}
	assert.InDelta(t, 0.5, Coverage(aoi, []orb.Geometry{square(-1, 0, 2)}), 1e-9)
	assert.InDelta(t, 1.0, Coverage(aoi, []orb.Geometry{square(-1, -1, 4)}), 1e-9)
	assert.Equal(t, 0.0, Coverage(aoi, nil))
}

func TestErrors(t *testing.T) {
	err := Invalidf("bad year %d", 0)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.Contains(t, err.Error(), "bad year 0")

	base := errors.New("boom")
	err = External("upload", base)
	assert.True(t, errors.Is(err, ErrExternalService))
	assert.True(t, errors.Is(err, base))
	assert.Nil(t, External("upload", nil))
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("MC_TEST_STR", "x")
	t.Setenv("MC_TEST_INT", "nope")
	t.Setenv("MC_TEST_INTS", "2019, 2024")
	assert.Equal(t, "x", EnvOrDefault("MC_TEST_STR", "y"))
	assert.Equal(t, "y", EnvOrDefault("MC_TEST_MISSING", "y"))
	assert.Equal(t, 3, EnvOrDefaultInt("MC_TEST_INT", 3))
	assert.Equal(t, []int{2019, 2024}, EnvOrDefaultInts("MC_TEST_INTS", nil))
}

func TestValidateAOI(t *testing.T) {
	assert.NoError(t, ValidateAOI(square(100, -1, 0.01)))
	assert.NoError(t, ValidateAOI(orb.MultiPolygon{square(100, -1, 0.01), square(101, -1, 0.01)}))

	for _, g := range []orb.Geometry{nil, orb.Point{1, 1}, orb.Polygon{}, orb.Polygon{{{0, 0}, {1, 1}, {0, 0}}}} {
		err := ValidateAOI(g)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration), "%v", g)
	}
}

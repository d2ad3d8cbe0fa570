package tileserver

import (
	"fmt"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	log "github.com/sirupsen/logrus"

	"mangrove-composite/composite"
	"mangrove-composite/preview"
	"mangrove-composite/raster"
	"mangrove-composite/thumbserver"
)

const (
	TileSize = 256
	MaxZoom  = 22
)

// TileServer serves composites as XYZ map tiles, the web map equivalent of a layer.
type TileServer struct {
	Composites *composite.Registry
	AOI        orb.Geometry
}

func New(composites *composite.Registry, aoi orb.Geometry) *TileServer {
	return &TileServer{Composites: composites, AOI: aoi}
}

func tileFromRequest(r *http.Request) (maptile.Tile, error) {
	x, err := strconv.Atoi(mux.Vars(r)["x"])
	if err != nil {
		return maptile.Tile{}, err
	}
	y, err := strconv.Atoi(mux.Vars(r)["y"])
	if err != nil {
		return maptile.Tile{}, err
	}
	z, err := strconv.Atoi(mux.Vars(r)["z"])
	if err != nil {
		return maptile.Tile{}, err
	}
	if z > MaxZoom {
		return maptile.Tile{}, fmt.Errorf("zoom %d above %d", z, MaxZoom)
	}
	t := maptile.Tile{X: uint32(x), Y: uint32(y), Z: maptile.Zoom(z)}
	if !t.Valid() {
		return maptile.Tile{}, fmt.Errorf("tile %v out of range", t)
	}
	return t, nil
}

// TileGrid returns the pixel grid of a map tile.
func TileGrid(t maptile.Tile) raster.Grid {
	b := t.Bound()
	lo := project.Point(b.Min, project.WGS84.ToMercator)
	hi := project.Point(b.Max, project.WGS84.ToMercator)
	return raster.Grid{
		Bound:     orb.Bound{Min: lo, Max: hi},
		PixelSize: (hi[0] - lo[0]) / TileSize,
		Width:     TileSize,
		Height:    TileSize,
	}
}

func (s *TileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tile, err := tileFromRequest(r)
	if err != nil {
		thumbserver.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid tile argument: %v", err))
		return
	}
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		thumbserver.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid year: %v", err))
		return
	}
	c, ok := s.Composites.Get(year)
	if !ok {
		thumbserver.WriteError(w, http.StatusNotFound, fmt.Errorf("no composite for %d", year))
		return
	}

	out, err := preview.Render(c.Image.Resample(TileGrid(tile)), s.AOI, TileSize)
	if err != nil {
		thumbserver.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	log.Debugf("Rendered tile %v of %d", tile, year)

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, out); err != nil {
		log.Errorf("tile encode: %v", err)
	}
}

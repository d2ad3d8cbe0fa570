package thumbserver

import (
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"mangrove-composite/composite"
	"mangrove-composite/preview"
)

// ThumbServer renders the false color preview of a composite year.
type ThumbServer struct {
	Composites *composite.Registry
	AOI        orb.Geometry
	Size       int
}

func New(composites *composite.Registry, aoi orb.Geometry) *ThumbServer {
	return &ThumbServer{Composites: composites, AOI: aoi, Size: preview.DefaultSize}
}

func writePNG(w http.ResponseWriter, code int, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(code)
	if err := png.Encode(w, img); err != nil {
		log.Errorf("thumb encode: %v", err)
	}
}

// WriteError answers with an image showing err.
func WriteError(w http.ResponseWriter, code int, err error) {
	writePNG(w, code, preview.ErrorImage(err, 256))
}

func (s *ThumbServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid year: %v", err))
		return
	}
	c, ok := s.Composites.Get(year)
	if !ok {
		WriteError(w, http.StatusNotFound, fmt.Errorf("no composite for %d", year))
		return
	}
	img, err := preview.Render(c.Image, s.AOI, s.Size)
	if err != nil {
		log.Errorf("thumb render %d: %v", year, err)
		WriteError(w, http.StatusInternalServerError, err)
		return
	}
	writePNG(w, http.StatusOK, img)
}

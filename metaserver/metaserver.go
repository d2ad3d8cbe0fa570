package metaserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"mangrove-composite/composite"
	"mangrove-composite/jobstore"
)

// MetaServer serves export job records and composite summaries as JSON.
type MetaServer struct {
	Store      jobstore.Store
	Composites *composite.Registry
}

func New(store jobstore.Store, composites *composite.Registry) *MetaServer {
	return &MetaServer{Store: store, Composites: composites}
}

type jobsResponse struct {
	Jobs  []*jobstore.Record `json:"jobs"`
	Error string             `json:"error,omitempty"`
}

type compositeEntry struct {
	*composite.Composite
	Bands      []string                `json:"bands"`
	ValidShare float64                 `json:"valid_share"`
	Summary    []composite.BandSummary `json:"summary"`
	Preview    string                  `json:"preview"`
	TileURL    string                  `json:"tile_url"`
}

type compositesResponse struct {
	Results []*compositeEntry `json:"results"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("meta encode: %v", err)
	}
}

func jsonError(w http.ResponseWriter, err error, code int) {
	writeJSON(w, code, &jobsResponse{Error: err.Error()})
}

// ServeJobs lists all export jobs, oldest first.
func (s *MetaServer) ServeJobs(w http.ResponseWriter, r *http.Request) {
	recs, err := s.Store.List(r.Context())
	if err != nil {
		log.Errorf("meta list jobs: %v", err)
		jsonError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, &jobsResponse{Jobs: recs})
}

// ServeJob returns one job record.
func (s *MetaServer) ServeJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.Store.Get(r.Context(), id)
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		jsonError(w, err, http.StatusNotFound)
		return
	case err != nil:
		log.Errorf("meta get job %q: %v", id, err)
		jsonError(w, err, http.StatusInternalServerError)
		return
	}
	log.Debugf("Job %s: %s", id, spew.Sdump(rec))
	writeJSON(w, http.StatusOK, rec)
}

// ServeComposites lists the built composites with per-band statistics.
func (s *MetaServer) ServeComposites(w http.ResponseWriter, r *http.Request) {
	resp := &compositesResponse{Results: []*compositeEntry{}}
	for _, c := range s.Composites.List() {
		resp.Results = append(resp.Results, &compositeEntry{
			Composite:  c,
			Bands:      c.Bands(),
			ValidShare: c.Image.ValidShare(),
			Summary:    composite.Summarize(c.Image),
			Preview:    fmt.Sprintf("/api/preview/%d.png", c.Year),
			TileURL:    fmt.Sprintf("/api/tile/%d/{z}/{x}/{y}.png", c.Year),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

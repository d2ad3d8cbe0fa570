package metaserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrove-composite/composite"
	"mangrove-composite/jobstore"
	"mangrove-composite/raster"
)

func newServer(t *testing.T) (*httptest.Server, jobstore.Store, *composite.Registry) {
	store := jobstore.NewMemory()
	reg := composite.NewRegistry()
	s := New(store, reg)
	router := mux.NewRouter()
	router.HandleFunc("/api/jobs", s.ServeJobs).Methods("GET")
	router.HandleFunc("/api/jobs/{id}", s.ServeJob).Methods("GET")
	router.HandleFunc("/api/composites", s.ServeComposites).Methods("GET")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store, reg
}

func getJSON(t *testing.T, url string, v interface{}) int {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
	return res.StatusCode
}

func TestServeJobs(t *testing.T) {
	srv, store, _ := newServer(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, &jobstore.Record{ID: "b", Description: "AOI_AGERS2024", State: jobstore.Running, Created: t0.Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, &jobstore.Record{ID: "a", Description: "Sentinel2_2019", State: jobstore.Completed, Created: t0}))

	var resp jobsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/jobs", &resp))
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "a", resp.Jobs[0].ID)
	assert.Equal(t, jobstore.Running, resp.Jobs[1].State)

	var rec jobstore.Record
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/jobs/a", &rec))
	assert.Equal(t, "Sentinel2_2019", rec.Description)

	var missing jobsResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/jobs/nope", &missing))
	assert.NotEmpty(t, missing.Error)
}

func TestServeComposites(t *testing.T) {
	srv, _, reg := newServer(t)

	var empty map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/composites", &empty))
	assert.Equal(t, []interface{}{}, empty["results"])

	g := raster.Grid{Bound: orb.Bound{Max: orb.Point{2, 1}}, PixelSize: 1, Width: 2, Height: 1}
	img := raster.New(g, "B2", "ndvi")
	img.Bands[0].Data[0] = 0.1
	img.Bands[1].Data[0] = 0.5
	reg.Put(&composite.Composite{Year: 2019, Start: "2019-01-01", End: "2019-12-31", Scenes: []string{"s1"}, Image: img})

	var resp map[string][]map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/composites", &resp))
	require.Len(t, resp["results"], 1)
	c := resp["results"][0]
	assert.EqualValues(t, 2019, c["year"])
	assert.Equal(t, "2019-12-31", c["end"])
	assert.Equal(t, []interface{}{"B2", "ndvi"}, c["bands"])
	assert.EqualValues(t, 0.5, c["valid_share"])
	assert.Equal(t, "/api/preview/2019.png", c["preview"])
	assert.NotContains(t, c, "Image")
}

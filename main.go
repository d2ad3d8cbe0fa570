package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"

	"mangrove-composite/composite"
	"mangrove-composite/config"
	"mangrove-composite/export"
	"mangrove-composite/gdalio"
	"mangrove-composite/jobstore"
	"mangrove-composite/metaserver"
	"mangrove-composite/preview"
	"mangrove-composite/samples"
	"mangrove-composite/scenecache"
	"mangrove-composite/sentinel"
	"mangrove-composite/storage"
	"mangrove-composite/thumbserver"
	"mangrove-composite/tileserver"
	"mangrove-composite/util"
)

var (
	configPath = flag.String("config", "", "YAML configuration file, defaults apply when empty")
	port       = flag.Int("port", 0, "Serve the status API on this port until interrupted, 0 exits once exports finish")
	verbose    = flag.Bool("v", false, "Debug logging")
	previewDir = flag.String("preview-dir", "", "Directory to write false color composite previews to")
)

func topLevelContext() context.Context {
	ctx, cancelf := context.WithCancel(context.Background())
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Warnf("Caught signal %q, shutting down.", sig)
		cancelf()
	}()
	return ctx
}

func serve(ctx context.Context, store jobstore.Store, reg *composite.Registry, aoi orb.Geometry) {
	meta := metaserver.New(store, reg)

	router := mux.NewRouter()
	router.HandleFunc("/api/jobs", meta.ServeJobs).Methods("GET")
	router.HandleFunc("/api/jobs/{id}", meta.ServeJob).Methods("GET")
	router.HandleFunc("/api/composites", meta.ServeComposites).Methods("GET")
	router.Handle("/api/preview/{year:[0-9]+}.png", thumbserver.New(reg, aoi)).Methods("GET")
	router.Handle("/api/tile/{year:[0-9]+}/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}.png", tileserver.New(reg, aoi)).Methods("GET")

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	go func() {
		log.Infof("Serving status on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
}

func writePreview(c *composite.Composite, aoi orb.Geometry) {
	img, err := preview.Render(c.Image, aoi, preview.DefaultSize)
	if err != nil {
		log.Errorf("Preview of %d: %v", c.Year, err)
		return
	}
	path := filepath.Join(*previewDir, fmt.Sprintf("preview_%d.png", c.Year))
	if err := preview.Save(path, img); err != nil {
		log.Errorf("Preview of %d: %v", c.Year, err)
		return
	}
	log.Infof("Wrote preview %s", path)
}

func main() {
	flag.Parse()
	if *verbose {
		util.LogLevelOrDie(log.DebugLevel)
	} else {
		util.LogLevelOrDie(log.InfoLevel)
	}
	ctx := topLevelContext()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	log.Debugf("Configuration: %s", spew.Sdump(cfg))

	aoi, err := samples.LoadAOI(cfg.AOI)
	if err != nil {
		log.Fatalf("AOI: %v", err)
	}
	nonMangrove, err := samples.Load(cfg.NonMangrove, samples.NonMangrove)
	if err != nil {
		log.Fatalf("Non-mangrove samples: %v", err)
	}
	mangrove, err := samples.Load(cfg.Mangrove, samples.Mangrove)
	if err != nil {
		log.Fatalf("Mangrove samples: %v", err)
	}
	points := samples.Merge(nonMangrove, mangrove)
	log.Infof("Loaded %d sample points, per class %v", len(points.Features), samples.Counts(points))

	client := sentinel.New(cfg.STACURL, cfg.RetryMax, gdalio.NewReader())
	client.Collection = cfg.Collection
	client.QASource = cfg.QASource
	for band, key := range cfg.Assets {
		client.Assets[band] = key
	}
	builder, err := composite.New(scenecache.NewMulti(client), aoi, cfg.Params())
	if err != nil {
		log.Fatalf("Builder: %v", err)
	}

	dest, err := storage.Open(ctx, cfg.Export.Destination)
	if err != nil {
		log.Fatalf("Destination: %v", err)
	}
	store, err := jobstore.Open(ctx, cfg.JobStoreURI())
	if err != nil {
		log.Fatalf("Job store: %v", err)
	}
	defer store.Close()
	exp := export.New(dest, store, cfg.Export.Workers)
	exp.Attempts = cfg.Export.UploadAttempts

	reg := composite.NewRegistry()
	if *port != 0 {
		serve(ctx, store, reg, aoi)
	}

	for _, year := range cfg.Years {
		c, err := builder.Build(ctx, year)
		if err != nil {
			log.Fatalf("Composite %d: %v", year, err)
		}
		reg.Put(c)
		if *previewDir != "" {
			writePreview(c, aoi)
		}
		name := cfg.RasterName(year)
		if _, err := exp.ExportRaster(ctx, export.RasterRequest{
			Image:          c.Image,
			Description:    name,
			Folder:         cfg.Export.Folder,
			FileNamePrefix: name,
			Region:         aoi,
			Scale:          cfg.Scale,
			MaxPixels:      float64(cfg.MaxPixels),
		}); err != nil {
			log.Fatalf("Export %s: %v", name, err)
		}
	}

	vectors := []struct {
		name string
		fc   *geojson.FeatureCollection
	}{
		{cfg.Export.SamplesName, points},
		{cfg.Export.AOIName, samples.Collection(aoi, geojson.Properties{"name": cfg.Export.AOIName})},
	}
	for _, v := range vectors {
		if _, err := exp.ExportVector(ctx, export.VectorRequest{
			Collection:     v.fc,
			Description:    v.name,
			Folder:         cfg.Export.Folder,
			FileNamePrefix: v.name,
			Format:         cfg.Export.VectorFormat,
		}); err != nil {
			log.Fatalf("Export %s: %v", v.name, err)
		}
	}

	if err := exp.Wait(ctx); err != nil {
		log.Errorf("Exports finished with errors: %v", err)
	} else {
		log.Infof("All %d exports completed", len(exp.Jobs()))
	}

	if *port != 0 {
		<-ctx.Done()
	}
	log.Infof("Shutdown")
}

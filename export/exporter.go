package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"mangrove-composite/jobstore"
	"mangrove-composite/storage"
	"mangrove-composite/util"
)

const (
	RasterKind = "raster"
	VectorKind = "vector"
)

type Exporter struct {
	Dest    storage.Destination
	Store   jobstore.Store
	Encoder Encoder

	// Attempts bounds the uploads of each output file.
	Attempts int
	Backoff  retryablehttp.Backoff
	MinWait  time.Duration
	MaxWait  time.Duration
	// TempDir holds encoded files until they are uploaded. Empty means os.TempDir.
	TempDir string

	sem  *semaphore.Weighted
	now  func() time.Time
	mu   sync.Mutex
	jobs []*Job
}

// New returns an exporter running at most workers jobs at a time.
func New(dest storage.Destination, store jobstore.Store, workers int) *Exporter {
	if workers < 1 {
		workers = 1
	}
	return &Exporter{
		Dest:     dest,
		Store:    store,
		Encoder:  FileEncoder{},
		Attempts: 3,
		Backoff:  retryablehttp.DefaultBackoff,
		MinWait:  time.Second,
		MaxWait:  30 * time.Second,
		sem:      semaphore.NewWeighted(int64(workers)),
		now:      time.Now,
	}
}

// ExportRaster submits img, resampled onto the grid of the region at the requested scale.
// It returns as soon as the job is recorded.
func (e *Exporter) ExportRaster(ctx context.Context, req RasterRequest) (*Job, error) {
	g, err := req.grid()
	if err != nil {
		return nil, err
	}
	img := req.Image.Clone()
	region := req.Region
	job, err := e.submit(ctx, &jobstore.Record{
		Kind:           RasterKind,
		Description:    req.Description,
		Folder:         req.Folder,
		FileNamePrefix: req.FileNamePrefix,
		Format:         string(GeoTIFF),
		Scale:          req.Scale,
	})
	if err != nil {
		return nil, err
	}
	go e.run(ctx, job, func(dir string) ([]string, error) {
		out := img.Resample(g).Clip(region)
		log.Debugf("Encoding %s: %d bands on %dx%d grid", req.Description, len(out.Bands), g.Width, g.Height)
		return e.Encoder.EncodeRaster(out, dir, req.FileNamePrefix)
	})
	return job, nil
}

// ExportVector submits a snapshot of the feature collection.
func (e *Exporter) ExportVector(ctx context.Context, req VectorRequest) (*Job, error) {
	format, err := req.format()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(req.Collection)
	if err != nil {
		return nil, util.Invalidf("collection: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, util.Invalidf("collection: %v", err)
	}
	job, err := e.submit(ctx, &jobstore.Record{
		Kind:           VectorKind,
		Description:    req.Description,
		Folder:         req.Folder,
		FileNamePrefix: req.FileNamePrefix,
		Format:         string(format),
	})
	if err != nil {
		return nil, err
	}
	go e.run(ctx, job, func(dir string) ([]string, error) {
		return e.Encoder.EncodeVector(fc, format, dir, req.FileNamePrefix)
	})
	return job, nil
}

func (e *Exporter) submit(ctx context.Context, rec *jobstore.Record) (*Job, error) {
	now := e.now().UTC()
	rec.ID = uuid.NewString()
	rec.State = jobstore.Ready
	rec.Created = now
	rec.Updated = now
	if err := e.Store.Put(ctx, rec.Clone()); err != nil {
		return nil, util.External("job store", err)
	}
	job := newJob(rec)
	e.mu.Lock()
	e.jobs = append(e.jobs, job)
	e.mu.Unlock()
	log.WithFields(log.Fields{"job": rec.ID, "kind": rec.Kind}).Infof("Submitted export %q", rec.Description)
	return job, nil
}

func (e *Exporter) persist(ctx context.Context, rec *jobstore.Record) {
	// The record is saved even if the run was cancelled.
	if err := e.Store.Put(context.WithoutCancel(ctx), rec); err != nil {
		log.Warnf("Failed to persist job %s: %v", rec.ID, err)
	}
}

func (e *Exporter) setState(ctx context.Context, job *Job, fn func(r *jobstore.Record)) {
	now := e.now().UTC()
	rec := job.update(func(r *jobstore.Record) {
		fn(r)
		r.Updated = now
	})
	e.persist(ctx, rec)
}

func (e *Exporter) run(ctx context.Context, job *Job, encode func(dir string) ([]string, error)) {
	outputs, err := e.execute(ctx, job, encode)
	if err != nil {
		err = util.External(fmt.Sprintf("export %s", job.ID()), err)
		e.setState(ctx, job, func(r *jobstore.Record) {
			r.State = jobstore.Failed
			r.Error = err.Error()
		})
		log.WithField("job", job.ID()).Errorf("Export failed: %v", err)
	} else {
		e.setState(ctx, job, func(r *jobstore.Record) {
			r.State = jobstore.Completed
			r.Outputs = outputs
		})
		log.WithField("job", job.ID()).Infof("Export completed: %v", outputs)
	}
	job.finish(err)
}

func (e *Exporter) execute(ctx context.Context, job *Job, encode func(dir string) ([]string, error)) ([]string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	e.setState(ctx, job, func(r *jobstore.Record) { r.State = jobstore.Running })

	dir, err := os.MkdirTemp(e.TempDir, "export-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	files, err := encode(dir)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	rec := job.Record()
	var outputs []string
	for _, f := range files {
		uri, err := e.upload(ctx, job, rec.Folder, f)
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, uri)
	}
	return outputs, nil
}

// upload puts one file, retrying with backoff.
func (e *Exporter) upload(ctx context.Context, job *Job, folder, path string) (string, error) {
	name := filepath.Base(path)
	attempts := e.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := e.Backoff(e.MinWait, e.MaxWait, i-1, nil)
			log.Warnf("Upload of %s failed (attempt %d/%d), retrying in %v: %v", name, i, attempts, wait, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
		job.update(func(r *jobstore.Record) { r.Attempts++ })
		uri, err := e.put(ctx, folder, name, path)
		if err == nil {
			return uri, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", fmt.Errorf("upload %s: %w", name, lastErr)
}

func (e *Exporter) put(ctx context.Context, folder, name, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return e.Dest.Put(ctx, folder, name, f)
}

// Jobs returns the handles of all submitted jobs in submission order.
func (e *Exporter) Jobs() []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Job(nil), e.jobs...)
}

// Wait blocks until every submitted job finished and joins their errors.
func (e *Exporter) Wait(ctx context.Context) error {
	var errs []error
	for _, j := range e.Jobs() {
		if err := j.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

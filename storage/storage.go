// Package storage holds the destinations export files are written to.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"
)

// Destination stores one named object inside a folder and returns its URI.
type Destination interface {
	Put(ctx context.Context, folder, name string, r io.Reader) (string, error)
}

func objectName(folder, name string) (string, error) {
	for _, p := range []string{folder, name} {
		if strings.Contains(p, "..") || strings.HasPrefix(p, "/") {
			return "", fmt.Errorf("bad object path %q", p)
		}
	}
	if name == "" {
		return "", fmt.Errorf("empty object name")
	}
	return path.Join(folder, name), nil
}

// Open returns the destination for uri: gs://bucket[/prefix], mem:// or a local directory.
func Open(ctx context.Context, uri string) (Destination, error) {
	switch {
	case strings.HasPrefix(uri, "gs://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(uri, "gs://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("missing bucket in %q", uri)
		}
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("cloud storage client: %v", err)
		}
		return &GCS{Client: client, Bucket: bucket, Prefix: prefix}, nil
	case strings.HasPrefix(uri, "mem://"):
		return NewMemory(), nil
	case uri == "":
		return nil, fmt.Errorf("empty destination")
	}
	return &Local{Root: uri}, nil
}

// Local writes objects below a root directory.
type Local struct {
	Root string
}

func (l *Local) Put(ctx context.Context, folder, name string, r io.Reader) (string, error) {
	obj, err := objectName(folder, name)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(l.Root, filepath.FromSlash(obj))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	tmp := dst + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", err
	}
	log.Debugf("Wrote %s", dst)
	return dst, nil
}

// GCS writes objects to a Cloud Storage bucket.
type GCS struct {
	Client *gcs.Client
	Bucket string
	Prefix string
}

func (g *GCS) Put(ctx context.Context, folder, name string, r io.Reader) (string, error) {
	obj, err := objectName(folder, name)
	if err != nil {
		return "", err
	}
	if g.Prefix != "" {
		obj = path.Join(g.Prefix, obj)
	}
	w := g.Client.Bucket(g.Bucket).Object(obj).NewWriter(ctx)
	w.ContentType = contentType(name)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	uri := fmt.Sprintf("gs://%s/%s", g.Bucket, obj)
	log.Debugf("Uploaded %s", uri)
	return uri, nil
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".geojson", ".json":
		return "application/geo+json"
	case ".kml":
		return "application/vnd.google-earth.kml+xml"
	case ".csv":
		return "text/csv"
	}
	return "application/octet-stream"
}

// Memory keeps objects in process. Used for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, folder, name string, r io.Reader) (string, error) {
	obj, err := objectName(folder, name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj] = buf.Bytes()
	return "mem://" + obj, nil
}

func (m *Memory) Get(obj string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[obj]
	return b, ok
}

func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

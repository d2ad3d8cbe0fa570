// Package jobstore persists export job records.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"
)

// State follows the task states of the imagery platform exports replace.
type State string

const (
	Ready     State = "READY"
	Running   State = "RUNNING"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
)

// Done reports whether the state is terminal.
func (s State) Done() bool {
	return s == Completed || s == Failed
}

var ErrNotFound = errors.New("job not found")

type Record struct {
	ID             string    `json:"id" datastore:"-"`
	Kind           string    `json:"kind"`
	Description    string    `json:"description"`
	Folder         string    `json:"folder"`
	FileNamePrefix string    `json:"file_name_prefix"`
	Format         string    `json:"format"`
	Scale          float64   `json:"scale,omitempty"`
	State          State     `json:"state"`
	Error          string    `json:"error,omitempty" datastore:",noindex"`
	Outputs        []string  `json:"outputs,omitempty" datastore:",noindex"`
	Attempts       int       `json:"attempts"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
}

func (r *Record) Clone() *Record {
	out := &Record{}
	if err := copier.Copy(out, r); err != nil {
		*out = *r
	}
	out.Outputs = append([]string(nil), r.Outputs...)
	return out
}

type Store interface {
	Put(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// List returns records, oldest first.
	List(ctx context.Context) ([]*Record, error)
	Close() error
}

// Open returns a store for uri: "memory", "sqlite:<path>" or "datastore:<project>".
func Open(ctx context.Context, uri string) (Store, error) {
	kind, arg, _ := strings.Cut(uri, ":")
	switch kind {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(arg)
	case "datastore":
		return OpenDatastore(ctx, arg)
	}
	return nil, fmt.Errorf("unknown job store %q", uri)
}

func sortRecords(rs []*Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Created.Equal(rs[j].Created) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].Created.Before(rs[j].Created)
	})
}

type Memory struct {
	m  map[string]*Record
	mu sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]*Record)}
}

func (s *Memory) Put(ctx context.Context, r *Record) error {
	if r.ID == "" {
		return fmt.Errorf("record without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[r.ID] = r.Clone()
	return nil
}

func (s *Memory) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *Memory) List(ctx context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.m))
	for _, r := range s.m {
		out = append(out, r.Clone())
	}
	sortRecords(out)
	return out, nil
}

func (s *Memory) Close() error { return nil }

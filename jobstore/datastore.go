package jobstore

import (
	"context"
	"errors"

	"cloud.google.com/go/datastore"
	log "github.com/sirupsen/logrus"
)

const Kind = "ExportJob"

// Datastore keeps records in Cloud Datastore, one entity per job keyed by the job id.
type Datastore struct {
	Client *datastore.Client
}

func OpenDatastore(ctx context.Context, project string) (*Datastore, error) {
	log.Infof("Connecting job store to datastore project %q", project)
	ds, err := datastore.NewClient(ctx, project)
	if err != nil {
		return nil, err
	}
	return &Datastore{Client: ds}, nil
}

func (s *Datastore) Put(ctx context.Context, r *Record) error {
	key := datastore.NameKey(Kind, r.ID, nil)
	_, err := s.Client.Put(ctx, key, r)
	return err
}

func (s *Datastore) Get(ctx context.Context, id string) (*Record, error) {
	var r Record
	if err := s.Client.Get(ctx, datastore.NameKey(Kind, id, nil), &r); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.ID = id
	return &r, nil
}

func (s *Datastore) List(ctx context.Context) ([]*Record, error) {
	var rs []*Record
	keys, err := s.Client.GetAll(ctx, datastore.NewQuery(Kind), &rs)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		rs[i].ID = k.Name
	}
	sortRecords(rs)
	return rs, nil
}

func (s *Datastore) Close() error {
	return s.Client.Close()
}

package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS export_jobs (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	description      TEXT NOT NULL,
	folder           TEXT NOT NULL,
	file_name_prefix TEXT NOT NULL,
	format           TEXT NOT NULL,
	scale            REAL,
	state            TEXT NOT NULL,
	error            TEXT,
	outputs          TEXT,
	attempts         INTEGER NOT NULL DEFAULT 0,
	created_ns       INTEGER NOT NULL,
	updated_ns       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS export_jobs_created ON export_jobs (created_ns);
`

type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("Job store opened at %s", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Put(ctx context.Context, r *Record) error {
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO export_jobs (id, kind, description, folder, file_name_prefix, format, scale,
			state, error, outputs, attempts, created_ns, updated_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			error = excluded.error,
			outputs = excluded.outputs,
			attempts = excluded.attempts,
			updated_ns = excluded.updated_ns`,
		r.ID, r.Kind, r.Description, r.Folder, r.FileNamePrefix, r.Format, r.Scale,
		string(r.State), r.Error, string(outputs), r.Attempts, r.Created.UnixNano(), r.Updated.UnixNano())
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r                Record
		state, outputs   string
		errMsg           sql.NullString
		created, updated int64
	)
	if err := row.Scan(&r.ID, &r.Kind, &r.Description, &r.Folder, &r.FileNamePrefix, &r.Format, &r.Scale,
		&state, &errMsg, &outputs, &r.Attempts, &created, &updated); err != nil {
		return nil, err
	}
	r.State = State(state)
	r.Error = errMsg.String
	if outputs != "" && outputs != "null" {
		if err := json.Unmarshal([]byte(outputs), &r.Outputs); err != nil {
			return nil, err
		}
	}
	r.Created = time.Unix(0, created).UTC()
	r.Updated = time.Unix(0, updated).UTC()
	return &r, nil
}

const selectColumns = `SELECT id, kind, description, folder, file_name_prefix, format, scale,
	state, error, outputs, attempts, created_ns, updated_ns FROM export_jobs`

func (s *SQLite) Get(ctx context.Context, id string) (*Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLite) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_ns, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"deedscout/internal/records"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found in the local database")

// Store is the local SQLite file holding scraped records and the Attio
// upload ledger.
type Store struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// Open creates the file and schema if needed. Each Store gets its own run ID,
// which is written next to every upload it records.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "pragma busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure sqlite")
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &Store{db: db, runID: uuid.NewString(), now: time.Now}, nil
}

func (s *Store) RunID() string { return s.runID }

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAttorneys upserts contacts by key. A row stored under the contact's
// older name|firm key is replaced.
func (s *Store) SaveAttorneys(ctx context.Context, list []records.Attorney) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			insert into attorneys (key, json, source, scraped_at) values (?, ?, ?, ?)
			on conflict(key) do update set json = excluded.json, source = excluded.source, scraped_at = excluded.scraped_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		del, err := tx.PrepareContext(ctx, "delete from attorneys where key = ?")
		if err != nil {
			return err
		}
		defer del.Close()

		now := s.now().Unix()
		for _, a := range list {
			buf, err := json.Marshal(a)
			if err != nil {
				return err
			}
			keys := a.Keys()
			for _, old := range keys[1:] {
				if _, err := del.ExecContext(ctx, old); err != nil {
					return errors.Wrapf(err, "failed to replace %s", a.Name)
				}
			}
			if _, err := stmt.ExecContext(ctx, keys[0], string(buf), a.Source, now); err != nil {
				return errors.Wrapf(err, "failed to save %s", a.Name)
			}
		}
		return nil
	})
}

// Attorneys returns every stored contact, optionally only those from source.
func (s *Store) Attorneys(ctx context.Context, source string) ([]records.Attorney, error) {
	q := "select json from attorneys order by scraped_at, key"
	var args []any
	if source != "" {
		q = "select json from attorneys where source = ? order by scraped_at, key"
		args = append(args, source)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query attorneys")
	}
	defer rows.Close()

	var out []records.Attorney
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a records.Attorney
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, errors.Wrap(err, "corrupt attorney row")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkUploaded records the outcome of sending a contact to the CRM.
func (s *Store) MarkUploaded(ctx context.Context, key, recordID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into uploads (key, record_id, status, uploaded_at, run_id) values (?, ?, ?, ?, ?)
		on conflict(key) do update set
			record_id = excluded.record_id, status = excluded.status,
			uploaded_at = excluded.uploaded_at, run_id = excluded.run_id`,
		key, recordID, status, s.now().Unix(), s.runID)
	return errors.Wrap(err, "failed to mark upload")
}

// Uploaded reports whether key was sent by any earlier run.
func (s *Store) Uploaded(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "select count(*) from uploads where key = ?", key).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to query uploads")
	}
	return n > 0, nil
}

// Upload is one ledger row.
type Upload struct {
	Key        string    `json:"key"`
	RecordID   string    `json:"record_id,omitempty"`
	Status     string    `json:"status"`
	UploadedAt time.Time `json:"uploaded_at"`
	RunID      string    `json:"run_id"`
}

// Uploads lists the ledger rows written by a run, or all rows for an empty runID.
func (s *Store) Uploads(ctx context.Context, runID string) ([]Upload, error) {
	q := "select key, record_id, status, uploaded_at, run_id from uploads"
	var args []any
	if runID != "" {
		q += " where run_id = ?"
		args = append(args, runID)
	}
	rows, err := s.db.QueryContext(ctx, q+" order by uploaded_at, key", args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query uploads")
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var u Upload
		var at int64
		if err := rows.Scan(&u.Key, &u.RecordID, &u.Status, &at, &u.RunID); err != nil {
			return nil, err
		}
		u.UploadedAt = time.Unix(at, 0)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SaveParcel(ctx context.Context, p records.Parcel) error {
	if p.ParcelID == "" {
		return errors.Wrap(records.ErrInvalidRecord, "parcel has no id")
	}
	buf, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into parcels (parcel_id, json, scraped_at) values (?, ?, ?)
		on conflict(parcel_id) do update set json = excluded.json, scraped_at = excluded.scraped_at`,
		p.ParcelID, string(buf), s.now().Unix())
	return errors.Wrap(err, "failed to save parcel")
}

// Parcel loads a saved parcel by id.
func (s *Store) Parcel(ctx context.Context, id string) (records.Parcel, error) {
	var p records.Parcel
	var raw string
	err := s.db.QueryRowContext(ctx, "select json from parcels where parcel_id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return p, errors.Wrapf(ErrNotFound, "parcel %s", id)
	}
	if err != nil {
		return p, errors.Wrapf(err, "failed to load parcel %s", id)
	}
	return p, errors.Wrap(json.Unmarshal([]byte(raw), &p), "corrupt parcel row")
}

// SaveDeeds upserts deeds keyed by their book/page or instrument reference.
func (s *Store) SaveDeeds(ctx context.Context, deeds []records.Deed) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			insert into deeds (ref, county, json, scraped_at) values (?, ?, ?, ?)
			on conflict(ref) do update set county = excluded.county, json = excluded.json, scraped_at = excluded.scraped_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := s.now().Unix()
		for _, d := range deeds {
			if d.Ref.IsZero() {
				continue
			}
			buf, err := json.Marshal(d)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, d.County+":"+d.Ref.String(), d.County, string(buf), now); err != nil {
				return errors.Wrapf(err, "failed to save deed %s", d.Ref)
			}
		}
		return nil
	})
}

// Deeds lists the saved deeds of a county ordered by reference.
func (s *Store) Deeds(ctx context.Context, county string) ([]records.Deed, error) {
	rows, err := s.db.QueryContext(ctx, "select json from deeds where county = ? order by ref", county)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query deeds")
	}
	defer rows.Close()

	var out []records.Deed
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d records.Deed
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, errors.Wrap(err, "corrupt deed row")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

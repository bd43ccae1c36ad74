// Package journal keeps client-side state in a local SQLite database: a
// checksum cache keyed by path and stat data, and the uploads whose bytes
// were sent but whose completion has not been confirmed yet.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/objidx/internal/client/migrations"
	"github.com/dmitrijs2005/objidx/internal/dbx"
	"github.com/dmitrijs2005/objidx/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Upload is one journaled upload.
type Upload struct {
	ObjectID  string
	FileID    string
	Path      string
	URL       string
	Status    string
	UpdatedAt time.Time
}

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating when needed) the journal at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	if dsn != ":memory:" {
		if err := filex.EnsureParentDir(dsn); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// LookupChecksum returns the cached checksum for path when its size and
// mtime still match.
func (j *Journal) LookupChecksum(ctx context.Context, path, algo string, size int64, mtime time.Time) (string, bool, error) {
	query := `select checksum from checksums where path=? and algo=? and size=? and mtime_ns=?`

	var sum string
	err := j.db.QueryRowContext(ctx, query, path, algo, size, mtime.UnixNano()).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup checksum: %w", err)
	}
	return sum, true, nil
}

func (j *Journal) StoreChecksum(ctx context.Context, path, algo string, size int64, mtime time.Time, sum string) error {
	query := `INSERT INTO checksums (path, algo, size, mtime_ns, checksum) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path, algo) DO UPDATE SET size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			checksum = excluded.checksum`

	if _, err := j.db.ExecContext(ctx, query, path, algo, size, mtime.UnixNano(), sum); err != nil {
		return fmt.Errorf("store checksum: %w", err)
	}
	return nil
}

// RecordPending notes that bytes for u.ObjectID are being transferred.
func (j *Journal) RecordPending(ctx context.Context, u Upload) error {
	query := `INSERT INTO uploads (object_id, file_id, path, url, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET file_id = excluded.file_id,
			path = excluded.path,
			url = excluded.url,
			status = excluded.status,
			updated_at = excluded.updated_at`

	_, err := j.db.ExecContext(ctx, query, u.ObjectID, u.FileID, u.Path, u.URL, StatusPending, j.now().UnixNano())
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// MarkCompleted flips a journaled upload to completed. Unknown ids are
// ignored.
func (j *Journal) MarkCompleted(ctx context.Context, objectID string) error {
	return dbx.WithTx(ctx, j.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `update uploads set status=?, updated_at=? where object_id=?`,
			StatusCompleted, j.now().UnixNano(), objectID)
		if err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		return nil
	})
}

// Pending lists uploads still waiting for completion, oldest first.
func (j *Journal) Pending(ctx context.Context) ([]*Upload, error) {
	query := `select object_id, file_id, path, url, status, updated_at from uploads
		where status=? order by updated_at`

	rows, err := j.db.QueryContext(ctx, query, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("error selecting uploads: %w", err)
	}
	defer rows.Close()

	var out []*Upload
	for rows.Next() {
		u := &Upload{}
		var ts int64
		if err := rows.Scan(&u.ObjectID, &u.FileID, &u.Path, &u.URL, &u.Status, &ts); err != nil {
			return nil, fmt.Errorf("error scanning upload: %w", err)
		}
		u.UpdatedAt = time.Unix(0, ts)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

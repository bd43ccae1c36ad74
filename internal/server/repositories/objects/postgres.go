// Package objects persists content objects in PostgreSQL.
package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/dbx"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/google/uuid"
)

const columns = `id, bucket, key, size, checksum, ctime, mime, completed, deleted, extra`

type scanner interface {
	Scan(dest ...any) error
}

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanObject(row scanner) (*models.Object, error) {
	var (
		o     models.Object
		mime  sql.NullString
		extra []byte
	)
	if err := row.Scan(&o.ID, &o.Bucket, &o.Key, &o.Size, &o.Checksum, &o.CreatedAt, &mime, &o.Completed, &o.Deleted, &extra); err != nil {
		return nil, err
	}
	o.Mime = dbx.StringPtr(mime)

	m, err := dbx.ScanJSON(extra)
	if err != nil {
		return nil, err
	}
	o.Extra = m
	return &o, nil
}

// Create inserts a new object. An empty ID is filled with a fresh UUID and
// CreatedAt is taken from the database. A unique violation (live checksum or
// bucket/key) means another ingestion got there first and is reported as
// common.ErrIngestConflict.
func (r *PostgresRepository) Create(ctx context.Context, object *models.Object) error {
	if object.ID == "" {
		object.ID = uuid.NewString()
	}

	extra, err := dbx.JSONArg(object.Extra)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO objects (id, bucket, key, size, checksum, mime, completed, deleted, extra)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE, $7::jsonb)
		RETURNING ctime
	`
	err = r.db.QueryRowContext(ctx, query,
		object.ID, object.Bucket, object.Key, object.Size, object.Checksum, dbx.StringArg(object.Mime), extra).
		Scan(&object.CreatedAt)
	if err != nil {
		if ok, constraint := dbx.IsUniqueViolation(err); ok {
			return fmt.Errorf("insert object (%s): %w", constraint, common.ErrIngestConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}

	object.Completed = false
	object.Deleted = false
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Object, error) {
	o, err := scanObject(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Object, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM objects WHERE id = $1`, id)
}

// GetByIDForUpdate is GetByID with a row lock; call it inside a transaction.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Object, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM objects WHERE id = $1 FOR UPDATE`, id)
}

// FindForIngest returns the object that owns checksum, locked for update.
// A live row wins over deleted ones; a deleted row is returned only when no
// live row exists, so the caller can refuse to resurrect it.
func (r *PostgresRepository) FindForIngest(ctx context.Context, checksum []byte) (*models.Object, error) {
	query := `SELECT ` + columns + ` FROM objects
		WHERE checksum = $1
		ORDER BY deleted ASC, ctime DESC
		LIMIT 1
		FOR UPDATE`
	return r.getOne(ctx, query, checksum)
}

// SelectByChecksum lists every object, deleted or not, with the checksum.
func (r *PostgresRepository) SelectByChecksum(ctx context.Context, checksum []byte) ([]*models.Object, error) {
	query := `SELECT ` + columns + ` FROM objects WHERE checksum = $1 ORDER BY ctime, id`
	rows, err := r.db.QueryContext(ctx, query, checksum)
	if err != nil {
		return nil, fmt.Errorf("failed to select objects: %w", err)
	}
	defer rows.Close()

	var result []*models.Object
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkCompleted sets completed=true. Exactly one row must be affected.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string) error {
	query := `UPDATE objects SET completed = TRUE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		if dbx.IsGuardViolation(err) {
			return fmt.Errorf("mark completed: %w", common.ErrFrozenColumn)
		}
		return fmt.Errorf("failed to mark completed: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	switch ra {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
}

// UpdateMetadata writes the mergeable columns (mime, extra) back.
func (r *PostgresRepository) UpdateMetadata(ctx context.Context, object *models.Object) error {
	extra, err := dbx.JSONArg(object.Extra)
	if err != nil {
		return err
	}

	query := `UPDATE objects SET mime = $2, extra = $3::jsonb WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, object.ID, dbx.StringArg(object.Mime), extra)
	if err != nil {
		if dbx.IsGuardViolation(err) {
			return fmt.Errorf("update object: %w", common.ErrFrozenColumn)
		}
		return fmt.Errorf("failed to update object: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

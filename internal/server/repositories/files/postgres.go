// Package files persists File references (url → object) in PostgreSQL.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/dbx"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/google/uuid"
)

const columns = `id, obj_id, ctime, mtime, url, direct, partial, extra, ul_user, ul_sw, ul_host`

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

func scanFile(row scanner) (*models.File, error) {
	var (
		f                    models.File
		objID                sql.NullString
		mtime                sql.NullTime
		extra                []byte
		user, software, host sql.NullString
	)
	err := row.Scan(&f.ID, &objID, &f.CreatedAt, &mtime, &f.URL, &f.Direct, &f.Partial, &extra, &user, &software, &host)
	if err != nil {
		return nil, err
	}
	f.ObjectID = dbx.StringPtr(objID)
	f.ModifiedAt = dbx.TimePtr(mtime)
	f.Uploader = models.Uploader{User: user.String, Software: software.String, Host: host.String}

	m, err := dbx.ScanJSON(extra)
	if err != nil {
		return nil, err
	}
	f.Extra = m
	return &f, nil
}

// Create inserts a file reference. The (url, object) pair is unique; a
// violation means a concurrent ingestion created it first.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}

	extra, err := dbx.JSONArg(file.Extra)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO files (id, obj_id, mtime, url, direct, partial, extra, ul_user, ul_sw, ul_host)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
		RETURNING ctime
	`
	err = r.db.QueryRowContext(ctx, query,
		file.ID, dbx.StringArg(file.ObjectID), dbx.TimeArg(file.ModifiedAt), file.URL, file.Direct, file.Partial, extra,
		dbx.EmptyAsNull(file.Uploader.User), dbx.EmptyAsNull(file.Uploader.Software), dbx.EmptyAsNull(file.Uploader.Host)).
		Scan(&file.CreatedAt)
	if err != nil {
		if ok, constraint := dbx.IsUniqueViolation(err); ok {
			return fmt.Errorf("insert file (%s): %w", constraint, common.ErrIngestConflict)
		}
		if dbx.IsForeignKeyViolation(err) {
			return fmt.Errorf("insert file: object: %w", common.ErrorNotFound)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM files WHERE id = $1`, id)
}

// GetByURLAndObject returns the file for the (url, object) pair, locked for
// update.
func (r *PostgresRepository) GetByURLAndObject(ctx context.Context, url, objectID string) (*models.File, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM files WHERE url = $1 AND obj_id = $2 FOR UPDATE`, url, objectID)
}

// UpdateMetadata writes the mergeable columns (mtime, extra) back.
func (r *PostgresRepository) UpdateMetadata(ctx context.Context, file *models.File) error {
	extra, err := dbx.JSONArg(file.Extra)
	if err != nil {
		return err
	}

	query := `UPDATE files SET mtime = $2, extra = $3::jsonb WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, file.ID, dbx.TimeArg(file.ModifiedAt), extra)
	if err != nil {
		if dbx.IsGuardViolation(err) {
			return fmt.Errorf("update file: %w", common.ErrFrozenColumn)
		}
		return fmt.Errorf("failed to update file: %w", err)
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

func (r *PostgresRepository) selectMany(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SelectByURL(ctx context.Context, url string) ([]*models.File, error) {
	return r.selectMany(ctx, `SELECT `+columns+` FROM files WHERE url = $1 ORDER BY ctime, id`, url)
}

// SelectByURLPrefix matches stored urls starting with prefix. LIKE
// metacharacters in prefix are matched literally.
func (r *PostgresRepository) SelectByURLPrefix(ctx context.Context, prefix string) ([]*models.File, error) {
	query := `SELECT ` + columns + ` FROM files WHERE url LIKE $1 ESCAPE '\' ORDER BY url, ctime, id`
	return r.selectMany(ctx, query, escapeLike(prefix)+"%")
}

// SelectByExtraTag matches files whose extra object holds key with the
// string value.
func (r *PostgresRepository) SelectByExtraTag(ctx context.Context, key, value string) ([]*models.File, error) {
	query := `SELECT ` + columns + ` FROM files WHERE extra @> jsonb_build_object($1::text, $2::text) ORDER BY ctime, id`
	return r.selectMany(ctx, query, key, value)
}

func (r *PostgresRepository) SelectByObject(ctx context.Context, objectID string) ([]*models.File, error) {
	return r.selectMany(ctx, `SELECT `+columns+` FROM files WHERE obj_id = $1 ORDER BY ctime, id`, objectID)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/objidx/internal/dbx"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/files"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/objects"
)

// RepositoryManager vends repositories bound to a *sql.DB or a *sql.Tx so
// that services can run several repository calls in one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Objects(db dbx.DBTX) objects.Repository
	Files(db dbx.DBTX) files.Repository
}

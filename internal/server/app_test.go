package server

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/objidx/internal/blobstore"
	"github.com/dmitrijs2005/objidx/internal/dbx"
	"github.com/dmitrijs2005/objidx/internal/server/config"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/files"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/objects"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/objidx/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRM struct {
	repomanager.RepositoryManager
	migrateErr error
}

func (s stubRM) RunMigrations(context.Context, *sql.DB) error { return s.migrateErr }
func (s stubRM) Objects(dbx.DBTX) objects.Repository          { return nil }
func (s stubRM) Files(dbx.DBTX) files.Repository              { return nil }

type stubStore struct{ services.BlobStore }

type stubCache struct{ services.PresignCache }

func withSeams(t *testing.T, migrateErr, storeErr, cacheErr error) (sqlmock.Sqlmock, *int) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cacheCloses := new(int)
	oldOpen, oldStore, oldCache, oldRM := openDB, newBlobStore, connectCache, newRepoManager
	t.Cleanup(func() {
		openDB, newBlobStore, connectCache, newRepoManager = oldOpen, oldStore, oldCache, oldRM
	})

	openDB = func(string) (*sql.DB, error) { return db, nil }
	newRepoManager = func() repomanager.RepositoryManager { return stubRM{migrateErr: migrateErr} }
	newBlobStore = func(context.Context, blobstore.Config) (services.BlobStore, error) {
		if storeErr != nil {
			return nil, storeErr
		}
		return stubStore{}, nil
	}
	connectCache = func(context.Context, string) (services.PresignCache, func() error, error) {
		if cacheErr != nil {
			return nil, nil, cacheErr
		}
		return stubCache{}, func() error { *cacheCloses++; return nil }, nil
	}
	return mock, cacheCloses
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.LogLevel = "error"
	return c
}

func TestNewApp_InvalidLogger(t *testing.T) {
	c := testConfig()
	c.LogBackend = "nope"
	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
}

func TestNewApp_WiresServices(t *testing.T) {
	mock, closes := withSeams(t, nil, nil, nil)
	c := testConfig()
	c.RedisURL = "redis://localhost:6379/0"

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	assert.NotNil(t, app.ingest)
	assert.NotNil(t, app.query)
	assert.NotNil(t, app.resolver)

	mock.ExpectClose()
	app.Close()
	assert.Equal(t, 1, *closes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_FailuresCloseDB(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name                    string
		migrate, store, cacheEr error
	}{
		{"migrations", boom, nil, nil},
		{"blob store", nil, boom, nil},
		{"cache", nil, nil, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, _ := withSeams(t, tt.migrate, tt.store, tt.cacheEr)
			mock.ExpectClose()
			c := testConfig()
			c.RedisURL = "redis://localhost:6379/0"

			_, err := NewApp(context.Background(), c)
			require.ErrorIs(t, err, boom)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	mock, _ := withSeams(t, nil, nil, nil)
	c := testConfig()
	c.EndpointAddrHTTP = "127.0.0.1:0"

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	mock.ExpectClose()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

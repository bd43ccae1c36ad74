// Package httpapi exposes the object index over HTTP/JSON.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/objidx/internal/logging"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/dmitrijs2005/objidx/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingester registers content and completes uploads.
type Ingester interface {
	Ingest(ctx context.Context, req *services.IngestRequest) (*models.IngestResult, error)
	CompleteIngestion(ctx context.Context, id string) (*models.Object, error)
}

// Querier serves lookups.
type Querier interface {
	GetObject(ctx context.Context, id string) (*models.Object, []*models.File, error)
	GetFile(ctx context.Context, id string) (*models.File, *models.Object, error)
	FindObjectsByChecksum(ctx context.Context, checksumHex string) ([]*models.Object, error)
	SearchFiles(ctx context.Context, filter services.FileFilter) ([]*models.File, error)
}

// Resolver resolves download locators.
type Resolver interface {
	ResolveDownload(ctx context.Context, id string, presigned bool) (*models.Locator, error)
}

// Pinger reports database liveness; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const shutdownTimeout = 10 * time.Second

type HTTPServer struct {
	address   string
	ingest    Ingester
	query     Querier
	resolver  Resolver
	pinger    Pinger
	logger    logging.Logger
	jwtSecret []byte
}

// NewHTTPServer wires the handlers. An empty secretKey disables token
// checks.
func NewHTTPServer(a string, l logging.Logger, ingest Ingester, query Querier, resolver Resolver,
	pinger Pinger, secretKey string) *HTTPServer {
	return &HTTPServer{
		address:   a,
		logger:    l.With("module", "http_server"),
		ingest:    ingest,
		query:     query,
		resolver:  resolver,
		pinger:    pinger,
		jwtSecret: []byte(secretKey),
	}
}

// Router builds the route table.
func (s *HTTPServer) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/upload/", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/object/", s.handleObjectList).Methods(http.MethodGet)
	api.HandleFunc("/object/{id}/", s.handleObjectGet).Methods(http.MethodGet)
	api.HandleFunc("/object/{id}/", s.handleObjectComplete).Methods(http.MethodPut)
	api.HandleFunc("/object/{id}/download", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/file/", s.handleFileList).Methods(http.MethodGet)
	api.HandleFunc("/file/{id}/", s.handleFileGet).Methods(http.MethodGet)

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

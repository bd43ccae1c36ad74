package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/objidx/internal/blobstore"
	"github.com/dmitrijs2005/objidx/internal/client/client"
	"github.com/dmitrijs2005/objidx/internal/client/config"
	"github.com/dmitrijs2005/objidx/internal/client/journal"
	"github.com/dmitrijs2005/objidx/internal/client/services"
)

// App is what every subcommand runs against.
type App struct {
	config  *config.Config
	client  client.Client
	objects services.ObjectService
	out     *printer
	closers []func() error
}

// Seams for tests.
var (
	newAPIClient = func(cfg *config.Config) client.Client {
		return client.NewHTTPClient(cfg.Server, cfg.Token)
	}
	openJournal = func(ctx context.Context, dsn string) (services.Journal, func() error, error) {
		j, err := journal.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return j, j.Close, nil
	}
	newBlobStore = func(ctx context.Context, cfg *config.Config) (services.BlobStore, error) {
		s, err := blobstore.New(ctx, blobstore.Config{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			BaseEndpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

// NewApp builds the client stack. The journal is skipped when cfg.Journal
// is empty and S3 credentials are used only when an access key is set.
func NewApp(ctx context.Context, cfg *config.Config, stdout io.Writer) (*App, error) {
	out, err := newPrinter(stdout, cfg.Output)
	if err != nil {
		return nil, err
	}

	app := &App{config: cfg, client: newAPIClient(cfg), out: out}

	var j services.Journal
	if cfg.Journal != "" {
		jj, closeFn, err := openJournal(ctx, cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		j = jj
		app.closers = append(app.closers, closeFn)
	}

	var blobs services.BlobStore
	if cfg.S3AccessKey != "" {
		blobs, err = newBlobStore(ctx, cfg)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("object storage: %w", err)
		}
	}

	app.objects = services.NewObjectService(app.client, j, blobs, services.Settings{
		Bucket:   cfg.Bucket,
		Algo:     cfg.Algo,
		User:     cfg.User,
		Software: cfg.Software,
		Host:     cfg.Host,
	})

	return app, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

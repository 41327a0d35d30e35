// Package app wires the publication workflow together from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"publication/api/internal/blobstore"
	"publication/api/internal/changes"
	"publication/api/internal/config"
	"publication/api/internal/contentsync"
	"publication/api/internal/docdiff"
	"publication/api/internal/document"
	"publication/api/internal/history"
	"publication/api/internal/lock"
	"publication/api/internal/messages"
	"publication/api/internal/registry"
	"publication/api/internal/search"
	"publication/api/internal/store"
	"publication/api/internal/wfconfig"
	"publication/api/internal/workflow"
)

// DocumentStore is everything the workflow needs from a store. Both
// store.Memory and store.SQLStore satisfy it.
type DocumentStore interface {
	Get(ctx context.Context, ref document.Ref) (*document.Document, error)
	Save(ctx context.Context, doc *document.Document, opts store.SaveOptions) error
	Delete(ctx context.Context, doc *document.Document) error
	Find(ctx context.Context, q store.Query) ([]document.Ref, error)
	Refs(ctx context.Context, wiki string) ([]document.Ref, error)
	UniqueRef(ctx context.Context, wiki, space, name string) (document.Ref, error)
	Subscribe(l store.Listener)

	LoadAttachments(ctx context.Context, doc *document.Document) error
	AttachmentContent(ctx context.Context, att *document.Attachment) ([]byte, error)
	Merge(ctx context.Context, base, current, next *document.Document) (docdiff.MergeResult, error)
	ContentDiff(from, to *document.Document) []docdiff.Delta
	MetadataDiff(from, to *document.Document) []docdiff.MetadataChange
	ObjectDiff(from, to *document.Document) []docdiff.ObjectChange
}

// Options override parts of the wiring. Zero values mean "build from
// configuration".
type Options struct {
	Store DocumentStore
	Redis *redis.Client
}

type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Store    DocumentStore
	Service  *Service
	Machine  *workflow.Machine
	Registry *registry.Registry
	Search   *search.Service
	History  *history.Archive

	db      *sql.DB
	redis   *redis.Client
	meili   *search.Meili
	closers []func() error
}

// Build connects every configured backend and subscribes the listeners to
// the store. Optional backends that are not configured are left out: no
// Redis means in-process locks and no config cache, no Meilisearch means no
// index, an empty history dir means no revision archive.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config

	a.Store = opts.Store
	if a.Store == nil {
		blobs, err := a.openBlobs(ctx)
		if err != nil {
			return err
		}
		db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open document store: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		a.Store = store.NewSQLStore(db, blobs)
	}

	a.redis = opts.Redis
	if a.redis == nil && cfg.RedisURL != "" {
		client, err := lock.Connect(cfg.RedisURL)
		if err != nil {
			return err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
	}

	var configs wfconfig.Resolver = wfconfig.NewStoreResolver(a.Store)
	var locks lock.Locker = lock.NewLocal()
	if a.redis != nil {
		cache := wfconfig.NewCache(a.redis, configs, cfg.ConfigCacheTTL(), a.Log.With().Str("component", "wfconfig").Logger())
		a.Store.Subscribe(cache)
		configs = cache
		locks = lock.NewRedis(a.redis, cfg.LockTTL(), a.Log.With().Str("component", "lock").Logger())
	}

	if cfg.HistoryDir != "" {
		a.History = history.New(cfg.HistoryDir, a.Log.With().Str("component", "history").Logger())
		a.Store.Subscribe(a.History)
	}

	if cfg.MeiliURL != "" {
		a.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, a.Log.With().Str("component", "search").Logger())
		a.closers = append(a.closers, func() error { a.meili.Close(); return nil })
		a.Search = search.NewService(a.meili, a.Log.With().Str("component", "search").Logger())
		a.Store.Subscribe(a.Search)
	} else {
		a.Search = search.NewService(nil, a.Log)
	}

	catalog, err := messages.New(cfg.Language)
	if err != nil {
		a.Log.Warn().Err(err).Str("language", cfg.Language).Msg("unknown language, using English messages")
		catalog = nil
	}

	a.Registry = registry.New(a.Store)
	a.Machine = workflow.New(workflow.Deps{
		Store:    a.Store,
		Registry: a.Registry,
		Configs:  configs,
		Sync:     contentsync.New(a.Store),
		Detector: changes.New(a.Store),
		Messages: catalog,
		Log:      a.Log.With().Str("component", "workflow").Logger(),
	})
	a.Service = NewService(a.Machine, locks, a.Store, a.Registry, a.Log)
	return nil
}

func (a *App) openBlobs(ctx context.Context) (blobstore.Store, error) {
	cfg := a.Config
	if cfg.S3Endpoint == "" {
		return blobstore.NewMemory(), nil
	}
	blobs, err := blobstore.NewS3(ctx, blobstore.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		PathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("open attachment store: %w", err)
	}
	return blobs, nil
}

// Migrate applies the embedded migrations of the configured dialect. It is a
// no-op when the store is not SQL backed.
func (a *App) Migrate(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	migrations, err := store.Migrations(a.Config.DatabaseDriver)
	if err != nil {
		return err
	}
	if err := store.ApplyMigrations(ctx, a.db, migrations); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Bootstrap writes the workflow configurations of the YAML file at path into
// the configured wiki.
func (a *App) Bootstrap(ctx context.Context, path string) ([]document.Ref, error) {
	if path == "" {
		return nil, errors.New("bootstrap: no workflows file configured")
	}
	file, err := wfconfig.LoadFile(path)
	if err != nil {
		return nil, err
	}
	refs, err := wfconfig.Seed(ctx, a.Store, a.Config.Wiki, a.Config.Actor, file)
	if err != nil {
		return refs, fmt.Errorf("seed workflow configurations: %w", err)
	}
	a.Log.Info().Int("saved", len(refs)).Int("workflows", len(file.Workflows)).Msg("bootstrapped workflow configurations")
	return refs, nil
}

// Reindex rebuilds the search index of the configured wiki.
func (a *App) Reindex(ctx context.Context) (int, error) {
	if a.meili != nil && !a.meili.Healthy() {
		return 0, errors.New("reindex: meilisearch is not reachable")
	}
	return a.Search.Reindex(ctx, a.Store, a.Config.Wiki)
}

// Health reports the reachability of every configured backend.
func (a *App) Health(ctx context.Context) map[string]bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out := map[string]bool{}
	if a.db != nil {
		out["database"] = a.db.PingContext(ctx) == nil
	}
	if a.redis != nil {
		out["redis"] = a.redis.Ping(ctx).Err() == nil
	}
	if a.meili != nil {
		out["search"] = a.meili.Healthy()
	}
	return out
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package app initializes and holds long-lived services for one publishing
// session, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/difflog/internal/api"
	"github.com/JakeFAU/difflog/internal/clock/system"
	"github.com/JakeFAU/difflog/internal/config"
	idgen "github.com/JakeFAU/difflog/internal/id/uuid"
	"github.com/JakeFAU/difflog/internal/metrics"
	"github.com/JakeFAU/difflog/internal/progress"
	"github.com/JakeFAU/difflog/internal/progress/sinks"
	"github.com/JakeFAU/difflog/internal/storage/gcs"
	"github.com/JakeFAU/difflog/internal/storage/local"
	"github.com/JakeFAU/difflog/internal/storage/memory"
	"github.com/JakeFAU/difflog/internal/storage/postgres"
	"github.com/JakeFAU/difflog/internal/store"
)

// Options overrides process-wide defaults, mainly for tests.
type Options struct {
	// Registerer receives sink and publisher collectors (default: the
	// Prometheus default registerer, which /metrics serves).
	Registerer prometheus.Registerer
	// Stdout is used when output.path is "-" (default os.Stdout).
	Stdout io.Writer
	// Session fixes the session id instead of generating one.
	Session uuid.UUID
	// Clock dates archives (default: the system clock).
	Clock interface{ Now() time.Time }
}

// App holds the shared services of one publishing session.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	session uuid.UUID

	members   []progress.Sink
	sink      *sinks.MultiSink
	replica   *sinks.ReplicaSink
	archive   *sinks.ArchiveSink
	frames    store.FrameRepository
	observer  *metrics.PublisherMetrics
	sinkNames []string

	// closers run after the sinks are closed, in reverse order.
	closers []func() error
}

// New builds every sink enabled in cfg. It fails fast: a sink that cannot be
// constructed aborts startup and releases what was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	session := opts.Session
	if session == uuid.Nil {
		if session, err = idgen.New().NewSessionID(); err != nil {
			return nil, err
		}
	}

	a := &App{cfg: cfg, logger: logger.With(zap.String("session", session.String())), session: session}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	sinkMetrics, err := sinks.NewSinkMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	if a.observer, err = metrics.NewPublisherMetrics(opts.Registerer); err != nil {
		return nil, err
	}

	add := func(name string, s progress.Sink) {
		a.members = append(a.members, sinkMetrics.Wrap(name, s))
		a.sinkNames = append(a.sinkNames, name)
	}

	a.replica = sinks.NewReplicaSink()
	add("replica", a.replica)

	if cfg.Output.LogFrames {
		add("log", sinks.NewLogSink(a.logger.Named("frames")))
	}

	switch cfg.Output.Path {
	case "":
	case "-":
		ws, err := sinks.NewWriterSink(opts.Stdout, cfg.Output.Compression)
		if err != nil {
			return nil, err
		}
		add("stdout", ws)
	default:
		fs, err := sinks.OpenFileSink(cfg.Output.Path, cfg.Output.Compression)
		if err != nil {
			return nil, err
		}
		add("file", fs)
	}

	if cfg.Redis.Enabled {
		rs, err := a.redisSink(ctx)
		if err != nil {
			return nil, err
		}
		add("redis", rs)
	}

	if cfg.PubSub.Enabled {
		ps, err := a.pubsubSink(ctx)
		if err != nil {
			return nil, err
		}
		add("pubsub", ps)
	}

	if cfg.Postgres.Enabled {
		repo, err := OpenFrameStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.frames = repo
		a.closers = append(a.closers, func() error { repo.Close(); return nil })
		ss, err := sinks.NewStoreSink(repo, session)
		if err != nil {
			return nil, err
		}
		add("postgres", ss)
	}

	if cfg.Archive.Enabled {
		blobs, err := a.blobStore(ctx)
		if err != nil {
			return nil, err
		}
		arch, err := sinks.NewArchiveSink(blobs, sinks.ArchiveConfig{
			Prefix:      cfg.Archive.Prefix,
			Compression: cfg.Archive.Compression,
			Session:     session,
			Now:         opts.Clock.Now,
		})
		if err != nil {
			return nil, err
		}
		a.archive = arch
		add("archive", arch)
	}

	a.sink = sinks.NewMultiSink(a.members...)
	a.logger.Info("sinks ready", zap.Strings("sinks", a.sinkNames))
	return a, nil
}

// OpenFrameStore connects the Postgres frame repository.
func OpenFrameStore(ctx context.Context, cfg config.PostgresConfig) (*postgres.FrameStore, error) {
	repo, err := postgres.NewFrameStore(ctx, postgres.FrameStoreConfig{
		DSN:      cfg.DSN,
		Table:    cfg.Table,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init frame store: %w", err)
	}
	return repo, nil
}

func (a *App) redisSink(ctx context.Context) (*sinks.RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         a.cfg.Redis.Addr,
		Password:     a.cfg.Redis.Password,
		DB:           a.cfg.Redis.DB,
		ReadTimeout:  a.cfg.Redis.Timeout,
		WriteTimeout: a.cfg.Redis.Timeout,
	})
	a.closers = append(a.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, a.cfg.Redis.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", a.cfg.Redis.Addr, err)
	}
	return sinks.NewRedisSink(client, sinks.RedisConfig{
		Stream:  a.cfg.Redis.Stream,
		MaxLen:  a.cfg.Redis.MaxLen,
		Session: a.session,
	})
}

func (a *App) pubsubSink(ctx context.Context) (*sinks.PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return sinks.NewPubSubSink(client.Topic(a.cfg.PubSub.TopicName), a.session)
}

func (a *App) blobStore(ctx context.Context) (store.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket})
	case config.BackendMemory:
		return memory.NewBlobStore(), nil
	default:
		return local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
	}
}

// Logger returns the session-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Session returns the session id tagging remote frames.
func (a *App) Session() uuid.UUID {
	return a.session
}

// Sink returns the fan-out sink a Publisher should write to.
func (a *App) Sink() progress.Sink {
	return a.sink
}

// SinkNames lists the enabled sinks in fan-out order.
func (a *App) SinkNames() []string {
	return append([]string(nil), a.sinkNames...)
}

// Replica returns the in-process replica fed by the sink chain.
func (a *App) Replica() *sinks.ReplicaSink {
	return a.replica
}

// ArchiveURI is the uploaded archive location, empty until Close.
func (a *App) ArchiveURI() string {
	if a.archive == nil {
		return ""
	}
	return a.archive.URI()
}

// ArchiveDigest is the sha256 digest of the uploaded archive, empty until
// Close.
func (a *App) ArchiveDigest() string {
	if a.archive == nil {
		return ""
	}
	return a.archive.Digest()
}

// PublisherConfig derives the publisher settings, instrumented with metrics.
func (a *App) PublisherConfig(ctx context.Context) progress.Config {
	return progress.Config{
		Interval:    a.cfg.Publisher.Interval,
		SinkTimeout: a.cfg.Publisher.SinkTimeout,
		ShowTrace:   a.cfg.Publisher.ShowTrace,
		BaseContext: ctx,
		Logger:      a.logger.Named("publisher"),
		Observer:    a.observer,
	}
}

// NewPublisher starts a Publisher writing to the configured sinks.
func (a *App) NewPublisher(ctx context.Context) *progress.Publisher {
	return progress.NewPublisher(a.sink, a.PublisherConfig(ctx))
}

// Server builds the HTTP API over the live replica and the frame store.
func (a *App) Server() *api.Server {
	return api.NewServer(a.replica, a.frames, a.logger.Named("api"))
}

// Close closes every sink, then releases clients in reverse order. The
// publisher must be stopped first.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.sink == nil && len(a.members) > 0 {
		a.sink = sinks.NewMultiSink(a.members...)
	}
	if a.sink != nil {
		err = multierr.Append(err, a.sink.Close(ctx))
		a.sink = nil
		a.members = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	if err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
	}
	return err
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/docstore/memstore"
	"github.com/yungbote/bookimport/internal/importer"
	"github.com/yungbote/bookimport/internal/importer/media"
	"github.com/yungbote/bookimport/internal/observability"
	"github.com/yungbote/bookimport/internal/platform/gcp"
	"github.com/yungbote/bookimport/internal/platform/logger"
	"github.com/yungbote/bookimport/internal/progress"
)

type App struct {
	Log       *logger.Logger
	Cfg       Config
	Store     docstore.Store
	Bucket    gcp.BucketService
	Progress  *progress.Tracker
	Publisher progress.Publisher

	shutdownOtel func(context.Context) error
}

// New opens every collaborator the configuration asks for. Dry runs open neither the
// document store nor the bucket.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Log: log, Cfg: cfg, Progress: progress.NewTracker()}

	shutdown, err := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: "bookimport",
		Environment: cfg.Environment,
		Exporter:    cfg.OtelExporter,
		Endpoint:    cfg.OtelEndpoint,
		Headers:     observability.ParseHeaders(cfg.OtelHeaders),
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		log.Warn("OpenTelemetry init failed (continuing without tracing)", "error", err)
		shutdown = nil
	}
	a.shutdownOtel = shutdown

	if cfg.DryRun {
		a.Store = memstore.New()
	} else {
		store, err := resolveDocStore(ctx, log, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = store

		bucket, err := resolveBlobStore(log, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bucket = bucket
	}

	if cfg.RedisAddr != "" {
		pub, err := progress.NewRedisPublisher(log, progress.RedisConfig{Addr: cfg.RedisAddr, Channel: cfg.RedisProgressChannel})
		if err != nil {
			log.Warn("Progress publisher unavailable (continuing)", "redis_addr", cfg.RedisAddr, "error", err)
		} else {
			a.Publisher = pub
		}
	}
	return a, nil
}

// ImportOptions maps the configuration onto a run. onlyUnits may be nil.
func (a *App) ImportOptions(onlyUnits map[string]bool) importer.Options {
	policy := importer.ContinueOnError
	if a.Cfg.FailFast {
		policy = importer.FailFast
	}
	return importer.Options{
		Policy:            policy,
		DryRun:            a.Cfg.DryRun,
		UnitConcurrency:   a.Cfg.Concurrency,
		UploadConcurrency: a.Cfg.UploadConcurrency,
		WriteTimeout:      a.Cfg.WriteTimeout,
		UploadTimeout:     a.Cfg.UploadTimeout,
		MaxAttempts:       a.Cfg.MaxAttempts,
		MediaRoot:         a.Cfg.MediaRoot,
		StagingDir:        a.Cfg.StagingDir,
		UploadContentJSON: a.Cfg.UploadContentJSON,
		OnlyUnits:         onlyUnits,
	}
}

func (a *App) Importer(onlyUnits map[string]bool) *importer.Importer {
	var blobs media.Uploader
	if a.Bucket != nil {
		blobs = a.Bucket
	}
	return importer.New(a.Log, a.Store, blobs, a.Progress, a.ImportOptions(onlyUnits))
}

// ReportProgress publishes snapshots until ctx ends. It returns at once when no publisher
// is configured.
func (a *App) ReportProgress(ctx context.Context) {
	if a.Publisher == nil {
		return
	}
	progress.Report(ctx, a.Log, a.Progress, a.Publisher, a.Cfg.ProgressInterval)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Publisher != nil {
		_ = a.Publisher.Close()
	}
	if a.Bucket != nil {
		_ = a.Bucket.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("Document store close failed", "error", err)
		}
	}
	if a.shutdownOtel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("OpenTelemetry shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bbcollect/ap-docflow/internal/config"
	"github.com/bbcollect/ap-docflow/internal/core/ports"
	"github.com/bbcollect/ap-docflow/internal/core/usecase"
	"github.com/bbcollect/ap-docflow/internal/infrastructure/classifier/mlserver"
	"github.com/bbcollect/ap-docflow/internal/infrastructure/extractor/pdftext"
	"github.com/bbcollect/ap-docflow/internal/infrastructure/queue/nats"
	"github.com/bbcollect/ap-docflow/internal/infrastructure/repository/postgres"
	"github.com/bbcollect/ap-docflow/internal/infrastructure/resilience"
	"github.com/bbcollect/ap-docflow/internal/infrastructure/storage/localfs"
	"github.com/bbcollect/ap-docflow/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Bus   ports.EventBus
	Store ports.DocumentStore
	Blobs *localfs.Storage

	IngestUC      ports.DocumentIngestor
	PreClassifyUC ports.DocumentPreClassifier
	ReviewUC      ports.ReviewWorkflow
	BinderUC      ports.BinderWorkflow

	closeFn func()
}

func New(ctx context.Context, service string, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewDocumentStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	blobs, err := localfs.New(cfg.StoragePath, cfg.BlobBaseURL, cfg.BlobSignKey, cfg.BlobURLTTL)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSStagedSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	classifier := mlserver.New(cfg.ClassifierURL, executor)
	extractor := pdftext.NewExtractor(blobs)

	ingestUC := usecase.NewIngestService(store, blobs, bus)
	preClassifyUC := usecase.NewPreClassifyService(store, extractor, classifier, logger)
	reviewUC := usecase.NewReviewService(store, blobs, bus, logger)
	binderUC := usecase.NewBinderService(store, blobs, logger, cfg.JoinConcurrency)

	return &App{
		Config: cfg,
		Logger: logger,

		Bus:   bus,
		Store: store,
		Blobs: blobs,

		IngestUC:      ingestUC,
		PreClassifyUC: preClassifyUC,
		ReviewUC:      reviewUC,
		BinderUC:      binderUC,

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

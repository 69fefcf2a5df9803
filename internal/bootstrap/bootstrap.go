// Package bootstrap provides dependency initialization for the shortsgen API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/maauso/shortsgen-api/internal/asr"
	"github.com/maauso/shortsgen-api/internal/audio"
	"github.com/maauso/shortsgen-api/internal/auth"
	"github.com/maauso/shortsgen-api/internal/captions"
	"github.com/maauso/shortsgen-api/internal/config"
	"github.com/maauso/shortsgen-api/internal/credits"
	"github.com/maauso/shortsgen-api/internal/httpretry"
	"github.com/maauso/shortsgen-api/internal/job"
	"github.com/maauso/shortsgen-api/internal/media"
	"github.com/maauso/shortsgen-api/internal/notify"
	"github.com/maauso/shortsgen-api/internal/pipeline"
	"github.com/maauso/shortsgen-api/internal/segments"
	"github.com/maauso/shortsgen-api/internal/storage"
)

const connectTimeout = 10 * time.Second

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	JobService *job.Service
	Accountant *credits.Accountant
	Verifier   auth.Verifier

	closers []func(context.Context) error
}

// Close releases database connections in reverse order of creation.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Verifier: auth.NewHS256(cfg.JWTSecret)}

	ok := false
	defer func() {
		if !ok {
			_ = deps.Close(context.Background())
		}
	}()

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	var mongoClient *mongo.Client
	if cfg.StoreBackend == config.BackendMongo || cfg.LedgerBackend == config.BackendMongo {
		if mongoClient, err = deps.connectMongo(ctx, cfg.MongoURI); err != nil {
			return nil, err
		}
		logger.Info("mongo connected", slog.String("database", cfg.MongoDatabase))
	}

	accountant, err := deps.initLedger(ctx, cfg, mongoClient, logger)
	if err != nil {
		return nil, err
	}
	deps.Accountant = accountant

	var (
		repo     job.Repository
		notifier notify.Notifier
	)
	if cfg.StoreBackend == config.BackendMongo {
		repo = job.NewMongoRepository(mongoClient, cfg.MongoDatabase)
		notifier = notify.NewMongoNotifier(mongoClient, cfg.MongoDatabase)
	} else {
		repo = job.NewMemoryRepository()
		notifier = notify.NewMemoryNotifier(logger)
	}

	stages, err := initStages(cfg, store, logger)
	if err != nil {
		return nil, err
	}
	processor, err := job.NewItemProcessor(stages,
		job.WithWorkers(cfg.SegmentWorkers()),
		job.WithProcessorLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create item processor: %w", err)
	}

	deps.JobService = job.NewService(repo, accountant, processor, store,
		job.WithNotifier(notifier),
		job.WithServiceLogger(logger),
	)

	ok = true
	return deps, nil
}

func (d *Dependencies) connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(connectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	d.closers = append(d.closers, client.Disconnect)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func (d *Dependencies) initLedger(ctx context.Context, cfg *config.Config, mongoClient *mongo.Client, logger *slog.Logger) (*credits.Accountant, error) {
	opts := []credits.AccountantOption{
		credits.WithCatalogTimeout(cfg.CatalogTimeout),
		credits.WithLogger(logger),
	}

	var store credits.Store
	switch cfg.LedgerBackend {
	case config.BackendMongo:
		store = credits.NewMongoStore(mongoClient, cfg.MongoDatabase)
		opts = append(opts, credits.WithCatalog(credits.NewMongoCatalog(mongoClient, cfg.MongoDatabase)))

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		pg := credits.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate ledger: %w", err)
		}
		store = pg
		opts = append(opts, credits.WithCatalog(credits.NewPostgresCatalog(pool)))

	default:
		store = credits.NewMemoryStore()
		opts = append(opts, credits.WithCatalog(credits.StaticCatalog(credits.DefaultCosts())))
	}

	logger.Info("credit ledger configured", slog.String("backend", cfg.LedgerBackend))
	return credits.NewAccountant(store, opts...), nil
}

// initStages wires the concrete stage adapters.
func initStages(cfg *config.Config, store storage.Storage, logger *slog.Logger) (pipeline.Stages, error) {
	ffmpeg := audio.NewFFmpeg(cfg.FFmpegPath)

	asrHTTP, err := httpretry.New(cfg.ASRBaseURL, httpretry.WithAPIKey(cfg.ASRAPIKey))
	if err != nil {
		return pipeline.Stages{}, fmt.Errorf("create ASR client: %w", err)
	}

	var finder pipeline.SegmentFinder
	if cfg.SegmentFinder == config.SegmentFinderSilence {
		finder = segments.NewSilenceFinder(ffmpeg, audio.DefaultSilenceOpts(), logger)
	} else {
		segHTTP, err := httpretry.New(cfg.SegmentsBaseURL, httpretry.WithAPIKey(cfg.SegmentsAPIKey))
		if err != nil {
			return pipeline.Stages{}, fmt.Errorf("create segments client: %w", err)
		}
		finder = segments.NewClient(segHTTP)
	}
	logger.Info("segment finder configured", slog.String("finder", cfg.SegmentFinder))

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath,
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithVideoCodec(cfg.VideoCodec),
	)

	return pipeline.Stages{
		Acquire:    store,
		Probe:      processor,
		Transcribe: asr.NewClient(asrHTTP, ffmpeg),
		Segments:   finder,
		Cut:        processor,
		Caption:    captions.NewWriter(),
		Render:     processor,
		Publish:    store,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

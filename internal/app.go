// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	router "tradebybarter-ledger/internal/api"
	"tradebybarter-ledger/internal/api/handler"
	"tradebybarter-ledger/internal/cache"
	"tradebybarter-ledger/internal/config"
	"tradebybarter-ledger/internal/events"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/repository/postgres"
	"tradebybarter-ledger/internal/service"
	"tradebybarter-ledger/internal/util"
	"tradebybarter-ledger/internal/worker"
	"tradebybarter-ledger/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config    *config.AppConfig
	Logger    *slog.Logger
	DB        *sqlx.DB
	Redis     *redis.Client
	Publisher events.Publisher

	// Repositories
	UserRepository        repository.UserRepository
	OfferRepository       repository.OfferRepository
	WalletRepository      repository.WalletRepository
	TransactionRepository repository.TransactionRepository
	EscrowRepository      repository.EscrowRepository

	// Services
	WalletService service.WalletService
	EscrowService service.EscrowService

	// Background work
	Sweeper *worker.EscrowSweeper

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{Logger: util.GetLogger()}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger(cfg.LogLevel)
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database
	database, err := db.NewPostgresDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, app.DB); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		app.Logger.Info("Database schema is up to date.")
	}

	// 4. Optional infrastructure
	var (
		idempotencyStore cache.IdempotencyStore
		locker           worker.Locker
	)
	if cfg.Redis.Enabled() {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.Redis = rdb
		idempotencyStore = cache.NewRedisIdempotencyStore(rdb)
		locker = cache.NewRedisLocker(rdb)
		app.Logger.Info("Redis connected; idempotency keys and the shared sweep lock are enabled.", "addr", cfg.Redis.Addr)
	} else {
		app.Logger.Warn("REDIS_ADDR not set; idempotency keys disabled and the sweep lock is process-local.")
	}

	if cfg.Events.RabbitMQURL != "" {
		publisher, err := events.NewRabbitPublisher(cfg.Events.RabbitMQURL, cfg.Events.Exchange)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		app.Publisher = publisher
		app.Logger.Info("Publishing ledger events.", "exchange", cfg.Events.Exchange)
	} else {
		app.Publisher = events.NoopPublisher{}
	}

	// 5. Initialize Repositories
	app.UserRepository = postgres.NewUserRepository(app.DB)
	app.OfferRepository = postgres.NewOfferRepository(app.DB)
	app.WalletRepository = postgres.NewWalletRepository(app.DB)
	app.TransactionRepository = postgres.NewTransactionRepository(app.DB)
	app.EscrowRepository = postgres.NewEscrowRepository(app.DB)
	app.Logger.Info("Repositories initialized.")

	// 6. Initialize Services
	// The concrete db.BeginTx, db.CommitTx, db.RollbackTx are injected so services can be tested with mocks.
	app.WalletService = service.NewWalletService(
		app.DB, // DBTxBeginner
		app.DB, // DBExecutor
		app.UserRepository,
		app.WalletRepository,
		app.TransactionRepository,
		app.EscrowRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		app.Publisher,
		app.Logger,
	)
	app.EscrowService = service.NewEscrowService(
		app.DB,
		app.DB,
		app.OfferRepository,
		app.EscrowRepository,
		app.WalletRepository,
		app.WalletService,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		service.EscrowSettings{
			FeeRate:                 cfg.Escrow.FeeRate,
			MinAmountKobo:           cfg.Escrow.MinAmountKobo,
			AutoReleaseAfter:        cfg.Escrow.AutoReleaseAfter,
			DisputeResolutionWindow: cfg.Escrow.DisputeResolutionWindow,
			SweepBatchSize:          cfg.Sweep.BatchSize,
		},
		app.Publisher,
		app.Logger,
	)
	app.Sweeper = worker.NewEscrowSweeper(app.EscrowService, locker, cfg.Sweep.Interval, app.Logger)
	app.Logger.Info("Services initialized.")

	// 7. Initialize HTTP Handlers and Router
	walletHandler := handler.NewWalletHandler(app.WalletService, app.Logger)
	escrowHandler := handler.NewEscrowHandler(app.EscrowService, app.Sweeper, app.Logger)
	app.HTTPHandler = router.NewRouter(walletHandler, escrowHandler, router.Options{
		JWTSecret:      []byte(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		Idempotency:    idempotencyStore,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
	}, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	var firstErr error

	if app.Publisher != nil {
		if err := app.Publisher.Close(); err != nil {
			app.Logger.Error("Failed to close event publisher", "error", err)
			firstErr = fmt.Errorf("failed to close event publisher: %w", err)
		}
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.Error("Failed to close redis client", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close redis client: %w", err)
			}
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close database connection: %w", err)
			}
		} else {
			app.Logger.Info("Database connection closed.")
		}
	}

	if firstErr == nil {
		app.Logger.Info("Application shut down gracefully.")
	}
	return firstErr
}

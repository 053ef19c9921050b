package main

import (
	"context"

	"github.com/rs/zerolog"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/balancelog"
	"bankledger/internal/domain/merchant"
	"bankledger/internal/domain/openfinance"
	"bankledger/internal/infrastructure/postgres"
	httphandlers "bankledger/internal/interfaces/http"
	"bankledger/internal/shared/config"
	"bankledger/internal/shared/telemetry"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	TransactionHandler *httphandlers.TransactionHandler
	BalanceHandler     *httphandlers.BalanceHandler

	// Services (for the scheduler)
	AccountService  *account.Service
	BackfillService *balancelog.BackfillService
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("Connected to database")

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info().Msg("Database schema is up to date")
	}

	// Repositories
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db, cfg.Sync.BulkInsertRetries, cfg.Sync.RetryDelay)
	merchantRepo := postgres.NewMerchantRepository(db)
	balanceLogRepo := postgres.NewBalanceLogRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)

	// Domain services
	counters := telemetry.NewCounters("bankledger")
	accountService := account.NewService(accountRepo)
	merchantService := merchant.NewService(merchantRepo)

	syncService := openfinance.NewTransactionSyncService(
		transactionRepo,
		merchantService,
		counters,
		logger.With().Str("component", "transaction_sync").Logger(),
		cfg.Sync.MerchantConcurrency,
	)

	ledgerService := balancelog.NewService(
		balanceLogRepo,
		accountService,
		paymentRepo,
		transactionRepo,
		logger.With().Str("component", "ledger").Logger(),
		cfg.Ledger.GapFillLookbackDays,
	)

	backfillService := balancelog.NewBackfillService(
		balanceLogRepo,
		transactionRepo,
		counters,
		logger.With().Str("component", "backfill").Logger(),
		balancelog.BackfillConfig{
			DefaultLookbackDays: cfg.Ledger.DefaultLookbackDays,
			MaxLookbackDays:     cfg.Ledger.MaxLookbackDays,
			MinBackfillDays:     cfg.Ledger.MinBackfillDays,
		},
	)

	return &Dependencies{
		DB:                 db,
		TransactionHandler: httphandlers.NewTransactionHandler(accountService, syncService),
		BalanceHandler:     httphandlers.NewBalanceHandler(accountService, ledgerService, backfillService, "api"),
		AccountService:     accountService,
		BackfillService:    backfillService,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/balancelog"
	"bankledger/internal/domain/merchant"
	"bankledger/internal/domain/openfinance"
	"bankledger/internal/domain/transaction"
	"bankledger/internal/infrastructure/postgres"
	"bankledger/internal/interfaces/scheduler"
	"bankledger/internal/shared/config"
	"bankledger/internal/shared/logger"
	"bankledger/internal/shared/telemetry"
)

// app holds the services the commands run against.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *postgres.DB
	accounts *account.Service
	ledger   *balancelog.Service
	backfill *balancelog.BackfillService
	sync     *openfinance.TransactionSyncService
}

var current *app

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Ledger maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			current = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current != nil {
				current.db.Close()
			}
		},
	}

	root.AddCommand(newBackfillCmd(), newBackfillAllCmd(), newBalancesCmd(), newSyncFileCmd())
	return root
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Pretty: true})

	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	transactionRepo := postgres.NewTransactionRepository(db, cfg.Sync.BulkInsertRetries, cfg.Sync.RetryDelay)
	balanceLogRepo := postgres.NewBalanceLogRepository(db)
	counters := telemetry.NewCounters("bankledger/admin")
	accounts := account.NewService(postgres.NewAccountRepository(db))

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		accounts: accounts,
		ledger: balancelog.NewService(balanceLogRepo, accounts, postgres.NewPaymentRepository(db),
			transactionRepo, log, cfg.Ledger.GapFillLookbackDays),
		backfill: balancelog.NewBackfillService(balanceLogRepo, transactionRepo, counters, log, balancelog.BackfillConfig{
			DefaultLookbackDays: cfg.Ledger.DefaultLookbackDays,
			MaxLookbackDays:     cfg.Ledger.MaxLookbackDays,
			MinBackfillDays:     cfg.Ledger.MinBackfillDays,
		}),
		sync: openfinance.NewTransactionSyncService(transactionRepo, merchant.NewService(postgres.NewMerchantRepository(db)),
			counters, log, cfg.Sync.MerchantConcurrency),
	}, nil
}

func newBackfillCmd() *cobra.Command {
	var (
		accountID string
		since     string
		source    string
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Rebuild the daily ledger of one account",
		Example: `  admin backfill --account-id=acc_123
  admin backfill --account-id=acc_123 --since=2024-02-01 --source=plaid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := current.accounts.GetAccount(cmd.Context(), accountID)
			if err != nil {
				return fmt.Errorf("account %s: %w", accountID, err)
			}

			opts := balancelog.BackfillOptions{Source: source}
			if since != "" {
				d, err := civil.ParseDate(since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				t := d.In(time.UTC)
				opts.LastKnownUpdate = &t
			}

			result, err := current.backfill.BackfillDailyBalances(cmd.Context(), acc, "admin-cli", opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&accountID, "account-id", "", "Account to backfill")
	cmd.Flags().StringVar(&since, "since", "", "Start the window on this date (YYYY-MM-DD) instead of the default lookback")
	cmd.Flags().StringVar(&source, "source", "", "Processor name written on each row")
	cmd.MarkFlagRequired("account-id")
	return cmd
}

func newBackfillAllCmd() *cobra.Command {
	var (
		workers int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "backfill-all",
		Short: "Rebuild the daily ledger of every account with a live balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := scheduler.BackfillJobProvider(current.accounts, current.backfill, "admin-cli")
			jobs, err := provider(cmd.Context())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				current.log.Info().Msg("No accounts to backfill")
				return nil
			}

			pool := scheduler.NewWorkerPool(scheduler.PoolConfig{
				WorkerCount: workers,
				JobTimeout:  current.cfg.Scheduler.JobTimeout,
				QueueSize:   len(jobs),
			}, current.log)
			pool.Start()
			submitted := pool.SubmitBatch(jobs)
			pool.Shutdown(timeout)

			current.log.Info().Int("accounts", submitted).Msg("Backfill finished")
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "Number of concurrent workers")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum time to wait for all accounts")
	return cmd
}

func newBalancesCmd() *cobra.Command {
	var (
		accountID string
		start     string
		end       string
		exclude   bool
	)

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Print the gap-filled balance history of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := civil.ParseDate(start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			endDate, err := civil.ParseDate(end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			balances, err := current.ledger.GetBalancesByDateRange(cmd.Context(), accountID, startDate, endDate, exclude)
			if err != nil {
				return err
			}
			return printJSON(cmd, balances)
		},
	}

	cmd.Flags().StringVar(&accountID, "account-id", "", "Account to read")
	cmd.Flags().StringVar(&start, "start", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&exclude, "exclude-internal-payments", false, "Add the product's own collections back")
	cmd.MarkFlagRequired("account-id")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newSyncFileCmd() *cobra.Command {
	var (
		connectionID string
		file         string
		perAccount   bool
		workers      int
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync-file",
		Short: "Replay a saved provider batch against a bank connection",
		Example: `  admin sync-file --connection-id=conn_1 -f batch.json
  admin sync-file --connection-id=conn_1 -f batch.json --per-account --workers=8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			var payloads []*transaction.Payload
			if err := json.NewDecoder(f).Decode(&payloads); err != nil {
				return fmt.Errorf("failed to decode %s: %w", file, err)
			}

			accounts, err := current.accounts.ListConnectionAccounts(cmd.Context(), connectionID)
			if err != nil {
				return err
			}

			if perAccount {
				return syncPerAccount(accounts, payloads, workers, timeout)
			}

			result, err := current.sync.SyncTransactions(cmd.Context(), accounts, payloads)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&connectionID, "connection-id", "", "Bank connection the batch belongs to")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of transaction payloads")
	cmd.Flags().BoolVar(&perAccount, "per-account", false, "Split the batch by account and sync the accounts concurrently")
	cmd.Flags().IntVar(&workers, "workers", 4, "Number of concurrent workers with --per-account")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait with --per-account")
	cmd.MarkFlagRequired("connection-id")
	cmd.MarkFlagRequired("file")
	return cmd
}

// syncPerAccount queues one sync job per account on a worker pool. Each
// account's window is derived from its own payloads.
func syncPerAccount(accounts []*account.Account, payloads []*transaction.Payload, workers int, timeout time.Duration) error {
	jobs, err := scheduler.TransactionSyncJobs(accounts, payloads, current.sync)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		current.log.Info().Msg("No payloads to sync")
		return nil
	}

	pool := scheduler.NewWorkerPool(scheduler.PoolConfig{
		WorkerCount: workers,
		JobTimeout:  current.cfg.Scheduler.JobTimeout,
		QueueSize:   len(jobs),
	}, current.log)
	pool.Start()
	submitted := pool.SubmitBatch(jobs)
	pool.Shutdown(timeout)

	current.log.Info().Int("accounts", submitted).Msg("Sync finished")
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/balancelog"
	"bankledger/internal/domain/openfinance"
	"bankledger/internal/domain/transaction"
)

var (
	ErrQueueFull  = errors.New("job queue full")
	ErrPoolClosed = errors.New("worker pool closed")
)

// Backfiller rebuilds the daily ledger of one account.
type Backfiller interface {
	BackfillDailyBalances(ctx context.Context, acc *account.Account, caller string, opts balancelog.BackfillOptions) (*balancelog.BackfillResult, error)
	LastKnownUpdate(ctx context.Context, acc *account.Account) (*time.Time, error)
}

// TransactionSyncer applies a provider batch to one account.
type TransactionSyncer interface {
	SyncTransactionsForSingleAccount(ctx context.Context, acc *account.Account, payloads []*transaction.Payload, opts ...openfinance.SyncOption) (*openfinance.TransactionSyncResult, error)
}

// BackfillJob rebuilds the ledger of a single account.
type BackfillJob struct {
	acc        *account.Account
	caller     string
	backfiller Backfiller
}

// NewBackfillJob creates a new backfill job for an account
func NewBackfillJob(acc *account.Account, caller string, backfiller Backfiller) *BackfillJob {
	return &BackfillJob{acc: acc, caller: caller, backfiller: backfiller}
}

// Execute runs the backfill from the day after the newest ledger entry, so
// observed balances already in the ledger are kept. Rows that failed to
// write mark the job failed so the run shows up in the error counters.
func (j *BackfillJob) Execute(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	since, err := j.backfiller.LastKnownUpdate(ctx, j.acc)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	result, err := j.backfiller.BackfillDailyBalances(ctx, j.acc, j.caller, balancelog.BackfillOptions{LastKnownUpdate: since})
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	if result.Skipped {
		log.Debug().Str("reason", result.SkipReason).Msg("backfill skipped")
		return nil
	}
	if result.Failed > 0 {
		return fmt.Errorf("backfill wrote %d rows, %d failed", result.Written, result.Failed)
	}

	log.Info().
		Str("start", result.Start.String()).
		Str("end", result.End.String()).
		Int("written", result.Written).
		Msg("backfill completed")
	return nil
}

func (j *BackfillJob) Key() string {
	return j.acc.ID
}

func (j *BackfillJob) Description() string {
	return fmt.Sprintf("Ledger backfill for account %s", j.acc.ID)
}

// TransactionSyncJobs splits a connection batch into one TransactionSyncJob
// per account so different accounts sync concurrently. A payload for a bank
// account outside accounts rejects the whole batch.
func TransactionSyncJobs(accounts []*account.Account, payloads []*transaction.Payload, syncer TransactionSyncer) ([]Job, error) {
	byExternalID := make(map[string]*account.Account, len(accounts))
	for _, acc := range accounts {
		byExternalID[acc.ExternalID] = acc
	}

	var order []*account.Account
	grouped := make(map[string][]*transaction.Payload)
	for _, p := range payloads {
		acc, ok := byExternalID[p.BankAccountExternalID]
		if !ok {
			return nil, &openfinance.AccountNotFoundError{ExternalID: p.BankAccountExternalID}
		}
		if _, seen := grouped[acc.ID]; !seen {
			order = append(order, acc)
		}
		grouped[acc.ID] = append(grouped[acc.ID], p)
	}

	jobs := make([]Job, 0, len(order))
	for _, acc := range order {
		jobs = append(jobs, NewTransactionSyncJob(acc, grouped[acc.ID], syncer))
	}
	return jobs, nil
}

// TransactionSyncJob applies a queued provider batch to one account.
type TransactionSyncJob struct {
	acc      *account.Account
	payloads []*transaction.Payload
	syncer   TransactionSyncer
}

// NewTransactionSyncJob creates a new transaction sync job for an account
func NewTransactionSyncJob(acc *account.Account, payloads []*transaction.Payload, syncer TransactionSyncer) *TransactionSyncJob {
	return &TransactionSyncJob{acc: acc, payloads: payloads, syncer: syncer}
}

// Execute runs the sync. Per-row update failures are reported but do not
// fail the job.
func (j *TransactionSyncJob) Execute(ctx context.Context) error {
	result, err := j.syncer.SyncTransactionsForSingleAccount(ctx, j.acc, j.payloads)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Int("update_errors", result.UpdateErrors).
		Msg("transaction sync completed")
	return nil
}

func (j *TransactionSyncJob) Key() string {
	return j.acc.ID
}

func (j *TransactionSyncJob) Description() string {
	return fmt.Sprintf("Transaction sync for account %s", j.acc.ID)
}

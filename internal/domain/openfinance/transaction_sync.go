package openfinance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/merchant"
	"bankledger/internal/domain/transaction"
)

var syncTracer = otel.Tracer("bankledger/sync")

// Counter names emitted per sync outcome.
const (
	MetricCreated     = "bank_transaction.sync.created"
	MetricUpdated     = "bank_transaction.sync.updated"
	MetricDeleted     = "bank_transaction.sync.deleted"
	MetricUnchanged   = "bank_transaction.sync.unchanged"
	MetricUpdateError = "bank_transaction.sync.update_error"
)

// DefaultMerchantConcurrency bounds concurrent merchant lookups per sync.
const DefaultMerchantConcurrency = 4

var ErrNoAccounts = errors.New("no accounts in sync scope")

// AccountNotFoundError is returned when a payload references a bank account
// that does not exist locally. The whole payload set is rejected.
type AccountNotFoundError struct {
	ExternalID string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account not found for bank account external id %q", e.ExternalID)
}

func (e *AccountNotFoundError) Unwrap() error {
	return account.ErrAccountNotFound
}

// Metrics receives sync outcome counters.
type Metrics interface {
	Count(ctx context.Context, name string, value int64)
}

// MerchantResolver looks up the merchant for a counterparty name.
type MerchantResolver interface {
	Resolve(ctx context.Context, externalName string, categoryID *string) (*merchant.Info, error)
}

// TransactionSyncResult contains the results of a transaction sync operation
type TransactionSyncResult struct {
	PayloadsReceived int      `json:"payloadsReceived"`
	Created          int      `json:"created"`
	Updated          int      `json:"updated"`
	Deleted          int      `json:"deleted"`
	Unchanged        int      `json:"unchanged"`
	UpdateErrors     int      `json:"updateErrors"`
	Errors           []string `json:"errors"`
}

type syncOptions struct {
	start civil.Date
	end   civil.Date
}

// SyncOption customizes a sync run.
type SyncOption func(*syncOptions)

// WithWindow sets the date range the payloads are a complete resync of.
// Without it the window spans the payloads' own earliest and latest dates.
func WithWindow(start, end civil.Date) SyncOption {
	return func(o *syncOptions) {
		o.start = start
		o.end = end
	}
}

// TransactionSyncService reconciles provider payloads with stored transactions
type TransactionSyncService struct {
	transactionRepo     transaction.Repository
	merchants           MerchantResolver
	metrics             Metrics
	logger              zerolog.Logger
	merchantConcurrency int
}

// NewTransactionSyncService creates a new transaction sync service
func NewTransactionSyncService(
	transactionRepo transaction.Repository,
	merchants MerchantResolver,
	metrics Metrics,
	logger zerolog.Logger,
	merchantConcurrency int,
) *TransactionSyncService {
	if merchantConcurrency <= 0 {
		merchantConcurrency = DefaultMerchantConcurrency
	}
	return &TransactionSyncService{
		transactionRepo:     transactionRepo,
		merchants:           merchants,
		metrics:             metrics,
		logger:              logger,
		merchantConcurrency: merchantConcurrency,
	}
}

// syncPlan is the classified outcome of matching one payload set.
type syncPlan struct {
	creates   []*transaction.Payload
	updates   []transaction.Pair
	deletes   []*transaction.Transaction
	unchanged int
}

// SyncTransactions reconciles payloads for a set of accounts (typically all
// accounts of one bank connection) against the stored transactions in the
// sync window.
func (s *TransactionSyncService) SyncTransactions(
	ctx context.Context,
	accounts []*account.Account,
	payloads []*transaction.Payload,
	opts ...SyncOption,
) (*TransactionSyncResult, error) {
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	ctx, span := syncTracer.Start(ctx, "transaction.sync", trace.WithAttributes(
		attribute.Int("sync.accounts", len(accounts)),
		attribute.Int("sync.payloads", len(payloads)),
	))
	defer span.End()

	result, err := s.syncTransactions(ctx, accounts, payloads, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("sync.created", result.Created),
		attribute.Int("sync.updated", result.Updated),
		attribute.Int("sync.deleted", result.Deleted),
	)
	return result, nil
}

// SyncTransactionsForSingleAccount handles real-time delivery for one
// account. Canceled and returned payloads are dropped before matching, so a
// withdrawn transaction already stored inside the window is deleted.
func (s *TransactionSyncService) SyncTransactionsForSingleAccount(
	ctx context.Context,
	acc *account.Account,
	payloads []*transaction.Payload,
	opts ...SyncOption,
) (*TransactionSyncResult, error) {
	log := s.logger.With().Str("account_id", acc.ID).Logger()

	options := syncOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	filtered := make([]*transaction.Payload, 0, len(payloads))
	var window []*transaction.Payload
	for _, p := range payloads {
		if p.BankAccountExternalID != acc.ExternalID {
			log.Warn().Str("external_id", p.ExternalID).
				Str("bank_account_external_id", p.BankAccountExternalID).
				Msg("Skipping payload for another account")
			continue
		}
		window = append(window, p)
		if p.IsCanceledOrReturned() {
			log.Info().Str("external_id", p.ExternalID).Str("status", string(p.Status)).
				Msg("Dropping withdrawn payload")
			continue
		}
		filtered = append(filtered, p)
	}

	// The window covers withdrawn payloads too so their stored rows are removed.
	if !options.start.IsValid() {
		start, end, ok := payloadWindow(window)
		if !ok {
			return &TransactionSyncResult{Errors: []string{}}, nil
		}
		opts = append(opts, WithWindow(start, end))
	}

	return s.SyncTransactions(ctx, []*account.Account{acc}, filtered, opts...)
}

func (s *TransactionSyncService) syncTransactions(
	ctx context.Context,
	accounts []*account.Account,
	payloads []*transaction.Payload,
	opts ...SyncOption,
) (*TransactionSyncResult, error) {
	result := &TransactionSyncResult{
		PayloadsReceived: len(payloads),
		Errors:           []string{},
	}

	options := syncOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	accountsByExternalID := make(map[string]*account.Account, len(accounts))
	accountsByID := make(map[string]*account.Account, len(accounts))
	accountIDs := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		accountsByExternalID[acc.ExternalID] = acc
		accountsByID[acc.ID] = acc
		accountIDs = append(accountIDs, acc.ID)
	}

	resolved := make([]*transaction.Payload, 0, len(payloads))
	for _, p := range payloads {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		acc, ok := accountsByExternalID[p.BankAccountExternalID]
		if !ok {
			return nil, &AccountNotFoundError{ExternalID: p.BankAccountExternalID}
		}
		copied := *p
		copied.AccountID = acc.ID
		resolved = append(resolved, &copied)
	}

	if deduped := transaction.Dedupe(resolved); len(deduped) != len(resolved) {
		s.logger.Debug().
			Int("received", len(resolved)).
			Int("distinct", len(deduped)).
			Msg("Collapsed repeated external ids in batch")
		resolved = deduped
	}

	start, end := options.start, options.end
	if !start.IsValid() || !end.IsValid() {
		var ok bool
		start, end, ok = payloadWindow(resolved)
		if !ok {
			s.logger.Debug().Msg("No payloads and no window, nothing to sync")
			return result, nil
		}
	}

	stored, protected, err := s.loadStored(ctx, accountIDs, resolved, start, end)
	if err != nil {
		return nil, err
	}

	plan := classify(transaction.Match(stored, resolved), protected)
	result.Unchanged = plan.unchanged

	merchantIDs := s.resolveMerchants(ctx, plan)

	creates := make([]*transaction.Transaction, 0, len(plan.creates))
	for _, p := range plan.creates {
		creates = append(creates, newTransaction(p, accountsByID[p.AccountID], merchantIDs[p]))
	}

	deleteIDs := make([]string, 0, len(plan.deletes))
	for _, txn := range plan.deletes {
		deleteIDs = append(deleteIDs, txn.ID)
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)

	if len(creates) > 0 {
		g.Go(func() error {
			if err := s.transactionRepo.BulkCreate(ctx, creates); err != nil {
				return fmt.Errorf("failed to create %d transactions: %w", len(creates), err)
			}
			mu.Lock()
			result.Created = len(creates)
			mu.Unlock()
			return nil
		})
	}

	if len(plan.updates) > 0 {
		g.Go(func() error {
			updated, failed := s.applyUpdates(ctx, plan.updates, merchantIDs)
			mu.Lock()
			result.Updated = updated
			result.UpdateErrors = len(failed)
			result.Errors = append(result.Errors, failed...)
			mu.Unlock()
			return nil
		})
	}

	if len(deleteIDs) > 0 {
		g.Go(func() error {
			deleted, err := s.transactionRepo.BulkDelete(ctx, deleteIDs)
			if err != nil {
				return fmt.Errorf("failed to delete %d transactions: %w", len(deleteIDs), err)
			}
			mu.Lock()
			result.Deleted = int(deleted)
			mu.Unlock()
			return nil
		})
	}

	waitErr := g.Wait()

	s.count(ctx, MetricCreated, result.Created)
	s.count(ctx, MetricUpdated, result.Updated)
	s.count(ctx, MetricDeleted, result.Deleted)
	s.count(ctx, MetricUnchanged, result.Unchanged)
	s.count(ctx, MetricUpdateError, result.UpdateErrors)

	if waitErr != nil {
		return nil, waitErr
	}

	s.logger.Info().
		Strs("account_ids", accountIDs).
		Str("start", start.String()).
		Str("end", end.String()).
		Int("received", result.PayloadsReceived).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Int("unchanged", result.Unchanged).
		Int("update_errors", result.UpdateErrors).
		Msg("Transaction sync completed")

	return result, nil
}

// loadStored fetches the stored transactions in the window plus any row
// outside it that a payload references by external id or pending id. Rows
// of the second kind are returned in protected: they are eligible for
// matching but never deleted, since the window does not cover them.
func (s *TransactionSyncService) loadStored(
	ctx context.Context,
	accountIDs []string,
	payloads []*transaction.Payload,
	start, end civil.Date,
) ([]*transaction.Transaction, map[string]struct{}, error) {
	stored, err := s.transactionRepo.List(ctx, transaction.ListParams{
		AccountIDs: accountIDs,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list stored transactions: %w", err)
	}

	known := make(map[string]struct{}, len(stored))
	for _, txn := range stored {
		known[txn.AccountID+"|"+txn.ExternalID] = struct{}{}
	}

	missing := make(map[string][]string)
	queued := make(map[string]struct{})
	lookup := func(accountID, externalID string) {
		key := accountID + "|" + externalID
		if _, ok := known[key]; ok {
			return
		}
		if _, ok := queued[key]; ok {
			return
		}
		queued[key] = struct{}{}
		missing[accountID] = append(missing[accountID], externalID)
	}

	for _, p := range payloads {
		if _, ok := known[p.AccountID+"|"+p.ExternalID]; ok {
			continue
		}
		if p.PendingExternalID != nil && *p.PendingExternalID != "" {
			if _, ok := known[p.AccountID+"|"+*p.PendingExternalID]; ok {
				continue
			}
			lookup(p.AccountID, *p.PendingExternalID)
		}
		lookup(p.AccountID, p.ExternalID)
	}

	protected := make(map[string]struct{})
	for accountID, externalIDs := range missing {
		extra, err := s.transactionRepo.FindByExternalIDs(ctx, accountID, externalIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load transactions outside the window for account %s: %w", accountID, err)
		}
		for _, txn := range extra {
			protected[txn.ID] = struct{}{}
		}
		stored = append(stored, extra...)
	}

	return stored, protected, nil
}

// classify sorts matched pairs into create, update, delete and no-op.
func classify(pairs []transaction.Pair, protected map[string]struct{}) syncPlan {
	var plan syncPlan
	for _, pair := range pairs {
		switch {
		case pair.Stored == nil:
			plan.creates = append(plan.creates, pair.Incoming)
		case pair.Incoming == nil:
			if _, ok := protected[pair.Stored.ID]; ok {
				continue
			}
			plan.deletes = append(plan.deletes, pair.Stored)
		case transaction.NeedsUpdate(pair.Stored, pair.Incoming):
			plan.updates = append(plan.updates, pair)
		default:
			plan.unchanged++
		}
	}
	return plan
}

// resolveMerchants looks up merchants for every create and for updates whose
// stored row has none. Lookup failures only leave the merchant unset.
func (s *TransactionSyncService) resolveMerchants(ctx context.Context, plan syncPlan) map[*transaction.Payload]*int64 {
	merchantIDs := make(map[*transaction.Payload]*int64)
	if s.merchants == nil {
		return merchantIDs
	}

	pending := make([]*transaction.Payload, 0, len(plan.creates)+len(plan.updates))
	pending = append(pending, plan.creates...)
	for _, pair := range plan.updates {
		if pair.Stored.MerchantInfoID == nil {
			pending = append(pending, pair.Incoming)
		}
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(s.merchantConcurrency)

	for _, p := range pending {
		p := p
		g.Go(func() error {
			info, err := s.merchants.Resolve(ctx, p.ExternalName, p.PlaidCategoryID)
			if err != nil {
				s.logger.Warn().Err(err).Str("external_id", p.ExternalID).Msg("Merchant lookup failed")
				return nil
			}
			id := info.ID
			mu.Lock()
			merchantIDs[p] = &id
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return merchantIDs
}

// applyUpdates writes updates one at a time. A failing record is logged and
// reported; the rest of the batch still runs.
func (s *TransactionSyncService) applyUpdates(
	ctx context.Context,
	updates []transaction.Pair,
	merchantIDs map[*transaction.Payload]*int64,
) (int, []string) {
	updated := 0
	var failed []string

	for _, pair := range updates {
		params := buildUpdate(pair.Stored, pair.Incoming, merchantIDs[pair.Incoming])
		if _, err := s.transactionRepo.Update(ctx, pair.Stored.ID, params); err != nil {
			msg := fmt.Sprintf("failed to update transaction %s (%s): %v", pair.Stored.ID, pair.Incoming.ExternalID, err)
			s.logger.Error().Err(err).
				Str("transaction_id", pair.Stored.ID).
				Str("external_id", pair.Incoming.ExternalID).
				Strs("changed", transaction.ChangedFields(pair.Stored, pair.Incoming)).
				Msg("Transaction update failed")
			failed = append(failed, msg)
			continue
		}
		updated++
	}

	return updated, failed
}

func (s *TransactionSyncService) count(ctx context.Context, name string, value int) {
	if s.metrics == nil || value == 0 {
		return
	}
	s.metrics.Count(ctx, name, int64(value))
}

// newTransaction builds the row for an unmatched payload.
func newTransaction(p *transaction.Payload, acc *account.Account, merchantID *int64) *transaction.Transaction {
	displayName := transaction.SanitizeDisplayName(p.ExternalName)
	txn := &transaction.Transaction{
		ID:                uuid.NewString(),
		ExternalID:        p.ExternalID,
		PendingExternalID: p.PendingExternalID,
		AccountID:         p.AccountID,
		Amount:            p.Amount,
		TransactionDate:   p.TransactionDate,
		Pending:           p.Pending,
		ExternalName:      p.ExternalName,
		DisplayName:       displayName,
		PlaidCategory:     p.PlaidCategory,
		PlaidCategoryID:   p.PlaidCategoryID,
		Address:           p.Address,
		City:              p.City,
		State:             p.State,
		ZipCode:           p.ZipCode,
		ReferenceNumber:   p.ReferenceNumber,
		PpdID:             p.PpdID,
		PayeeName:         p.PayeeName,
		MerchantInfoID:    merchantID,
		Status:            transaction.StatusActive,
	}
	if acc != nil {
		txn.UserID = acc.UserID
	}
	if p.Pending {
		name := p.ExternalName
		txn.PendingExternalName = &name
		txn.PendingDisplayName = &displayName
	}
	return txn
}

// buildUpdate maps a payload onto its stored row. While pending, the
// pending-era names follow the payload; once settled the stored pending-era
// names are kept so the row still records what the user saw while pending.
func buildUpdate(stored *transaction.Transaction, p *transaction.Payload, merchantID *int64) transaction.UpdateParams {
	displayName := transaction.SanitizeDisplayName(p.ExternalName)

	params := transaction.UpdateParams{
		ExternalID:          p.ExternalID,
		PendingExternalID:   p.PendingExternalID,
		Amount:              p.Amount,
		TransactionDate:     p.TransactionDate,
		Pending:             p.Pending,
		ExternalName:        p.ExternalName,
		DisplayName:         displayName,
		PendingExternalName: stored.PendingExternalName,
		PendingDisplayName:  stored.PendingDisplayName,
		PlaidCategory:       p.PlaidCategory,
		PlaidCategoryID:     p.PlaidCategoryID,
		Address:             p.Address,
		City:                p.City,
		State:               p.State,
		ZipCode:             p.ZipCode,
		ReferenceNumber:     p.ReferenceNumber,
		PpdID:               p.PpdID,
		PayeeName:           p.PayeeName,
		MerchantInfoID:      stored.MerchantInfoID,
	}

	if params.PendingExternalID == nil {
		params.PendingExternalID = stored.PendingExternalID
	}
	if params.MerchantInfoID == nil {
		params.MerchantInfoID = merchantID
	}
	if p.Pending {
		name := p.ExternalName
		params.PendingExternalName = &name
		params.PendingDisplayName = &displayName
	}

	return params
}

// payloadWindow returns the earliest and latest payload dates.
func payloadWindow(payloads []*transaction.Payload) (civil.Date, civil.Date, bool) {
	var start, end civil.Date
	for _, p := range payloads {
		if !p.TransactionDate.IsValid() {
			continue
		}
		if !start.IsValid() || p.TransactionDate.Before(start) {
			start = p.TransactionDate
		}
		if !end.IsValid() || p.TransactionDate.After(end) {
			end = p.TransactionDate
		}
	}
	return start, end, start.IsValid()
}

package balancelog

import (
	"context"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/transaction"
)

// TransactionSource lists stored transactions for the backfill.
type TransactionSource interface {
	List(ctx context.Context, params transaction.ListParams) ([]*transaction.Transaction, error)
}

// BackfillConfig bounds the backfill window.
type BackfillConfig struct {
	DefaultLookbackDays int
	MaxLookbackDays     int
	MinBackfillDays     int
}

// DefaultBackfillConfig returns the standard window bounds.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		DefaultLookbackDays: DefaultLookbackDays,
		MaxLookbackDays:     MaxLookbackDays,
		MinBackfillDays:     MinBackfillDays,
	}
}

// BackfillOptions carries the optional inputs of a backfill run.
type BackfillOptions struct {
	// Source overrides the processor name written on each entry.
	Source string
	// LastKnownUpdate is the last time the ledger was known to be current.
	// The window starts on its day instead of the default lookback.
	LastKnownUpdate *time.Time
}

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	AccountID  string     `json:"accountId"`
	Start      civil.Date `json:"start"`
	End        civil.Date `json:"end"`
	Written    int        `json:"written"`
	Failed     int        `json:"failed"`
	Skipped    bool       `json:"skipped"`
	SkipReason string     `json:"skipReason,omitempty"`
}

// BackfillService reconstructs ledger entries backward from an account's
// live balance.
type BackfillService struct {
	ledger       Repository
	transactions TransactionSource
	metrics      Metrics
	logger       zerolog.Logger
	cfg          BackfillConfig
}

// NewBackfillService creates a new backfill service
func NewBackfillService(ledger Repository, transactions TransactionSource, metrics Metrics, logger zerolog.Logger, cfg BackfillConfig) *BackfillService {
	defaults := DefaultBackfillConfig()
	if cfg.DefaultLookbackDays <= 0 {
		cfg.DefaultLookbackDays = defaults.DefaultLookbackDays
	}
	if cfg.MaxLookbackDays <= 0 {
		cfg.MaxLookbackDays = defaults.MaxLookbackDays
	}
	if cfg.MinBackfillDays <= 0 {
		cfg.MinBackfillDays = defaults.MinBackfillDays
	}
	return &BackfillService{
		ledger:       ledger,
		transactions: transactions,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
	}
}

// BackfillDailyBalances writes one ledger entry per day in
// [effectiveStart, lastUpdatedDay), where lastUpdatedDay is the day of the
// account's live balance. Each day's balance is the following day's balance
// minus the following day's transactions. Rows are written independently;
// a failed row is counted and the rest still land.
func (s *BackfillService) BackfillDailyBalances(ctx context.Context, acc *account.Account, caller string, opts BackfillOptions) (*BackfillResult, error) {
	result := &BackfillResult{AccountID: acc.ID}
	log := s.logger.With().Str("account_id", acc.ID).Str("caller", caller).Logger()

	if acc.Available == nil && acc.Current == nil {
		return s.skip(ctx, log, result, "no anchor balance"), nil
	}
	if acc.LastBalanceUpdate == nil {
		return s.skip(ctx, log, result, "no balance update recorded"), nil
	}

	lastUpdatedDay := civil.DateOf(*acc.LastBalanceUpdate)
	start := lastUpdatedDay.AddDays(-s.cfg.DefaultLookbackDays)
	if opts.LastKnownUpdate != nil {
		start = civil.DateOf(*opts.LastKnownUpdate)
	}
	if floor := lastUpdatedDay.AddDays(-s.cfg.MaxLookbackDays); start.Before(floor) {
		start = floor
	}

	result.Start = start
	result.End = lastUpdatedDay.AddDays(-1)

	if lastUpdatedDay.Before(start) {
		return s.skip(ctx, log, result, "account balance is stale"), nil
	}
	if lastUpdatedDay.DaysSince(start) < s.cfg.MinBackfillDays {
		return s.skip(ctx, log, result, "window too recent"), nil
	}

	txns, err := s.transactions.List(ctx, transaction.ListParams{
		AccountIDs: []string{acc.ID},
		StartDate:  start.AddDays(1),
		EndDate:    lastUpdatedDay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for backfill: %w", err)
	}

	days := make([]civil.Date, 0, lastUpdatedDay.DaysSince(start))
	for d := lastUpdatedDay.AddDays(-1); !d.Before(start); d = d.AddDays(-1) {
		days = append(days, d)
	}

	balances := ComputeDailyBalances(acc.Available, acc.Current, days, SumByDate(txns))

	source := opts.Source
	if source == "" {
		source = acc.ProcessorName
	}

	for _, b := range balances {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry := &Entry{
			ID:            uuid.NewString(),
			AccountID:     acc.ID,
			UserID:        acc.UserID,
			ConnectionID:  acc.ConnectionID,
			Date:          b.Date,
			Available:     b.Available,
			Current:       b.Current,
			ProcessorName: source,
			Caller:        caller,
		}
		if err := s.ledger.Upsert(ctx, entry); err != nil {
			log.Error().Err(err).Str("date", b.Date.String()).Msg("Failed to write ledger entry")
			result.Failed++
			continue
		}
		result.Written++
	}

	s.count(ctx, MetricBackfillWritten, result.Written)
	s.count(ctx, MetricBackfillFailed, result.Failed)

	log.Info().
		Str("start", result.Start.String()).
		Str("end", result.End.String()).
		Int("written", result.Written).
		Int("failed", result.Failed).
		Msg("Backfill completed")

	return result, nil
}

// LastKnownUpdate returns the day after the newest ledger entry older than
// the account's live balance, or nil when the lookback holds none. Scheduled
// runs start there so entries already in the ledger are not rewritten.
func (s *BackfillService) LastKnownUpdate(ctx context.Context, acc *account.Account) (*time.Time, error) {
	if acc.LastBalanceUpdate == nil {
		return nil, nil
	}

	lastUpdatedDay := civil.DateOf(*acc.LastBalanceUpdate)
	latest, err := s.ledger.LatestInRange(ctx, acc.ID, lastUpdatedDay.AddDays(-s.cfg.MaxLookbackDays), lastUpdatedDay.AddDays(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to find latest ledger entry: %w", err)
	}
	if latest == nil {
		return nil, nil
	}

	t := latest.Date.AddDays(1).In(time.UTC)
	return &t, nil
}

func (s *BackfillService) skip(ctx context.Context, log zerolog.Logger, result *BackfillResult, reason string) *BackfillResult {
	result.Skipped = true
	result.SkipReason = reason
	s.count(ctx, MetricBackfillSkipped, 1)
	log.Debug().Str("reason", reason).Msg("Skipping backfill")
	return result
}

func (s *BackfillService) count(ctx context.Context, name string, value int) {
	if s.metrics == nil || value == 0 {
		return
	}
	s.metrics.Count(ctx, name, int64(value))
}

// DayTotals is the net movement of one day. A malformed amount makes the
// whole day invalid.
type DayTotals struct {
	All     decimal.Decimal
	Posted  decimal.Decimal
	Invalid bool
}

// SumByDate totals transaction amounts per day, all and non-pending.
func SumByDate(txns []*transaction.Transaction) map[civil.Date]DayTotals {
	totals := make(map[civil.Date]DayTotals)
	for _, txn := range txns {
		t := totals[txn.TransactionDate]
		if math.IsNaN(txn.Amount) || math.IsInf(txn.Amount, 0) {
			t.Invalid = true
			totals[txn.TransactionDate] = t
			continue
		}
		amount := decimal.NewFromFloat(txn.Amount)
		t.All = t.All.Add(amount)
		if !txn.Pending {
			t.Posted = t.Posted.Add(amount)
		}
		totals[txn.TransactionDate] = t
	}
	return totals
}

// ComputeDailyBalances folds backward over days, which must be newest
// first and contiguous. The balance of day d is derived from the balance of
// d+1 (the anchor for the first day) minus the transactions dated d+1.
// When the anchor's current equals its available the institution does not
// separate pending from posted, so current tracks available. A balance that
// cannot be computed is nil, and so is every older day derived from it.
func ComputeDailyBalances(available, current *float64, days []civil.Date, totals map[civil.Date]DayTotals) []DailyBalance {
	mirrorCurrent := available != nil && current != nil && *available == *current

	nextAvailable := toNullDecimal(available)
	nextCurrent := toNullDecimal(current)

	balances := make([]DailyBalance, 0, len(days))
	for _, day := range days {
		t := totals[day.AddDays(1)]

		nextAvailable = subtract(nextAvailable, t.All, t.Invalid)
		if mirrorCurrent {
			nextCurrent = nextAvailable
		} else {
			nextCurrent = subtract(nextCurrent, t.Posted, t.Invalid)
		}

		balances = append(balances, DailyBalance{
			Date:      day,
			Available: fromNullDecimal(nextAvailable),
			Current:   fromNullDecimal(nextCurrent),
		})
	}
	return balances
}

func subtract(balance decimal.NullDecimal, amount decimal.Decimal, invalid bool) decimal.NullDecimal {
	if !balance.Valid || invalid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(balance.Decimal.Sub(amount))
}

func toNullDecimal(v *float64) decimal.NullDecimal {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

func fromNullDecimal(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.Round(2).InexactFloat64()
	return &f
}

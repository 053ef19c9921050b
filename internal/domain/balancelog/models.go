// Package balancelog maintains the per-account daily balance ledger: it
// reconstructs missing days from transaction history and answers dense
// balance-history queries over a sparse set of stored rows.
package balancelog

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
)

// Domain errors
var (
	ErrInvalidRange = errors.New("invalid date range")
	ErrNoAnchor     = errors.New("account has no balance anchor")
)

// Default ledger tuning values.
const (
	DefaultLookbackDays    = 42
	MaxLookbackDays        = 90
	MinBackfillDays        = 2
	DefaultGapFillLookback = 31
	// MaxRangeDays bounds a balance-history query.
	MaxRangeDays = 20 * MaxLookbackDays
)

// Entry is one account's end-of-day balance for one calendar day.
type Entry struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"accountId"`
	UserID        int64      `json:"userId"`
	ConnectionID  string     `json:"connectionId"`
	Date          civil.Date `json:"date"`
	Available     *float64   `json:"available"`
	Current       *float64   `json:"current"`
	ProcessorName string     `json:"processorName"`
	Caller        string     `json:"caller"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// DailyBalance is one day of a gap-filled balance history.
type DailyBalance struct {
	Date      civil.Date `json:"date"`
	Available *float64   `json:"available"`
	Current   *float64   `json:"current"`
}

// Repository defines the interface for ledger data access
type Repository interface {
	// Upsert writes the entry for (AccountID, Date), replacing an existing one.
	Upsert(ctx context.Context, entry *Entry) error
	// ListByDateRange returns the entries in [start, end] ordered by date,
	// then by creation time.
	ListByDateRange(ctx context.Context, accountID string, start, end civil.Date) ([]*Entry, error)
	// LatestInRange returns the newest entry in [start, end], or nil.
	LatestInRange(ctx context.Context, accountID string, start, end civil.Date) (*Entry, error)
}

// Metrics receives ledger counters.
type Metrics interface {
	Count(ctx context.Context, name string, value int64)
}

// Counter names emitted by the ledger.
const (
	MetricBackfillWritten = "balance_log.backfill.written"
	MetricBackfillFailed  = "balance_log.backfill.failed"
	MetricBackfillSkipped = "balance_log.backfill.skipped"
)

package transaction

import "context"

// Repository defines the interface for transaction data access
type Repository interface {
	// GetByID returns ErrTransactionNotFound when no row matches.
	GetByID(ctx context.Context, id string) (*Transaction, error)

	// List returns transactions for the given accounts whose date falls in
	// [StartDate, EndDate], ordered by date.
	List(ctx context.Context, params ListParams) ([]*Transaction, error)

	// FindByExternalIDs returns the active transactions of an account with
	// any of the given external ids.
	FindByExternalIDs(ctx context.Context, accountID string, externalIDs []string) ([]*Transaction, error)

	// BulkCreate inserts all rows in one statement. Implementations retry
	// transient lock failures a bounded number of times and return
	// ErrDuplicateExternalID when a row collides with an active one.
	BulkCreate(ctx context.Context, txns []*Transaction) error

	// Update replaces the tracked fields of a single transaction.
	Update(ctx context.Context, id string, params UpdateParams) (*Transaction, error)

	// BulkDelete tombstones the given transactions.
	BulkDelete(ctx context.Context, ids []string) (int64, error)
}

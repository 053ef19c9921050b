package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id string) (*Account, error)

	// ListByConnectionID retrieves the active accounts of a bank connection
	ListByConnectionID(ctx context.Context, connectionID string) ([]*Account, error)

	// ListWithBalances retrieves every active account that has an anchor balance
	ListWithBalances(ctx context.Context) ([]*Account, error)

	// UpdateBalances overwrites the live balance anchor
	UpdateBalances(ctx context.Context, id string, update BalanceUpdate) error
}

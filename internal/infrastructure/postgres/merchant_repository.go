package postgres

import (
	"context"
	"fmt"

	"bankledger/internal/domain/merchant"
)

type MerchantRepository struct {
	db *DB
}

func NewMerchantRepository(db *DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// FindOrCreate returns the merchant with the given normalized name, inserting
// it first when missing. Concurrent callers converge on the same row.
func (r *MerchantRepository) FindOrCreate(ctx context.Context, name, displayName string, categoryID *string) (*merchant.Info, error) {
	query := `
		INSERT INTO merchant_info (name, display_name, category_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
		    category_id = COALESCE(merchant_info.category_id, EXCLUDED.category_id)
		RETURNING id, name, display_name, category_id
	`

	var info merchant.Info
	err := r.db.QueryRowContext(ctx, query, name, displayName, categoryID).Scan(
		&info.ID, &info.Name, &info.DisplayName, &info.CategoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create merchant: %w", err)
	}

	return &info, nil
}

// Package merchant resolves counterparty names to merchant records.
package merchant

import (
	"context"
	"errors"
)

var ErrEmptyName = errors.New("merchant name is required")

// Info is a resolved merchant. Name is the normalized lookup key.
type Info struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	CategoryID  *string `json:"categoryId,omitempty"`
}

// Repository defines the interface for merchant data access
type Repository interface {
	// FindOrCreate returns the merchant with the given normalized name,
	// creating it when it does not exist yet.
	FindOrCreate(ctx context.Context, name, displayName string, categoryID *string) (*Info, error)
}

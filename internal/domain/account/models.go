package account

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a linked bank account.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrStaleBalance    = errors.New("balance observation is older than the stored anchor")
)

// Account represents a linked bank account and its live balance anchor.
type Account struct {
	ID                string     `json:"id"`
	UserID            int64      `json:"userId"`
	ConnectionID      string     `json:"connectionId"`
	ExternalID        string     `json:"externalId"` // provider account id
	DisplayName       string     `json:"displayName"`
	Available         *float64   `json:"available"`
	Current           *float64   `json:"current"`
	LastBalanceUpdate *time.Time `json:"lastBalanceUpdate"`
	ProcessorName     string     `json:"processorName"` // e.g. "plaid", "mx"
	Status            Status     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// HasAnchor reports whether at least one live balance is known.
func (a *Account) HasAnchor() bool {
	return a.Available != nil || a.Current != nil
}

// IsActive reports whether the account has not been removed.
func (a *Account) IsActive() bool {
	return a.Status == "" || a.Status == StatusActive
}

// BalanceUpdate carries a freshly observed balance.
type BalanceUpdate struct {
	Available  *float64
	Current    *float64
	ObservedAt time.Time
}

// Validate validates the balance update
func (u BalanceUpdate) Validate() error {
	if u.ObservedAt.IsZero() {
		return errors.New("observedAt is required")
	}
	if u.Available == nil && u.Current == nil {
		return errors.New("at least one of available or current is required")
	}
	return nil
}

package account

import (
	"context"
	"errors"
	"testing"
	"time"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	GetByIDFunc            func(ctx context.Context, id string) (*Account, error)
	ListByConnectionIDFunc func(ctx context.Context, connectionID string) ([]*Account, error)
	ListWithBalancesFunc   func(ctx context.Context) ([]*Account, error)
	UpdateBalancesFunc     func(ctx context.Context, id string, update BalanceUpdate) error
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, ErrAccountNotFound
}

func (m *MockRepository) ListByConnectionID(ctx context.Context, connectionID string) ([]*Account, error) {
	if m.ListByConnectionIDFunc != nil {
		return m.ListByConnectionIDFunc(ctx, connectionID)
	}
	return nil, nil
}

func (m *MockRepository) ListWithBalances(ctx context.Context) ([]*Account, error) {
	if m.ListWithBalancesFunc != nil {
		return m.ListWithBalancesFunc(ctx)
	}
	return nil, nil
}

func (m *MockRepository) UpdateBalances(ctx context.Context, id string, update BalanceUpdate) error {
	if m.UpdateBalancesFunc != nil {
		return m.UpdateBalancesFunc(ctx, id, update)
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func TestGetAccount(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		accountID string
		mock      *MockRepository
		wantErr   error
	}{
		{
			name:      "Success",
			accountID: "acc-1",
			mock: &MockRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*Account, error) {
					return &Account{ID: id, UserID: 1, Status: StatusActive}, nil
				},
			},
		},
		{
			name:      "Not Found",
			accountID: "acc-404",
			mock:      &MockRepository{},
			wantErr:   ErrAccountNotFound,
		},
		{
			name:      "Deleted Account Is Hidden",
			accountID: "acc-1",
			mock: &MockRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*Account, error) {
					return &Account{ID: id, Status: StatusDeleted}, nil
				},
			},
			wantErr: ErrAccountNotFound,
		},
		{
			name:      "Empty ID",
			accountID: "",
			mock:      &MockRepository{},
			wantErr:   ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(tt.mock)
			acc, err := service.GetAccount(ctx, tt.accountID)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetAccount() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetAccount() unexpected error: %v", err)
			}
			if acc.ID != tt.accountID {
				t.Errorf("GetAccount() ID = %s, want %s", acc.ID, tt.accountID)
			}
		})
	}
}

func TestListBackfillCandidates(t *testing.T) {
	now := time.Now()
	mock := &MockRepository{
		ListWithBalancesFunc: func(ctx context.Context) ([]*Account, error) {
			return []*Account{
				{ID: "ok", Available: floatPtr(10), LastBalanceUpdate: &now},
				{ID: "no-anchor", LastBalanceUpdate: &now},
				{ID: "never-updated", Current: floatPtr(5)},
				{ID: "deleted", Status: StatusDeleted, Current: floatPtr(5), LastBalanceUpdate: &now},
			}, nil
		},
	}

	accounts, err := NewService(mock).ListBackfillCandidates(context.Background())
	if err != nil {
		t.Fatalf("ListBackfillCandidates() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "ok" {
		t.Fatalf("ListBackfillCandidates() = %v, want only 'ok'", accounts)
	}
}

func TestRecordBalance(t *testing.T) {
	ctx := context.Background()
	earlier := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := earlier.Add(24 * time.Hour)

	t.Run("Moves Anchor Forward", func(t *testing.T) {
		var gotID string
		mock := &MockRepository{
			UpdateBalancesFunc: func(ctx context.Context, id string, update BalanceUpdate) error {
				gotID = id
				return nil
			},
		}
		acc := &Account{ID: "acc-1", LastBalanceUpdate: &earlier}

		err := NewService(mock).RecordBalance(ctx, acc, BalanceUpdate{
			Available:  floatPtr(50),
			Current:    floatPtr(60),
			ObservedAt: later,
		})
		if err != nil {
			t.Fatalf("RecordBalance() error = %v", err)
		}
		if gotID != "acc-1" {
			t.Errorf("UpdateBalances called with %q, want acc-1", gotID)
		}
		if *acc.Available != 50 || *acc.Current != 60 || !acc.LastBalanceUpdate.Equal(later) {
			t.Errorf("account anchor not refreshed: %+v", acc)
		}
	})

	t.Run("Rejects Older Observation", func(t *testing.T) {
		acc := &Account{ID: "acc-1", LastBalanceUpdate: &later}
		err := NewService(&MockRepository{}).RecordBalance(ctx, acc, BalanceUpdate{
			Available:  floatPtr(50),
			ObservedAt: earlier,
		})
		if !errors.Is(err, ErrStaleBalance) {
			t.Fatalf("RecordBalance() error = %v, want ErrStaleBalance", err)
		}
	})

	t.Run("Requires A Balance", func(t *testing.T) {
		acc := &Account{ID: "acc-1"}
		err := NewService(&MockRepository{}).RecordBalance(ctx, acc, BalanceUpdate{ObservedAt: later})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("RecordBalance() error = %v, want ErrInvalidInput", err)
		}
	})
}

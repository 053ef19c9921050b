package balancelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/payment"
	"bankledger/internal/domain/transaction"
)

func entry(d civil.Date, available, current float64) *Entry {
	return &Entry{AccountID: "acc-1", Date: d, Available: floatPtr(available), Current: floatPtr(current)}
}

func newTestService(ledger *memoryLedger, accounts AccountService, payments payment.Repository, txns *memoryTransactions) *Service {
	if accounts == nil {
		accounts = &MockAccountService{}
	}
	if payments == nil {
		payments = &MockPaymentRepository{}
	}
	if txns == nil {
		txns = &memoryTransactions{}
	}
	return NewService(ledger, accounts, payments, txns, zerolog.Nop(), 0)
}

func currents(balances []DailyBalance) []float64 {
	out := make([]float64, 0, len(balances))
	for _, b := range balances {
		if b.Current == nil {
			out = append(out, -1)
			continue
		}
		out = append(out, *b.Current)
	}
	return out
}

func equalSeries(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGetBalancesByDateRange_ForwardFill(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.put(entry(day(1, 1), 90, 90))
	ledger.put(entry(day(1, 3), 10, 10))
	service := newTestService(ledger, nil, nil, nil)

	got, err := service.GetBalancesByDateRange(context.Background(), "acc-1", day(1, 1), day(1, 4), false)
	if err != nil {
		t.Fatalf("GetBalancesByDateRange() error = %v", err)
	}

	if want := []float64{90, 90, 10, 10}; !equalSeries(currents(got), want) {
		t.Errorf("balances = %v, want %v", currents(got), want)
	}
	for i, b := range got {
		if want := day(1, 1).AddDays(i); b.Date != want {
			t.Errorf("[%d] date = %s, want %s", i, b.Date, want)
		}
	}
	if len(ledger.latestCalls) != 0 {
		t.Error("no leading lookup expected when the range starts on a stored day")
	}
}

func TestGetBalancesByDateRange_LeadingGap(t *testing.T) {
	tests := []struct {
		name       string
		seed       *Entry
		want       []float64
		wantLookup [2]civil.Date
	}{
		{
			name:       "found within lookback",
			seed:       entry(day(1, 20), 50, 50),
			want:       []float64{50, 50, 50, 70, 70},
			wantLookup: [2]civil.Date{day(2, 4).AddDays(-31), day(2, 3)},
		},
		{
			name:       "outside lookback is omitted",
			seed:       entry(day(1, 2), 50, 50),
			want:       []float64{70, 70},
			wantLookup: [2]civil.Date{day(2, 4).AddDays(-31), day(2, 3)},
		},
		{
			name:       "nothing before",
			want:       []float64{70, 70},
			wantLookup: [2]civil.Date{day(2, 4).AddDays(-31), day(2, 3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemoryLedger()
			if tt.seed != nil {
				ledger.put(tt.seed)
			}
			ledger.put(entry(day(2, 4), 70, 70))
			service := newTestService(ledger, nil, nil, nil)

			got, err := service.GetBalancesByDateRange(context.Background(), "acc-1", day(2, 1), day(2, 5), false)
			if err != nil {
				t.Fatalf("GetBalancesByDateRange() error = %v", err)
			}
			if !equalSeries(currents(got), tt.want) {
				t.Errorf("balances = %v, want %v", currents(got), tt.want)
			}
			if len(ledger.latestCalls) != 1 || ledger.latestCalls[0] != tt.wantLookup {
				t.Errorf("lookback calls = %v, want [%v]", ledger.latestCalls, tt.wantLookup)
			}
			if len(got) > 0 && got[len(got)-1].Date != day(2, 5) {
				t.Errorf("last date = %s, want 2024-02-05", got[len(got)-1].Date)
			}
		})
	}
}

func TestGetBalancesByDateRange_EmptyRangeUsesPriorBalance(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.put(entry(day(2, 25), 42, 40))
	service := newTestService(ledger, nil, nil, nil)

	got, err := service.GetBalancesByDateRange(context.Background(), "acc-1", day(3, 1), day(3, 3), false)
	if err != nil {
		t.Fatalf("GetBalancesByDateRange() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d balances, want 3", len(got))
	}
	if *got[2].Available != 42 || *got[2].Current != 40 {
		t.Errorf("last balance = %v/%v, want 42/40", *got[2].Available, *got[2].Current)
	}
}

func TestLatestPerDate(t *testing.T) {
	older := entry(day(1, 1), 10, 10)
	older.CreatedAt = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	newer := entry(day(1, 1), 20, 20)
	newer.CreatedAt = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	byDate := LatestPerDate([]*Entry{newer, older})
	if got := *byDate[day(1, 1)].Current; got != 20 {
		t.Errorf("current = %v, want 20", got)
	}
}

func TestGetBalancesByDateRange_InvalidRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end civil.Date
	}{
		{name: "end before start", start: day(3, 2), end: day(3, 1)},
		{name: "zero dates", start: civil.Date{}, end: day(3, 1)},
		{name: "span too long", start: civil.Date{Year: 1, Month: 1, Day: 1}, end: civil.Date{Year: 9999, Month: 12, Day: 31}},
		{name: "just over the limit", start: day(1, 1), end: day(1, 1).AddDays(MaxRangeDays)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemoryLedger()
			service := newTestService(ledger, nil, nil, nil)

			_, err := service.GetBalancesByDateRange(context.Background(), "acc-1", tt.start, tt.end, false)
			if !errors.Is(err, ErrInvalidRange) {
				t.Errorf("error = %v, want ErrInvalidRange", err)
			}
			if len(ledger.latestCalls) != 0 {
				t.Error("an invalid range must not reach the store")
			}
		})
	}
}

func TestGetBalancesByDateRange_LongestRange(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.put(entry(day(1, 1), 10, 10))
	service := newTestService(ledger, nil, nil, nil)

	end := day(1, 1).AddDays(MaxRangeDays - 1)
	balances, err := service.GetBalancesByDateRange(context.Background(), "acc-1", day(1, 1), end, false)
	if err != nil {
		t.Fatalf("GetBalancesByDateRange() error = %v", err)
	}
	if len(balances) != MaxRangeDays {
		t.Errorf("got %d days, want %d", len(balances), MaxRangeDays)
	}
}

func TestGetBalancesByDateRange_ExcludeInternalPayments(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.put(&Entry{AccountID: "acc-1", Date: day(3, 1), Available: nil, Current: floatPtr(100)})
	ledger.put(&Entry{AccountID: "acc-1", Date: day(3, 3), Available: floatPtr(60), Current: floatPtr(60)})

	txns := &memoryTransactions{txns: []*transaction.Transaction{
		{AccountID: "acc-1", ExternalID: "bank-1", TransactionDate: day(3, 2), Amount: -25},
		{AccountID: "acc-1", ExternalID: "bank-2", TransactionDate: day(3, 3), Amount: -5},
	}}

	var gotUserID int64
	payments := &MockPaymentRepository{
		ListByBankAccountFunc: func(ctx context.Context, userID int64, bankAccountID string, start, end civil.Date) ([]*payment.Payment, error) {
			gotUserID = userID
			return []*payment.Payment{
				{ID: "p1", Amount: -25, ExternalID: strPtr("bank-1"), Status: payment.StatusCompleted},
				{ID: "p2", Amount: 5, ExternalID: strPtr("bank-2"), Status: payment.StatusPending},
				{ID: "p3", Amount: 1000, ExternalID: strPtr("bank-missing"), Status: payment.StatusCompleted},
				{ID: "p4", Amount: 1000, ExternalID: strPtr("bank-1"), Status: payment.StatusReturned},
				{ID: "p5", Amount: 1000, Status: payment.StatusCompleted},
			}, nil
		},
	}
	service := newTestService(ledger, nil, payments, txns)

	raw, err := service.GetBalancesByDateRange(context.Background(), "acc-1", day(3, 1), day(3, 4), false)
	if err != nil {
		t.Fatalf("GetBalancesByDateRange() error = %v", err)
	}
	adjusted, err := service.GetBalancesByDateRange(context.Background(), "acc-1", day(3, 1), day(3, 4), true)
	if err != nil {
		t.Fatalf("GetBalancesByDateRange() error = %v", err)
	}

	if gotUserID != 7 {
		t.Errorf("payments listed for user %d, want 7", gotUserID)
	}
	if want := []float64{100, 125, 90, 90}; !equalSeries(currents(adjusted), want) {
		t.Errorf("adjusted = %v, want %v", currents(adjusted), want)
	}
	if adjusted[1].Available != nil {
		t.Errorf("nil available must stay nil, got %v", *adjusted[1].Available)
	}
	if *adjusted[2].Available != 90 {
		t.Errorf("available on 03-03 = %v, want 90", *adjusted[2].Available)
	}

	for i := range raw {
		if *adjusted[i].Current < *raw[i].Current {
			t.Errorf("[%d] overlay decreased current: %v < %v", i, *adjusted[i].Current, *raw[i].Current)
		}
	}
	if want := []float64{100, 100, 60, 60}; !equalSeries(currents(raw), want) {
		t.Errorf("raw series modified: %v, want %v", currents(raw), want)
	}
}

func TestExcludeCollections_DoesNotAliasInput(t *testing.T) {
	shared := floatPtr(10)
	balances := []DailyBalance{
		{Date: day(3, 1), Current: shared},
		{Date: day(3, 2), Current: shared},
	}

	got := ExcludeCollections(balances, []Collection{{Date: day(3, 2), Amount: -3}})

	if *got[0].Current != 10 || *got[1].Current != 13 {
		t.Errorf("got %v, %v, want 10, 13", *got[0].Current, *got[1].Current)
	}
	if *shared != 10 {
		t.Errorf("input modified: %v", *shared)
	}
}

func TestRecordObservedBalance(t *testing.T) {
	observedAt := time.Date(2024, time.March, 11, 9, 30, 0, 0, time.UTC)

	t.Run("writes the day's entry", func(t *testing.T) {
		ledger := newMemoryLedger()
		service := newTestService(ledger, nil, nil, nil)
		acc := backfillAccount()

		got, err := service.RecordObservedBalance(context.Background(), acc, floatPtr(75), floatPtr(70), observedAt, "webhook")
		if err != nil {
			t.Fatalf("RecordObservedBalance() error = %v", err)
		}
		if got.Date != day(3, 11) || got.Caller != "webhook" {
			t.Errorf("entry = %+v", got)
		}
		if ledger.get("acc-1", day(3, 11)) == nil {
			t.Error("entry not persisted")
		}
	})

	t.Run("stale observation writes nothing", func(t *testing.T) {
		ledger := newMemoryLedger()
		accounts := &MockAccountService{
			RecordBalanceFunc: func(ctx context.Context, acc *account.Account, update account.BalanceUpdate) error {
				return account.ErrStaleBalance
			},
		}
		service := newTestService(ledger, accounts, nil, nil)

		_, err := service.RecordObservedBalance(context.Background(), backfillAccount(), floatPtr(1), floatPtr(1), observedAt, "webhook")
		if !errors.Is(err, account.ErrStaleBalance) {
			t.Errorf("error = %v, want ErrStaleBalance", err)
		}
		if ledger.count("acc-1") != 0 {
			t.Error("stale observation must not reach the ledger")
		}
	})
}

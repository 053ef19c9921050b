package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/balancelog"
)

// Ledger reads and records daily balances.
type Ledger interface {
	GetBalancesByDateRange(ctx context.Context, accountID string, start, end civil.Date, excludeInternalPayments bool) ([]balancelog.DailyBalance, error)
	RecordObservedBalance(ctx context.Context, acc *account.Account, available, current *float64, observedAt time.Time, caller string) (*balancelog.Entry, error)
}

// Backfiller rebuilds an account's ledger from its live balance.
type Backfiller interface {
	BackfillDailyBalances(ctx context.Context, acc *account.Account, caller string, opts balancelog.BackfillOptions) (*balancelog.BackfillResult, error)
}

type BalanceHandler struct {
	accounts   AccountLookup
	ledger     Ledger
	backfiller Backfiller
	caller     string
}

// NewBalanceHandler creates a balance handler. caller is recorded on ledger
// rows written through the API unless a backfill request names its own.
func NewBalanceHandler(accounts AccountLookup, ledger Ledger, backfiller Backfiller, caller string) *BalanceHandler {
	return &BalanceHandler{accounts: accounts, ledger: ledger, backfiller: backfiller, caller: caller}
}

type RecordBalanceRequest struct {
	Available  *float64   `json:"available"`
	Current    *float64   `json:"current"`
	ObservedAt *time.Time `json:"observedAt,omitempty"`
}

type BackfillRequest struct {
	Caller          string     `json:"caller,omitempty"`
	Source          string     `json:"source,omitempty"`
	LastKnownUpdate *time.Time `json:"lastKnownUpdate,omitempty"`
}

// HandleGetBalances returns one balance per resolvable day in [start, end].
func (h *BalanceHandler) HandleGetBalances(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	start, ok := parseDateParam(r, "start")
	if !ok {
		writeError(w, http.StatusBadRequest, "start is required (YYYY-MM-DD)")
		return
	}
	end, ok := parseDateParam(r, "end")
	if !ok {
		writeError(w, http.StatusBadRequest, "end is required (YYYY-MM-DD)")
		return
	}

	exclude := false
	if v := r.URL.Query().Get("excludeInternalPayments"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "excludeInternalPayments must be a boolean")
			return
		}
		exclude = parsed
	}

	balances, err := h.ledger.GetBalancesByDateRange(r.Context(), accountID, start, end, exclude)
	if err != nil {
		switch {
		case errors.Is(err, balancelog.ErrInvalidRange):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, account.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "Account not found")
		default:
			writeInternalError(w, r, err, "Failed to get balances")
		}
		return
	}

	if balances == nil {
		balances = []balancelog.DailyBalance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

// HandleRecordBalance stores a freshly observed live balance.
func (h *BalanceHandler) HandleRecordBalance(w http.ResponseWriter, r *http.Request) {
	var req RecordBalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acc, ok := h.account(w, r)
	if !ok {
		return
	}

	observedAt := time.Now().UTC()
	if req.ObservedAt != nil {
		observedAt = *req.ObservedAt
	}

	entry, err := h.ledger.RecordObservedBalance(r.Context(), acc, req.Available, req.Current, observedAt, h.caller)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, account.ErrStaleBalance):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeInternalError(w, r, err, "Failed to record balance")
		}
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// HandleBackfill rebuilds the account's ledger synchronously.
func (h *BalanceHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	acc, ok := h.account(w, r)
	if !ok {
		return
	}

	caller := h.caller
	if req.Caller != "" {
		caller = req.Caller
	}

	result, err := h.backfiller.BackfillDailyBalances(r.Context(), acc, caller, balancelog.BackfillOptions{
		Source:          req.Source,
		LastKnownUpdate: req.LastKnownUpdate,
	})
	if err != nil {
		writeInternalError(w, r, err, "Failed to backfill balances")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *BalanceHandler) account(w http.ResponseWriter, r *http.Request) (*account.Account, bool) {
	acc, err := h.accounts.GetAccount(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "Account not found")
			return nil, false
		}
		writeInternalError(w, r, err, "Failed to get account")
		return nil, false
	}
	return acc, true
}

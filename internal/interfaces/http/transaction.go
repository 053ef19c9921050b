package http

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"bankledger/internal/domain/account"
	"bankledger/internal/domain/openfinance"
	"bankledger/internal/domain/transaction"
)

// AccountLookup resolves the accounts a request operates on.
type AccountLookup interface {
	GetAccount(ctx context.Context, accountID string) (*account.Account, error)
	ListConnectionAccounts(ctx context.Context, connectionID string) ([]*account.Account, error)
}

// TransactionSyncer reconciles provider batches with stored transactions.
type TransactionSyncer interface {
	SyncTransactions(ctx context.Context, accounts []*account.Account, payloads []*transaction.Payload, opts ...openfinance.SyncOption) (*openfinance.TransactionSyncResult, error)
	SyncTransactionsForSingleAccount(ctx context.Context, acc *account.Account, payloads []*transaction.Payload, opts ...openfinance.SyncOption) (*openfinance.TransactionSyncResult, error)
}

type TransactionHandler struct {
	accounts AccountLookup
	syncer   TransactionSyncer
}

func NewTransactionHandler(accounts AccountLookup, syncer TransactionSyncer) *TransactionHandler {
	return &TransactionHandler{accounts: accounts, syncer: syncer}
}

// SyncTransactionsRequest is a provider batch. StartDate and EndDate bound
// the reconciliation window; when omitted the window spans the batch's dates.
type SyncTransactionsRequest struct {
	Payloads  []*transaction.Payload `json:"payloads"`
	StartDate *civil.Date            `json:"startDate,omitempty"`
	EndDate   *civil.Date            `json:"endDate,omitempty"`
}

func (req *SyncTransactionsRequest) options() ([]openfinance.SyncOption, error) {
	if (req.StartDate == nil) != (req.EndDate == nil) {
		return nil, errors.New("startDate and endDate must be given together")
	}
	if req.StartDate == nil {
		return nil, nil
	}
	if req.EndDate.Before(*req.StartDate) {
		return nil, errors.New("endDate is before startDate")
	}
	return []openfinance.SyncOption{openfinance.WithWindow(*req.StartDate, *req.EndDate)}, nil
}

// HandleSyncConnection reconciles a batch against every account of a bank
// connection.
func (h *TransactionHandler) HandleSyncConnection(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connectionId")

	req, opts, ok := decodeSyncRequest(w, r)
	if !ok {
		return
	}

	accounts, err := h.accounts.ListConnectionAccounts(r.Context(), connectionID)
	if err != nil {
		writeInternalError(w, r, err, "Failed to list connection accounts")
		return
	}
	if len(accounts) == 0 {
		writeError(w, http.StatusNotFound, "No accounts for connection")
		return
	}

	result, err := h.syncer.SyncTransactions(r.Context(), accounts, req.Payloads, opts...)
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleSyncAccount applies a real-time batch to one account.
func (h *TransactionHandler) HandleSyncAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	req, opts, ok := decodeSyncRequest(w, r)
	if !ok {
		return
	}

	acc, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		writeInternalError(w, r, err, "Failed to get account")
		return
	}

	result, err := h.syncer.SyncTransactionsForSingleAccount(r.Context(), acc, req.Payloads, opts...)
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func decodeSyncRequest(w http.ResponseWriter, r *http.Request) (*SyncTransactionsRequest, []openfinance.SyncOption, bool) {
	var req SyncTransactionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, nil, false
	}

	opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}

	return &req, opts, true
}

func (h *TransactionHandler) writeSyncError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *openfinance.AccountNotFoundError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, transaction.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeInternalError(w, r, err, "Failed to sync transactions")
	}
}

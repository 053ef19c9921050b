package http

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the API handlers on r.
func RegisterRoutes(r chi.Router, transactions *TransactionHandler, balances *BalanceHandler) {
	r.Get("/health", HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/connections/{connectionId}/transactions", transactions.HandleSyncConnection)

		r.Route("/accounts/{accountId}", func(r chi.Router) {
			r.Post("/transactions", transactions.HandleSyncAccount)
			r.Get("/balances", balances.HandleGetBalances)
			r.Post("/balance", balances.HandleRecordBalance)
			r.Post("/backfill", balances.HandleBackfill)
		})
	})
}

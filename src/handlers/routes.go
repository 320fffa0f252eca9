// backend/src/handlers/routes.go
package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/username/trackfolio/backend/src/security"
)

// RegisterAPIRoutes mounts the authenticated /api routes.
func RegisterAPIRoutes(r chi.Router, authService *security.AuthService, upload *UploadHandler, tx *TransactionHandler, portfolio *PortfolioHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(authService))

		r.Post("/transactions/upload", upload.HandleUpload)
		r.Get("/transactions", tx.HandleGetTransactions)
		r.Get("/transactions/count", tx.HandleCountTransactions)
		r.Get("/portfolio/holdings", portfolio.HandleGetHoldings)
		r.Get("/trades", portfolio.HandleGetClosedTrades)
		r.Get("/trades/summary", portfolio.HandleGetTradesSummary)
	})
}

// backend/src/handlers/transaction_handler.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/username/trackfolio/backend/src/logger"
	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/services"
	"github.com/username/trackfolio/backend/src/utils"
)

const defaultTransactionsPerPage = 20

type TransactionHandler struct {
	portfolioService services.PortfolioService
}

func NewTransactionHandler(portfolioService services.PortfolioService) *TransactionHandler {
	return &TransactionHandler{
		portfolioService: portfolioService,
	}
}

// pageRequestFromQuery reads page and per_page; missing or malformed values fall back to defaults.
func pageRequestFromQuery(r *http.Request, defaultPerPage int) models.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return models.NewPageRequest(page, perPage, defaultPerPage)
}

func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	page := pageRequestFromQuery(r, defaultTransactionsPerPage)
	logger.FromContext(r.Context()).Debug("Handling GetTransactions", "page", page.Page, "perPage", page.PerPage)

	result, err := h.portfolioService.GetTransactions(r.Context(), ownerID, page)
	if err != nil {
		utils.SendJSONError(w, "Error retrieving transactions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

func (h *TransactionHandler) HandleCountTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	count, err := h.portfolioService.CountTransactions(r.Context(), ownerID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to count transactions", "error", err)
		utils.SendJSONError(w, "Error counting transactions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]int{"count": count}, http.StatusOK)
}

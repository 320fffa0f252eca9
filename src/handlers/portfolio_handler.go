// backend/src/handlers/portfolio_handler.go
package handlers

import (
	"net/http"

	"github.com/username/trackfolio/backend/src/logger"
	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/services"
	"github.com/username/trackfolio/backend/src/utils"
)

const (
	defaultHoldingsPerPage = 20
	defaultTradesPerPage   = 10
)

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

func (h *PortfolioHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	holdings, err := h.portfolioService.GetHoldings(r.Context(), ownerID, pageRequestFromQuery(r, defaultHoldingsPerPage))
	if err != nil {
		utils.SendJSONError(w, "Error retrieving holdings", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache, private")
	utils.SendJSONWithETag(w, r, holdings)
}

func (h *PortfolioHandler) HandleGetClosedTrades(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	sort := models.NewTradeSort(q.Get("sort_by"), q.Get("sort_order"))
	logger.FromContext(r.Context()).Debug("Handling GetClosedTrades", "sortBy", sort.By, "ascending", sort.Ascending)

	trades, err := h.portfolioService.GetClosedTrades(r.Context(), ownerID, pageRequestFromQuery(r, defaultTradesPerPage), sort)
	if err != nil {
		utils.SendJSONError(w, "Error retrieving closed trades", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache, private")
	utils.SendJSONWithETag(w, r, trades)
}

func (h *PortfolioHandler) HandleGetTradesSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	summary, err := h.portfolioService.GetTradesSummary(r.Context(), ownerID)
	if err != nil {
		utils.SendJSONError(w, "Error retrieving trades summary", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache, private")
	utils.SendJSONWithETag(w, r, summary)
}

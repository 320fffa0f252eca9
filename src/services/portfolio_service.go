// backend/src/services/portfolio_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/trackfolio/backend/src/logger"
	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/processors"
)

const (
	ckOwnerPrefix     = "owner_%d:"
	ckGeneration      = ckOwnerPrefix + "g%d:"
	ckHoldingsPage    = ckGeneration + "holdings_p%d_pp%d"
	ckClosedTradePage = ckGeneration + "trades_p%d_pp%d_%s_%t"
	ckTradesSummary   = ckGeneration + "trades_summary"

	CacheCleanupInterval = 10 * time.Minute
)

type portfolioServiceImpl struct {
	store       Ledger
	summarizer  processors.TradeSummaryProcessor
	reportCache *cache.Cache // nil when caching is disabled
	ttl         time.Duration

	// generations is bumped by InvalidateOwnerCache. A report is only cached
	// if the owner's generation did not move while it was being computed.
	mu          sync.Mutex
	generations map[int64]uint64
}

// NewPortfolioService caches reports per owner for ttl; a ttl of zero disables the cache.
func NewPortfolioService(store Ledger, summarizer processors.TradeSummaryProcessor, ttl time.Duration) PortfolioService {
	s := &portfolioServiceImpl{store: store, summarizer: summarizer, ttl: ttl, generations: make(map[int64]uint64)}
	if ttl > 0 {
		s.reportCache = cache.New(ttl, CacheCleanupInterval)
	}
	return s
}

func (s *portfolioServiceImpl) cached(key string) (interface{}, bool) {
	if s.reportCache == nil {
		return nil, false
	}
	return s.reportCache.Get(key)
}

func (s *portfolioServiceImpl) generation(ownerID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[ownerID]
}

// remember stores value unless the owner's cache was invalidated after gen was read.
func (s *portfolioServiceImpl) remember(ownerID int64, gen uint64, key string, value interface{}) {
	if s.reportCache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[ownerID] != gen {
		logger.L.Debug("Discarding report computed before invalidation", "ownerID", ownerID, "key", key)
		return
	}
	s.reportCache.Set(key, value, s.ttl)
}

func (s *portfolioServiceImpl) GetHoldings(ctx context.Context, ownerID int64, page models.PageRequest) (models.Page[models.Holding], error) {
	gen := s.generation(ownerID)
	cacheKey := fmt.Sprintf(ckHoldingsPage, ownerID, gen, page.Page, page.PerPage)
	if cached, found := s.cached(cacheKey); found {
		return cached.(models.Page[models.Holding]), nil
	}

	holdings, total, err := s.store.Holdings(ctx, ownerID, page)
	if err != nil {
		logger.ErrorFromContext(ctx, "Failed to compute holdings", "ownerID", ownerID, "error", err)
		return models.Page[models.Holding]{}, err
	}
	result := models.NewPage(holdings, page.Page, page.PerPage, total)
	s.remember(ownerID, gen, cacheKey, result)
	return result, nil
}

func (s *portfolioServiceImpl) GetClosedTrades(ctx context.Context, ownerID int64, page models.PageRequest, sort models.TradeSort) (models.Page[models.ClosedTrade], error) {
	gen := s.generation(ownerID)
	cacheKey := fmt.Sprintf(ckClosedTradePage, ownerID, gen, page.Page, page.PerPage, sort.By, sort.Ascending)
	if cached, found := s.cached(cacheKey); found {
		return cached.(models.Page[models.ClosedTrade]), nil
	}

	trades, total, err := s.store.ClosedTrades(ctx, ownerID, page, sort)
	if err != nil {
		logger.ErrorFromContext(ctx, "Failed to compute closed trades", "ownerID", ownerID, "error", err)
		return models.Page[models.ClosedTrade]{}, err
	}
	result := models.NewPage(trades, page.Page, page.PerPage, total)
	s.remember(ownerID, gen, cacheKey, result)
	return result, nil
}

func (s *portfolioServiceImpl) GetTradesSummary(ctx context.Context, ownerID int64) (models.TradesSummary, error) {
	gen := s.generation(ownerID)
	cacheKey := fmt.Sprintf(ckTradesSummary, ownerID, gen)
	if cached, found := s.cached(cacheKey); found {
		return cached.(models.TradesSummary), nil
	}

	totals, err := s.store.ClosedTradeTotals(ctx, ownerID)
	if err != nil {
		logger.ErrorFromContext(ctx, "Failed to load closed trade totals", "ownerID", ownerID, "error", err)
		return models.TradesSummary{}, err
	}
	summary := s.summarizer.Summarize(totals)
	s.remember(ownerID, gen, cacheKey, summary)
	return summary, nil
}

// GetTransactions is not cached; it is a plain view of the ledger.
func (s *portfolioServiceImpl) GetTransactions(ctx context.Context, ownerID int64, page models.PageRequest) (models.Page[models.TransactionRecord], error) {
	records, total, err := s.store.ListTransactions(ctx, ownerID, page)
	if err != nil {
		logger.ErrorFromContext(ctx, "Failed to list transactions", "ownerID", ownerID, "error", err)
		return models.Page[models.TransactionRecord]{}, err
	}
	return models.NewPage(records, page.Page, page.PerPage, total), nil
}

func (s *portfolioServiceImpl) CountTransactions(ctx context.Context, ownerID int64) (int, error) {
	return s.store.CountTransactions(ctx, ownerID)
}

// InvalidateOwnerCache drops every cached report of one owner. Reports still being
// computed against the old ledger state will not be cached.
func (s *portfolioServiceImpl) InvalidateOwnerCache(ownerID int64) {
	if s.reportCache == nil {
		return
	}
	s.mu.Lock()
	s.generations[ownerID]++
	s.mu.Unlock()

	prefix := fmt.Sprintf(ckOwnerPrefix, ownerID)
	for key := range s.reportCache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.reportCache.Delete(key)
		}
	}
	logger.L.Debug("Invalidated report cache", "ownerID", ownerID)
}

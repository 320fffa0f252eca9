package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/username/trackfolio/backend/src/config"
	"github.com/username/trackfolio/backend/src/database"
	"github.com/username/trackfolio/backend/src/handlers"
	"github.com/username/trackfolio/backend/src/logger"
	"github.com/username/trackfolio/backend/src/model"
	"github.com/username/trackfolio/backend/src/parsers/degiro"
	"github.com/username/trackfolio/backend/src/processors"
	"github.com/username/trackfolio/backend/src/security"
	"github.com/username/trackfolio/backend/src/services"
)

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Trackfolio backend server starting...")

	authService, err := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry)
	if err != nil {
		logger.L.Error("JWT_SECRET configuration invalid.", "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations()

	ledger := model.NewLedgerStore(database.DB)
	schema := degiro.NewSchema(config.Cfg.AllowedCurrencies)

	portfolioService := services.NewPortfolioService(ledger, processors.NewTradeSummaryProcessor(config.Cfg.BaseCurrency), config.Cfg.ReportCacheTTL)
	ingestionService := services.NewIngestionService(ledger, schema, processors.NewTransactionProcessor(), portfolioService, services.IngestionOptions{
		Policy:   services.ParseRowFailurePolicy(config.Cfg.RowFailurePolicy),
		MaxBytes: config.Cfg.MaxUploadSizeBytes,
	})

	uploadHandler := handlers.NewUploadHandler(ingestionService, config.Cfg.MaxUploadSizeBytes)
	txHandler := handlers.NewTransactionHandler(portfolioService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)

	limiter := rate.NewLimiter(rate.Limit(config.Cfg.RateLimitRPS), config.Cfg.RateLimitBurst)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(handlers.ProxyHeadersMiddleware)
	r.Use(handlers.CORSMiddleware(config.Cfg.AllowedOrigins))
	r.Use(handlers.RateLimitMiddleware(limiter))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Trackfolio Backend is running"})
	})

	handlers.RegisterAPIRoutes(r, authService, uploadHandler, txHandler, portfolioHandler)

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/viscontia/expensefx/internal/cache"
	"github.com/viscontia/expensefx/internal/config"
	"github.com/viscontia/expensefx/internal/db"
	"github.com/viscontia/expensefx/internal/handlers"
	"github.com/viscontia/expensefx/internal/logger"
	"github.com/viscontia/expensefx/internal/services"
	"github.com/viscontia/expensefx/internal/store"
	"github.com/viscontia/expensefx/internal/telemetry"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	// Initialize structured logger
	zl, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()
	sugar := zl.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Configuration error: %v", err)
	}

	// Database connection
	database, err := db.Connect(db.NewConfig())
	if err != nil {
		sugar.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Health(); err != nil {
		sugar.Fatalf("Database health check failed: %v", err)
	}
	sugar.Infow("Database connection established")

	// Telemetry
	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	// Cache with housekeeper
	rateCache := cache.New(cfg.CacheCapacity, zl, metrics)
	rateCache.StartHousekeeper(5 * time.Minute)
	defer rateCache.Stop()

	// Stores
	rateStore := store.NewRateStore(database, cfg.Currencies())
	expenseStore := store.NewExpenseStore(database)

	// Rate subsystem services
	provider := services.NewHTTPRateProvider(cfg, rateCache, zl, metrics)
	refreshService := services.NewRefreshService(rateStore, provider, cfg, zl, metrics)
	captureService := services.NewCaptureService(rateStore, provider, rateCache, cfg, zl, metrics)
	conversionService := services.NewConversionService(rateStore, expenseStore, provider, rateCache, cfg, zl, metrics)
	expenseService := services.NewExpenseService(expenseStore, captureService, zl)

	// Handlers
	fxHandler := handlers.NewFXHandler(conversionService, refreshService, rateStore)
	cacheHandler := handlers.NewCacheHandler(rateCache)
	expenseHandler := handlers.NewExpenseHandler(expenseService, conversionService)

	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "healthy"
		if err := database.Health(); err != nil {
			status = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"service": "expensefx-backend",
		})
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	// Currency operations
	api.HandleFunc("/fx/rate", fxHandler.HandleRate).Methods(http.MethodGet)
	api.HandleFunc("/fx/convert", fxHandler.HandleConvert).Methods(http.MethodGet)
	api.HandleFunc("/fx/update", fxHandler.HandleUpdate).Methods(http.MethodPost)
	api.HandleFunc("/fx/force-update", fxHandler.HandleForceUpdate).Methods(http.MethodPost)
	api.HandleFunc("/fx/last-update", fxHandler.HandleLastUpdate).Methods(http.MethodGet)
	api.HandleFunc("/fx/status", fxHandler.HandleStatus).Methods(http.MethodGet)
	api.HandleFunc("/fx/currencies", fxHandler.HandleCurrencies).Methods(http.MethodGet)

	// Cache administration
	api.HandleFunc("/fx/cache/metrics", cacheHandler.HandleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/fx/cache/invalidate", cacheHandler.HandleInvalidate).Methods(http.MethodPost)
	api.HandleFunc("/fx/cache/warm", cacheHandler.HandleWarm).Methods(http.MethodPost)

	// Expenses
	api.HandleFunc("/expenses", expenseHandler.HandleCreate).Methods(http.MethodPost)
	api.HandleFunc("/expenses", expenseHandler.HandleList).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id:[0-9]+}", expenseHandler.HandleGet).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id:[0-9]+}", expenseHandler.HandleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/expenses/{id:[0-9]+}", expenseHandler.HandleDelete).Methods(http.MethodDelete)

	// Every API request doubles as a client sign-of-life; the refresh
	// service debounces to one attempt per calendar day.
	heartbeat := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			go refreshService.Heartbeat(context.Background())
			next.ServeHTTP(w, r)
		})
	}

	// CORS middleware
	corsHandler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}

	logged := requestLogger(zl)(heartbeat(router))
	server := http.Server{Addr: ":" + cfg.ServerPort, Handler: recovery(zl)(corsHandler(logged))}
	sugar.Infof("Server starting on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// requestLogger logs basic request info
func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
			)
			next.ServeHTTP(w, r)
		})
	}
}

// recovery recovers from panics and logs the error
func recovery(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.Error("panic recovered", zap.Any("error", rec))
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte("internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

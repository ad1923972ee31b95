package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridian-fi/mvm/internal/logger"
	"github.com/meridian-fi/mvm/internal/state"
	"github.com/meridian-fi/mvm/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes read-only vault data over HTTP.
type WebServer struct {
	router *mux.Router
	vault  *vault.Service
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, service *vault.Service) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		vault:  service,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus scrape endpoint
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/funds", ws.handleGetFunds).Methods("GET")
	api.HandleFunc("/funds/idle", ws.handleGetIdleFunds).Methods("GET")
	api.HandleFunc("/funds/invested", ws.handleGetInvestedFunds).Methods("GET")
	api.HandleFunc("/operations", ws.handleGetOperations).Methods("GET")
	api.HandleFunc("/operations/{id}", ws.handleGetOperation).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	// In memory-only mode the pool was never opened; that is not a failure.
	dbHealthy := true
	persistence := "enabled"
	if state.DB == nil {
		persistence = "disabled"
	} else if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"total_alloc_bytes":  memStats.TotalAlloc,
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "mvm-multi-asset-vault-manager",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"persistence":      persistence,
			"database_healthy": dbHealthy,
			"share_supply":     ws.vault.ShareSupply(r.Context()).String(),
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetFunds returns the full fund ledger, recomputed from live balances
func (ws *WebServer) handleGetFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := ws.vault.TotalManagedFunds(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute fund ledger")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve fund ledger")
		return
	}

	response := map[string]interface{}{
		"funds":        funds,
		"share_supply": ws.vault.ShareSupply(r.Context()).String(),
		"timestamp":    time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetIdleFunds returns the undeployed balance per asset
func (ws *WebServer) handleGetIdleFunds(w http.ResponseWriter, r *http.Request) {
	ws.writeFundMap(w, r.Context(), "idle_funds", ws.vault.CurrentIdleFunds)
}

// handleGetInvestedFunds returns the deployed balance per asset
func (ws *WebServer) handleGetInvestedFunds(w http.ResponseWriter, r *http.Request) {
	ws.writeFundMap(w, r.Context(), "invested_funds", ws.vault.CurrentInvestedFunds)
}

func (ws *WebServer) writeFundMap(w http.ResponseWriter, ctx context.Context, key string, fetch func(context.Context) (map[string]sdkmath.Int, error)) {
	funds, err := fetch(ctx)
	if err != nil {
		webLogger.Error().Err(err).Str("view", key).Msg("Failed to compute fund view")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve fund view")
		return
	}

	amounts := make(map[string]string, len(funds))
	for denom, amount := range funds {
		amounts[denom] = amount.String()
	}

	response := map[string]interface{}{
		key:         amounts,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetOperations returns paginated operation records
func (ws *WebServer) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	records, err := state.GetRecentOperations(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent operations")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operations")
		return
	}

	response := map[string]interface{}{
		"operations": records,
		"count":      len(records),
		"limit":      limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetOperation returns a specific operation record by UUID
func (ws *WebServer) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	record, err := state.GetOperationByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Operation not found")
			return
		}
		webLogger.Error().Err(err).Str("operationId", id).Msg("Failed to get operation")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operation")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, record)
}

// handleGetVaultSummary returns vault summary statistics
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetOperationSummary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}

	funds, err := ws.vault.TotalManagedFunds(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute fund ledger")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve fund ledger")
		return
	}

	response := map[string]interface{}{
		"operations":   summary,
		"funds":        funds,
		"share_supply": ws.vault.ShareSupply(r.Context()).String(),
		"timestamp":    time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture the status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

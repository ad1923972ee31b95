package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/meridian-fi/mvm/internal/config"
	"github.com/meridian-fi/mvm/internal/logger"
	"github.com/meridian-fi/mvm/internal/registry"
	"github.com/meridian-fi/mvm/internal/state"
	"github.com/meridian-fi/mvm/internal/strategy"
	"github.com/meridian-fi/mvm/internal/token"
	"github.com/meridian-fi/mvm/internal/types"
	"github.com/meridian-fi/mvm/internal/vault"
	"github.com/meridian-fi/mvm/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	ACCRUAL_INTERVAL = 10 * time.Minute
)

// main is the entry point for the MVM system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("MVM Core Logic Starting...")

	// Initialize Database Connection (for the registry and operation records)
	persistent := os.Getenv("DB_HOST") != ""
	if persistent {
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	} else {
		log.Warn().Msg("DB_HOST not set. Running without persistence; operation records and paused flags are kept in memory only.")
	}

	// --- 2. Asset Registry ---
	assets, err := loadAssets(persistent)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load asset registry")
	}

	// --- 3. Collaborators ---
	bank := token.NewInMemoryBank()

	yieldBps := uint64(mustAtoi(os.Getenv("MVM_SIM_YIELD_BPS"), 50))
	adapters := make(map[string]strategy.Strategy)
	for _, asset := range assets {
		for _, st := range asset.Strategies {
			adapters[st.ID] = strategy.NewSimulated(st.ID, asset.Denom, bank, yieldBps)
		}
	}

	reg, err := registry.New(assets, adapters)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build asset registry")
	}

	// Unit routes between every registered asset pair so rebalance swaps work
	// out of the box; override via SetRate before production-like runs.
	dex := strategy.NewFixedRateDex(bank, time.Now)
	for _, in := range assets {
		for _, out := range assets {
			if in.Denom != out.Denom {
				dex.SetRate(in.Denom, out.Denom, 1, 1)
			}
		}
	}

	var records vault.RecordStore
	var regStore vault.RegistryStore
	if persistent {
		records = state.OperationRecordStore{}
		regStore = state.PausedFlagStore{}
	}

	// --- 4. Vault Service ---
	service, err := vault.New(vault.Config{
		Registry:       reg,
		Bank:           bank,
		Dex:            dex,
		Authorizer:     vault.NewAllowList(config.Managers, config.Rebalancers),
		Records:        records,
		RegistryStore:  regStore,
		VaultAddress:   config.VaultAddress,
		FeeCollector:   config.FeeCollector,
		ShareDenom:     config.ShareDenom,
		ProtocolFeeBps: config.ProtocolFeeBps,
		VaultFeeBps:    config.VaultFeeBps,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault service")
	}

	// --- 5. Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, service)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting MVM web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Fee Accrual Loop ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("interval", ACCRUAL_INTERVAL.String()).Msg("Starting fee accrual loop")
	ticker := time.NewTicker(ACCRUAL_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			minted, err := service.AccrueFees(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Fee accrual failed")
				continue
			}
			if minted.IsPositive() {
				log.Info().Str("shares", minted.String()).Msg("Fee shares accrued")
			}
			if persistent {
				if _, err := state.IncrementOperationSequence(); err != nil {
					log.Error().Err(err).Msg("Failed to advance operation sequence")
				}
			}
		case <-ctx.Done():
			log.Info().Msg("Shutdown signal received, exiting")
			return
		}
	}
}

// loadAssets resolves the asset registry. The database copy wins when one
// exists so paused flags survive restarts; otherwise the configured JSON file
// seeds both the process and, in persistent mode, the database.
func loadAssets(persistent bool) ([]types.Asset, error) {
	if persistent {
		assets, err := state.LoadRegistry()
		if err == nil {
			return assets, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		log.Info().Msg("No persisted registry found, seeding from assets file")
	}

	data, err := os.ReadFile(config.AssetsFile)
	if err != nil {
		return nil, err
	}
	var assets []types.Asset
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, err
	}

	if persistent {
		if err := state.SaveRegistry(assets); err != nil {
			return nil, err
		}
	}
	return assets, nil
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

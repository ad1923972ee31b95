package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultAddress is the account that holds idle funds and locked shares.
	VaultAddress string
	// FeeCollector is the account that receives fee-accrual share mints.
	FeeCollector string
	// ShareDenom is the denom of the vault's ownership shares.
	ShareDenom string

	// VaultFeeBps is the per-vault fee rate in basis points.
	VaultFeeBps uint64
	// ProtocolFeeBps is the protocol-wide fee rate in basis points.
	ProtocolFeeBps uint64

	// AssetsFile is the path to the JSON file describing the asset registry.
	AssetsFile string

	// Managers are the accounts allowed to invest, pause, unpause and rescue.
	Managers []string
	// Rebalancers are the accounts allowed to submit rebalance batches.
	Rebalancers []string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultAddress, err = getEnv("MVM_VAULT_ADDRESS")
	if err != nil {
		return err
	}

	FeeCollector, err = getEnv("MVM_FEE_COLLECTOR")
	if err != nil {
		return err
	}

	ShareDenom, err = getEnv("MVM_SHARE_DENOM")
	if err != nil {
		return err
	}

	VaultFeeBps, err = getEnvAsUint64("MVM_VAULT_FEE_BPS")
	if err != nil {
		return err
	}

	ProtocolFeeBps, err = getEnvAsUint64("MVM_PROTOCOL_FEE_BPS")
	if err != nil {
		return err
	}

	AssetsFile, err = getEnv("MVM_ASSETS_FILE")
	if err != nil {
		return err
	}

	Managers, err = getEnvAsList("MVM_MANAGERS")
	if err != nil {
		return err
	}

	Rebalancers, err = getEnvAsList("MVM_REBALANCERS")
	if err != nil {
		return err
	}

	log.Debug().
		Str("VaultAddress", VaultAddress).
		Str("ShareDenom", ShareDenom).
		Uint64("VaultFeeBps", VaultFeeBps).
		Uint64("ProtocolFeeBps", ProtocolFeeBps).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsList retrieves a comma-separated environment variable as a string slice.
func getEnvAsList(key string) ([]string, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return nil, errors.New("environment variable " + key + " must contain at least one entry")
	}
	return values, nil
}

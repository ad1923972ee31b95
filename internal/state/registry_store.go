// ./internal/state/registry_store.go
package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/meridian-fi/mvm/internal/types"
)

// SaveRegistry persists the static asset registry. Existing rows are upserted
// so a restart with the same configuration is a no-op; paused flags already in
// the database win over the incoming configuration.
func SaveRegistry(assets []types.Asset) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	assetStmt := `
		INSERT INTO vault_assets (asset_position, denom)
		VALUES ($1, $2)
		ON CONFLICT (asset_position) DO NOTHING;`
	strategyStmt := `
		INSERT INTO vault_strategies (strategy_id, asset_denom, strategy_position, name, paused)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (strategy_id) DO UPDATE SET name = EXCLUDED.name;`

	for i, asset := range assets {
		if _, err = tx.Exec(assetStmt, i, asset.Denom); err != nil {
			return fmt.Errorf("failed to save asset %s: %w", asset.Denom, err)
		}
		for j, st := range asset.Strategies {
			if _, err = tx.Exec(strategyStmt, st.ID, asset.Denom, j, st.Name, st.Paused); err != nil {
				return fmt.Errorf("failed to save strategy %s: %w", st.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registry: %w", err)
	}

	log.Info().Int("assets", len(assets)).Msg("Asset registry persisted")
	return nil
}

// LoadRegistry reads the persisted registry in configured order. Returns
// sql.ErrNoRows when no registry has been saved yet.
func LoadRegistry() ([]types.Asset, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	assetRows, err := DB.Query(`SELECT denom FROM vault_assets ORDER BY asset_position;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer assetRows.Close()

	var assets []types.Asset
	for assetRows.Next() {
		var denom string
		if err := assetRows.Scan(&denom); err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		assets = append(assets, types.Asset{Denom: denom})
	}
	if err := assetRows.Err(); err != nil {
		return nil, fmt.Errorf("asset row iteration failed: %w", err)
	}
	if len(assets) == 0 {
		return nil, sql.ErrNoRows
	}

	for i := range assets {
		strategies, err := loadStrategies(assets[i].Denom)
		if err != nil {
			return nil, err
		}
		assets[i].Strategies = strategies
	}

	log.Info().Int("assets", len(assets)).Msg("Asset registry loaded from database")
	return assets, nil
}

func loadStrategies(denom string) ([]types.Strategy, error) {
	rows, err := DB.Query(`
		SELECT strategy_id, name, paused
		FROM vault_strategies
		WHERE asset_denom = $1
		ORDER BY strategy_position;`, denom)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies for %s: %w", denom, err)
	}
	defer rows.Close()

	var strategies []types.Strategy
	for rows.Next() {
		var st types.Strategy
		if err := rows.Scan(&st.ID, &st.Name, &st.Paused); err != nil {
			return nil, fmt.Errorf("failed to scan strategy row: %w", err)
		}
		strategies = append(strategies, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("strategy row iteration failed: %w", err)
	}
	return strategies, nil
}

// PausedFlagStore persists paused-flag changes through the global DB pool. It
// satisfies the vault service's RegistryStore interface.
type PausedFlagStore struct{}

// SetStrategyPaused updates one strategy's paused flag.
func (PausedFlagStore) SetStrategyPaused(strategyID string, paused bool) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	result, err := DB.Exec(`
		UPDATE vault_strategies
		SET paused = $2, updated_at = CURRENT_TIMESTAMP
		WHERE strategy_id = $1;`, strategyID, paused)
	if err != nil {
		return fmt.Errorf("failed to update paused flag for %s: %w", strategyID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("strategy %s not found in registry store", strategyID)
	}

	log.Debug().Str("strategy", strategyID).Bool("paused", paused).Msg("Paused flag persisted")
	return nil
}

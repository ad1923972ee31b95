/*

This file manages the persistent global operation sequence for the MVM system.
The sequence is stored in the database to ensure continuity across restarts.

*/

package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentOperationSequence retrieves the current operation sequence from the database
func GetCurrentOperationSequence() (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `SELECT current_sequence FROM operation_counter WHERE id = 1;`

	var currentSequence int64
	row := DB.QueryRow(query)
	err := row.Scan(&currentSequence)

	if err != nil {
		if err == sql.ErrNoRows {
			// Should not happen, EnsureSchema seeds the row
			log.Warn().Msg("No operation counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current operation sequence: %w", err)
	}

	log.Debug().Int64("currentSequence", currentSequence).Msg("Retrieved current operation sequence")
	return currentSequence, nil
}

// IncrementOperationSequence increments the operation sequence and returns the new value
func IncrementOperationSequence() (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	updateQuery := `
		UPDATE operation_counter
		SET current_sequence = current_sequence + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_sequence;`

	var newSequence int64
	row := DB.QueryRow(updateQuery)
	err := row.Scan(&newSequence)

	if err != nil {
		return 0, fmt.Errorf("failed to increment operation sequence: %w", err)
	}

	log.Info().Int64("newSequence", newSequence).Msg("Incremented operation sequence")
	return newSequence, nil
}

// ResetOperationSequence resets the sequence to a specific value (for testing/maintenance)
func ResetOperationSequence(sequence int64) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if sequence < 0 {
		return fmt.Errorf("operation sequence cannot be negative: %d", sequence)
	}

	updateQuery := `
		UPDATE operation_counter
		SET current_sequence = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := DB.Exec(updateQuery, sequence)
	if err != nil {
		return fmt.Errorf("failed to reset operation sequence to %d: %w", sequence, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting operation sequence")
	}

	log.Warn().Int64("sequence", sequence).Msg("Reset operation sequence")
	return nil
}

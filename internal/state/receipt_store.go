// ./internal/state/receipt_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/meridian-fi/mvm/internal/types"
)

// OperationRecordStore persists operation records through the global DB pool.
// It satisfies the vault service's RecordStore interface.
type OperationRecordStore struct{}

// SaveOperationRecord saves one entry-point call trace and returns its row ID.
func (OperationRecordStore) SaveOperationRecord(record types.OperationRecord) (int64, error) {
	return SaveOperationRecord(record)
}

// SaveOperationRecord saves a complete operation record to the database.
func SaveOperationRecord(record types.OperationRecord) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stepsJSON, err := json.Marshal(record.Steps)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal steps: %w", err)
	}

	sharesDelta := "0"
	if !record.SharesDelta.IsNil() {
		sharesDelta = record.SharesDelta.String()
	}

	query := `
		INSERT INTO operation_records (
			operation_id, kind, caller, success, error_message, shares_delta, steps, operation_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING record_id;
	`

	var recordID int64
	err = DB.QueryRow(
		query,
		record.OperationID, record.Kind, record.Caller, record.Success,
		nullableString(record.Error), sharesDelta, stepsJSON, record.Timestamp,
	).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert operation record: %w", err)
	}

	log.Debug().Int64("record_id", recordID).Str("kind", record.Kind).Msg("Operation record saved")
	return recordID, nil
}

// GetRecentOperations retrieves recent operation records, newest first.
func GetRecentOperations(limit int) ([]types.OperationRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 20 // Default limit
	}

	query := `
		SELECT record_id, operation_id, kind, caller, success, error_message, shares_delta, steps, operation_timestamp
		FROM operation_records
		ORDER BY operation_timestamp DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation records: %w", err)
	}
	defer rows.Close()

	var records []types.OperationRecord
	for rows.Next() {
		record, err := scanOperationRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("operation record iteration failed: %w", err)
	}
	return records, nil
}

// GetOperationByID retrieves one operation record by its UUID.
func GetOperationByID(operationID string) (*types.OperationRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT record_id, operation_id, kind, caller, success, error_message, shares_delta, steps, operation_timestamp
		FROM operation_records
		WHERE operation_id = $1
		ORDER BY operation_timestamp DESC
		LIMIT 1;
	`

	rows, err := DB.Query(query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("operation record iteration failed: %w", err)
		}
		return nil, sql.ErrNoRows
	}
	record, err := scanOperationRecord(rows)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// OperationSummary represents high-level vault activity statistics.
type OperationSummary struct {
	TotalOperations      int    `json:"total_operations"`
	SuccessfulOperations int    `json:"successful_operations"`
	FailedOperations     int    `json:"failed_operations"`
	LastOperationAt      string `json:"last_operation_at,omitempty"`
}

// GetOperationSummary aggregates success/failure counts across all records.
func GetOperationSummary() (*OperationSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(MAX(operation_timestamp)::TEXT, '')
		FROM operation_records;
	`

	summary := &OperationSummary{}
	err := DB.QueryRow(query).Scan(
		&summary.TotalOperations,
		&summary.SuccessfulOperations,
		&summary.FailedOperations,
		&summary.LastOperationAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate operation summary: %w", err)
	}
	return summary, nil
}

func scanOperationRecord(rows *sql.Rows) (types.OperationRecord, error) {
	var record types.OperationRecord
	var errorMessage sql.NullString
	var caller sql.NullString
	var sharesDelta string
	var stepsJSON []byte

	err := rows.Scan(
		&record.RecordID, &record.OperationID, &record.Kind, &caller,
		&record.Success, &errorMessage, &sharesDelta, &stepsJSON, &record.Timestamp,
	)
	if err != nil {
		return types.OperationRecord{}, fmt.Errorf("failed to scan operation record: %w", err)
	}

	record.Caller = caller.String
	record.Error = errorMessage.String

	delta, ok := sdkmath.NewIntFromString(sharesDelta)
	if !ok {
		return types.OperationRecord{}, fmt.Errorf("invalid shares_delta %q in record %d", sharesDelta, record.RecordID)
	}
	record.SharesDelta = delta

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &record.Steps); err != nil {
			return types.OperationRecord{}, fmt.Errorf("failed to unmarshal steps for record %d: %w", record.RecordID, err)
		}
	}
	return record, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

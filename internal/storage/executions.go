package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Execution persistence errors.
var (
	ErrExecutionNotFound = errors.New("swap execution not found")
)

// ExecutionState represents the lifecycle state of a swap execution.
type ExecutionState string

const (
	ExecStatePending         ExecutionState = "pending"
	ExecStateSourceCommitted ExecutionState = "source_committed"
	ExecStateCompleted       ExecutionState = "completed"
	ExecStateFailed          ExecutionState = "failed"
	ExecStatePartial         ExecutionState = "partial"
)

// SwapExecution is a persisted swap run. Amounts are stored as decimal
// strings in human units.
type SwapExecution struct {
	ID          string         `json:"id"`
	FromChain   string         `json:"from_chain"`
	ToChain     string         `json:"to_chain"`
	FromToken   string         `json:"from_token"`
	ToToken     string         `json:"to_token"`
	AmountIn    string         `json:"amount_in"`
	QuotedOut   string         `json:"quoted_out"`
	MinOut      string         `json:"min_out"`
	RealizedOut string         `json:"realized_out,omitempty"`
	State       ExecutionState `json:"state"`

	// Stage names the step that failed for partial outcomes
	// (bridge, destination).
	Stage string `json:"stage,omitempty"`

	SourceTxHash string `json:"source_tx_hash,omitempty"`
	BridgeTxHash string `json:"bridge_tx_hash,omitempty"`
	DestTxHash   string `json:"dest_tx_hash,omitempty"`
	Error        string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveExecution saves or updates a swap execution record.
func (s *Storage) SaveExecution(exec *SwapExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = now
	}
	exec.UpdatedAt = now

	query := `
		INSERT INTO swap_executions (
			id, from_chain, to_chain, from_token, to_token,
			amount_in, quoted_out, min_out, realized_out,
			state, stage, source_tx_hash, bridge_tx_hash, dest_tx_hash,
			error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			realized_out = excluded.realized_out,
			state = excluded.state,
			stage = excluded.stage,
			source_tx_hash = excluded.source_tx_hash,
			bridge_tx_hash = excluded.bridge_tx_hash,
			dest_tx_hash = excluded.dest_tx_hash,
			error = excluded.error,
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		exec.ID,
		exec.FromChain,
		exec.ToChain,
		exec.FromToken,
		exec.ToToken,
		exec.AmountIn,
		exec.QuotedOut,
		exec.MinOut,
		exec.RealizedOut,
		string(exec.State),
		exec.Stage,
		exec.SourceTxHash,
		exec.BridgeTxHash,
		exec.DestTxHash,
		exec.Error,
		exec.CreatedAt.Unix(),
		exec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution loads one swap execution by id.
func (s *Storage) GetExecution(id string) (*SwapExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, from_chain, to_chain, from_token, to_token,
			amount_in, quoted_out, min_out, realized_out,
			state, stage, source_tx_hash, bridge_tx_hash, dest_tx_hash,
			error, created_at, updated_at
		FROM swap_executions WHERE id = ?
	`, id)

	return scanExecution(row)
}

// ListExecutionsByState returns executions in a given state, newest first.
func (s *Storage) ListExecutionsByState(state ExecutionState) ([]*SwapExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, from_chain, to_chain, from_token, to_token,
			amount_in, quoted_out, min_out, realized_out,
			state, stage, source_tx_hash, bridge_tx_hash, dest_tx_hash,
			error, created_at, updated_at
		FROM swap_executions WHERE state = ?
		ORDER BY created_at DESC
	`, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var execs []*SwapExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanExecution.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row scanner) (*SwapExecution, error) {
	var exec SwapExecution
	var state string
	var createdAt, updatedAt int64

	err := row.Scan(
		&exec.ID,
		&exec.FromChain,
		&exec.ToChain,
		&exec.FromToken,
		&exec.ToToken,
		&exec.AmountIn,
		&exec.QuotedOut,
		&exec.MinOut,
		&exec.RealizedOut,
		&state,
		&exec.Stage,
		&exec.SourceTxHash,
		&exec.BridgeTxHash,
		&exec.DestTxHash,
		&exec.Error,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	exec.State = ExecutionState(state)
	exec.CreatedAt = time.Unix(createdAt, 0)
	exec.UpdatedAt = time.Unix(updatedAt, 0)
	return &exec, nil
}

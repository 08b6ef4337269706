package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/ledger"
	"github.com/cardstack/scheduled-payment-crank/pkg/period"
)

var _ ledger.Store = (*Store)(nil)

// Load reads the full ledger state.
// Active hashes come back in insertion order and nonces by value.
func (s *Store) Load(ctx context.Context) (*ledger.State, error) {
	state := &ledger.State{Markers: make(map[common.Hash]period.Marker)}

	active, err := s.hashes(ctx, `SELECT sp_hash FROM active_payments ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load active payments: %w", err)
	}
	state.Active = active

	nonces, err := s.hashes(ctx, `SELECT sp_hash FROM nonces ORDER BY nonce ASC`)
	if err != nil {
		return nil, fmt.Errorf("load nonces: %w", err)
	}
	state.Nonces = nonces

	rows, err := s.db.QueryContext(ctx, `SELECT sp_hash, marker FROM markers`)
	if err != nil {
		return nil, fmt.Errorf("load markers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		var marker int64
		if err := rows.Scan(&hash, &marker); err != nil {
			return nil, fmt.Errorf("load markers: %w", err)
		}
		state.Markers[common.HexToHash(hash)] = period.Marker(marker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load markers: %w", err)
	}

	return state, nil
}

// Apply writes changes in one transaction
func (s *Store) Apply(ctx context.Context, changes []ledger.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply changes: %w", err)
	}
	defer tx.Rollback()

	for _, c := range changes {
		if err := applyChange(ctx, tx, c); err != nil {
			return fmt.Errorf("apply %s change: %w", c.Hash.Hex(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit changes: %w", err)
	}
	return nil
}

func applyChange(ctx context.Context, tx *sql.Tx, c ledger.Change) error {
	hash := c.Hash.Hex()
	switch c.Kind {
	case ledger.ChangeScheduled:
		if _, err := tx.ExecContext(ctx, `INSERT INTO active_payments (sp_hash) VALUES (?)`, hash); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO nonces (nonce, sp_hash) VALUES (?, ?)`, int64(c.Nonce), hash)
		return err
	case ledger.ChangeCancelled:
		_, err := tx.ExecContext(ctx, `DELETE FROM active_payments WHERE sp_hash = ?`, hash)
		return err
	case ledger.ChangeSettled:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO markers (sp_hash, marker) VALUES (?, ?)
			ON CONFLICT(sp_hash) DO UPDATE SET marker = excluded.marker
		`, hash, int64(c.Marker))
		if err != nil {
			return err
		}
		if c.Remove {
			_, err = tx.ExecContext(ctx, `DELETE FROM active_payments WHERE sp_hash = ?`, hash)
		}
		return err
	default:
		return fmt.Errorf("unknown change kind %d", c.Kind)
	}
}

func (s *Store) hashes(ctx context.Context, query string) ([]common.Hash, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Hash
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, common.HexToHash(h))
	}
	return out, rows.Err()
}

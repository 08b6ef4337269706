package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

// SaveIntent records an intent under its hash.
// Saving the same hash twice keeps the first record.
func (s *Store) SaveIntent(ctx context.Context, hash common.Hash, intent models.IntentJSON) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("save intent: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intents (sp_hash, body, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(sp_hash) DO NOTHING
	`, hash.Hex(), string(body), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save intent: %w", err)
	}
	return nil
}

// Intent returns the intent stored under hash
func (s *Store) Intent(ctx context.Context, hash common.Hash) (models.IntentJSON, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM intents WHERE sp_hash = ?`, hash.Hex()).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.IntentJSON{}, false, nil
		}
		return models.IntentJSON{}, false, fmt.Errorf("read intent: %w", err)
	}

	var intent models.IntentJSON
	if err := json.Unmarshal([]byte(body), &intent); err != nil {
		return models.IntentJSON{}, false, fmt.Errorf("decode intent %s: %w", hash.Hex(), err)
	}
	return intent, true, nil
}

// Intents returns every stored intent in the order they were first seen
func (s *Store) Intents(ctx context.Context) ([]models.IntentJSON, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sp_hash, body FROM intents ORDER BY created_at ASC, sp_hash ASC`)
	if err != nil {
		return nil, fmt.Errorf("read intents: %w", err)
	}
	defer rows.Close()

	var out []models.IntentJSON
	for rows.Next() {
		var hash, body string
		if err := rows.Scan(&hash, &body); err != nil {
			return nil, fmt.Errorf("read intents: %w", err)
		}
		var intent models.IntentJSON
		if err := json.Unmarshal([]byte(body), &intent); err != nil {
			return nil, fmt.Errorf("decode intent %s: %w", hash, err)
		}
		out = append(out, intent)
	}
	return out, rows.Err()
}

// DeleteIntent forgets the intent stored under hash
func (s *Store) DeleteIntent(ctx context.Context, hash common.Hash) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM intents WHERE sp_hash = ?`, hash.Hex()); err != nil {
		return fmt.Errorf("delete intent: %w", err)
	}
	return nil
}

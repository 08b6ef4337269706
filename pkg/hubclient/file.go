package hubclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

// FileSource reads intents from a JSON file holding an array of intents.
// The file is re-read on every fetch so it can be edited while the crank runs.
type FileSource struct {
	Path string
}

// Fetch returns the intents in the file
func (f *FileSource) Fetch(_ context.Context) ([]models.IntentJSON, error) {
	return ReadIntentsFile(f.Path)
}

// ReadIntentsFile decodes a file holding either one intent or an array of intents
func ReadIntentsFile(path string) ([]models.IntentJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intents file: %w", err)
	}

	var intents []models.IntentJSON
	if err := json.Unmarshal(data, &intents); err == nil {
		return intents, nil
	}

	var single models.IntentJSON
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to decode intents file %s: %w", path, err)
	}
	return []models.IntentJSON{single}, nil
}

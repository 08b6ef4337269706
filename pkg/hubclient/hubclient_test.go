package hubclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
	"github.com/cardstack/scheduled-payment-crank/pkg/testutil"
)

func sampleIntent(payAt uint64) models.IntentJSON {
	return models.FromIntent(testutil.OneTimeIntent(
		testutil.GenerateAddress(), testutil.GenerateAddress(), testutil.GenerateAddress(), payAt,
	))
}

func TestFetch(t *testing.T) {
	first, second := sampleIntent(1_700_000_000), sampleIntent(1_700_086_400)

	tests := []struct {
		name     string
		status   int
		respond  func(page int) interface{}
		expected []models.IntentJSON
		wantErr  bool
	}{
		{
			name:   "wrapped response",
			status: http.StatusOK,
			respond: func(int) interface{} {
				return APIResponse{Payments: []models.IntentJSON{first, second}, Page: 1, TotalCount: 2, TotalPages: 1}
			},
			expected: []models.IntentJSON{first, second},
		},
		{
			name:   "data key",
			status: http.StatusOK,
			respond: func(int) interface{} {
				return APIResponse{Data: []models.IntentJSON{first}, Page: 1, TotalCount: 1, TotalPages: 1}
			},
			expected: []models.IntentJSON{first},
		},
		{
			name:   "paginated",
			status: http.StatusOK,
			respond: func(page int) interface{} {
				items := []models.IntentJSON{first}
				if page == 2 {
					items = []models.IntentJSON{second}
				}
				return APIResponse{Payments: items, Page: page, PageSize: 1, TotalCount: 2, TotalPages: 2}
			},
			expected: []models.IntentJSON{first, second},
		},
		{
			name:     "bare array",
			status:   http.StatusOK,
			respond:  func(int) interface{} { return []models.IntentJSON{second} },
			expected: []models.IntentJSON{second},
		},
		{
			name:     "empty",
			status:   http.StatusOK,
			respond:  func(int) interface{} { return APIResponse{Page: 1} },
			expected: nil,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			respond: func(int) interface{} { return map[string]string{"error": "boom"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/scheduled-payments", r.URL.Path)
				assert.Equal(t, "scheduled", r.URL.Query().Get("status"))
				page, err := strconv.Atoi(r.URL.Query().Get("page"))
				assert.NoError(t, err)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				assert.NoError(t, json.NewEncoder(w).Encode(tt.respond(page)))
			}))
			defer server.Close()

			client := New(server.URL, &logger.EmptyLogger{})
			got, err := client.Fetch(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "500")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFetchRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(server.URL, &logger.EmptyLogger{}).Fetch(ctx)
	assert.Error(t, err)
}

func TestReadIntentsFile(t *testing.T) {
	dir := t.TempDir()
	intent := sampleIntent(1_700_000_000)

	write := func(name string, v interface{}) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o600))
		return path
	}

	got, err := (&FileSource{Path: write("many.json", []models.IntentJSON{intent, intent})}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = ReadIntentsFile(write("one.json", intent))
	require.NoError(t, err)
	assert.Equal(t, []models.IntentJSON{intent}, got)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o600))
	_, err = ReadIntentsFile(bad)
	assert.Error(t, err)

	_, err = ReadIntentsFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

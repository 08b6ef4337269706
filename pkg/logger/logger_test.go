package logger

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"notice", NoticeLevel, false},
		{"error", ErrorLevel, false},
		{"", InfoLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestStdLoggerLevels(t *testing.T) {
	buf := captureLog(t)
	l := NewStdLogger(false, NoticeLevel)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Notice("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[NOTICE] shown 3")
	assert.Contains(t, out, "[ERROR]  shown 4")
}

func TestPaymentPrefix(t *testing.T) {
	hash := common.HexToHash("0xabcdef0123456789000000000000000000000000000000000000000000000000")
	assert.Equal(t, "[0xabcdef01] ", PaymentPrefix(hash))
	assert.Equal(t, "", PaymentPrefix(common.Hash{}))

	buf := captureLog(t)
	NewStdLogger(false, DebugLevel).InfoWithPayment(hash, "executed")
	assert.Contains(t, buf.String(), "[INFO]   [0xabcdef01] executed")
}

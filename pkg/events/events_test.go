package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	a := common.HexToHash("0x01")

	rec.Emit(Event{Kind: PaymentScheduled, Hash: a, Nonce: 0})
	rec.Emit(Event{Kind: ScheduledPaymentExecuted, Hash: a})
	rec.Emit(Event{Kind: ConfigSet, Address: common.HexToAddress("0x02")})

	assert.Len(t, rec.Events(), 3)
	executed := rec.OfKind(ScheduledPaymentExecuted)
	require.Len(t, executed, 1)
	assert.Equal(t, a, executed[0].Hash)
	assert.Empty(t, rec.OfKind(ScheduledPaymentCancelled))

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestBuffer(t *testing.T) {
	rec := NewRecorder()
	var buf Buffer

	buf.Add(Event{Kind: PaymentScheduled})
	buf.Add(Event{Kind: ScheduledPaymentCancelled})
	assert.Equal(t, 2, buf.Len())

	buf.Discard()
	assert.Equal(t, 0, buf.Len())
	buf.Flush(rec)
	assert.Empty(t, rec.Events())

	buf.Add(Event{Kind: ScheduledPaymentExecuted})
	buf.Flush(rec)
	assert.Equal(t, 0, buf.Len())
	assert.Len(t, rec.Events(), 1)
}

func TestMultiAndLogSink(t *testing.T) {
	first, second := NewRecorder(), NewRecorder()
	sink := Multi{first, nil, second, &LogSink{Logger: &logger.EmptyLogger{}}}

	sink.Emit(Event{Kind: ScheduledPaymentSetup, Setup: &Setup{Owner: common.HexToAddress("0x03")}})
	sink.Emit(Event{Kind: PaymentScheduled, Hash: common.HexToHash("0x04"), Nonce: 7})

	assert.Len(t, first.Events(), 2)
	assert.Equal(t, first.Events(), second.Events())
}

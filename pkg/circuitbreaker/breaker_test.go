package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(enabled bool) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewCircuitBreaker(enabled, 3, time.Minute, 5*time.Minute, WithClock(clock.now)), clock
}

func TestCircuitBreakerTrips(t *testing.T) {
	cb, clock := newTestBreaker(true)

	assert.False(t, cb.RecordFailure())
	clock.advance(10 * time.Second)
	assert.False(t, cb.RecordFailure())
	clock.advance(10 * time.Second)
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	state := cb.GetState()
	assert.True(t, state.Open)
	assert.Equal(t, 3, state.FailureCount)
	assert.Equal(t, clock.t, state.TripTime)

	// still open before the reset timeout
	clock.advance(4 * time.Minute)
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	clock.advance(2 * time.Minute)
	assert.False(t, cb.IsOpen())
	assert.Equal(t, 0, cb.GetState().FailureCount)
}

func TestCircuitBreakerWindow(t *testing.T) {
	cb, clock := newTestBreaker(true)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	clock.advance(2 * time.Minute)

	// the earlier failures fell out of the window
	assert.False(t, cb.RecordFailure())
	assert.Equal(t, 1, cb.GetState().FailureCount)
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerSuccessAndReset(t *testing.T) {
	cb, _ := newTestBreaker(true)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.GetState().FailureCount)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.True(t, cb.IsOpen())

	cb.RecordSuccess()
	assert.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb, _ := newTestBreaker(false)

	for i := 0; i < 10; i++ {
		assert.False(t, cb.RecordFailure())
	}
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.IsEnabled())
	assert.Equal(t, 0, cb.GetState().FailureCount)
}

package crank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstack/scheduled-payment-crank/pkg/circuitbreaker"
	"github.com/cardstack/scheduled-payment-crank/pkg/engine"
	"github.com/cardstack/scheduled-payment-crank/pkg/hasher"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
	"github.com/cardstack/scheduled-payment-crank/pkg/simchain"
	"github.com/cardstack/scheduled-payment-crank/pkg/testutil"
)

const payAt = 1_700_000_000

type staticSource struct {
	mu      sync.Mutex
	intents []models.IntentJSON
	err     error
}

func (s *staticSource) Fetch(context.Context) ([]models.IntentJSON, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.IntentJSON(nil), s.intents...), nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = time.Unix(int64(ts), 0).UTC()
}

type fixedGasPrice struct {
	price *big.Int
}

func (g *fixedGasPrice) CurrentGasPrice() *big.Int {
	return g.price
}

type fixture struct {
	module *engine.Module
	world  *simchain.World
	source *staticSource
	clock  *fakeClock

	avatar   common.Address
	crank    common.Address
	token    common.Address
	gasToken common.Address
	payee    common.Address
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		world:    simchain.NewWorld(),
		source:   &staticSource{},
		clock:    &fakeClock{},
		avatar:   testutil.GenerateAddress(),
		crank:    testutil.GenerateAddress(),
		token:    testutil.GenerateAddress(),
		gasToken: testutil.GenerateAddress(),
		payee:    testutil.GenerateAddress(),
	}
	f.clock.Set(payAt + 3600)

	f.world.AddToken(simchain.Token{Address: f.token, Symbol: "USDC", Decimals: 6})
	f.world.AddToken(simchain.Token{Address: f.gasToken, Symbol: "WETH", Decimals: 18})
	require.NoError(t, f.world.Mint(f.token, f.avatar, testutil.CreateBigInt("1000000000000000")))
	require.NoError(t, f.world.Mint(f.gasToken, f.avatar, testutil.CreateBigInt("1000000000000000000")))

	exchange := simchain.NewExchange()
	exchange.SetRate(f.gasToken, testutil.CreateBigInt("23401000000000000000000"))

	module, err := engine.New(context.Background(), engine.Options{
		Owner:  f.avatar,
		Target: f.avatar,
		Config: &simchain.Config{Crank: f.crank, Receiver: testutil.GenerateAddress(), Days: 3},
		Rates:  exchange,
		Tokens: f.world,
		Avatar: simchain.NewAvatar(f.world, f.avatar),
	})
	require.NoError(t, err)
	f.module = module
	return f
}

func (f *fixture) newCrank(t *testing.T, mutate func(o *Options)) *Crank {
	opts := Options{
		Module:     f.module,
		Source:     f.source,
		Crank:      f.crank,
		Workers:    2,
		MaxRetries: 3,
		Now:        f.clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func (f *fixture) oneTime() *models.PaymentIntent {
	return testutil.OneTimeIntent(f.token, f.payee, f.gasToken, payAt)
}

func (f *fixture) publish(intents ...*models.PaymentIntent) {
	f.source.mu.Lock()
	defer f.source.mu.Unlock()
	for _, intent := range intents {
		f.source.intents = append(f.source.intents, models.FromIntent(intent))
	}
}

func (f *fixture) schedule(t *testing.T, intent *models.PaymentIntent) common.Hash {
	hash := hasher.MustHash(intent)
	_, err := f.module.SchedulePayment(context.Background(), f.avatar, hash)
	require.NoError(t, err)
	return hash
}

func TestNewValidatesOptions(t *testing.T) {
	f := newFixture(t)

	_, err := New(Options{Source: f.source, Crank: f.crank})
	assert.Error(t, err)
	_, err = New(Options{Module: f.module, Crank: f.crank})
	assert.Error(t, err)
	_, err = New(Options{Module: f.module, Source: f.source})
	assert.Error(t, err)
}

func TestRunOnceExecutesDuePaymentOnce(t *testing.T) {
	f := newFixture(t)
	intent := f.oneTime()
	f.publish(intent)
	c := f.newCrank(t, func(o *Options) { o.AutoSchedule = true })
	ctx := context.Background()

	results := c.RunOnce(ctx)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, hasher.MustHash(intent), results[0].Hash)
	assert.True(t, results[0].Receipt.Final)
	testutil.AssertBigIntEqual(t, intent.Amount, f.world.Balance(f.token, f.payee))

	// the hub keeps listing the intent but it is neither rescheduled nor paid again
	for i := 0; i < 3; i++ {
		assert.Empty(t, c.RunOnce(ctx))
	}
	testutil.AssertBigIntEqual(t, intent.Amount, f.world.Balance(f.token, f.payee))
	assert.False(t, f.module.IsActive(hasher.MustHash(intent)))

	known, err := c.book.Intents(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)

	status := c.Status()
	assert.Equal(t, 1, status.Executed)
	assert.Equal(t, 0, status.InFlight)
	assert.True(t, c.Ready())
}

func TestPollFiltersDuePayments(t *testing.T) {
	f := newFixture(t)
	intent := f.oneTime()
	f.publish(intent)
	c := f.newCrank(t, nil)
	ctx := context.Background()

	// not scheduled
	assert.Empty(t, c.Poll(ctx))

	hash := f.schedule(t, intent)

	f.clock.Set(payAt - 1)
	assert.Empty(t, c.Poll(ctx))

	f.clock.Set(payAt)
	due := c.Poll(ctx)
	require.Len(t, due, 1)
	assert.Equal(t, hash, due[0].Hash)
	assert.Equal(t, 0, due[0].RetryCount)

	// claimed until released
	assert.Empty(t, c.Poll(ctx))
	c.release(hash)
	assert.Len(t, c.Poll(ctx), 1)
	c.release(hash)

	// window closed after three days
	f.clock.Set(payAt + 3*86400 + 1)
	assert.Empty(t, c.Poll(ctx))
}

func TestPollFallsBackToBook(t *testing.T) {
	f := newFixture(t)
	intent := f.oneTime()
	f.publish(intent)
	f.schedule(t, intent)
	c := f.newCrank(t, nil)
	ctx := context.Background()

	f.clock.Set(payAt - 3600)
	assert.Empty(t, c.Poll(ctx))

	f.source.mu.Lock()
	f.source.err = errors.New("hub unavailable")
	f.source.mu.Unlock()

	f.clock.Set(payAt + 60)
	results := c.RunOnce(ctx)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "hub unavailable", c.Status().LastError)
}

func TestRecurringPaymentAcrossMonths(t *testing.T) {
	f := newFixture(t)
	intent := testutil.RecurringIntent(f.token, f.payee, f.gasToken, 1, testutil.Unix(2025, time.January, 1, 0, 0, 0))
	f.publish(intent)
	c := f.newCrank(t, func(o *Options) { o.AutoSchedule = true })
	ctx := context.Background()

	f.clock.Set(testutil.Unix(2024, time.March, 1, 1, 0, 0))
	require.Len(t, c.RunOnce(ctx), 1)

	f.clock.Set(testutil.Unix(2024, time.March, 2, 1, 0, 0))
	assert.Empty(t, c.RunOnce(ctx))

	f.clock.Set(testutil.Unix(2024, time.April, 3, 12, 0, 0))
	results := c.RunOnce(ctx)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.False(t, results[0].Receipt.Final)

	expected := new(big.Int).Mul(intent.Amount, big.NewInt(2))
	testutil.AssertBigIntEqual(t, expected, f.world.Balance(f.token, f.payee))
	assert.True(t, f.module.IsActive(hasher.MustHash(intent)))
}

func TestProcessDoesNotRetryInvalidPeriod(t *testing.T) {
	f := newFixture(t)
	intent := f.oneTime()
	hash := f.schedule(t, intent)
	c := f.newCrank(t, nil)

	require.True(t, c.claim(hash))
	f.clock.Set(payAt - 60)

	retry := c.process(context.Background(), models.RetryJob{Hash: hash, Intent: intent})
	assert.Nil(t, retry)
	assert.Equal(t, 0, c.Status().InFlight)
	assert.Equal(t, 1, c.Status().Failed)
	assert.Equal(t, 0, c.Breaker().GetState().FailureCount)
}

func TestProcessRetriesPaymentFailure(t *testing.T) {
	f := newFixture(t)
	intent := f.oneTime()
	hash := f.schedule(t, intent)
	c := f.newCrank(t, func(o *Options) { o.MaxRetries = 1 })
	f.world.FailTransfers(f.token, errors.New("paused"))

	require.True(t, c.claim(hash))
	retry := c.process(context.Background(), models.RetryJob{Hash: hash, Intent: intent})
	require.NotNil(t, retry)
	assert.Equal(t, 1, retry.RetryCount)
	assert.Equal(t, "payment_failed", retry.ErrorType)
	assert.Equal(t, f.clock.Now().Add(10*time.Second), retry.NextAttempt)
	assert.Equal(t, 1, c.Status().InFlight)

	// the second failure exhausts the retries
	assert.Nil(t, c.process(context.Background(), *retry))
	assert.Equal(t, 0, c.Status().InFlight)

	// the failed attempts left every balance in place
	assert.Zero(t, f.world.Balance(f.token, f.payee).Sign())
	assert.True(t, f.module.IsActive(hash))
}

func TestProcessSkipsWhenBreakerOpen(t *testing.T) {
	f := newFixture(t)
	intent := f.oneTime()
	f.publish(intent)
	hash := f.schedule(t, intent)
	breaker := circuitbreaker.NewCircuitBreaker(true, 1, time.Minute, time.Hour)
	c := f.newCrank(t, func(o *Options) { o.Breaker = breaker })

	breaker.RecordFailure()
	assert.Empty(t, c.Poll(context.Background()))

	require.True(t, c.claim(hash))
	assert.Nil(t, c.process(context.Background(), models.RetryJob{Hash: hash, Intent: intent}))
	assert.Zero(t, f.world.Balance(f.token, f.payee).Sign())

	breaker.Reset()
	assert.Len(t, c.Poll(context.Background()), 1)
}

func TestGasPriceDeferral(t *testing.T) {
	f := newFixture(t)
	intent := f.oneTime()
	f.publish(intent)
	f.schedule(t, intent)
	pricer := &fixedGasPrice{price: testutil.CreateBigInt("20000000000")}
	c := f.newCrank(t, func(o *Options) { o.GasPrice = pricer })

	assert.Empty(t, c.Poll(context.Background()))

	pricer.price = testutil.CreateBigInt("10000000000")
	assert.Len(t, c.Poll(context.Background()), 1)
}

func TestReleaseRetries(t *testing.T) {
	f := newFixture(t)
	ready := f.oneTime()
	later := testutil.OneTimeIntent(f.token, testutil.GenerateAddress(), f.gasToken, payAt)
	gone := testutil.OneTimeIntent(f.token, testutil.GenerateAddress(), f.gasToken, payAt)
	readyHash := f.schedule(t, ready)
	laterHash := f.schedule(t, later)
	c := f.newCrank(t, nil)

	now := f.clock.Now()
	queue := []models.RetryJob{
		{Hash: readyHash, Intent: ready, NextAttempt: now.Add(-time.Second), RetryCount: 1, ErrorType: "payment_failed"},
		{Hash: laterHash, Intent: later, NextAttempt: now.Add(time.Minute), RetryCount: 1},
		{Hash: hasher.MustHash(gone), Intent: gone, NextAttempt: now, RetryCount: 2},
	}
	for _, job := range queue {
		c.claim(job.Hash)
	}

	remaining, processed := c.releaseRetries(queue, now)
	assert.Equal(t, 1, processed)
	require.Len(t, remaining, 1)
	assert.Equal(t, laterHash, remaining[0].Hash)

	require.Len(t, c.pendingJobs, 1)
	job := <-c.pendingJobs
	assert.Equal(t, readyHash, job.Hash)

	// the unscheduled payment was released
	assert.Equal(t, 2, c.Status().InFlight)
}

func TestStartExecutesDuePayment(t *testing.T) {
	f := newFixture(t)
	intent := f.oneTime()
	f.publish(intent)
	c := f.newCrank(t, func(o *Options) {
		o.AutoSchedule = true
		o.PollingInterval = 10 * time.Millisecond
	})

	cleanup, ctx, cancel := testutil.SetupTestWithTimeout(t)
	defer cleanup()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(ctx)
	}()

	assert.Eventually(t, func() bool {
		return f.world.Balance(f.token, f.payee).Cmp(intent.Amount) == 0
	}, testutil.DefaultTestTimeout, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return c.Status().Running }, time.Second, 10*time.Millisecond)

	// several more polls run before shutdown
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(testutil.DefaultTestTimeout):
		t.Fatal("crank did not stop")
	}

	testutil.AssertBigIntEqual(t, intent.Amount, f.world.Balance(f.token, f.payee))
	assert.Equal(t, 1, c.Status().Executed)
	assert.False(t, c.Status().Running)
}

func TestShouldRetryError(t *testing.T) {
	wrapped := func(err error) error {
		return &engine.PaymentError{Op: "executeScheduledPayment", Err: fmt.Errorf("reason: %w", err)}
	}

	tests := []struct {
		err       error
		retry     bool
		errorType string
	}{
		{wrapped(engine.ErrInvalidPeriod), false, "invalid_period"},
		{wrapped(engine.ErrUnknownHash), false, "unknown_hash"},
		{wrapped(engine.ErrUnauthorized), false, "unauthorized"},
		{wrapped(engine.ErrOutOfGas), false, "out_of_gas"},
		{wrapped(engine.ErrArithmeticOverflow), false, "arithmetic_overflow"},
		{wrapped(engine.ErrPaymentExecutionFailed), true, "payment_failed"},
		{wrapped(engine.ErrClockRewound), true, "clock_rewound"},
		{fmt.Errorf("read config: %w", context.DeadlineExceeded), true, "network_error"},
		{errors.New("dial tcp: connection refused"), true, "network_error"},
		{context.Canceled, false, "cancelled"},
		{errors.New("something odd"), true, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.errorType, func(t *testing.T) {
			retry, errorType := shouldRetryError(tt.err)
			assert.Equal(t, tt.retry, retry)
			assert.Equal(t, tt.errorType, errorType)
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retryCount int
		expected   time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
		{4, 2 * time.Minute},
		{10, 2 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, CalculateBackoff(tt.retryCount), "retry %d", tt.retryCount)
	}
}

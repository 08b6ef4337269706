package chainclient

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstack/scheduled-payment-crank/pkg/contracts"
	"github.com/cardstack/scheduled-payment-crank/pkg/exchange"
	"github.com/cardstack/scheduled-payment-crank/pkg/testutil"
)

// fakeBackend answers eth_call with canned ABI encoded results
type fakeBackend struct {
	t        *testing.T
	mu       sync.Mutex
	results  map[string][]byte
	calls    map[string]int
	gasPrice *big.Int
	gasErr   error
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{t: t, results: make(map[string][]byte), calls: make(map[string]int)}
}

func (b *fakeBackend) respond(contractABI string, method string, values ...interface{}) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	require.NoError(b.t, err)
	m, ok := parsed.Methods[method]
	require.True(b.t, ok, method)
	out, err := m.Outputs.Pack(values...)
	require.NoError(b.t, err)
	b.results[string(m.ID)] = out
}

func (b *fakeBackend) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	selector := string(call.Data[:4])
	b.calls[selector]++
	out, ok := b.results[selector]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (b *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if b.gasErr != nil {
		return nil, b.gasErr
	}
	return b.gasPrice, nil
}

func (b *fakeBackend) callCount(contractABI, method string) int {
	parsed, _ := abi.JSON(strings.NewReader(contractABI))
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[string(parsed.Methods[method].ID)]
}

func TestConfigReader(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)
	crank, receiver := testutil.GenerateAddress(), testutil.GenerateAddress()
	backend.respond(contracts.ConfigABI, "crankAddress", crank)
	backend.respond(contracts.ConfigABI, "feeReceiver", receiver)
	backend.respond(contracts.ConfigABI, "validForDays", big.NewInt(3))

	cfg := NewWithBackend(ctx, backend, 0, nil).Config(testutil.GenerateAddress())

	got, err := cfg.CrankAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, crank, got)

	got, err = cfg.FeeReceiver(ctx)
	require.NoError(t, err)
	assert.Equal(t, receiver, got)

	days, err := cfg.ValidForDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), days)

	backend.respond(contracts.ConfigABI, "validForDays", new(big.Int).Lsh(big.NewInt(1), 70))
	_, err = cfg.ValidForDays(ctx)
	assert.Error(t, err)
}

func TestExchangeReader(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)
	rate := testutil.CreateBigInt("23401000000000000000000")
	base := testutil.CreateBigInt("1000000000000000000")
	backend.respond(contracts.ExchangeABI, "exchangeRateOf", rate, base)

	reader := NewWithBackend(ctx, backend, 0, nil).Exchange(testutil.GenerateAddress())
	gotRate, gotBase, err := reader.ExchangeRateOf(ctx, testutil.GenerateAddress())
	require.NoError(t, err)
	testutil.AssertBigIntEqual(t, rate, gotRate)
	testutil.AssertBigIntEqual(t, base, gotBase)

	backend.respond(contracts.ExchangeABI, "exchangeRateOf", big.NewInt(0), base)
	_, _, err = reader.ExchangeRateOf(ctx, testutil.GenerateAddress())
	assert.Error(t, err)
}

func TestTokenReads(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)
	backend.respond(contracts.ERC20ABI, "decimals", uint8(6))
	backend.respond(contracts.ERC20ABI, "balanceOf", big.NewInt(1234))

	client := NewWithBackend(ctx, backend, 0, nil)
	token := testutil.GenerateAddress()

	for i := 0; i < 3; i++ {
		d, err := client.Decimals(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, uint8(6), d)
	}
	assert.Equal(t, 1, backend.callCount(contracts.ERC20ABI, "decimals"))

	balance, err := client.BalanceOf(ctx, token, testutil.GenerateAddress())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1234), balance)
}

func TestPoolFinderFeedsTWAP(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)
	backend.respond(contracts.UniswapV3FactoryABI, "getPool", testutil.GenerateAddress())
	backend.respond(contracts.UniswapV3PoolABI, "observe",
		[]*big.Int{big.NewInt(80067), big.NewInt(4884087)},
		[]*big.Int{big.NewInt(0), big.NewInt(0)})
	backend.respond(contracts.ERC20ABI, "decimals", uint8(18))

	client := NewWithBackend(ctx, backend, 0, nil)
	twap := &exchange.TWAP{
		Pools:      client.Pools(testutil.GenerateAddress()),
		Tokens:     client,
		USDToken:   common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff"),
		Fee:        exchange.DefaultPoolFee,
		SecondsAgo: 60,
	}

	rate, _, err := twap.ExchangeRateOf(ctx, common.HexToAddress("0x0000000000000000000000000000000000000001"))
	require.NoError(t, err)
	units := new(big.Int).Quo(rate, exchange.RateBase)
	assert.True(t, units.Int64() >= 2999 && units.Int64() <= 3000, "rate %s", rate)

	backend.respond(contracts.UniswapV3FactoryABI, "getPool", common.Address{})
	_, _, err = twap.ExchangeRateOf(ctx, common.HexToAddress("0x0000000000000000000000000000000000000001"))
	assert.ErrorIs(t, err, exchange.ErrNoPool)
}

func TestUpdateGasPrice(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)
	backend.gasPrice = big.NewInt(20_000_000_000)

	client := NewWithBackend(ctx, backend, 1.5, nil)
	assert.Nil(t, client.CurrentGasPrice())

	price, err := client.UpdateGasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(30_000_000_000), price)
	assert.Equal(t, price, client.CurrentGasPrice())

	backend.gasErr = errors.New("rpc down")
	_, err = client.UpdateGasPrice(ctx)
	assert.Error(t, err)
	assert.Equal(t, price, client.CurrentGasPrice())
}

func TestGasPriceRoutine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := newFakeBackend(t)
	backend.gasPrice = big.NewInt(10)

	client := NewWithBackend(ctx, backend, 1, nil)
	routine := NewGasPriceRoutine(client, 10*time.Millisecond)
	routine.Start()
	routine.Start()
	assert.True(t, routine.IsRunning())

	assert.Eventually(t, func() bool { return client.CurrentGasPrice() != nil }, time.Second, 5*time.Millisecond)

	routine.Stop()
	assert.False(t, routine.IsRunning())
	routine.Stop()
}

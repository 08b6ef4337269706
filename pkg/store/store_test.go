package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardstack/scheduled-payment-crank/pkg/events"
	"github.com/cardstack/scheduled-payment-crank/pkg/ledger"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
	"github.com/cardstack/scheduled-payment-crank/pkg/testutil"
)

func openTestStore(t *testing.T) (*Store, string) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func hashOf(s string) common.Hash {
	return crypto.Keccak256Hash([]byte(s))
}

func TestOpen(t *testing.T) {
	s, path := openTestStore(t)

	_, err := os.Stat(path)
	require.NoError(t, err)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	// reopening is idempotent
	for i := 0; i < 2; i++ {
		again, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, again.Close())
	}
}

func TestApplyAndLoad(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	a, b, c := hashOf("a"), hashOf("b"), hashOf("c")

	require.NoError(t, s.Apply(ctx, []ledger.Change{
		{Kind: ledger.ChangeScheduled, Hash: a, Nonce: 0},
		{Kind: ledger.ChangeScheduled, Hash: b, Nonce: 1},
		{Kind: ledger.ChangeScheduled, Hash: c, Nonce: 2},
	}))
	require.NoError(t, s.Apply(ctx, []ledger.Change{
		{Kind: ledger.ChangeCancelled, Hash: a},
		{Kind: ledger.ChangeSettled, Hash: b, Marker: 24290},
		{Kind: ledger.ChangeSettled, Hash: c, Marker: 24291, Remove: true},
		{Kind: ledger.ChangeScheduled, Hash: a, Nonce: 3},
	}))

	state, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{b, a}, state.Active)
	assert.Equal(t, []common.Hash{a, b, c, a}, state.Nonces)
	assert.EqualValues(t, 24290, state.Markers[b])
	assert.EqualValues(t, 24291, state.Markers[c])
	_, ok := state.Markers[a]
	assert.False(t, ok)
}

func TestApplyIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	a := hashOf("a")

	require.NoError(t, s.Apply(ctx, []ledger.Change{{Kind: ledger.ChangeScheduled, Hash: a, Nonce: 0}}))

	// the duplicate nonce fails the second insert, so the first is rolled back too
	err := s.Apply(ctx, []ledger.Change{
		{Kind: ledger.ChangeScheduled, Hash: hashOf("b"), Nonce: 1},
		{Kind: ledger.ChangeScheduled, Hash: hashOf("c"), Nonce: 1},
	})
	require.Error(t, err)

	state, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{a}, state.Active)
	assert.Len(t, state.Nonces, 1)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)
	avatar := testutil.GenerateAddress()
	a, b := hashOf("a"), hashOf("b")

	l, err := ledger.New(ctx, avatar, s, events.NewRecorder())
	require.NoError(t, err)
	_, err = l.Schedule(ctx, avatar, a)
	require.NoError(t, err)
	_, err = l.Schedule(ctx, avatar, b)
	require.NoError(t, err)
	require.NoError(t, l.Settle(ctx, a, 24300, false))
	require.NoError(t, l.Settle(ctx, b, 24300, true))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	l2, err := ledger.New(ctx, avatar, reopened, nil)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{a}, l2.ListActive())
	assert.EqualValues(t, 24300, l2.Marker(a))
	assert.EqualValues(t, 24300, l2.Marker(b))
	assert.Equal(t, uint64(2), l2.Nonce())
	h, ok := l2.HashAtNonce(1)
	require.True(t, ok)
	assert.Equal(t, b, h)
}

func TestIntentBook(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	intent := testutil.OneTimeIntent(testutil.GenerateAddress(), testutil.GenerateAddress(), testutil.GenerateAddress(), 1_700_000_000)
	wire := models.FromIntent(intent)
	hash := hashOf("intent")

	_, found, err := s.Intent(ctx, hash)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveIntent(ctx, hash, wire))
	require.NoError(t, s.SaveIntent(ctx, hash, models.IntentJSON{Salt: "ignored"}))

	got, found, err := s.Intent(ctx, hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, wire, got)

	back, err := got.ToIntent()
	require.NoError(t, err)
	testutil.AssertBigIntEqual(t, intent.Fee.FixedUSD, back.Fee.FixedUSD)

	all, err := s.Intents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteIntent(ctx, hash))
	all, err = s.Intents(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

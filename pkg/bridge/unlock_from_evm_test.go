package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/certusone/wormhole/custody/pkg/instruction"
	"github.com/certusone/wormhole/custody/pkg/token"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func getCounterValue(metric prometheus.Counter) float64 {
	var m = &dto.Metric{}
	if err := metric.Write(m); err != nil {
		return 0
	}
	return m.Counter.GetValue()
}

// Walks the whole lifecycle: initialize, lock 1000, unlock (1, 42, 500), replay the unlock.
func TestLockUnlockScenario(t *testing.T) {
	e := initialized(t, 1000)
	recipient := newKey(t).PublicKey()

	cfg := e.config(t)
	assert.Equal(t, uint64(0), cfg.Nonce)
	assert.False(t, cfg.IsPaused())

	rec, err := e.lock(t, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.Nonce)
	assert.Equal(t, uint64(1), e.config(t).Nonce)
	assert.Equal(t, uint64(1000), e.vault(t))
	assert.Equal(t, uint64(0), e.balance(t, e.user.PublicKey()))

	processed, err := e.bridge.IsProcessed(1, 42)
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, e.unlock(t, 1, 42, 500, recipient))

	processed, err = e.bridge.IsProcessed(1, 42)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, uint64(500), e.vault(t))
	assert.Equal(t, uint64(500), e.balance(t, recipient))

	err = e.unlock(t, 1, 42, 500, recipient)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, uint64(500), e.vault(t))
	assert.Equal(t, uint64(500), e.balance(t, recipient))

	// The same nonce from another chain is a different message.
	require.NoError(t, e.unlock(t, 2, 42, 100, recipient))
	assert.Equal(t, uint64(400), e.vault(t))
}

func TestUnlockUnauthorized(t *testing.T) {
	e := initialized(t, 100)
	_, err := e.lock(t, 100)
	require.NoError(t, err)
	recipient := newKey(t).PublicKey()

	for _, caller := range []*testEnvCaller{{"admin", e.admin.PublicKey()}, {"user", e.user.PublicKey()}, {"recipient", recipient}} {
		t.Run(caller.name, func(t *testing.T) {
			err := e.bridge.UnlockFromEvm(context.Background(), caller.key, e.mint, recipient,
				instruction.UnlockFromEvmArgs{SrcChainID: 1, Nonce: 1, Amount: 10})
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}

	processed, err := e.bridge.IsProcessed(1, 1)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, uint64(100), e.vault(t))
}

func TestUnlockZeroAmount(t *testing.T) {
	e := initialized(t, 100)
	_, err := e.lock(t, 100)
	require.NoError(t, err)

	err = e.unlock(t, 1, 1, 0, newKey(t).PublicKey())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	processed, err := e.bridge.IsProcessed(1, 1)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestUnlockNotInitialized(t *testing.T) {
	e := newTestEnv(t)
	err := e.unlock(t, 1, 1, 1, newKey(t).PublicKey())
	assert.ErrorIs(t, err, ErrBridgeNotInitialized)
}

func TestUnlockToVaultAuthority(t *testing.T) {
	e := initialized(t, 100)
	_, err := e.lock(t, 100)
	require.NoError(t, err)
	addrs, err := e.bridge.Addresses(e.mint)
	require.NoError(t, err)

	err = e.unlock(t, 1, 1, 50, addrs.VaultAuthority)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	assert.Equal(t, uint64(100), e.vault(t))
}

func TestUnlockUndercollateralized(t *testing.T) {
	observedZapCore, observedLogs := observer.New(zap.InfoLevel)
	e := initializedWithLogger(t, zap.New(observedZapCore), 100)
	_, err := e.lock(t, 100)
	require.NoError(t, err)
	recipient := newKey(t).PublicKey()

	rejected := instructionsTotal.WithLabelValues("unlock_from_evm", "VaultUndercollateralized")
	rejectedBefore := getCounterValue(rejected)
	alertsBefore := getCounterValue(undercollateralizedUnlocks)

	err = e.unlock(t, 1, 7, 101, recipient)
	assert.ErrorIs(t, err, ErrVaultUndercollateralized)
	assert.ErrorIs(t, err, token.ErrInsufficientFunds)

	assert.Equal(t, float64(1), getCounterValue(undercollateralizedUnlocks)-alertsBefore)
	assert.Equal(t, float64(1), getCounterValue(rejected)-rejectedBefore)
	alerts := observedLogs.FilterMessage("vault cannot cover unlock, bridge is undercollateralized").All()
	require.Len(t, alerts, 1)
	assert.Equal(t, zapcore.ErrorLevel, alerts[0].Level)
	assert.Equal(t, uint64(101), alerts[0].ContextMap()["amount"])

	// Nothing was paid and the message was not consumed, so it can be retried once the vault is topped up.
	assert.Equal(t, uint64(100), e.vault(t))
	assert.Equal(t, uint64(0), e.balance(t, recipient))
	processed, err := e.bridge.IsProcessed(1, 7)
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, e.unlock(t, 1, 7, 100, recipient))
	assert.Equal(t, uint64(100), e.balance(t, recipient))
}

func TestConcurrentUnlocksSucceedOnce(t *testing.T) {
	e := initialized(t, 1000)
	_, err := e.lock(t, 1000)
	require.NoError(t, err)
	recipient := newKey(t).PublicKey()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.unlock(t, 5, 9, 10, recipient)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, uint64(10), e.balance(t, recipient))
	assert.Equal(t, uint64(990), e.vault(t))
}

// Processed messages are keyed on the foreign message alone, so a message consumed through one bridge
// cannot be replayed through another, even when both race.
func TestProcessedMessagesAreSharedAcrossBridges(t *testing.T) {
	e := initialized(t, 100)
	_, err := e.lock(t, 100)
	require.NoError(t, err)

	m2 := newKey(t).PublicKey()
	require.NoError(t, e.bridge.Initialize(context.Background(), e.admin.PublicKey(), m2, e.initArgs()))
	require.NoError(t, e.bridge.Airdrop(context.Background(), m2, e.user.PublicKey(), 100))
	_, err = e.bridge.LockTokens(context.Background(), e.user.PublicKey(), m2, instruction.LockTokensArgs{Amount: 100})
	require.NoError(t, err)

	recipient := newKey(t).PublicKey()
	args := instruction.UnlockFromEvmArgs{SrcChainID: 3, Nonce: 3, Amount: 10}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, mint := range []*testEnvCaller{{"m1", e.mint}, {"m2", m2}} {
		wg.Add(1)
		go func(mint *testEnvCaller) {
			defer wg.Done()
			errs <- e.bridge.UnlockFromEvm(context.Background(), e.relayer.PublicKey(), mint.key, recipient, args)
		}(mint)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)

	v1 := e.vault(t)
	v2, err := e.bridge.VaultBalance(m2)
	require.NoError(t, err)
	assert.Equal(t, uint64(190), v1+v2)
}

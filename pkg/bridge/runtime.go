package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/certusone/wormhole/custody/pkg/instruction"
	"github.com/certusone/wormhole/custody/pkg/token"
	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
)

const configLockStripes = 256

// configLocks serializes instructions per config address. Addresses are spread over a fixed set of mutexes,
// so memory does not grow with the number of mints anyone asks about. Two configs sharing a stripe merely
// run one after the other.
type configLocks struct {
	stripes [configLockStripes]sync.Mutex
}

func newConfigLocks() *configLocks {
	return &configLocks{}
}

// Config addresses are hash outputs, so the leading bytes are uniformly distributed.
func (c *configLocks) stripe(config solana.PublicKey) *sync.Mutex {
	return &c.stripes[binary.LittleEndian.Uint16(config[:2])%configLockStripes]
}

func (c *configLocks) lock(config solana.PublicKey) (unlock func()) {
	m := c.stripe(config)
	m.Lock()
	return m.Unlock
}

// txnGuard runs at the start of an instruction's transaction. Returning an error aborts the instruction.
type txnGuard func(txn *badger.Txn) error

// execute runs fn as one atomic instruction against config, preceded by guard when set. Both may be invoked
// more than once if the transaction conflicts with a concurrent one; only the final invocation's writes are
// committed.
func (b *Bridge) execute(ctx context.Context, ix instruction.Discriminator, config solana.PublicKey, guard txnGuard, fn func(txn *badger.Txn) error) error {
	unlock := b.locks.lock(config)
	defer unlock()

	err := b.db.Update(ctx, func(txn *badger.Txn) error {
		if guard != nil {
			if err := guard(txn); err != nil {
				return err
			}
		}
		return fn(txn)
	})
	instructionsTotal.WithLabelValues(ix.String(), resultLabel(err)).Inc()
	return err
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr.Name
	}
	return "error"
}

// vaultAuthority is the capability to move tokens out of one vault. It is only constructed from a stored
// config, inside the transaction that uses it, and never leaves this package.
type vaultAuthority struct {
	key    solana.PublicKey
	mint   solana.PublicKey
	seeds  [][]byte
	signer *token.ProgramSigner
}

func (b *Bridge) vaultAuthority(configAddr solana.PublicKey, cfg *BridgeConfig) (vaultAuthority, error) {
	seeds := [][]byte{[]byte(seedVault), configAddr[:], {cfg.VaultAuthorityBump}}
	key, err := solana.CreateProgramAddress(seeds, b.programID)
	if err != nil {
		return vaultAuthority{}, err
	}
	return vaultAuthority{key: key, mint: cfg.TokenMint, seeds: seeds, signer: b.signer}, nil
}

// release pays amount out of the vault to recipient.
func (v vaultAuthority) release(txn *badger.Txn, recipient solana.PublicKey, amount uint64) error {
	return v.signer.Transfer(txn, v.mint, v.seeds, recipient, amount)
}

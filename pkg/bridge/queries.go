package bridge

import (
	"errors"
	"fmt"

	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
)

// MaxLockRecordsPerQuery bounds a single LockRecords scan.
const MaxLockRecordsPerQuery = 1000

var ErrLockRecordNotFound = errors.New("lock record not found")

// Config returns the stored config of mint and the accounts derived for it.
func (b *Bridge) Config(mint solana.PublicKey) (*BridgeConfig, *Addresses, error) {
	var (
		addrs *Addresses
		cfg   *BridgeConfig
	)
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		addrs, cfg, err = b.loadConfig(txn, mint)
		return err
	})
	return cfg, addrs, err
}

// Bridges returns the mints of every initialized bridge.
func (b *Bridge) Bridges() ([]solana.PublicKey, error) {
	return b.db.IndexedBridges()
}

func (b *Bridge) LockRecord(mint solana.PublicKey, nonce uint64) (*LockRecord, error) {
	var rec *LockRecord
	err := b.db.View(func(txn *badger.Txn) error {
		addrs, err := b.Addresses(mint)
		if err != nil {
			return err
		}
		rec, err = b.loadLockRecord(txn, addrs.Config, nonce)
		return err
	})
	return rec, err
}

func (b *Bridge) loadLockRecord(txn *badger.Txn, config solana.PublicKey, nonce uint64) (*LockRecord, error) {
	addr, err := b.LockRecordAddress(config, nonce)
	if err != nil {
		return nil, err
	}
	rec := &LockRecord{}
	if err := db.LoadAccount(txn, addr, rec); err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: nonce %d", ErrLockRecordNotFound, nonce)
		}
		return nil, err
	}
	return rec, nil
}

// LockRecords returns the consecutive records starting at fromNonce, at most limit of them (capped at
// MaxLockRecordsPerQuery), stopping at the config's current nonce. It reads a single snapshot, so the result
// never has gaps. A limit of zero or less returns no records.
func (b *Bridge) LockRecords(mint solana.PublicKey, fromNonce uint64, limit int) ([]*LockRecord, error) {
	if limit > MaxLockRecordsPerQuery {
		limit = MaxLockRecordsPerQuery
	}
	records := []*LockRecord{}
	err := b.db.View(func(txn *badger.Txn) error {
		addrs, cfg, err := b.loadConfig(txn, mint)
		if err != nil {
			return err
		}
		for nonce := fromNonce; nonce < cfg.Nonce && len(records) < limit; nonce++ {
			rec, err := b.loadLockRecord(txn, addrs.Config, nonce)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// IsProcessed reports whether the inbound message (srcChainID, nonce) has been unlocked.
func (b *Bridge) IsProcessed(srcChainID, nonce uint64) (bool, error) {
	addr, err := b.ProcessedMessageAddress(srcChainID, nonce)
	if err != nil {
		return false, err
	}
	var processed bool
	err = b.db.View(func(txn *badger.Txn) error {
		msg := &ProcessedMessage{}
		err := db.LoadAccount(txn, addr, msg)
		if errors.Is(err, db.ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		processed = msg.Executed != 0
		return nil
	})
	return processed, err
}

// VaultBalance returns the amount of mint held in custody.
func (b *Bridge) VaultBalance(mint solana.PublicKey) (uint64, error) {
	var balance uint64
	err := b.db.View(func(txn *badger.Txn) error {
		addrs, _, err := b.loadConfig(txn, mint)
		if err != nil {
			return err
		}
		balance, err = b.tokens.Balance(txn, mint, addrs.VaultAuthority)
		return err
	})
	return balance, err
}

// Balance returns the token balance of owner for mint.
func (b *Bridge) Balance(mint, owner solana.PublicKey) (uint64, error) {
	var balance uint64
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		balance, err = b.tokens.Balance(txn, mint, owner)
		return err
	})
	return balance, err
}

// Package bridge implements the custody state machine: per-mint bridge configs, locking tokens into a vault
// controlled by a derived authority, and releasing them once per inbound message on the relayer's word.
//
// Every instruction runs as a single read-write database transaction. Instructions on the same config are
// additionally serialized by a per-config mutex so nonce assignment never races; anything that still
// collides across configs (two bridges claiming the same processed-message key) is caught by badger's
// conflict detection and retried, at which point the loser finds the tombstone.
package bridge

import (
	"fmt"
	"time"

	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/certusone/wormhole/custody/pkg/token"
	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const (
	DefaultAddressCacheSize = 1024
	DefaultMaxTxAge         = 2 * time.Minute
)

type Bridge struct {
	logger    *zap.Logger
	db        *db.Database
	tokens    *token.Ledger
	signer    *token.ProgramSigner
	programID solana.PublicKey
	addresses *lru.Cache
	locks     *configLocks
	now       func() time.Time
	maxTxAge  time.Duration
}

type Option func(*Bridge)

// WithProgramID scopes all derived addresses to programID instead of DefaultProgramID.
func WithProgramID(programID solana.PublicKey) Option {
	return func(b *Bridge) { b.programID = programID }
}

// WithClock replaces time.Now, used for lock timestamps and transaction expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// WithMaxTxAge sets how far a signed transaction's timestamp may drift from the node's clock.
func WithMaxTxAge(d time.Duration) Option {
	return func(b *Bridge) { b.maxTxAge = d }
}

func New(logger *zap.Logger, database *db.Database, tokens *token.Ledger, opts ...Option) (*Bridge, error) {
	cache, err := lru.New(DefaultAddressCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create address cache: %w", err)
	}
	b := &Bridge{
		logger:    logger.Named("bridge"),
		db:        database,
		tokens:    tokens,
		programID: DefaultProgramID,
		addresses: cache,
		locks:     newConfigLocks(),
		now:       time.Now,
		maxTxAge:  DefaultMaxTxAge,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.signer, err = tokens.RegisterProgram(b.programID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim vault signer: %w", err)
	}
	return b, nil
}

func (b *Bridge) ProgramID() solana.PublicKey {
	return b.programID
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/certusone/wormhole/custody/pkg/instruction"
	"github.com/certusone/wormhole/custody/pkg/token"
	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// LockTokens moves args.Amount of mint from user into the vault and records the lock under the config's
// current nonce, which is then incremented. The returned record carries the nonce that was consumed.
func (b *Bridge) LockTokens(ctx context.Context, user, mint solana.PublicKey, args instruction.LockTokensArgs) (*LockRecord, error) {
	return b.lockTokensGuarded(ctx, nil, user, mint, args)
}

func (b *Bridge) lockTokensGuarded(ctx context.Context, guard txnGuard, user, mint solana.PublicKey, args instruction.LockTokensArgs) (*LockRecord, error) {
	addrs, err := b.Addresses(mint)
	if err != nil {
		return nil, err
	}

	var rec *LockRecord
	err = b.execute(ctx, instruction.LockTokens, addrs.Config, guard, func(txn *badger.Txn) error {
		var err error
		rec, err = b.lockTokens(txn, user, mint, args)
		return err
	})
	if err != nil {
		return nil, err
	}

	tokensLocked.WithLabelValues(mint.String()).Add(float64(rec.Amount))
	b.logger.Info("tokens locked",
		zap.Stringer("mint", mint),
		zap.Stringer("user", user),
		zap.Uint64("nonce", rec.Nonce),
		zap.Uint64("amount", rec.Amount),
		zap.String("destinationAddress", hexAddress(rec.DestinationAddress)),
	)
	return rec, nil
}

func (b *Bridge) lockTokens(txn *badger.Txn, user, mint solana.PublicKey, args instruction.LockTokensArgs) (*LockRecord, error) {
	if args.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	addrs, cfg, err := b.loadConfig(txn, mint)
	if err != nil {
		return nil, err
	}
	if cfg.IsPaused() {
		return nil, ErrBridgePaused
	}
	// Program accounts, the vault authority among them, cannot sign a lock.
	if !solana.IsOnCurve(user[:]) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSender, user)
	}

	if err := b.tokens.Transfer(txn, mint, user, user, addrs.VaultAuthority, args.Amount); err != nil {
		if errors.Is(err, token.ErrInsufficientFunds) {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return nil, fmt.Errorf("failed to move tokens into the vault: %w", err)
	}

	if cfg.Nonce == math.MaxUint64 {
		return nil, ErrNonceOverflow
	}

	rec := &LockRecord{
		Config:             addrs.Config,
		Nonce:              cfg.Nonce,
		User:               user,
		Amount:             args.Amount,
		DestinationAddress: args.DestinationAddress,
		CreatedAt:          b.now().Unix(),
	}
	recAddr, err := b.LockRecordAddress(addrs.Config, rec.Nonce)
	if err != nil {
		return nil, err
	}
	if err := db.CreateAccount(txn, recAddr, rec); err != nil {
		return nil, fmt.Errorf("failed to write lock record %d: %w", rec.Nonce, err)
	}

	cfg.Nonce++
	if err := db.StoreAccount(txn, addrs.Config, cfg); err != nil {
		return nil, err
	}

	stats, err := b.loadStats(txn, addrs)
	if err != nil {
		return nil, err
	}
	stats.addLocked(args.Amount)
	if err := db.StoreAccount(txn, addrs.Stats, stats); err != nil {
		return nil, err
	}
	return rec, nil
}

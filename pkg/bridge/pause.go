package bridge

import (
	"context"

	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/certusone/wormhole/custody/pkg/instruction"
	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// PauseBridge stops locks and unlocks on mint until ResumeBridge is called.
func (b *Bridge) PauseBridge(ctx context.Context, admin, mint solana.PublicKey) error {
	return b.setPaused(ctx, nil, instruction.PauseBridge, admin, mint, true)
}

func (b *Bridge) ResumeBridge(ctx context.Context, admin, mint solana.PublicKey) error {
	return b.setPaused(ctx, nil, instruction.ResumeBridge, admin, mint, false)
}

func (b *Bridge) setPaused(ctx context.Context, guard txnGuard, ix instruction.Discriminator, admin, mint solana.PublicKey, paused bool) error {
	addrs, err := b.Addresses(mint)
	if err != nil {
		return err
	}
	err = b.execute(ctx, ix, addrs.Config, guard, func(txn *badger.Txn) error {
		return b.togglePause(txn, admin, mint, paused)
	})
	if err != nil {
		return err
	}
	b.logger.Warn("bridge pause state changed", zap.Stringer("mint", mint), zap.Bool("paused", paused), zap.Stringer("admin", admin))
	return nil
}

func (b *Bridge) togglePause(txn *badger.Txn, admin, mint solana.PublicKey, paused bool) error {
	addrs, cfg, err := b.loadConfig(txn, mint)
	if err != nil {
		return err
	}
	if admin != cfg.Admin {
		return ErrUnauthorizedAdmin
	}
	if paused && cfg.IsPaused() {
		return ErrAlreadyPaused
	}
	if !paused && !cfg.IsPaused() {
		return ErrNotPaused
	}
	cfg.setPaused(paused)
	return db.StoreAccount(txn, addrs.Config, cfg)
}

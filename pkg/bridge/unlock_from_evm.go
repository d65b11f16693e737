package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/certusone/wormhole/custody/pkg/instruction"
	"github.com/certusone/wormhole/custody/pkg/token"
	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// UnlockFromEvm releases args.Amount of mint from the vault to recipient on behalf of the message
// (args.SrcChainID, args.Nonce). Each message is honored at most once, across all bridges.
func (b *Bridge) UnlockFromEvm(ctx context.Context, relayer, mint, recipient solana.PublicKey, args instruction.UnlockFromEvmArgs) error {
	return b.unlockFromEvmGuarded(ctx, nil, relayer, mint, recipient, args)
}

func (b *Bridge) unlockFromEvmGuarded(ctx context.Context, guard txnGuard, relayer, mint, recipient solana.PublicKey, args instruction.UnlockFromEvmArgs) error {
	addrs, err := b.Addresses(mint)
	if err != nil {
		return err
	}
	err = b.execute(ctx, instruction.UnlockFromEvm, addrs.Config, guard, func(txn *badger.Txn) error {
		return b.unlockFromEvm(txn, relayer, mint, recipient, args)
	})
	b.logUnlock(mint, recipient, args, err)
	return err
}

func (b *Bridge) logUnlock(mint, recipient solana.PublicKey, args instruction.UnlockFromEvmArgs, err error) {
	fields := []zap.Field{
		zap.Stringer("mint", mint),
		zap.Stringer("recipient", recipient),
		zap.Uint64("srcChainId", args.SrcChainID),
		zap.Uint64("nonce", args.Nonce),
		zap.Uint64("amount", args.Amount),
	}
	switch {
	case err == nil:
		tokensUnlocked.WithLabelValues(mint.String()).Add(float64(args.Amount))
		b.logger.Info("tokens unlocked", fields...)
	case errors.Is(err, ErrVaultUndercollateralized):
		undercollateralizedUnlocks.Inc()
		b.logger.Error("vault cannot cover unlock, bridge is undercollateralized", append(fields, zap.Error(err))...)
	}
}

func (b *Bridge) unlockFromEvm(txn *badger.Txn, relayer, mint, recipient solana.PublicKey, args instruction.UnlockFromEvmArgs) error {
	addrs, cfg, err := b.loadConfig(txn, mint)
	if err != nil {
		return err
	}
	if relayer != cfg.Relayer {
		return ErrUnauthorized
	}
	if cfg.IsPaused() {
		return ErrBridgePaused
	}
	if args.Amount == 0 {
		return ErrInvalidAmount
	}
	if recipient == addrs.VaultAuthority {
		return ErrInvalidRecipient
	}

	// Allocate-or-fail: the existence check and the write commit in the same transaction.
	procAddr, err := b.ProcessedMessageAddress(args.SrcChainID, args.Nonce)
	if err != nil {
		return err
	}
	if err := db.CreateAccount(txn, procAddr, &ProcessedMessage{Executed: 1}); err != nil {
		if errors.Is(err, db.ErrAccountExists) {
			return fmt.Errorf("%w: chain %d nonce %d", ErrAlreadyProcessed, args.SrcChainID, args.Nonce)
		}
		return err
	}

	authority, err := b.vaultAuthority(addrs.Config, cfg)
	if err != nil {
		return fmt.Errorf("failed to derive vault authority: %w", err)
	}
	if err := authority.release(txn, recipient, args.Amount); err != nil {
		if errors.Is(err, token.ErrInsufficientFunds) {
			return fmt.Errorf("%w: %w", ErrVaultUndercollateralized, err)
		}
		return fmt.Errorf("failed to release tokens from the vault: %w", err)
	}

	stats, err := b.loadStats(txn, addrs)
	if err != nil {
		return err
	}
	stats.addUnlocked(args.Amount)
	return db.StoreAccount(txn, addrs.Stats, stats)
}

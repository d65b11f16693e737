package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/certusone/wormhole/custody/pkg/instruction"
	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Initialize creates the bridge for mint with admin as its administrator, together with the empty vault and
// the custody totals. A mint can only be initialized once.
func (b *Bridge) Initialize(ctx context.Context, admin, mint solana.PublicKey, args instruction.InitializeArgs) error {
	return b.initializeGuarded(ctx, nil, admin, mint, args)
}

func (b *Bridge) initializeGuarded(ctx context.Context, guard txnGuard, admin, mint solana.PublicKey, args instruction.InitializeArgs) error {
	addrs, err := b.Addresses(mint)
	if err != nil {
		return err
	}
	err = b.execute(ctx, instruction.Initialize, addrs.Config, guard, func(txn *badger.Txn) error {
		return b.initialize(txn, admin, mint, args)
	})
	if err != nil {
		return err
	}

	b.logger.Info("bridge initialized",
		zap.Stringer("mint", mint),
		zap.Stringer("config", addrs.Config),
		zap.Stringer("admin", admin),
		zap.Stringer("relayer", args.Relayer),
		zap.Uint64("destinationChainId", args.DestinationChainID),
	)
	return nil
}

func (b *Bridge) initialize(txn *badger.Txn, admin, mint solana.PublicKey, args instruction.InitializeArgs) error {
	addrs, err := b.Addresses(mint)
	if err != nil {
		return err
	}

	cfg := &BridgeConfig{
		Admin:              admin,
		TokenMint:          mint,
		VaultAuthorityBump: addrs.VaultAuthorityBump,
		Nonce:              0,
		DestinationChainID: args.DestinationChainID,
		DestinationBridge:  args.DestinationBridge,
		Relayer:            args.Relayer,
	}
	if err := db.CreateAccount(txn, addrs.Config, cfg); err != nil {
		if errors.Is(err, db.ErrAccountExists) {
			return fmt.Errorf("%w: %s", ErrAlreadyInitialized, mint)
		}
		return err
	}

	// Nothing but a lock can credit the vault authority, so an existing vault account can only be empty.
	if _, err := b.tokens.CreateAccount(txn, mint, addrs.VaultAuthority); err != nil && !errors.Is(err, db.ErrAccountExists) {
		return fmt.Errorf("failed to create vault: %w", err)
	}
	if err := db.CreateAccount(txn, addrs.Stats, &CustodyStats{}); err != nil {
		return fmt.Errorf("failed to create custody stats: %w", err)
	}
	return db.IndexBridge(txn, mint)
}

// loadConfig returns the config of mint, or ErrBridgeNotInitialized.
func (b *Bridge) loadConfig(txn *badger.Txn, mint solana.PublicKey) (*Addresses, *BridgeConfig, error) {
	addrs, err := b.Addresses(mint)
	if err != nil {
		return nil, nil, err
	}
	cfg := &BridgeConfig{}
	if err := db.LoadAccount(txn, addrs.Config, cfg); err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrBridgeNotInitialized, mint)
		}
		return nil, nil, err
	}
	return addrs, cfg, nil
}

func (b *Bridge) loadStats(txn *badger.Txn, addrs *Addresses) (*CustodyStats, error) {
	stats := &CustodyStats{}
	if err := db.LoadAccount(txn, addrs.Stats, stats); err != nil {
		return nil, fmt.Errorf("failed to load custody stats: %w", err)
	}
	return stats, nil
}

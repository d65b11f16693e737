package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var ErrFaucetRecipient = errors.New("faucet cannot pay a vault authority")

// Airdrop mints amount of mint to owner. It backs the devnet faucet and is never reachable on a production
// node. Vault authorities are refused so that the vault only ever grows through locks.
func (b *Bridge) Airdrop(ctx context.Context, mint, owner solana.PublicKey, amount uint64) error {
	addrs, err := b.Addresses(mint)
	if err != nil {
		return err
	}
	if owner == addrs.VaultAuthority {
		return fmt.Errorf("%w: %s", ErrFaucetRecipient, owner)
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	err = b.db.Update(ctx, func(txn *badger.Txn) error {
		return b.tokens.MintTo(txn, mint, owner, amount)
	})
	if err != nil {
		return err
	}
	b.logger.Info("airdrop", zap.Stringer("mint", mint), zap.Stringer("owner", owner), zap.Uint64("amount", amount))
	return nil
}

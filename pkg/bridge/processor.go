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

// Receipt describes a processed transaction.
type Receipt struct {
	Signature   solana.Signature
	Instruction string
	// Lock is set for lock_tokens.
	Lock *LockRecord
}

// Process authenticates a signed transaction and executes its instruction on behalf of the signer.
//
// The transaction signature is remembered for twice the accepted clock drift, in the same database
// transaction as the instruction, so a committed transaction cannot be replayed while its timestamp is still
// acceptable. Failed instructions are not remembered and may be resubmitted.
func (b *Bridge) Process(ctx context.Context, signed *instruction.SignedTransaction) (*Receipt, error) {
	tx, err := signed.Open()
	if err != nil {
		if errors.Is(err, instruction.ErrInvalidSignature) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidInstructionData, err)
	}

	now := b.now()
	if drift := now.Sub(tx.Time()); drift > b.maxTxAge || drift < -b.maxTxAge {
		return nil, fmt.Errorf("%w: timestamp %d, node time %d", ErrTransactionExpired, tx.Timestamp, now.Unix())
	}

	ix, body, err := instruction.Split(tx.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInstructionData, err)
	}
	if !instruction.Known(ix) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, ix)
	}

	guard := func(txn *badger.Txn) error {
		if err := db.RecordSignature(txn, signed.Signature, 2*b.maxTxAge); err != nil {
			if errors.Is(err, db.ErrSignatureSeen) {
				return fmt.Errorf("%w: %s", ErrDuplicateTransaction, signed.Signature)
			}
			return err
		}
		return nil
	}

	receipt := &Receipt{Signature: signed.Signature, Instruction: ix.String()}
	switch ix {
	case instruction.Initialize:
		var args instruction.InitializeArgs
		if err := decodeArgs(body, &args); err != nil {
			return nil, err
		}
		err = b.initializeGuarded(ctx, guard, tx.Signer, tx.Mint, args)
	case instruction.LockTokens:
		var args instruction.LockTokensArgs
		if err := decodeArgs(body, &args); err != nil {
			return nil, err
		}
		receipt.Lock, err = b.lockTokensGuarded(ctx, guard, tx.Signer, tx.Mint, args)
	case instruction.UnlockFromEvm:
		var args instruction.UnlockFromEvmArgs
		if err := decodeArgs(body, &args); err != nil {
			return nil, err
		}
		err = b.unlockFromEvmGuarded(ctx, guard, tx.Signer, tx.Mint, tx.Recipient, args)
	case instruction.PauseBridge:
		err = b.setPaused(ctx, guard, ix, tx.Signer, tx.Mint, true)
	case instruction.ResumeBridge:
		err = b.setPaused(ctx, guard, ix, tx.Signer, tx.Mint, false)
	}

	if errors.Is(err, ErrDuplicateTransaction) {
		duplicateTransactions.Inc()
	}
	if err != nil {
		b.logger.Debug("transaction failed",
			zap.Stringer("signature", signed.Signature),
			zap.String("instruction", receipt.Instruction),
			zap.Stringer("signer", tx.Signer),
			zap.Error(err),
		)
		return nil, err
	}
	return receipt, nil
}

func decodeArgs(body []byte, v interface{}) error {
	if err := instruction.DecodeArgs(body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInstructionData, err)
	}
	return nil
}

package instruction

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"
)

var (
	ErrInvalidSignature     = errors.New("invalid transaction signature")
	ErrMalformedTransaction = errors.New("malformed transaction")
)

// Transaction is the signed unit submitted to the node. Mint selects the bridge; Recipient is only read by
// unlock_from_evm, where it names the owner of the destination token account.
type Transaction struct {
	Signer    solana.PublicKey
	Mint      solana.PublicKey
	Recipient solana.PublicKey
	Timestamp int64
	Data      []byte
}

func (tx *Transaction) Time() time.Time {
	return time.Unix(tx.Timestamp, 0)
}

// SignedTransaction pairs the borsh encoding of a Transaction with the signer's ed25519 signature over it.
type SignedTransaction struct {
	Message   []byte
	Signature solana.Signature
}

// NewTransaction builds an unsigned transaction for signer stamped with now.
func NewTransaction(signer, mint, recipient solana.PublicKey, data []byte, now time.Time) *Transaction {
	return &Transaction{
		Signer:    signer,
		Mint:      mint,
		Recipient: recipient,
		Timestamp: now.Unix(),
		Data:      data,
	}
}

// Sign serializes tx and signs it with key, which must belong to tx.Signer.
func (tx *Transaction) Sign(key solana.PrivateKey) (*SignedTransaction, error) {
	if key.PublicKey() != tx.Signer {
		return nil, fmt.Errorf("signing key %s does not match signer %s", key.PublicKey(), tx.Signer)
	}
	msg, err := borsh.Serialize(*tx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return &SignedTransaction{Message: msg, Signature: sig}, nil
}

// Open decodes the transaction and checks that its signer produced the signature.
func (s *SignedTransaction) Open() (*Transaction, error) {
	tx := &Transaction{}
	if err := borsh.Deserialize(tx, s.Message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if !s.Signature.Verify(tx.Signer, s.Message) {
		return nil, fmt.Errorf("%w: not signed by %s", ErrInvalidSignature, tx.Signer)
	}
	return tx, nil
}

// Encode returns the base58 forms of the message and the signature, as submitted over HTTP.
func (s *SignedTransaction) Encode() (message string, signature string) {
	return base58.Encode(s.Message), s.Signature.String()
}

// DecodeSigned parses the base58 forms produced by Encode. It does not verify the signature.
func DecodeSigned(message, signature string) (*SignedTransaction, error) {
	msg, err := base58.Decode(message)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction is not base58: %v", ErrMalformedTransaction, err)
	}
	if len(msg) == 0 {
		return nil, fmt.Errorf("%w: empty transaction", ErrMalformedTransaction)
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrMalformedTransaction, err)
	}
	return &SignedTransaction{Message: msg, Signature: sig}, nil
}

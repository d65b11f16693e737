package db

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
)

// Accounts are stored under their 32 byte address. The value is an 8 byte discriminator identifying the
// account type followed by the borsh encoding of the account body.
const (
	accountPrefix   = "ACCT:"
	signaturePrefix = "SIG:"

	discriminatorLen = 8
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrAccountDiscriminator = errors.New("account discriminator mismatch")
	ErrSignatureSeen        = errors.New("signature already processed")
)

// Account is implemented by every type that can be persisted at a derived address.
type Account interface {
	// AccountName is hashed into the discriminator, so renaming an account type orphans existing data.
	AccountName() string
}

type Discriminator [discriminatorLen]byte

// AccountDiscriminator returns sha256("account:<name>")[:8].
func AccountDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:discriminatorLen])
	return d
}

func AccountKey(addr solana.PublicKey) []byte {
	return append([]byte(accountPrefix), addr[:]...)
}

func encodeAccount(v Account) ([]byte, error) {
	// borsh-go encodes a pointer as an Option with a leading tag byte, so always serialize the struct itself.
	body, err := borsh.Serialize(reflect.Indirect(reflect.ValueOf(v)).Interface())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", v.AccountName(), err)
	}
	d := AccountDiscriminator(v.AccountName())
	return append(d[:], body...), nil
}

func decodeAccount(b []byte, v Account) error {
	d := AccountDiscriminator(v.AccountName())
	if len(b) < discriminatorLen || !bytes.Equal(b[:discriminatorLen], d[:]) {
		return fmt.Errorf("%w: expected %s", ErrAccountDiscriminator, v.AccountName())
	}
	if err := borsh.Deserialize(v, b[discriminatorLen:]); err != nil {
		return fmt.Errorf("failed to deserialize %s: %w", v.AccountName(), err)
	}
	return nil
}

// LoadAccount reads the account at addr into v, which must be a pointer.
func LoadAccount(txn *badger.Txn, addr solana.PublicKey, v Account) error {
	item, err := txn.Get(AccountKey(addr))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s %s", ErrAccountNotFound, v.AccountName(), addr)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return decodeAccount(val, v)
	})
}

// StoreAccount overwrites the account at addr.
func StoreAccount(txn *badger.Txn, addr solana.PublicKey, v Account) error {
	b, err := encodeAccount(v)
	if err != nil {
		return err
	}
	return txn.Set(AccountKey(addr), b)
}

// CreateAccount writes v at addr only if nothing is stored there yet. Inside a read-write transaction the
// existence check and the write commit together, so two racing creators cannot both succeed: the loser
// either sees ErrAccountExists or fails the commit with badger.ErrConflict.
func CreateAccount(txn *badger.Txn, addr solana.PublicKey, v Account) error {
	exists, err := AccountExists(txn, addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s %s", ErrAccountExists, v.AccountName(), addr)
	}
	return StoreAccount(txn, addr, v)
}

func AccountExists(txn *badger.Txn, addr solana.PublicKey) (bool, error) {
	_, err := txn.Get(AccountKey(addr))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// RecordSignature remembers a transaction signature for ttl. Recording the same signature twice while the
// first record is live fails with ErrSignatureSeen.
func RecordSignature(txn *badger.Txn, sig solana.Signature, ttl time.Duration) error {
	key := append([]byte(signaturePrefix), sig[:]...)
	_, err := txn.Get(key)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrSignatureSeen, sig)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return txn.SetEntry(badger.NewEntry(key, []byte{1}).WithTTL(ttl))
}

// Package token implements SPL-style fungible token accounts on top of the custody database. Token accounts
// live at the associated token address of (owner, mint) and are read and written inside the caller's
// badger transaction, so a transfer commits or aborts together with the instruction that issued it.
package token

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/dgraph-io/badger/v3"
	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOwnerMismatch     = errors.New("owner does not match")
	ErrMintMismatch      = errors.New("mint does not match")
	ErrOverflow          = errors.New("balance overflow")
	// ErrProgramOwned is returned when a plain transfer names a program derived account as its source. Only
	// the owning program's ProgramSigner can debit those.
	ErrProgramOwned      = errors.New("source account is owned by a program")
	ErrProgramRegistered = errors.New("program already has a signer")
	ErrInvalidSeeds      = errors.New("seeds do not derive a program address")
)

const DefaultCacheSize = 4096

type Account struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

func (Account) AccountName() string { return "TokenAccount" }

type ataKey struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

// Ledger moves tokens between accounts. It holds no balances itself.
type Ledger struct {
	addresses *lru.Cache

	mu       sync.Mutex
	programs map[solana.PublicKey]struct{}
}

func NewLedger(cacheSize int) (*Ledger, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create address cache: %w", err)
	}
	return &Ledger{addresses: cache, programs: map[solana.PublicKey]struct{}{}}, nil
}

// ProgramSigner authorizes debits from the program derived accounts of one program, the way invoke_signed
// does on Solana. The owner proves the source address by presenting its seeds.
type ProgramSigner struct {
	ledger    *Ledger
	programID solana.PublicKey
}

// RegisterProgram hands out the signer for programID. It succeeds once per program and ledger, so whoever
// registers first is the only one able to move tokens out of that program's accounts.
func (l *Ledger) RegisterProgram(programID solana.PublicKey) (*ProgramSigner, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.programs[programID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramRegistered, programID)
	}
	l.programs[programID] = struct{}{}
	return &ProgramSigner{ledger: l, programID: programID}, nil
}

func (p *ProgramSigner) ProgramID() solana.PublicKey {
	return p.programID
}

// Transfer moves amount of mint from the token account owned by the program address derived from seeds
// to the token account of to.
func (p *ProgramSigner) Transfer(txn *badger.Txn, mint solana.PublicKey, seeds [][]byte, to solana.PublicKey, amount uint64) error {
	from, err := solana.CreateProgramAddress(seeds, p.programID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSeeds, err)
	}
	return p.ledger.move(txn, mint, from, to, amount)
}

// Address returns the associated token address of owner for mint.
func (l *Ledger) Address(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	k := ataKey{owner: owner, mint: mint}
	if v, ok := l.addresses.Get(k); ok {
		return v.(solana.PublicKey), nil
	}
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account for %s: %w", owner, err)
	}
	l.addresses.Add(k, addr)
	return addr, nil
}

// CreateAccount creates an empty token account for (owner, mint). It fails with db.ErrAccountExists if the
// account is already there.
func (l *Ledger) CreateAccount(txn *badger.Txn, mint, owner solana.PublicKey) (solana.PublicKey, error) {
	addr, err := l.Address(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := db.CreateAccount(txn, addr, &Account{Mint: mint, Owner: owner}); err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

// Load returns the token account of owner for mint.
func (l *Ledger) Load(txn *badger.Txn, mint, owner solana.PublicKey) (*Account, error) {
	addr, err := l.Address(owner, mint)
	if err != nil {
		return nil, err
	}
	acc := &Account{}
	if err := db.LoadAccount(txn, addr, acc); err != nil {
		return nil, err
	}
	if acc.Mint != mint {
		return nil, fmt.Errorf("%w: account %s holds %s, not %s", ErrMintMismatch, addr, acc.Mint, mint)
	}
	return acc, nil
}

// Balance returns the balance of owner for mint. A missing account has a zero balance.
func (l *Ledger) Balance(txn *badger.Txn, mint, owner solana.PublicKey) (uint64, error) {
	acc, err := l.Load(txn, mint, owner)
	if errors.Is(err, db.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Amount, nil
}

// Transfer moves amount of mint from the token account of from to the token account of to. authority must
// be the owner of the source account, which must be a keypair account. The destination account is created
// if it does not exist.
func (l *Ledger) Transfer(txn *badger.Txn, mint, from, authority, to solana.PublicKey, amount uint64) error {
	if authority != from {
		return fmt.Errorf("%w: %s may not move tokens owned by %s", ErrOwnerMismatch, authority, from)
	}
	if !solana.IsOnCurve(from[:]) {
		return fmt.Errorf("%w: %s", ErrProgramOwned, from)
	}
	return l.move(txn, mint, from, to, amount)
}

func (l *Ledger) move(txn *badger.Txn, mint, from, to solana.PublicKey, amount uint64) error {
	src, err := l.Load(txn, mint, from)
	if errors.Is(err, db.ErrAccountNotFound) {
		return fmt.Errorf("%w: %s has no %s account", ErrInsufficientFunds, from, mint)
	}
	if err != nil {
		return err
	}
	if src.Owner != from {
		return fmt.Errorf("%w: account is owned by %s", ErrOwnerMismatch, src.Owner)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if from == to {
		return nil
	}

	src.Amount -= amount
	srcAddr, err := l.Address(from, mint)
	if err != nil {
		return err
	}
	if err := db.StoreAccount(txn, srcAddr, src); err != nil {
		return err
	}
	return l.credit(txn, mint, to, amount)
}

// MintTo creates amount new tokens in the account of to. Only the devnet faucet calls this.
func (l *Ledger) MintTo(txn *badger.Txn, mint, to solana.PublicKey, amount uint64) error {
	return l.credit(txn, mint, to, amount)
}

func (l *Ledger) credit(txn *badger.Txn, mint, owner solana.PublicKey, amount uint64) error {
	addr, err := l.Address(owner, mint)
	if err != nil {
		return err
	}
	dst, err := l.Load(txn, mint, owner)
	if errors.Is(err, db.ErrAccountNotFound) {
		dst = &Account{Mint: mint, Owner: owner}
	} else if err != nil {
		return err
	}
	if dst.Amount > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s %s", ErrOverflow, owner, mint)
	}
	dst.Amount += amount
	return db.StoreAccount(txn, addr, dst)
}

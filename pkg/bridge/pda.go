package bridge

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the address of the deployed bridge program. Every derived address is scoped to it.
var DefaultProgramID = solana.MustPublicKeyFromBase58("F5qk3bMoRNyZao5RciKt7X5BN44wg93p6ExE5qwSi4Ww")

const (
	seedBridge    = "bridge"
	seedVault     = "vault"
	seedLock      = "lock"
	seedProcessed = "processed"
	seedStats     = "stats"
)

// Addresses are the accounts derived for one mint.
type Addresses struct {
	Config             solana.PublicKey
	VaultAuthority     solana.PublicKey
	VaultAuthorityBump uint8
	// Vault is the token account of the vault authority for the mint.
	Vault solana.PublicKey
	Stats solana.PublicKey
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Addresses derives (or returns the cached) accounts for mint.
func (b *Bridge) Addresses(mint solana.PublicKey) (*Addresses, error) {
	if v, ok := b.addresses.Get(mint); ok {
		return v.(*Addresses), nil
	}

	config, _, err := solana.FindProgramAddress([][]byte{[]byte(seedBridge), mint[:]}, b.programID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive config address: %w", err)
	}
	authority, bump, err := solana.FindProgramAddress([][]byte{[]byte(seedVault), config[:]}, b.programID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault authority: %w", err)
	}
	vault, err := b.tokens.Address(authority, mint)
	if err != nil {
		return nil, err
	}
	stats, _, err := solana.FindProgramAddress([][]byte{[]byte(seedStats), config[:]}, b.programID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive stats address: %w", err)
	}

	addrs := &Addresses{
		Config:             config,
		VaultAuthority:     authority,
		VaultAuthorityBump: bump,
		Vault:              vault,
		Stats:              stats,
	}
	b.addresses.Add(mint, addrs)
	return addrs, nil
}

func (b *Bridge) LockRecordAddress(config solana.PublicKey, nonce uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(seedLock), config[:], le64(nonce)}, b.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive lock record address: %w", err)
	}
	return addr, nil
}

func (b *Bridge) ProcessedMessageAddress(srcChainID, nonce uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(seedProcessed), le64(srcChainID), le64(nonce)}, b.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive processed message address: %w", err)
	}
	return addr, nil
}

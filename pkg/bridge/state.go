package bridge

import (
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

type (
	// BridgeConfig is the per-mint root of the bridge. Only Nonce and Paused change after initialization.
	BridgeConfig struct {
		Admin              solana.PublicKey
		TokenMint          solana.PublicKey
		VaultAuthorityBump uint8
		Nonce              uint64
		DestinationChainID uint64
		DestinationBridge  [20]byte
		Relayer            solana.PublicKey
		// Borsh does not seem to support booleans, so 0=false / 1=true
		Paused uint8
	}

	// LockRecord is written once per successful lock at the address derived from its config and nonce.
	LockRecord struct {
		Config             solana.PublicKey
		Nonce              uint64
		User               solana.PublicKey
		Amount             uint64
		DestinationAddress [20]byte
		// Unix seconds.
		CreatedAt int64
	}

	// ProcessedMessage is the replay tombstone of an inbound (source chain, nonce) pair.
	ProcessedMessage struct {
		Executed uint8
	}

	// CustodyStats holds the running totals the audit compares against the vault balance. Both totals are
	// 256-bit big-endian integers so they cannot overflow however many u64 amounts are added.
	CustodyStats struct {
		TotalLocked   [32]byte
		TotalUnlocked [32]byte
	}
)

func (BridgeConfig) AccountName() string     { return "BridgeConfig" }
func (LockRecord) AccountName() string       { return "LockRecord" }
func (ProcessedMessage) AccountName() string { return "ProcessedMessage" }
func (CustodyStats) AccountName() string     { return "CustodyStats" }

func (c *BridgeConfig) IsPaused() bool {
	return c.Paused != 0
}

func (c *BridgeConfig) setPaused(paused bool) {
	if paused {
		c.Paused = 1
	} else {
		c.Paused = 0
	}
}

func (s *CustodyStats) Locked() *uint256.Int {
	return new(uint256.Int).SetBytes32(s.TotalLocked[:])
}

func (s *CustodyStats) Unlocked() *uint256.Int {
	return new(uint256.Int).SetBytes32(s.TotalUnlocked[:])
}

func (s *CustodyStats) addLocked(amount uint64) {
	s.TotalLocked = new(uint256.Int).AddUint64(s.Locked(), amount).Bytes32()
}

func (s *CustodyStats) addUnlocked(amount uint64) {
	s.TotalUnlocked = new(uint256.Int).AddUint64(s.Unlocked(), amount).Bytes32()
}

// Outstanding is the amount the vault must hold: everything locked minus everything unlocked.
func (s *CustodyStats) Outstanding() (*uint256.Int, bool) {
	return new(uint256.Int).SubOverflow(s.Locked(), s.Unlocked())
}

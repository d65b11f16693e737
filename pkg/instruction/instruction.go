// Package instruction defines the wire format of bridge instructions: an 8 byte sighash discriminator
// followed by the borsh encoded arguments, carried inside a signed transaction envelope.
package instruction

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"reflect"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
)

const discriminatorLen = 8

var ErrInstructionTooShort = errors.New("instruction data shorter than discriminator")

type Discriminator [discriminatorLen]byte

func (d Discriminator) String() string {
	if name, ok := names[d]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%x)", d[:])
}

// Sighash returns sha256("global:<name>")[:8].
func Sighash(name string) Discriminator {
	sum := sha256.Sum256([]byte("global:" + name))
	var d Discriminator
	copy(d[:], sum[:discriminatorLen])
	return d
}

var (
	Initialize    = Sighash("initialize")
	LockTokens    = Sighash("lock_tokens")
	UnlockFromEvm = Sighash("unlock_from_evm")
	PauseBridge   = Sighash("pause_bridge")
	ResumeBridge  = Sighash("resume_bridge")

	names = map[Discriminator]string{
		Initialize:    "initialize",
		LockTokens:    "lock_tokens",
		UnlockFromEvm: "unlock_from_evm",
		PauseBridge:   "pause_bridge",
		ResumeBridge:  "resume_bridge",
	}
)

// Known reports whether d names one of the bridge instructions.
func Known(d Discriminator) bool {
	_, ok := names[d]
	return ok
}

type (
	InitializeArgs struct {
		DestinationChainID uint64
		DestinationBridge  [20]byte
		Relayer            solana.PublicKey
	}

	LockTokensArgs struct {
		Amount             uint64
		DestinationAddress [20]byte
	}

	UnlockFromEvmArgs struct {
		SrcChainID uint64
		Nonce      uint64
		Amount     uint64
	}
)

// Encode builds instruction data. args is nil for instructions that take no arguments.
func Encode(d Discriminator, args interface{}) ([]byte, error) {
	data := append([]byte{}, d[:]...)
	if args == nil {
		return data, nil
	}
	// Pointers would be encoded as a borsh Option; the wire format has no tag byte.
	body, err := borsh.Serialize(reflect.Indirect(reflect.ValueOf(args)).Interface())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s arguments: %w", d, err)
	}
	return append(data, body...), nil
}

// Split separates instruction data into its discriminator and the encoded arguments.
func Split(data []byte) (Discriminator, []byte, error) {
	var d Discriminator
	if len(data) < discriminatorLen {
		return d, nil, ErrInstructionTooShort
	}
	copy(d[:], data[:discriminatorLen])
	return d, data[discriminatorLen:], nil
}

// DecodeArgs decodes the argument bytes returned by Split into v, which must be a pointer.
func DecodeArgs(body []byte, v interface{}) error {
	// Decode instruction data (UNTRUSTED)
	if err := borsh.Deserialize(v, body); err != nil {
		return fmt.Errorf("failed to deserialize instruction data: %w", err)
	}
	return nil
}

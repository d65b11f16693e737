package bridge

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

const evmBridgeABI = `[{"type":"function","name":"mintFromSolana","stateMutability":"nonpayable","outputs":[],"inputs":[` +
	`{"name":"srcChainId","type":"uint64"},` +
	`{"name":"config","type":"bytes32"},` +
	`{"name":"nonce","type":"uint64"},` +
	`{"name":"tokenMint","type":"bytes32"},` +
	`{"name":"solanaUser","type":"bytes32"},` +
	`{"name":"amount","type":"uint256"},` +
	`{"name":"recipient","type":"address"}]}]`

var parsedEvmBridgeABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(evmBridgeABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse evm bridge abi: %v", err))
	}
	return parsed
}()

// OutboundMessage is the call the relayer submits to the destination bridge for one lock.
type OutboundMessage struct {
	Lock               *LockRecord
	SrcChainID         uint64
	DestinationChainID uint64
	DestinationBridge  ethCommon.Address
	Recipient          ethCommon.Address
	Calldata           []byte
	// Digest is keccak256(Calldata).
	Digest ethCommon.Hash
}

// LockMessage encodes the mintFromSolana call for the lock at nonce. srcChainID is the identifier the
// destination chain knows this ledger by.
func (b *Bridge) LockMessage(mint solana.PublicKey, nonce uint64, srcChainID uint64) (*OutboundMessage, error) {
	cfg, addrs, err := b.Config(mint)
	if err != nil {
		return nil, err
	}
	rec, err := b.LockRecord(mint, nonce)
	if err != nil {
		return nil, err
	}

	recipient := ethCommon.BytesToAddress(rec.DestinationAddress[:])
	calldata, err := parsedEvmBridgeABI.Pack("mintFromSolana",
		srcChainID,
		[32]byte(addrs.Config),
		rec.Nonce,
		[32]byte(cfg.TokenMint),
		[32]byte(rec.User),
		new(big.Int).SetUint64(rec.Amount),
		recipient,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack mintFromSolana: %w", err)
	}

	return &OutboundMessage{
		Lock:               rec,
		SrcChainID:         srcChainID,
		DestinationChainID: cfg.DestinationChainID,
		DestinationBridge:  ethCommon.BytesToAddress(cfg.DestinationBridge[:]),
		Recipient:          recipient,
		Calldata:           calldata,
		Digest:             ethCrypto.Keccak256Hash(calldata),
	}, nil
}

func hexAddress(addr [20]byte) string {
	return ethCommon.BytesToAddress(addr[:]).Hex()
}

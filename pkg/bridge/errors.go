package bridge

import "fmt"

// Error is a named bridge failure. Codes follow the Anchor convention of starting custom errors at 6000 so
// they line up with the on-chain program's error table.
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

const errorCodeOffset = 6000

var (
	ErrNonceOverflow     = &Error{errorCodeOffset + 0, "NonceOverflow", "Nonce overflow"}
	ErrInvalidAmount     = &Error{errorCodeOffset + 1, "InvalidAmount", "Amount must be greater than zero"}
	ErrUnauthorizedAdmin = &Error{errorCodeOffset + 2, "UnauthorizedAdmin", "You are not admin"}
	ErrBridgePaused      = &Error{errorCodeOffset + 3, "BridgePaused", "Bridge is paused"}
	ErrAlreadyPaused     = &Error{errorCodeOffset + 4, "AlreadyPaused", "Bridge is already paused"}
	ErrNotPaused         = &Error{errorCodeOffset + 5, "NotPaused", "Bridge is not paused"}
	ErrUnauthorized      = &Error{errorCodeOffset + 6, "Unauthorized", "Unauthorized caller"}
	ErrAlreadyProcessed  = &Error{errorCodeOffset + 7, "AlreadyProcessed", "Message already processed"}

	ErrAlreadyInitialized       = &Error{errorCodeOffset + 8, "AlreadyInitialized", "Bridge already initialized for this mint"}
	ErrBridgeNotInitialized     = &Error{errorCodeOffset + 9, "BridgeNotInitialized", "No bridge is initialized for this mint"}
	ErrInsufficientFunds        = &Error{errorCodeOffset + 10, "InsufficientFunds", "Insufficient token balance"}
	ErrVaultUndercollateralized = &Error{errorCodeOffset + 11, "VaultUndercollateralized", "Vault balance does not cover the unlock"}
	ErrInvalidRecipient         = &Error{errorCodeOffset + 12, "InvalidRecipient", "Recipient may not be the vault authority"}

	ErrInvalidSignature       = &Error{errorCodeOffset + 13, "InvalidSignature", "Transaction signature is invalid"}
	ErrTransactionExpired     = &Error{errorCodeOffset + 14, "TransactionExpired", "Transaction timestamp is outside the accepted window"}
	ErrDuplicateTransaction   = &Error{errorCodeOffset + 15, "DuplicateTransaction", "Transaction was already processed"}
	ErrUnknownInstruction     = &Error{errorCodeOffset + 16, "UnknownInstruction", "Unknown instruction"}
	ErrInvalidInstructionData = &Error{errorCodeOffset + 17, "InvalidInstructionData", "Instruction data could not be decoded"}
	ErrInvalidSender          = &Error{errorCodeOffset + 18, "InvalidSender", "Tokens can only be locked from a keypair account"}
)

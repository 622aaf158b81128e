package domain

import "errors"

// Code is a machine-readable error code exposed on the wire.
type Code string

// Wire codes for the failure taxonomy.
const (
	CodeUnknown                Code = "UNKNOWN"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeInsufficientPermission Code = "INSUFFICIENT_PERMISSION"
	CodeNotMinter              Code = "NOT_MINTER"
	CodeNotFound               Code = "NOT_FOUND"
	CodeLengthMismatch         Code = "LENGTH_MISMATCH"
	CodeInvalidAmount          Code = "INVALID_AMOUNT"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeZeroAddress            Code = "ZERO_ADDRESS"
	CodeNotOpen                Code = "NOT_OPEN"
	CodeLocked                 Code = "LOCKED"
	CodeInvalidLockBit         Code = "INVALID_LOCK_BIT"
	CodeSupplyExceeded         Code = "SUPPLY_EXCEEDED"
	CodeSupplyTooLow           Code = "SUPPLY_TOO_LOW"
	CodeInsufficientPayment    Code = "INSUFFICIENT_PAYMENT"
	CodePriceOverflow          Code = "PRICE_OVERFLOW"
	CodeTransferFailed         Code = "TRANSFER_FAILED"
	CodeAlreadyInitialized     Code = "ALREADY_INITIALIZED"
	CodeSaltConsumed           Code = "SALT_CONSUMED"
)

// ErrorCode maps a domain failure to its wire code. Unrecognized errors map
// to CodeUnknown; the engine never relies on that fallback for its own
// failures.
func ErrorCode(err error) Code {
	switch {
	case errors.As(err, new(UnauthorizedError)):
		return CodeUnauthorized
	case errors.As(err, new(InsufficientPermissionError)):
		return CodeInsufficientPermission
	case errors.As(err, new(NotMinterError)):
		return CodeNotMinter
	case errors.As(err, new(NotFoundError)):
		return CodeNotFound
	case errors.As(err, new(LengthMismatchError)):
		return CodeLengthMismatch
	case errors.As(err, new(InvalidAmountError)):
		return CodeInvalidAmount
	case errors.As(err, new(InsufficientBalanceError)):
		return CodeInsufficientBalance
	case errors.As(err, new(ZeroAddressError)):
		return CodeZeroAddress
	case errors.As(err, new(NotOpenError)):
		return CodeNotOpen
	case errors.As(err, new(LockedError)):
		return CodeLocked
	case errors.As(err, new(InvalidLockBitError)):
		return CodeInvalidLockBit
	case errors.As(err, new(SupplyExceededError)):
		return CodeSupplyExceeded
	case errors.As(err, new(SupplyTooLowError)):
		return CodeSupplyTooLow
	case errors.As(err, new(InsufficientPaymentError)):
		return CodeInsufficientPayment
	case errors.As(err, new(PriceOverflowError)):
		return CodePriceOverflow
	case errors.As(err, new(TransferFailedError)):
		return CodeTransferFailed
	case errors.As(err, new(AlreadyInitializedError)):
		return CodeAlreadyInitialized
	case errors.As(err, new(SaltConsumedError)):
		return CodeSaltConsumed
	}
	return CodeUnknown
}

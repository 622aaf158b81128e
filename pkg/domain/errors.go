package domain

import "fmt"

// Every failure in the core is terminal and atomic: the whole call tree
// aborts with zero partial effect. The types below carry the diagnostics a
// caller needs; nothing in the engine retries or degrades silently.

// UnauthorizedError reports a caller lacking a required role.
type UnauthorizedError struct {
	Caller Address
	Role   Role
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("caller %s lacks role %s", e.Caller, e.Role)
}

// InsufficientPermissionError reports a caller with no authorization path
// (self, operator, or live approval) over an agent.
type InsufficientPermissionError struct {
	Caller Address
	ID     AgentID
}

func (e InsufficientPermissionError) Error() string {
	return fmt.Sprintf("caller %s has no permission over agent %d", e.Caller, e.ID)
}

// NotMinterError reports a private-mode mint attempt by a non-minter.
type NotMinterError struct {
	Caller Address
}

func (e NotMinterError) Error() string {
	return fmt.Sprintf("minting is private and caller %s lacks role %s", e.Caller, RoleMinter)
}

// NotFoundError reports a reference to an unallocated agent ID.
type NotFoundError struct {
	ID AgentID
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("agent %d not found", e.ID)
}

// LengthMismatchError reports paired input slices of different lengths.
type LengthMismatchError struct {
	Owners  int
	Entries int
}

func (e LengthMismatchError) Error() string {
	return fmt.Sprintf("owners length %d does not match metadata length %d", e.Owners, e.Entries)
}

// InvalidAmountError reports a transfer quantity outside the single allowed unit.
type InvalidAmountError struct {
	Amount uint64
}

func (e InvalidAmountError) Error() string {
	return fmt.Sprintf("amount %d is not the single allowed unit", e.Amount)
}

// InsufficientBalanceError reports a move of an agent the holder does not own.
type InsufficientBalanceError struct {
	Holder Address
	ID     AgentID
}

func (e InsufficientBalanceError) Error() string {
	return fmt.Sprintf("account %s does not own agent %d", e.Holder, e.ID)
}

// ZeroAddressError reports an operation targeting the zero address.
type ZeroAddressError struct{}

func (ZeroAddressError) Error() string {
	return "zero address is not a valid recipient"
}

// NotOpenError reports a mint attempt while minting is closed.
type NotOpenError struct{}

func (NotOpenError) Error() string {
	return "minting is not open"
}

// LockedError reports an administrative setter disabled by a lock bit.
type LockedError struct {
	Bit LockBit
}

func (e LockedError) Error() string {
	return fmt.Sprintf("setting locked by %s bit", e.Bit)
}

// InvalidLockBitError reports a lock value that is not exactly one defined flag.
type InvalidLockBitError struct {
	Bit LockBit
}

func (e InvalidLockBitError) Error() string {
	return fmt.Sprintf("lock bit %#x is not a defined flag", uint8(e.Bit))
}

// SupplyExceededError reports a mint that would pass the supply cap.
type SupplyExceededError struct {
	Requested uint64
	Remaining uint64
}

func (e SupplyExceededError) Error() string {
	return fmt.Sprintf("mint of %d exceeds remaining supply %d", e.Requested, e.Remaining)
}

// SupplyTooLowError reports a cap below what has already been minted.
type SupplyTooLowError struct {
	Max    uint64
	Minted uint64
}

func (e SupplyTooLowError) Error() string {
	return fmt.Sprintf("max supply %d is below %d already minted", e.Max, e.Minted)
}

// InsufficientPaymentError reports attached value below the required payment.
type InsufficientPaymentError struct {
	Attached uint64
	Required uint64
}

func (e InsufficientPaymentError) Error() string {
	return fmt.Sprintf("attached %d below required payment %d", e.Attached, e.Required)
}

// PriceOverflowError reports a mint whose required payment would wrap.
type PriceOverflowError struct {
	Price uint64
	Count uint64
}

func (e PriceOverflowError) Error() string {
	return fmt.Sprintf("payment %d * %d overflows", e.Price, e.Count)
}

// TransferFailedError reports an outbound value movement that did not succeed.
type TransferFailedError struct {
	From   Address
	To     Address
	Amount uint64
	Err    error
}

func (e TransferFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("value transfer of %d from %s to %s failed: %v", e.Amount, e.From, e.To, e.Err)
	}
	return fmt.Sprintf("value transfer of %d from %s to %s failed", e.Amount, e.From, e.To)
}

// Unwrap exposes the underlying ledger failure.
func (e TransferFailedError) Unwrap() error { return e.Err }

// AlreadyInitializedError reports a second initialization of an instance.
type AlreadyInitializedError struct {
	Instance Address
}

func (e AlreadyInitializedError) Error() string {
	return fmt.Sprintf("instance %s already initialized", e.Instance)
}

// SaltConsumedError reports a deterministic deployment reusing a salt.
type SaltConsumedError struct {
	Salt string
}

func (e SaltConsumedError) Error() string {
	return fmt.Sprintf("salt %q already consumed", e.Salt)
}

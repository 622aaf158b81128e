// Package ledger states the contract the value-transfer environment must
// satisfy and ships an in-memory implementation for tests and single-process
// deployments. The substrate itself (ordering, finality) is out of scope.
package ledger

import (
	"errors"
	"sync"

	"agentcore/pkg/domain"
)

// ErrInsufficientFunds indicates the source account cannot cover a movement.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger moves integer value between accounts. A movement either completes in
// full or fails with no effect; callers surface failures as TransferFailed.
type Ledger interface {
	Transfer(from, to domain.Address, amount uint64) error
	Balance(account domain.Address) uint64
}

// Memory is an in-process ledger. The zero value is not usable; construct
// with NewMemory.
type Memory struct {
	mu       sync.Mutex
	balances map[domain.Address]uint64
}

// NewMemory returns a ledger with no funded accounts.
func NewMemory() *Memory {
	return &Memory{balances: make(map[domain.Address]uint64)}
}

// Credit funds an account out of thin air. Deployment and test seeding only.
func (m *Memory) Credit(account domain.Address, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

// Transfer moves amount from one account to another. A zero amount is a
// no-op success.
func (m *Memory) Transfer(from, to domain.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from] < amount {
		return ErrInsufficientFunds
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

// Balance returns the current balance of account.
func (m *Memory) Balance(account domain.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account]
}

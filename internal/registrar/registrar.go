// Package registrar implements the minting gateway in front of a registry
// instance: price and supply policy, open/public mode, permanent lock bits,
// payment handling, and batch minting. Policy state belongs to the registrar;
// the agent ledger stays in the registry it is bound to.
package registrar

import (
	"context"
	"sync"
	"time"

	"agentcore/internal/access"
	"agentcore/internal/ledger"
	"agentcore/internal/telemetry"
	"agentcore/pkg/domain"
)

// AgentRegistry is the registry surface a registrar mints into. The registrar
// address must hold the registrar role on the bound instance.
type AgentRegistry interface {
	Address() domain.Address
	RegisterBatch(ctx context.Context, caller domain.Address, owners []domain.Address, entries [][]domain.MetadataEntry) ([]domain.AgentID, error)
}

// Registrar is one minting gateway instance. Construct with New; the instance
// refuses every mint until Initialize seeds its admin and an admin opens it.
type Registrar struct {
	addr     domain.Address
	registry AgentRegistry
	funds    ledger.Ledger
	journal  domain.EventJournal
	metrics  telemetry.Recorder
	nowFn    func() time.Time

	mu          sync.RWMutex
	initialized bool
	mintPrice   uint64
	maxSupply   uint64
	totalMinted uint64
	open        bool
	publicMode  bool
	locks       domain.LockBit
	roles       access.Controller
}

// Option configures a Registrar at construction.
type Option func(*Registrar)

// WithMetrics attaches an operation recorder.
func WithMetrics(rec telemetry.Recorder) Option {
	return func(r *Registrar) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registrar) {
		if now != nil {
			r.nowFn = now
		}
	}
}

// New constructs an uninitialized registrar bound to reg, paying and
// collecting through funds, with the given starting policy.
func New(addr domain.Address, reg AgentRegistry, funds ledger.Ledger, journal domain.EventJournal, mintPrice, maxSupply uint64, opts ...Option) *Registrar {
	r := &Registrar{
		addr:      addr,
		registry:  reg,
		funds:     funds,
		journal:   journal,
		metrics:   telemetry.Nop{},
		nowFn:     func() time.Time { return time.Now().UTC() },
		mintPrice: mintPrice,
		maxSupply: maxSupply,
		roles:     access.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address returns the instance identity.
func (r *Registrar) Address() domain.Address {
	return r.addr
}

// Registry returns the bound registry's address.
func (r *Registrar) Registry() domain.Address {
	return r.registry.Address()
}

// Initialize seeds admin with the root role. One-shot.
func (r *Registrar) Initialize(ctx context.Context, admin domain.Address) error {
	if admin.IsZero() {
		return domain.ZeroAddressError{}
	}
	began := time.Now()
	r.mu.Lock()
	err := func() error {
		if r.initialized {
			return domain.AlreadyInitializedError{Instance: r.addr}
		}
		ev, err := domain.NewEvent(domain.EventRoleGranted, domain.RolePayload{Role: domain.RoleAdmin, Account: admin, Caller: admin})
		if err != nil {
			return err
		}
		if err := r.append(ctx, ev); err != nil {
			return err
		}
		r.roles.Seed(domain.RoleAdmin, admin)
		r.initialized = true
		return nil
	}()
	r.mu.Unlock()
	r.metrics.Observe(ctx, "registrar.initialize", err == nil, time.Since(began))
	return err
}

// append stamps and writes events to the journal.
func (r *Registrar) append(ctx context.Context, events ...domain.Event) error {
	stamp := r.nowFn()
	for i := range events {
		events[i].Instance = r.addr
		events[i].Timestamp = stamp
	}
	return r.journal.Append(ctx, events...)
}

// adminOp runs fn under the write lock after the admin role check. fn stages
// its event; state is mutated only after the journal accepts it.
func (r *Registrar) adminOp(ctx context.Context, op string, caller domain.Address, fn func() (domain.Event, func(), error)) error {
	began := time.Now()
	r.mu.Lock()
	err := func() error {
		if !r.roles.HasRole(domain.RoleAdmin, caller) {
			return domain.UnauthorizedError{Caller: caller, Role: domain.RoleAdmin}
		}
		ev, apply, err := fn()
		if err != nil {
			return err
		}
		if err := r.append(ctx, ev); err != nil {
			return err
		}
		apply()
		return nil
	}()
	r.mu.Unlock()
	r.metrics.Observe(ctx, op, err == nil, time.Since(began))
	return err
}

// OpenMinting opens the gateway in the requested mode.
func (r *Registrar) OpenMinting(ctx context.Context, caller domain.Address, public bool) error {
	return r.adminOp(ctx, "registrar.open_minting", caller, func() (domain.Event, func(), error) {
		if r.locks&domain.LockOpenClose != 0 {
			return domain.Event{}, nil, domain.LockedError{Bit: domain.LockOpenClose}
		}
		ev, err := domain.NewEvent(domain.EventMintingOpened, domain.PolicyPayload{Caller: caller, Public: public})
		if err != nil {
			return domain.Event{}, nil, err
		}
		return ev, func() { r.open = true; r.publicMode = public }, nil
	})
}

// CloseMinting closes the gateway.
func (r *Registrar) CloseMinting(ctx context.Context, caller domain.Address) error {
	return r.adminOp(ctx, "registrar.close_minting", caller, func() (domain.Event, func(), error) {
		if r.locks&domain.LockOpenClose != 0 {
			return domain.Event{}, nil, domain.LockedError{Bit: domain.LockOpenClose}
		}
		ev, err := domain.NewEvent(domain.EventMintingClosed, domain.PolicyPayload{Caller: caller})
		if err != nil {
			return domain.Event{}, nil, err
		}
		return ev, func() { r.open = false }, nil
	})
}

// SetMintPrice changes the unit price.
func (r *Registrar) SetMintPrice(ctx context.Context, caller domain.Address, price uint64) error {
	return r.adminOp(ctx, "registrar.set_mint_price", caller, func() (domain.Event, func(), error) {
		if r.locks&domain.LockMintPrice != 0 {
			return domain.Event{}, nil, domain.LockedError{Bit: domain.LockMintPrice}
		}
		ev, err := domain.NewEvent(domain.EventMintPriceSet, domain.PolicyPayload{Caller: caller, MintPrice: price})
		if err != nil {
			return domain.Event{}, nil, err
		}
		return ev, func() { r.mintPrice = price }, nil
	})
}

// SetMaxSupply changes the supply cap; zero means unbounded. A non-zero cap
// below what has already been minted is rejected.
func (r *Registrar) SetMaxSupply(ctx context.Context, caller domain.Address, max uint64) error {
	return r.adminOp(ctx, "registrar.set_max_supply", caller, func() (domain.Event, func(), error) {
		if r.locks&domain.LockMaxSupply != 0 {
			return domain.Event{}, nil, domain.LockedError{Bit: domain.LockMaxSupply}
		}
		if max != 0 && max < r.totalMinted {
			return domain.Event{}, nil, domain.SupplyTooLowError{Max: max, Minted: r.totalMinted}
		}
		ev, err := domain.NewEvent(domain.EventMaxSupplySet, domain.PolicyPayload{Caller: caller, MaxSupply: max})
		if err != nil {
			return domain.Event{}, nil, err
		}
		return ev, func() { r.maxSupply = max }, nil
	})
}

// SetLockBit permanently sets one lock flag. No unset operation exists.
func (r *Registrar) SetLockBit(ctx context.Context, caller domain.Address, bit domain.LockBit) error {
	return r.adminOp(ctx, "registrar.set_lock_bit", caller, func() (domain.Event, func(), error) {
		if !bit.Valid() {
			return domain.Event{}, nil, domain.InvalidLockBitError{Bit: bit}
		}
		ev, err := domain.NewEvent(domain.EventLockSet, domain.PolicyPayload{Caller: caller, Lock: bit.String()})
		if err != nil {
			return domain.Event{}, nil, err
		}
		return ev, func() { r.locks |= bit }, nil
	})
}

// GrantRole adds account to a registrar role. Root only.
func (r *Registrar) GrantRole(ctx context.Context, caller domain.Address, role domain.Role, account domain.Address) error {
	began := time.Now()
	r.mu.Lock()
	err := func() error {
		if !r.roles.HasRole(domain.RoleAdmin, caller) {
			return domain.UnauthorizedError{Caller: caller, Role: domain.RoleAdmin}
		}
		if r.roles.HasRole(role, account) {
			return nil // idempotent no-op success
		}
		ev, err := domain.NewEvent(domain.EventRoleGranted, domain.RolePayload{Role: role, Account: account, Caller: caller})
		if err != nil {
			return err
		}
		if err := r.append(ctx, ev); err != nil {
			return err
		}
		_, err = r.roles.Grant(caller, role, account)
		return err
	}()
	r.mu.Unlock()
	r.metrics.Observe(ctx, "registrar.grant_role", err == nil, time.Since(began))
	return err
}

// RevokeRole removes account from a registrar role. Root only.
func (r *Registrar) RevokeRole(ctx context.Context, caller domain.Address, role domain.Role, account domain.Address) error {
	began := time.Now()
	r.mu.Lock()
	err := func() error {
		if !r.roles.HasRole(domain.RoleAdmin, caller) {
			return domain.UnauthorizedError{Caller: caller, Role: domain.RoleAdmin}
		}
		if !r.roles.HasRole(role, account) {
			return nil // idempotent no-op success
		}
		ev, err := domain.NewEvent(domain.EventRoleRevoked, domain.RolePayload{Role: role, Account: account, Caller: caller})
		if err != nil {
			return err
		}
		if err := r.append(ctx, ev); err != nil {
			return err
		}
		_, err = r.roles.Revoke(caller, role, account)
		return err
	}()
	r.mu.Unlock()
	r.metrics.Observe(ctx, "registrar.revoke_role", err == nil, time.Since(began))
	return err
}

// HasRole reports whether account holds role on this registrar.
func (r *Registrar) HasRole(role domain.Role, account domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles.HasRole(role, account)
}

// Withdraw moves collected funds to the caller. A zero amount withdraws the
// full balance. A payout whose event the journal refuses is pulled back; the
// call either happened and is journaled or moved nothing.
func (r *Registrar) Withdraw(ctx context.Context, caller domain.Address, amount uint64) error {
	began := time.Now()
	r.mu.Lock()
	err := func() error {
		if !r.roles.HasRole(domain.RoleAdmin, caller) {
			return domain.UnauthorizedError{Caller: caller, Role: domain.RoleAdmin}
		}
		balance := r.funds.Balance(r.addr)
		if amount == 0 {
			amount = balance
		}
		if amount > balance {
			return domain.TransferFailedError{From: r.addr, To: caller, Amount: amount}
		}
		ev, err := domain.NewEvent(domain.EventWithdrawal, domain.WithdrawalPayload{To: caller, Amount: amount})
		if err != nil {
			return err
		}
		if err := r.funds.Transfer(r.addr, caller, amount); err != nil {
			return domain.TransferFailedError{From: r.addr, To: caller, Amount: amount, Err: err}
		}
		if err := r.append(ctx, ev); err != nil {
			if rerr := r.funds.Transfer(caller, r.addr, amount); rerr != nil {
				return domain.TransferFailedError{From: caller, To: r.addr, Amount: amount, Err: rerr}
			}
			return err
		}
		return nil
	}()
	r.mu.Unlock()
	r.metrics.Observe(ctx, "registrar.withdraw", err == nil, time.Since(began))
	return err
}

// MintPrice returns the current unit price.
func (r *Registrar) MintPrice() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mintPrice
}

// MaxSupply returns the current cap; zero means unbounded.
func (r *Registrar) MaxSupply() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxSupply
}

// TotalMinted returns the number of units ever minted. Never decreases.
func (r *Registrar) TotalMinted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalMinted
}

// IsOpen reports whether minting is open.
func (r *Registrar) IsOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.open
}

// IsPublic reports the mode flag; meaningful only while open.
func (r *Registrar) IsPublic() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publicMode
}

// Locks returns the set lock bits.
func (r *Registrar) Locks() domain.LockBit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locks
}

// Balance returns the funds currently collected by the registrar.
func (r *Registrar) Balance() uint64 {
	return r.funds.Balance(r.addr)
}

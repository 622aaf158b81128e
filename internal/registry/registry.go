// Package registry implements the agent ledger: exclusive single ownership of
// integer-identified records, the transfer/approval protocol, sequential ID
// allocation, and per-agent plus per-collection metadata. Every mutating call
// runs against a transactional clone of the instance state and either commits
// in full, with its events appended to the journal, or has zero effect.
package registry

import (
	"context"
	"sync"
	"time"

	"agentcore/internal/telemetry"
	"agentcore/pkg/domain"
)

// Registry is one storage-isolated instance. Construct with New; the instance
// is inert until Initialize seeds its roles.
type Registry struct {
	addr    domain.Address
	journal domain.EventJournal
	metrics telemetry.Recorder
	nowFn   func() time.Time

	mu          sync.RWMutex
	state       state
	initialized bool
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithMetrics attaches an operation recorder.
func WithMetrics(rec telemetry.Recorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.nowFn = now
		}
	}
}

// New constructs an uninitialized instance identified by addr whose events are
// appended to journal.
func New(addr domain.Address, journal domain.EventJournal, opts ...Option) *Registry {
	r := &Registry{
		addr:    addr,
		journal: journal,
		metrics: telemetry.Nop{},
		nowFn:   func() time.Time { return time.Now().UTC() },
		state:   newState(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address returns the instance identity.
func (r *Registry) Address() domain.Address {
	return r.addr
}

// Initialize seeds admin with the root, registrar, and collection editor
// roles. It is one-shot: a second call fails, so an instance can never be
// re-initialized after deployment.
func (r *Registry) Initialize(ctx context.Context, admin domain.Address) error {
	if admin.IsZero() {
		return domain.ZeroAddressError{}
	}
	return r.run(ctx, "registry.initialize", func(tx *transaction) error {
		if r.initialized {
			return domain.AlreadyInitializedError{Instance: r.addr}
		}
		for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleRegistrar, domain.RoleCollectionEditor} {
			tx.state.roles.Seed(role, admin)
			if err := tx.emit(domain.EventRoleGranted, domain.RolePayload{Role: role, Account: admin, Caller: admin}); err != nil {
				return err
			}
		}
		tx.onCommit = func() { r.initialized = true }
		return nil
	})
}

// transaction accumulates state mutations and events for one call.
type transaction struct {
	state    state
	events   []domain.Event
	onCommit func()
}

func (tx *transaction) emit(typ domain.EventType, payload any) error {
	ev, err := domain.NewEvent(typ, payload)
	if err != nil {
		return err
	}
	tx.events = append(tx.events, ev)
	return nil
}

// run executes fn against a clone of the state. On success the events are
// stamped and appended to the journal, then the clone replaces the live
// state; any failure, including a journal append failure, discards the clone.
func (r *Registry) run(ctx context.Context, op string, fn func(tx *transaction) error) error {
	began := time.Now()
	r.mu.Lock()
	tx := &transaction{state: r.state.clone()}
	err := fn(tx)
	if err == nil {
		stamp := r.nowFn()
		for i := range tx.events {
			tx.events[i].Instance = r.addr
			tx.events[i].Timestamp = stamp
		}
		if err = r.journal.Append(ctx, tx.events...); err == nil {
			r.state = tx.state
			if tx.onCommit != nil {
				tx.onCommit()
			}
		}
	}
	r.mu.Unlock()
	r.metrics.Observe(ctx, op, err == nil, time.Since(began))
	return err
}

// OwnerOf returns the current owner of id.
func (r *Registry) OwnerOf(id domain.AgentID) (domain.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.state.owners[id]
	if !ok {
		return domain.ZeroAddress, domain.NotFoundError{ID: id}
	}
	return owner, nil
}

// BalanceOf reports whether owner holds id: exactly 1 or 0, never an error.
func (r *Registry) BalanceOf(owner domain.Address, id domain.AgentID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state.owners[id] == owner && !owner.IsZero() {
		return 1
	}
	return 0
}

// NextID returns the next ID the allocator will assign.
func (r *Registry) NextID() domain.AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.nextID
}

// GetMetadata returns the metadata value for (id, key). Reads never fail: an
// unallocated ID or unset key both yield an empty value.
func (r *Registry) GetMetadata(id domain.AgentID, key string) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.state.agentMeta[id]
	if !ok {
		return []byte{}
	}
	return meta.Get(key)
}

// GetCollectionMetadata returns the collection-scope value for key.
func (r *Registry) GetCollectionMetadata(key string) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.collection.Get(key)
}

// HasRole reports whether account holds role on this instance.
func (r *Registry) HasRole(role domain.Role, account domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.roles.HasRole(role, account)
}

// IsOperator reports whether operator holds a blanket grant from owner.
func (r *Registry) IsOperator(owner, operator domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.state.operators[operatorKey{owner: owner, operator: operator}]
	return ok
}

// Agent returns the exported record for id.
func (r *Registry) Agent(id domain.AgentID) (domain.AgentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.state.owners[id]
	if !ok {
		return domain.AgentRecord{}, domain.NotFoundError{ID: id}
	}
	return domain.AgentRecord{ID: id, Owner: owner, Metadata: r.state.agentMeta[id].Entries()}, nil
}

// Snapshot exports the complete instance state in deterministic order.
func (r *Registry) Snapshot() domain.RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.snapshot(r.addr)
}

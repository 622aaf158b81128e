// Package factory deploys registry and registrar instances, wires their
// roles, and enumerates what it has deployed. Each instance gets its own
// address and its own storage; nothing is shared between clones.
package factory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"agentcore/internal/ledger"
	"agentcore/internal/registrar"
	"agentcore/internal/registry"
	"agentcore/internal/telemetry"
	"agentcore/pkg/domain"
)

// Code identifiers feed the deterministic address derivation. Changing one
// changes every derived address, so they are versioned.
const (
	codeRegistry  = "agentcore/registry/v1"
	codeRegistrar = "agentcore/registrar/v1"
)

// ErrUnknownRegistry reports a registrar deployment against a registry this
// factory did not deploy.
var ErrUnknownRegistry = errors.New("registry not deployed by this factory")

// CollectionNameKey is the collection metadata key the factory writes the
// deployment name under.
const CollectionNameKey = "name"

// Factory deploys and tracks instances. All instances share the factory's
// journal and ledger; their state does not overlap.
type Factory struct {
	addr    domain.Address
	journal domain.EventJournal
	funds   ledger.Ledger
	metrics telemetry.Recorder
	nowFn   func() time.Time

	mu         sync.Mutex
	registries map[domain.Address]*registry.Registry
	registrars map[domain.Address]*registrar.Registrar
	salts      map[string]struct{}
	nonce      uint64
}

// Option configures a Factory at construction.
type Option func(*Factory)

// WithMetrics attaches an operation recorder. It is propagated to every
// instance the factory deploys.
func WithMetrics(rec telemetry.Recorder) Option {
	return func(f *Factory) {
		if rec != nil {
			f.metrics = rec
		}
	}
}

// WithClock overrides the event timestamp source for the factory and every
// instance it deploys.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) {
		if now != nil {
			f.nowFn = now
		}
	}
}

// New constructs a factory at addr writing to journal and settling payments
// through funds.
func New(addr domain.Address, journal domain.EventJournal, funds ledger.Ledger, opts ...Option) *Factory {
	f := &Factory{
		addr:       addr,
		journal:    journal,
		funds:      funds,
		metrics:    telemetry.Nop{},
		nowFn:      func() time.Time { return time.Now().UTC() },
		registries: make(map[domain.Address]*registry.Registry),
		registrars: make(map[domain.Address]*registrar.Registrar),
		salts:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Address returns the factory's own address.
func (f *Factory) Address() domain.Address {
	return f.addr
}

// instanceAddress derives an address from the code identifier, the salt, and
// the factory address. Same inputs, same address, on any factory restart.
func (f *Factory) instanceAddress(codeID, salt string) domain.Address {
	sum := sha256.Sum256([]byte(codeID + salt + string(f.addr)))
	return domain.Address("0x" + hex.EncodeToString(sum[:20]))
}

// consumeSalt reserves salt or fails if a prior deployment used it. Caller
// holds f.mu.
func (f *Factory) consumeSalt(salt string) error {
	if _, used := f.salts[salt]; used {
		return domain.SaltConsumedError{Salt: salt}
	}
	f.salts[salt] = struct{}{}
	return nil
}

// releaseSalt returns a reserved salt after a failed deployment. Caller
// holds f.mu.
func (f *Factory) releaseSalt(salt string) {
	delete(f.salts, salt)
}

// nextNonce reserves a factory-unique salt for non-deterministic
// deployments, skipping any value a caller already claimed. Caller holds
// f.mu.
func (f *Factory) nextNonce() string {
	for {
		f.nonce++
		salt := fmt.Sprintf("nonce#%d", f.nonce)
		if err := f.consumeSalt(salt); err == nil {
			return salt
		}
	}
}

// DeployRegistry deploys a registry administered by admin. name, when
// non-empty, is written into the collection metadata before the hand-off.
func (f *Factory) DeployRegistry(ctx context.Context, admin domain.Address, name string) (*registry.Registry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	salt := f.nextNonce()
	reg, err := f.deployRegistry(ctx, "factory.deploy_registry", admin, name, salt, false)
	if err != nil {
		f.releaseSalt(salt)
		return nil, err
	}
	return reg, nil
}

// DeployRegistryDeterministic is DeployRegistry at a salt-derived address. A
// reused salt fails with SaltConsumedError before any state changes; a
// deployment that fails leaves the salt free for a retry.
func (f *Factory) DeployRegistryDeterministic(ctx context.Context, admin domain.Address, name, salt string) (*registry.Registry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeSalt(salt); err != nil {
		f.metrics.Observe(ctx, "factory.deploy_registry", false, 0)
		return nil, err
	}
	reg, err := f.deployRegistry(ctx, "factory.deploy_registry", admin, name, salt, false)
	if err != nil {
		f.releaseSalt(salt)
		return nil, err
	}
	return reg, nil
}

// DeployRegistrar deploys a registrar bound to a registry this factory
// deployed. The caller is responsible for granting the registrar the
// registrar role on the registry; only the paired Deploy does that wiring.
func (f *Factory) DeployRegistrar(ctx context.Context, registryAddr, admin domain.Address, mintPrice, maxSupply uint64) (*registrar.Registrar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registries[registryAddr]
	if !ok {
		f.metrics.Observe(ctx, "factory.deploy_registrar", false, 0)
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegistry, registryAddr)
	}
	salt := f.nextNonce()
	rar, err := f.deployRegistrar(ctx, "factory.deploy_registrar", reg, admin, mintPrice, maxSupply, salt)
	if err != nil {
		f.releaseSalt(salt)
		return nil, err
	}
	return rar, nil
}

// DeployRegistrarDeterministic is DeployRegistrar at a salt-derived address.
func (f *Factory) DeployRegistrarDeterministic(ctx context.Context, registryAddr, admin domain.Address, mintPrice, maxSupply uint64, salt string) (*registrar.Registrar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registries[registryAddr]
	if !ok {
		f.metrics.Observe(ctx, "factory.deploy_registrar", false, 0)
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegistry, registryAddr)
	}
	if err := f.consumeSalt(salt); err != nil {
		f.metrics.Observe(ctx, "factory.deploy_registrar", false, 0)
		return nil, err
	}
	rar, err := f.deployRegistrar(ctx, "factory.deploy_registrar", reg, admin, mintPrice, maxSupply, salt)
	if err != nil {
		f.releaseSalt(salt)
		return nil, err
	}
	return rar, nil
}

// Deploy deploys a registry and a registrar as a wired pair: the registrar
// holds the registrar role on the registry, admin holds every role on both,
// and the factory ends the call holding nothing.
func (f *Factory) Deploy(ctx context.Context, admin domain.Address, mintPrice, maxSupply uint64, name string) (*registry.Registry, *registrar.Registrar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deployPair(ctx, admin, mintPrice, maxSupply, name, f.nextNonce())
}

// DeployDeterministic is Deploy at salt-derived addresses. One salt covers
// the pair; both addresses derive from it through their code identifiers.
func (f *Factory) DeployDeterministic(ctx context.Context, admin domain.Address, mintPrice, maxSupply uint64, name, salt string) (*registry.Registry, *registrar.Registrar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeSalt(salt); err != nil {
		f.metrics.Observe(ctx, "factory.deploy", false, 0)
		return nil, nil, err
	}
	return f.deployPair(ctx, admin, mintPrice, maxSupply, name, salt)
}

func (f *Factory) deployPair(ctx context.Context, admin domain.Address, mintPrice, maxSupply uint64, name, salt string) (*registry.Registry, *registrar.Registrar, error) {
	reg, err := f.deployRegistry(ctx, "factory.deploy", admin, name, salt, true)
	if err != nil {
		f.releaseSalt(salt)
		return nil, nil, err
	}
	rar, err := f.deployRegistrar(ctx, "factory.deploy", reg, admin, mintPrice, maxSupply, salt)
	if err != nil {
		// The registry half is live at its salt-derived address; the salt
		// stays consumed.
		return nil, nil, err
	}
	return reg, rar, nil
}

// deployRegistry builds, initializes, and hands off one registry. The
// factory initializes as the transient admin so it can write the name,
// transfers every role to admin, and drops its own. In a paired deploy the
// drop is deferred to deployRegistrar, which still needs the registry admin
// role to wire the registrar in. Caller holds f.mu.
func (f *Factory) deployRegistry(ctx context.Context, op string, admin domain.Address, name, salt string, retainForWiring bool) (*registry.Registry, error) {
	began := time.Now()
	reg, err := func() (*registry.Registry, error) {
		if admin.IsZero() {
			return nil, domain.ZeroAddressError{}
		}
		addr := f.instanceAddress(codeRegistry, salt)
		if _, taken := f.registries[addr]; taken {
			return nil, domain.SaltConsumedError{Salt: salt}
		}
		reg := registry.New(addr, f.journal, registry.WithMetrics(f.metrics), registry.WithClock(f.nowFn))
		if err := reg.Initialize(ctx, f.addr); err != nil {
			return nil, err
		}
		if name != "" {
			if err := reg.SetCollectionMetadata(ctx, f.addr, CollectionNameKey, []byte(name)); err != nil {
				return nil, err
			}
		}
		for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleRegistrar, domain.RoleCollectionEditor} {
			if err := reg.GrantRole(ctx, f.addr, role, admin); err != nil {
				return nil, err
			}
		}
		if !retainForWiring {
			if err := f.relinquishRegistry(ctx, reg); err != nil {
				return nil, err
			}
		}
		ev, err := domain.NewEvent(domain.EventRegistryDeployed, domain.DeployPayload{Instance: addr, Admin: admin, Salt: salt})
		if err != nil {
			return nil, err
		}
		ev.Instance = f.addr
		ev.Timestamp = f.nowFn()
		if err := f.journal.Append(ctx, ev); err != nil {
			return nil, err
		}
		f.registries[addr] = reg
		return reg, nil
	}()
	f.metrics.Observe(ctx, op, err == nil, time.Since(began))
	return reg, err
}

// deployRegistrar builds, initializes, and hands off one registrar bound to
// reg. When the factory still holds the registry admin role (paired deploy)
// it wires the registrar role and then relinquishes everything it holds on
// both instances. Caller holds f.mu.
func (f *Factory) deployRegistrar(ctx context.Context, op string, reg *registry.Registry, admin domain.Address, mintPrice, maxSupply uint64, salt string) (*registrar.Registrar, error) {
	began := time.Now()
	rar, err := func() (*registrar.Registrar, error) {
		if admin.IsZero() {
			return nil, domain.ZeroAddressError{}
		}
		addr := f.instanceAddress(codeRegistrar, salt)
		if _, taken := f.registrars[addr]; taken {
			return nil, domain.SaltConsumedError{Salt: salt}
		}
		rar := registrar.New(addr, reg, f.funds, f.journal, mintPrice, maxSupply,
			registrar.WithMetrics(f.metrics), registrar.WithClock(f.nowFn))
		if err := rar.Initialize(ctx, f.addr); err != nil {
			return nil, err
		}
		if err := rar.GrantRole(ctx, f.addr, domain.RoleAdmin, admin); err != nil {
			return nil, err
		}
		if reg.HasRole(domain.RoleAdmin, f.addr) {
			if err := reg.GrantRole(ctx, f.addr, domain.RoleRegistrar, addr); err != nil {
				return nil, err
			}
			if err := f.relinquishRegistry(ctx, reg); err != nil {
				return nil, err
			}
		}
		if err := rar.RevokeRole(ctx, f.addr, domain.RoleAdmin, f.addr); err != nil {
			return nil, err
		}
		ev, err := domain.NewEvent(domain.EventRegistrarDeployed, domain.DeployPayload{Instance: addr, Admin: admin, Salt: salt})
		if err != nil {
			return nil, err
		}
		ev.Instance = f.addr
		ev.Timestamp = f.nowFn()
		if err := f.journal.Append(ctx, ev); err != nil {
			return nil, err
		}
		f.registrars[addr] = rar
		return rar, nil
	}()
	f.metrics.Observe(ctx, op, err == nil, time.Since(began))
	return rar, err
}

// relinquishRegistry drops every transient role the factory holds on reg.
// The admin role goes last; it authorizes the other revocations.
func (f *Factory) relinquishRegistry(ctx context.Context, reg *registry.Registry) error {
	for _, role := range []domain.Role{domain.RoleRegistrar, domain.RoleCollectionEditor, domain.RoleAdmin} {
		if err := reg.RevokeRole(ctx, f.addr, role, f.addr); err != nil {
			return err
		}
	}
	return nil
}

// Registries enumerates deployed registry addresses in order.
func (f *Factory) Registries() []domain.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Address, 0, len(f.registries))
	for addr := range f.registries {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registrars enumerates deployed registrar addresses in order.
func (f *Factory) Registrars() []domain.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Address, 0, len(f.registrars))
	for addr := range f.registrars {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsInstance reports whether addr is an instance this factory deployed.
func (f *Factory) IsInstance(addr domain.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.registries[addr]; ok {
		return true
	}
	_, ok := f.registrars[addr]
	return ok
}

// Registry returns a deployed registry by address.
func (f *Factory) Registry(addr domain.Address) (*registry.Registry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registries[addr]
	return reg, ok
}

// Registrar returns a deployed registrar by address.
func (f *Factory) Registrar(addr domain.Address) (*registrar.Registrar, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rar, ok := f.registrars[addr]
	return rar, ok
}

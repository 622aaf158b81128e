package registrar

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"agentcore/internal/journal/memory"
	"agentcore/internal/ledger"
	"agentcore/internal/registry"
	"agentcore/pkg/domain"
)

const (
	admin  = domain.Address("0xadmin")
	minter = domain.Address("0xminter")
	alice  = domain.Address("0xalice")
	bob    = domain.Address("0xbob")
	carol  = domain.Address("0xcarol")
)

type fixture struct {
	registry  *registry.Registry
	registrar *Registrar
	funds     *ledger.Memory
	journal   *memory.Journal
}

func deploy(t *testing.T, price, maxSupply uint64) fixture {
	t.Helper()
	ctx := context.Background()
	j := memory.New()
	funds := ledger.NewMemory()

	reg := registry.New("0xregistry", j)
	if err := reg.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	rar := New("0xregistrar", reg, funds, j, price, maxSupply)
	if err := rar.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize registrar: %v", err)
	}
	if err := reg.GrantRole(ctx, admin, domain.RoleRegistrar, rar.Address()); err != nil {
		t.Fatalf("wire registrar role: %v", err)
	}
	return fixture{registry: reg, registrar: rar, funds: funds, journal: j}
}

func TestMintRequiresOpen(t *testing.T) {
	f := deploy(t, 0, 0)
	_, err := f.registrar.Mint(context.Background(), alice, 0)
	if !errors.As(err, new(domain.NotOpenError)) {
		t.Fatalf("expected NotOpenError, got %v", err)
	}
	if f.registrar.TotalMinted() != 0 {
		t.Fatal("failed mint advanced totalMinted")
	}
}

func TestSupplyCapScenario(t *testing.T) {
	// price=1, maxSupply=3, open public: three mints from distinct callers
	// succeed with IDs 0,1,2; the fourth fails SupplyExceeded(1, 0).
	f := deploy(t, 1, 3)
	ctx := context.Background()
	if err := f.registrar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	callers := []domain.Address{alice, bob, carol}
	for i, caller := range callers {
		f.funds.Credit(caller, 10)
		id, err := f.registrar.Mint(ctx, caller, 1)
		if err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
		if id != domain.AgentID(i) {
			t.Fatalf("expected ID %d, got %d", i, id)
		}
		owner, err := f.registry.OwnerOf(id)
		if err != nil || owner != caller {
			t.Fatalf("ownerOf(%d): %v %v", id, owner, err)
		}
	}

	f.funds.Credit(alice, 10)
	_, err := f.registrar.Mint(ctx, alice, 1)
	var exceeded domain.SupplyExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected SupplyExceededError, got %v", err)
	}
	if exceeded.Requested != 1 || exceeded.Remaining != 0 {
		t.Fatalf("expected (1, 0), got %+v", exceeded)
	}
	if f.registrar.TotalMinted() != 3 {
		t.Fatalf("totalMinted=%d", f.registrar.TotalMinted())
	}
}

func TestPaymentExactness(t *testing.T) {
	f := deploy(t, 5, 0)
	ctx := context.Background()
	if err := f.registrar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.funds.Credit(alice, 100)

	// Attached above required: the net decrease is exactly price*count.
	if _, err := f.registrar.MintBatch(ctx, alice, []domain.Address{alice, alice}, nil, 50); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := f.funds.Balance(alice); got != 90 {
		t.Fatalf("expected net charge of 10, balance %d", got)
	}
	if got := f.registrar.Balance(); got != 10 {
		t.Fatalf("expected registrar to collect 10, got %d", got)
	}

	// Attached below required: no state change at all.
	_, err := f.registrar.Mint(ctx, alice, 4)
	var short domain.InsufficientPaymentError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientPaymentError, got %v", err)
	}
	if short.Attached != 4 || short.Required != 5 {
		t.Fatalf("unexpected diagnostics: %+v", short)
	}
	if f.registrar.TotalMinted() != 2 || f.funds.Balance(alice) != 90 {
		t.Fatal("failed mint had side effects")
	}
}

func TestPrivateModeRequiresMinterRole(t *testing.T) {
	f := deploy(t, 0, 0)
	ctx := context.Background()
	if err := f.registrar.OpenMinting(ctx, admin, false); err != nil {
		t.Fatalf("open private: %v", err)
	}
	_, err := f.registrar.Mint(ctx, alice, 0)
	var notMinter domain.NotMinterError
	if !errors.As(err, &notMinter) {
		t.Fatalf("expected NotMinterError, got %v", err)
	}
	if err := f.registrar.GrantRole(ctx, admin, domain.RoleMinter, minter); err != nil {
		t.Fatalf("grant minter: %v", err)
	}
	if _, err := f.registrar.Mint(ctx, minter, 0); err != nil {
		t.Fatalf("minter mint: %v", err)
	}
}

func TestUnboundedSupply(t *testing.T) {
	f := deploy(t, 0, 0)
	ctx := context.Background()
	if err := f.registrar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 1000; i++ {
		if _, err := f.registrar.Mint(ctx, alice, 0); err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
	}
	if f.registrar.TotalMinted() != 1000 {
		t.Fatalf("totalMinted=%d", f.registrar.TotalMinted())
	}
}

func TestLockBitsAreIndependentAndPermanent(t *testing.T) {
	f := deploy(t, 1, 10)
	ctx := context.Background()

	err := f.registrar.SetLockBit(ctx, admin, domain.LockBit(0b101))
	if !errors.As(err, new(domain.InvalidLockBitError)) {
		t.Fatalf("expected InvalidLockBitError, got %v", err)
	}

	if err := f.registrar.SetLockBit(ctx, admin, domain.LockMintPrice); err != nil {
		t.Fatalf("set lock: %v", err)
	}
	err = f.registrar.SetMintPrice(ctx, admin, 2)
	var locked domain.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if locked.Bit != domain.LockMintPrice {
		t.Fatalf("unexpected bit: %v", locked.Bit)
	}
	// Sibling setter is unaffected.
	if err := f.registrar.SetMaxSupply(ctx, admin, 20); err != nil {
		t.Fatalf("setMaxSupply after price lock: %v", err)
	}

	if err := f.registrar.SetLockBit(ctx, admin, domain.LockOpenClose); err != nil {
		t.Fatalf("set open/close lock: %v", err)
	}
	if err := f.registrar.OpenMinting(ctx, admin, true); !errors.As(err, new(domain.LockedError)) {
		t.Fatalf("expected LockedError on open, got %v", err)
	}
	if err := f.registrar.CloseMinting(ctx, admin); !errors.As(err, new(domain.LockedError)) {
		t.Fatalf("expected LockedError on close, got %v", err)
	}
}

func TestSetMaxSupplyBelowMinted(t *testing.T) {
	f := deploy(t, 0, 0)
	ctx := context.Background()
	if err := f.registrar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.registrar.Mint(ctx, alice, 0); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}
	err := f.registrar.SetMaxSupply(ctx, admin, 3)
	var tooLow domain.SupplyTooLowError
	if !errors.As(err, &tooLow) {
		t.Fatalf("expected SupplyTooLowError, got %v", err)
	}
	if tooLow.Max != 3 || tooLow.Minted != 5 {
		t.Fatalf("unexpected diagnostics: %+v", tooLow)
	}
	// Zero stays legal: it means unbounded, not "below minted".
	if err := f.registrar.SetMaxSupply(ctx, admin, 0); err != nil {
		t.Fatalf("setMaxSupply(0): %v", err)
	}
}

func TestAdminGates(t *testing.T) {
	f := deploy(t, 1, 0)
	ctx := context.Background()
	for _, call := range []func() error{
		func() error { return f.registrar.OpenMinting(ctx, alice, true) },
		func() error { return f.registrar.CloseMinting(ctx, alice) },
		func() error { return f.registrar.SetMintPrice(ctx, alice, 2) },
		func() error { return f.registrar.SetMaxSupply(ctx, alice, 2) },
		func() error { return f.registrar.SetLockBit(ctx, alice, domain.LockMintPrice) },
		func() error { return f.registrar.Withdraw(ctx, alice, 0) },
		func() error { return f.registrar.GrantRole(ctx, alice, domain.RoleMinter, bob) },
	} {
		if err := call(); !errors.As(err, new(domain.UnauthorizedError)) {
			t.Fatalf("expected UnauthorizedError, got %v", err)
		}
	}
}

func TestPriceOverflowDetected(t *testing.T) {
	f := deploy(t, ^uint64(0)/2+1, 0)
	ctx := context.Background()
	if err := f.registrar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err := f.registrar.MintBatch(ctx, alice, []domain.Address{alice, alice}, nil, ^uint64(0))
	if !errors.As(err, new(domain.PriceOverflowError)) {
		t.Fatalf("expected PriceOverflowError, got %v", err)
	}
}

func TestMintNumbersRunSequentially(t *testing.T) {
	f := deploy(t, 0, 0)
	ctx := context.Background()
	if err := f.registrar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.registrar.MintBatch(ctx, alice, []domain.Address{alice, bob}, nil, 0); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if _, err := f.registrar.Mint(ctx, alice, 0); err != nil {
		t.Fatalf("mint: %v", err)
	}
	events, _ := f.journal.List(ctx, f.registrar.Address())
	var numbers []uint64
	for _, ev := range events {
		if ev.Type != domain.EventMinted {
			continue
		}
		var p domain.MintPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		numbers = append(numbers, p.MintNumber)
	}
	if len(numbers) != 3 {
		t.Fatalf("expected 3 mint events, got %d", len(numbers))
	}
	for i, n := range numbers {
		if n != uint64(i+1) {
			t.Fatalf("mint number %d at position %d", n, i)
		}
	}
}

func TestRegistryFailureRefundsCharge(t *testing.T) {
	// Deploy without wiring the registrar into the registry's create role:
	// the inner register fails and the charge must come back.
	ctx := context.Background()
	j := memory.New()
	funds := ledger.NewMemory()
	reg := registry.New("0xregistry", j)
	if err := reg.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	rar := New("0xregistrar", reg, funds, j, 5, 0)
	if err := rar.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize registrar: %v", err)
	}
	if err := rar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	funds.Credit(alice, 20)
	_, err := rar.Mint(ctx, alice, 5)
	if !errors.As(err, new(domain.UnauthorizedError)) {
		t.Fatalf("expected inner UnauthorizedError to propagate, got %v", err)
	}
	if got := funds.Balance(alice); got != 20 {
		t.Fatalf("charge not refunded, balance %d", got)
	}
	if rar.TotalMinted() != 0 {
		t.Fatal("failed mint advanced totalMinted")
	}
}

// faultyJournal rejects events of one type and delegates the rest.
type faultyJournal struct {
	inner *memory.Journal
	fail  domain.EventType
	err   error
}

func (j *faultyJournal) Append(ctx context.Context, events ...domain.Event) error {
	for _, ev := range events {
		if ev.Type == j.fail {
			return j.err
		}
	}
	return j.inner.Append(ctx, events...)
}

func (j *faultyJournal) List(ctx context.Context, instance domain.Address) ([]domain.Event, error) {
	return j.inner.List(ctx, instance)
}

func (j *faultyJournal) Close() error { return j.inner.Close() }

func TestJournalFailureRefundsCharge(t *testing.T) {
	// The registrar journals into a backend that rejects mint events. The
	// charge must come back and the counter must not advance.
	ctx := context.Background()
	down := errors.New("journal down")
	fj := &faultyJournal{inner: memory.New(), fail: domain.EventMinted, err: down}
	funds := ledger.NewMemory()

	reg := registry.New("0xregistry", memory.New())
	if err := reg.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	rar := New("0xregistrar", reg, funds, fj, 5, 0)
	if err := rar.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize registrar: %v", err)
	}
	if err := reg.GrantRole(ctx, admin, domain.RoleRegistrar, rar.Address()); err != nil {
		t.Fatalf("wire registrar role: %v", err)
	}
	if err := rar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}

	funds.Credit(alice, 100)
	_, err := rar.Mint(ctx, alice, 5)
	if !errors.Is(err, down) {
		t.Fatalf("expected journal error to propagate, got %v", err)
	}
	if got := funds.Balance(alice); got != 100 {
		t.Fatalf("charge not refunded, balance %d", got)
	}
	if got := rar.Balance(); got != 0 {
		t.Fatalf("registrar kept %d from a failed mint", got)
	}
	if rar.TotalMinted() != 0 {
		t.Fatal("failed mint advanced totalMinted")
	}
}

func TestWithdrawJournalFailureReversesPayout(t *testing.T) {
	ctx := context.Background()
	down := errors.New("journal down")
	fj := &faultyJournal{inner: memory.New(), fail: domain.EventWithdrawal, err: down}
	funds := ledger.NewMemory()

	reg := registry.New("0xregistry", memory.New())
	if err := reg.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	rar := New("0xregistrar", reg, funds, fj, 0, 0)
	if err := rar.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize registrar: %v", err)
	}
	funds.Credit(rar.Address(), 30)

	err := rar.Withdraw(ctx, admin, 10)
	if !errors.Is(err, down) {
		t.Fatalf("expected journal error to propagate, got %v", err)
	}
	if got := funds.Balance(admin); got != 0 {
		t.Fatalf("payout not reversed, admin balance %d", got)
	}
	if got := rar.Balance(); got != 30 {
		t.Fatalf("registrar balance %d after reversed withdrawal", got)
	}
}

func TestWithdraw(t *testing.T) {
	f := deploy(t, 10, 0)
	ctx := context.Background()
	if err := f.registrar.OpenMinting(ctx, admin, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.funds.Credit(alice, 100)
	if _, err := f.registrar.MintBatch(ctx, alice, []domain.Address{alice, alice, alice}, nil, 30); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := f.registrar.Withdraw(ctx, admin, 31)
	if !errors.As(err, new(domain.TransferFailedError)) {
		t.Fatalf("expected TransferFailedError for over-withdrawal, got %v", err)
	}

	if err := f.registrar.Withdraw(ctx, admin, 10); err != nil {
		t.Fatalf("partial withdraw: %v", err)
	}
	if got := f.funds.Balance(admin); got != 10 {
		t.Fatalf("admin balance %d", got)
	}
	// Zero amount drains the rest.
	if err := f.registrar.Withdraw(ctx, admin, 0); err != nil {
		t.Fatalf("full withdraw: %v", err)
	}
	if got := f.registrar.Balance(); got != 0 {
		t.Fatalf("registrar retained %d", got)
	}
	if got := f.funds.Balance(admin); got != 30 {
		t.Fatalf("admin balance %d", got)
	}
}

func TestInitializeIsOneShot(t *testing.T) {
	f := deploy(t, 0, 0)
	err := f.registrar.Initialize(context.Background(), alice)
	if !errors.As(err, new(domain.AlreadyInitializedError)) {
		t.Fatalf("expected AlreadyInitializedError, got %v", err)
	}
	if f.registrar.HasRole(domain.RoleAdmin, alice) {
		t.Fatal("failed re-initialization granted roles")
	}
}

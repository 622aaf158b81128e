package registrar

import (
	"context"
	"time"

	"agentcore/pkg/domain"
)

// Mint mints one agent to the caller with no metadata.
func (r *Registrar) Mint(ctx context.Context, caller domain.Address, attached uint64) (domain.AgentID, error) {
	ids, err := r.mint(ctx, "registrar.mint", caller, []domain.Address{caller}, nil, attached)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// MintTo mints one agent to recipient with no metadata.
func (r *Registrar) MintTo(ctx context.Context, caller, recipient domain.Address, attached uint64) (domain.AgentID, error) {
	ids, err := r.mint(ctx, "registrar.mint_to", caller, []domain.Address{recipient}, nil, attached)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// MintWithMetadata mints one agent to recipient with the given metadata.
func (r *Registrar) MintWithMetadata(ctx context.Context, caller, recipient domain.Address, entries []domain.MetadataEntry, attached uint64) (domain.AgentID, error) {
	ids, err := r.mint(ctx, "registrar.mint_with_metadata", caller, []domain.Address{recipient}, [][]domain.MetadataEntry{entries}, attached)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// MintBatch mints one agent per recipient, in order. entries may be nil for a
// metadata-free batch; otherwise its length must match recipients.
func (r *Registrar) MintBatch(ctx context.Context, caller domain.Address, recipients []domain.Address, entries [][]domain.MetadataEntry, attached uint64) ([]domain.AgentID, error) {
	return r.mint(ctx, "registrar.mint_batch", caller, recipients, entries, attached)
}

// mint is the common path. Gate order is fixed and observable: open, mode,
// payment arithmetic, attached value, supply, then the value movement, then
// registration, then the journal write. Any failure past the charge refunds
// it, so a failed call leaves the payment side untouched.
func (r *Registrar) mint(ctx context.Context, op string, caller domain.Address, recipients []domain.Address, entries [][]domain.MetadataEntry, attached uint64) ([]domain.AgentID, error) {
	began := time.Now()
	ids, err := r.mintLocked(ctx, caller, recipients, entries, attached)
	r.metrics.Observe(ctx, op, err == nil, time.Since(began))
	return ids, err
}

func (r *Registrar) mintLocked(ctx context.Context, caller domain.Address, recipients []domain.Address, entries [][]domain.MetadataEntry, attached uint64) ([]domain.AgentID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return nil, domain.NotOpenError{}
	}
	if !r.publicMode && !r.roles.HasRole(domain.RoleMinter, caller) {
		return nil, domain.NotMinterError{Caller: caller}
	}
	count := uint64(len(recipients))
	if count == 0 {
		return nil, domain.InvalidAmountError{Amount: 0}
	}
	if entries == nil {
		entries = make([][]domain.MetadataEntry, count)
	}
	if uint64(len(entries)) != count {
		return nil, domain.LengthMismatchError{Owners: len(recipients), Entries: len(entries)}
	}

	required := r.mintPrice * count
	if r.mintPrice != 0 && required/r.mintPrice != count {
		return nil, domain.PriceOverflowError{Price: r.mintPrice, Count: count}
	}
	if attached < required {
		return nil, domain.InsufficientPaymentError{Attached: attached, Required: required}
	}
	if r.maxSupply != 0 && r.totalMinted+count > r.maxSupply {
		return nil, domain.SupplyExceededError{Requested: count, Remaining: r.maxSupply - r.totalMinted}
	}

	// Charge exactly the required payment; the attached excess never leaves
	// the payer, which nets out the same as escrowing and refunding it.
	if err := r.funds.Transfer(caller, r.addr, required); err != nil {
		return nil, domain.TransferFailedError{From: caller, To: r.addr, Amount: required, Err: err}
	}

	ids, err := r.registry.RegisterBatch(ctx, r.addr, recipients, entries)
	if err != nil {
		// The registry call had zero effect; undo the charge so this call
		// has none either.
		return nil, r.refund(caller, required, err)
	}

	events := make([]domain.Event, 0, len(ids))
	for i, id := range ids {
		ev, err := domain.NewEvent(domain.EventMinted, domain.MintPayload{
			ID:         id,
			MintNumber: r.totalMinted + uint64(i) + 1,
			Payer:      caller,
			Recipient:  recipients[i],
			Price:      r.mintPrice,
		})
		if err != nil {
			return nil, r.refund(caller, required, err)
		}
		events = append(events, ev)
	}
	if err := r.append(ctx, events...); err != nil {
		// The registered agents cannot be unwound from here; the charge and
		// the counter still follow the journal.
		return nil, r.refund(caller, required, err)
	}
	r.totalMinted += count
	return ids, nil
}

// refund sends a failed mint's charge back to the payer and returns cause.
// A refund that itself fails reports the stuck movement instead.
func (r *Registrar) refund(payer domain.Address, amount uint64, cause error) error {
	if err := r.funds.Transfer(r.addr, payer, amount); err != nil {
		return domain.TransferFailedError{From: r.addr, To: payer, Amount: amount, Err: err}
	}
	return cause
}

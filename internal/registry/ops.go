package registry

import (
	"context"

	"agentcore/internal/metastore"
	"agentcore/pkg/domain"
)

// Register allocates the next ID for owner and writes entries into the new
// agent's metadata scope in input order; later duplicate keys overwrite
// earlier ones. The caller must hold the registrar role.
func (r *Registry) Register(ctx context.Context, caller, owner domain.Address, entries []domain.MetadataEntry) (domain.AgentID, error) {
	var id domain.AgentID
	err := r.run(ctx, "registry.register", func(tx *transaction) error {
		if !tx.state.roles.HasRole(domain.RoleRegistrar, caller) {
			return domain.UnauthorizedError{Caller: caller, Role: domain.RoleRegistrar}
		}
		var err error
		id, err = tx.register(owner, entries)
		return err
	})
	return id, err
}

// RegisterAgent is the convenience overload over the three well-known keys.
// Its effects are identical to Register with those entries spelled out.
func (r *Registry) RegisterAgent(ctx context.Context, caller, owner domain.Address, endpointType, endpoint, agentAccount string) (domain.AgentID, error) {
	return r.Register(ctx, caller, owner, []domain.MetadataEntry{
		{Key: domain.MetadataKeyEndpointType, Value: []byte(endpointType)},
		{Key: domain.MetadataKeyEndpoint, Value: []byte(endpoint)},
		{Key: domain.MetadataKeyAgentAccount, Value: []byte(agentAccount)},
	})
}

// RegisterBatch registers one agent per (owner, entries) pair in order, each
// consuming the next allocator value. The whole batch commits or none of it
// does.
func (r *Registry) RegisterBatch(ctx context.Context, caller domain.Address, owners []domain.Address, entries [][]domain.MetadataEntry) ([]domain.AgentID, error) {
	if len(owners) != len(entries) {
		return nil, domain.LengthMismatchError{Owners: len(owners), Entries: len(entries)}
	}
	ids := make([]domain.AgentID, 0, len(owners))
	err := r.run(ctx, "registry.register_batch", func(tx *transaction) error {
		if !tx.state.roles.HasRole(domain.RoleRegistrar, caller) {
			return domain.UnauthorizedError{Caller: caller, Role: domain.RoleRegistrar}
		}
		for i, owner := range owners {
			id, err := tx.register(owner, entries[i])
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (tx *transaction) register(owner domain.Address, entries []domain.MetadataEntry) (domain.AgentID, error) {
	if owner.IsZero() {
		return 0, domain.ZeroAddressError{}
	}
	id := tx.state.nextID
	tx.state.nextID++
	tx.state.owners[id] = owner

	meta := metastore.New()
	created := domain.AgentRegisteredPayload{ID: id, Owner: owner}
	for _, entry := range entries {
		meta.Set(entry.Key, entry.Value)
		switch entry.Key {
		case domain.MetadataKeyEndpointType:
			created.EndpointType = string(entry.Value)
		case domain.MetadataKeyEndpoint:
			created.Endpoint = string(entry.Value)
		case domain.MetadataKeyAgentAccount:
			created.AgentAccount = string(entry.Value)
		}
	}
	tx.state.agentMeta[id] = meta

	if err := tx.emit(domain.EventAgentRegistered, created); err != nil {
		return 0, err
	}
	for _, entry := range entries {
		idCopy := id
		if err := tx.emit(domain.EventMetadataSet, domain.MetadataPayload{ID: &idCopy, Key: entry.Key, Value: entry.Value}); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Transfer reassigns ownership of id from the caller to to. Amount must be
// exactly the single unit; the recipient may not be the zero address.
func (r *Registry) Transfer(ctx context.Context, caller, to domain.Address, id domain.AgentID, amount uint64) error {
	return r.run(ctx, "registry.transfer", func(tx *transaction) error {
		if amount != 1 {
			return domain.InvalidAmountError{Amount: amount}
		}
		if to.IsZero() {
			return domain.ZeroAddressError{}
		}
		if tx.state.owners[id] != caller || caller.IsZero() {
			return domain.InsufficientBalanceError{Holder: caller, ID: id}
		}
		tx.state.owners[id] = to
		return tx.emit(domain.EventTransfer, domain.TransferPayload{From: caller, To: to, ID: id, Caller: caller})
	})
}

// TransferFrom moves id from from to to on behalf of the caller. The caller
// must be from itself, an operator for from, or hold a live single-use
// approval. The approval is consumed inside the transaction; a transfer
// that then fails rolls it back with the rest of the state.
func (r *Registry) TransferFrom(ctx context.Context, caller, from, to domain.Address, id domain.AgentID, amount uint64) error {
	return r.run(ctx, "registry.transfer_from", func(tx *transaction) error {
		if amount != 1 {
			return domain.InvalidAmountError{Amount: amount}
		}
		if to.IsZero() {
			return domain.ZeroAddressError{}
		}
		if caller != from && !tx.authorize(from, caller, id) {
			return domain.InsufficientPermissionError{Caller: caller, ID: id}
		}
		if tx.state.owners[id] != from || from.IsZero() {
			return domain.InsufficientBalanceError{Holder: from, ID: id}
		}
		tx.state.owners[id] = to
		return tx.emit(domain.EventTransfer, domain.TransferPayload{From: from, To: to, ID: id, Caller: caller})
	})
}

// authorize checks the operator relation, then the single-use approval,
// consuming the approval when that is the path taken.
func (tx *transaction) authorize(from, caller domain.Address, id domain.AgentID) bool {
	if _, ok := tx.state.operators[operatorKey{owner: from, operator: caller}]; ok {
		return true
	}
	key := approvalKey{owner: from, spender: caller, id: id}
	if _, ok := tx.state.approvals[key]; ok {
		delete(tx.state.approvals, key)
		return true
	}
	return false
}

// Approve sets or clears a single-use transfer approval from the caller to
// spender for id.
func (r *Registry) Approve(ctx context.Context, caller, spender domain.Address, id domain.AgentID, grant bool) error {
	return r.run(ctx, "registry.approve", func(tx *transaction) error {
		key := approvalKey{owner: caller, spender: spender, id: id}
		if grant {
			tx.state.approvals[key] = struct{}{}
		} else {
			delete(tx.state.approvals, key)
		}
		return tx.emit(domain.EventApproval, domain.ApprovalPayload{Owner: caller, Spender: spender, ID: id, Approved: grant})
	})
}

// SetOperator grants or revokes blanket authorization over every current and
// future agent the caller owns.
func (r *Registry) SetOperator(ctx context.Context, caller, operator domain.Address, approved bool) error {
	return r.run(ctx, "registry.set_operator", func(tx *transaction) error {
		key := operatorKey{owner: caller, operator: operator}
		if approved {
			tx.state.operators[key] = struct{}{}
		} else {
			delete(tx.state.operators, key)
		}
		return tx.emit(domain.EventOperatorSet, domain.OperatorPayload{Owner: caller, Operator: operator, Approved: approved})
	})
}

// SetMetadata writes (key, value) into the agent's metadata scope. Only the
// current owner or one of its operators may write; a single-use approval is
// transfer-only and does not authorize metadata writes.
func (r *Registry) SetMetadata(ctx context.Context, caller domain.Address, id domain.AgentID, key string, value []byte) error {
	return r.run(ctx, "registry.set_metadata", func(tx *transaction) error {
		owner, ok := tx.state.owners[id]
		if !ok {
			return domain.NotFoundError{ID: id}
		}
		if caller != owner {
			if _, op := tx.state.operators[operatorKey{owner: owner, operator: caller}]; !op {
				return domain.InsufficientPermissionError{Caller: caller, ID: id}
			}
		}
		meta := tx.state.agentMeta[id]
		meta.Set(key, value)
		tx.state.agentMeta[id] = meta
		idCopy := id
		return tx.emit(domain.EventMetadataSet, domain.MetadataPayload{ID: &idCopy, Key: key, Value: value})
	})
}

// SetCollectionMetadata writes (key, value) into the collection scope. The
// caller must hold the collection editor role.
func (r *Registry) SetCollectionMetadata(ctx context.Context, caller domain.Address, key string, value []byte) error {
	return r.run(ctx, "registry.set_collection_metadata", func(tx *transaction) error {
		if !tx.state.roles.HasRole(domain.RoleCollectionEditor, caller) {
			return domain.UnauthorizedError{Caller: caller, Role: domain.RoleCollectionEditor}
		}
		tx.state.collection.Set(key, value)
		return tx.emit(domain.EventCollectionMetadataSet, domain.MetadataPayload{Key: key, Value: value})
	})
}

// GrantRole adds account to role. The caller must hold the root role.
func (r *Registry) GrantRole(ctx context.Context, caller domain.Address, role domain.Role, account domain.Address) error {
	return r.run(ctx, "registry.grant_role", func(tx *transaction) error {
		changed, err := tx.state.roles.Grant(caller, role, account)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return tx.emit(domain.EventRoleGranted, domain.RolePayload{Role: role, Account: account, Caller: caller})
	})
}

// RevokeRole removes account from role. Symmetric with GrantRole.
func (r *Registry) RevokeRole(ctx context.Context, caller domain.Address, role domain.Role, account domain.Address) error {
	return r.run(ctx, "registry.revoke_role", func(tx *transaction) error {
		changed, err := tx.state.roles.Revoke(caller, role, account)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return tx.emit(domain.EventRoleRevoked, domain.RolePayload{Role: role, Account: account, Caller: caller})
	})
}

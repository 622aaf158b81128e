package registry

import (
	"sort"

	"agentcore/internal/access"
	"agentcore/internal/metastore"
	"agentcore/pkg/domain"
)

type approvalKey struct {
	owner   domain.Address
	spender domain.Address
	id      domain.AgentID
}

type operatorKey struct {
	owner    domain.Address
	operator domain.Address
}

// state is the complete mutable storage of one registry instance. Mutating
// calls operate on a clone and the engine swaps it in only on commit.
type state struct {
	nextID     domain.AgentID
	owners     map[domain.AgentID]domain.Address
	agentMeta  map[domain.AgentID]metastore.Store
	collection metastore.Store
	approvals  map[approvalKey]struct{}
	operators  map[operatorKey]struct{}
	roles      access.Controller
}

func newState() state {
	return state{
		owners:     make(map[domain.AgentID]domain.Address),
		agentMeta:  make(map[domain.AgentID]metastore.Store),
		collection: metastore.New(),
		approvals:  make(map[approvalKey]struct{}),
		operators:  make(map[operatorKey]struct{}),
		roles:      access.New(),
	}
}

func (s state) clone() state {
	cloned := state{
		nextID:     s.nextID,
		owners:     make(map[domain.AgentID]domain.Address, len(s.owners)),
		agentMeta:  make(map[domain.AgentID]metastore.Store, len(s.agentMeta)),
		collection: s.collection.Clone(),
		approvals:  make(map[approvalKey]struct{}, len(s.approvals)),
		operators:  make(map[operatorKey]struct{}, len(s.operators)),
		roles:      s.roles.Clone(),
	}
	for id, owner := range s.owners {
		cloned.owners[id] = owner
	}
	for id, meta := range s.agentMeta {
		cloned.agentMeta[id] = meta.Clone()
	}
	for k := range s.approvals {
		cloned.approvals[k] = struct{}{}
	}
	for k := range s.operators {
		cloned.operators[k] = struct{}{}
	}
	return cloned
}

// snapshot exports the state in deterministic order for archival.
func (s state) snapshot(instance domain.Address) domain.RegistrySnapshot {
	snap := domain.RegistrySnapshot{
		Instance:   instance,
		NextID:     s.nextID,
		Collection: s.collection.Entries(),
	}
	for id, owner := range s.owners {
		snap.Agents = append(snap.Agents, domain.AgentRecord{
			ID:       id,
			Owner:    owner,
			Metadata: s.agentMeta[id].Entries(),
		})
	}
	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].ID < snap.Agents[j].ID })

	for k := range s.approvals {
		snap.Approvals = append(snap.Approvals, domain.ApprovalRecord{Owner: k.owner, Spender: k.spender, ID: k.id})
	}
	sort.Slice(snap.Approvals, func(i, j int) bool {
		a, b := snap.Approvals[i], snap.Approvals[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.Spender != b.Spender {
			return a.Spender < b.Spender
		}
		return a.ID < b.ID
	})

	for k := range s.operators {
		snap.Operators = append(snap.Operators, domain.OperatorRecord{Owner: k.owner, Operator: k.operator})
	}
	sort.Slice(snap.Operators, func(i, j int) bool {
		a, b := snap.Operators[i], snap.Operators[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		return a.Operator < b.Operator
	})

	roles := s.roles.Roles()
	if len(roles) > 0 {
		snap.Roles = make(map[domain.Role][]domain.Address, len(roles))
		for _, role := range roles {
			snap.Roles[role] = s.roles.Members(role)
		}
	}
	return snap
}

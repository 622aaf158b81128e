// Package domain defines the core entities, events, and error taxonomy shared
// by the registry engine, the minting registrar, and the instance factory.
package domain

// Address references an account or a deployed instance. The empty value is the
// zero address and is never a valid recipient or caller.
type Address string

// ZeroAddress is the null account reference.
const ZeroAddress Address = ""

// IsZero reports whether the address is the null reference.
func (a Address) IsZero() bool { return a == ZeroAddress }

// AgentID identifies one agent record within a single registry instance.
// IDs are allocated sequentially starting at zero and are never reused.
type AgentID uint64

// MetadataEntry is one key/value pair written into an agent or collection
// metadata scope. Values are arbitrary bytes; an empty value is legal and
// reads back identically to a key that was never set.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Well-known metadata keys surfaced directly in creation events so indexers
// can avoid a second lookup.
const (
	// MetadataKeyEndpointType tags the agent's communication protocol (e.g. "mcp").
	MetadataKeyEndpointType = "endpoint_type"
	// MetadataKeyEndpoint is the agent's endpoint URL.
	MetadataKeyEndpoint = "endpoint"
	// MetadataKeyAgentAccount is an account associated with the agent.
	MetadataKeyAgentAccount = "agent_account"
)

// Role names a permission set managed by the access controller.
type Role string

// Roles recognized by registry and registrar instances.
const (
	// RoleAdmin is the role-management root: it can grant and revoke every
	// role, including itself.
	RoleAdmin Role = "admin"
	// RoleRegistrar may create new agent records.
	RoleRegistrar Role = "registrar"
	// RoleCollectionEditor may write collection-level metadata.
	RoleCollectionEditor Role = "collection_editor"
	// RoleMinter may mint through a registrar while minting is private.
	RoleMinter Role = "minter"
)

// LockBit is a permanent, one-way policy flag. Once a bit is set the
// corresponding administrative setter is disabled for the lifetime of the
// instance; no clear operation exists.
type LockBit uint8

const (
	// LockMintPrice freezes SetMintPrice.
	LockMintPrice LockBit = 1 << iota
	// LockMaxSupply freezes SetMaxSupply.
	LockMaxSupply
	// LockOpenClose freezes OpenMinting and CloseMinting. The single bit
	// governs both the open/closed flag and the public/private mode.
	LockOpenClose
)

// Valid reports whether the value is exactly one defined lock flag.
func (b LockBit) Valid() bool {
	switch b {
	case LockMintPrice, LockMaxSupply, LockOpenClose:
		return true
	}
	return false
}

// String returns the canonical flag name, or "invalid" for undefined values.
func (b LockBit) String() string {
	switch b {
	case LockMintPrice:
		return "mint_price"
	case LockMaxSupply:
		return "max_supply"
	case LockOpenClose:
		return "open_close"
	}
	return "invalid"
}

// AgentRecord is the exported form of one agent: its ID, current owner, and
// full metadata scope. Used by snapshots and read APIs.
type AgentRecord struct {
	ID       AgentID         `json:"id"`
	Owner    Address         `json:"owner"`
	Metadata []MetadataEntry `json:"metadata,omitempty"`
}

// ApprovalRecord is one live single-use approval.
type ApprovalRecord struct {
	Owner   Address `json:"owner"`
	Spender Address `json:"spender"`
	ID      AgentID `json:"id"`
}

// OperatorRecord is one persistent operator grant.
type OperatorRecord struct {
	Owner    Address `json:"owner"`
	Operator Address `json:"operator"`
}

// RegistrySnapshot captures the complete state of one registry instance for
// archival. Slices are ordered (agents by ID, the rest lexicographically) so
// that identical states serialize identically.
type RegistrySnapshot struct {
	Instance   Address            `json:"instance"`
	NextID     AgentID            `json:"next_id"`
	Agents     []AgentRecord      `json:"agents,omitempty"`
	Collection []MetadataEntry    `json:"collection,omitempty"`
	Approvals  []ApprovalRecord   `json:"approvals,omitempty"`
	Operators  []OperatorRecord   `json:"operators,omitempty"`
	Roles      map[Role][]Address `json:"roles,omitempty"`
}

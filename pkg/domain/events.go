package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of state change an event records.
type EventType string

// Registry events.
const (
	// EventAgentRegistered records the creation of an agent.
	EventAgentRegistered EventType = "agent.registered"
	// EventTransfer records an ownership reassignment.
	EventTransfer EventType = "agent.transferred"
	// EventApproval records a single-use approval grant or clear.
	EventApproval EventType = "agent.approval"
	// EventOperatorSet records a blanket operator grant or revocation.
	EventOperatorSet EventType = "agent.operator_set"
	// EventMetadataSet records a write into an agent metadata scope.
	EventMetadataSet EventType = "agent.metadata_set"
	// EventCollectionMetadataSet records a write into the collection scope.
	EventCollectionMetadataSet EventType = "collection.metadata_set"
	// EventRoleGranted records a role membership addition.
	EventRoleGranted EventType = "role.granted"
	// EventRoleRevoked records a role membership removal.
	EventRoleRevoked EventType = "role.revoked"
)

// Registrar events.
const (
	// EventMintingOpened records the policy transitioning to open.
	EventMintingOpened EventType = "minting.opened"
	// EventMintingClosed records the policy transitioning to closed.
	EventMintingClosed EventType = "minting.closed"
	// EventMintPriceSet records a mint price change.
	EventMintPriceSet EventType = "minting.price_set"
	// EventMaxSupplySet records a supply cap change.
	EventMaxSupplySet EventType = "minting.max_supply_set"
	// EventLockSet records a lock bit being permanently set.
	EventLockSet EventType = "minting.lock_set"
	// EventMinted records one paid mint of one agent.
	EventMinted EventType = "minting.minted"
	// EventWithdrawal records collected funds leaving the registrar.
	EventWithdrawal EventType = "minting.withdrawal"
)

// Factory events.
const (
	// EventRegistryDeployed records the creation of a registry instance.
	EventRegistryDeployed EventType = "factory.registry_deployed"
	// EventRegistrarDeployed records the creation of a registrar instance.
	EventRegistrarDeployed EventType = "factory.registrar_deployed"
)

// Event is one immutable entry in an instance's journal. Seq is assigned on
// append and is strictly sequential per instance starting at 1; the journal is
// the sole practical way for an indexer to enumerate entities and history.
type Event struct {
	Instance  Address         `json:"instance"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event of the given type with a marshaled payload. The
// instance, sequence, and timestamp fields are assigned at commit time.
func NewEvent(typ EventType, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Payload: raw}, nil
}

// AgentRegisteredPayload carries the owner of a new agent plus the shortcut
// fields extracted from its metadata when the well-known keys are present.
type AgentRegisteredPayload struct {
	ID           AgentID `json:"id"`
	Owner        Address `json:"owner"`
	EndpointType string  `json:"endpoint_type,omitempty"`
	Endpoint     string  `json:"endpoint,omitempty"`
	AgentAccount string  `json:"agent_account,omitempty"`
}

// TransferPayload carries an ownership reassignment.
type TransferPayload struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	ID     AgentID `json:"id"`
	Caller Address `json:"caller"`
}

// ApprovalPayload carries a single-use approval change.
type ApprovalPayload struct {
	Owner    Address `json:"owner"`
	Spender  Address `json:"spender"`
	ID       AgentID `json:"id"`
	Approved bool    `json:"approved"`
}

// OperatorPayload carries a blanket operator change.
type OperatorPayload struct {
	Owner    Address `json:"owner"`
	Operator Address `json:"operator"`
	Approved bool    `json:"approved"`
}

// MetadataPayload carries one metadata write. For collection-scope writes the
// ID field is absent.
type MetadataPayload struct {
	ID    *AgentID `json:"id,omitempty"`
	Key   string   `json:"key"`
	Value []byte   `json:"value"`
}

// RolePayload carries a role membership change.
type RolePayload struct {
	Role    Role    `json:"role"`
	Account Address `json:"account"`
	Caller  Address `json:"caller"`
}

// PolicyPayload carries a registrar policy change.
type PolicyPayload struct {
	Caller    Address `json:"caller"`
	Public    bool    `json:"public,omitempty"`
	MintPrice uint64  `json:"mint_price,omitempty"`
	MaxSupply uint64  `json:"max_supply,omitempty"`
	Lock      string  `json:"lock,omitempty"`
}

// MintPayload carries one unit of a mint. MintNumber is the running count of
// units minted through the registrar, starting at 1.
type MintPayload struct {
	ID         AgentID `json:"id"`
	MintNumber uint64  `json:"mint_number"`
	Payer      Address `json:"payer"`
	Recipient  Address `json:"recipient"`
	Price      uint64  `json:"price"`
}

// WithdrawalPayload carries funds leaving the registrar.
type WithdrawalPayload struct {
	To     Address `json:"to"`
	Amount uint64  `json:"amount"`
}

// DeployPayload carries a factory deployment.
type DeployPayload struct {
	Instance Address `json:"instance"`
	Admin    Address `json:"admin"`
	Salt     string  `json:"salt,omitempty"`
}

// EventJournal is the append-only event sink consumed by indexers. Append
// assigns per-instance sequence numbers; implementations must preserve append
// order within an instance.
type EventJournal interface {
	Append(ctx context.Context, events ...Event) error
	List(ctx context.Context, instance Address) ([]Event, error)
	Close() error
}

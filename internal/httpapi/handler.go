// Package httpapi exposes a deployment's factory, registries, and registrars
// over a JSON HTTP API. It exists for operators and indexers; the engines
// underneath stay transport-free.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"agentcore/internal/blob"
	"agentcore/internal/factory"
	"agentcore/internal/ledger"
	"agentcore/internal/registrar"
	"agentcore/internal/registry"
	"agentcore/pkg/domain"
)

// Handler routes API requests to one factory and its deployed instances.
type Handler struct {
	factory  *factory.Factory
	journal  domain.EventJournal
	funds    *ledger.Memory
	archiver *blob.Archiver
	logger   *zap.Logger
	registry *prometheus.Registry
}

// Config assembles a Handler. Factory, Journal, and Funds are required;
// Archiver and Metrics are optional.
type Config struct {
	Factory  *factory.Factory
	Journal  domain.EventJournal
	Funds    *ledger.Memory
	Archiver *blob.Archiver
	Logger   *zap.Logger
	Metrics  *prometheus.Registry
}

// NewHandler builds the API handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		factory:  cfg.Factory,
		journal:  cfg.Journal,
		funds:    cfg.Funds,
		archiver: cfg.Archiver,
		logger:   logger,
		registry: cfg.Metrics,
	}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Factory
	mux.HandleFunc("POST /deployments", h.CreateDeployment)
	mux.HandleFunc("GET /deployments", h.ListDeployments)

	// Registry reads
	mux.HandleFunc("GET /registries/{addr}/agents/{id}", h.GetAgent)
	mux.HandleFunc("GET /registries/{addr}/agents/{id}/metadata/{key}", h.GetAgentMetadata)
	mux.HandleFunc("GET /registries/{addr}/collection/{key}", h.GetCollectionMetadata)
	mux.HandleFunc("GET /registries/{addr}/snapshot", h.GetSnapshot)
	mux.HandleFunc("GET /registries/{addr}/events", h.ListEvents)

	// Registry writes
	mux.HandleFunc("POST /registries/{addr}/agents", h.RegisterAgents)
	mux.HandleFunc("POST /registries/{addr}/agents/{id}/transfer", h.TransferAgent)
	mux.HandleFunc("POST /registries/{addr}/agents/{id}/approve", h.ApproveAgent)
	mux.HandleFunc("POST /registries/{addr}/agents/{id}/metadata", h.SetAgentMetadata)
	mux.HandleFunc("POST /registries/{addr}/operators", h.SetOperator)
	mux.HandleFunc("POST /registries/{addr}/collection", h.SetCollectionMetadata)
	mux.HandleFunc("POST /registries/{addr}/roles", h.ChangeRegistryRole)
	mux.HandleFunc("POST /registries/{addr}/archive", h.ArchiveSnapshot)

	// Registrar
	mux.HandleFunc("GET /registrars/{addr}", h.GetRegistrar)
	mux.HandleFunc("POST /registrars/{addr}/mint", h.Mint)
	mux.HandleFunc("POST /registrars/{addr}/policy", h.ChangePolicy)
	mux.HandleFunc("POST /registrars/{addr}/withdraw", h.Withdraw)

	// Ledger (dev faucet and balances)
	mux.HandleFunc("GET /ledger/{account}", h.GetBalance)
	mux.HandleFunc("POST /ledger/{account}/credit", h.CreditAccount)

	mux.HandleFunc("GET /health", h.Health)
	if h.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}

	return h.withMiddleware(mux)
}

// === Request/Response Types ===

// DeployRequest creates a registry/registrar pair.
type DeployRequest struct {
	Admin     domain.Address `json:"admin"`
	MintPrice uint64         `json:"mint_price"`
	MaxSupply uint64         `json:"max_supply"`
	Name      string         `json:"name,omitempty"`
	Salt      string         `json:"salt,omitempty"`
}

// DeployResponse reports the pair's addresses.
type DeployResponse struct {
	Registry  domain.Address `json:"registry"`
	Registrar domain.Address `json:"registrar"`
}

// DeploymentsResponse enumerates everything the factory deployed.
type DeploymentsResponse struct {
	Registries []domain.Address `json:"registries"`
	Registrars []domain.Address `json:"registrars"`
}

// RegisterRequest creates agents directly through the registry.
type RegisterRequest struct {
	Caller  domain.Address           `json:"caller"`
	Owners  []domain.Address         `json:"owners"`
	Entries [][]domain.MetadataEntry `json:"entries,omitempty"`
}

// RegisterResponse reports the allocated IDs.
type RegisterResponse struct {
	IDs []domain.AgentID `json:"ids"`
}

// AgentResponse is one agent with its owner and metadata.
type AgentResponse struct {
	ID       domain.AgentID         `json:"id"`
	Owner    domain.Address         `json:"owner"`
	Metadata []domain.MetadataEntry `json:"metadata,omitempty"`
}

// TransferRequest moves one agent. From defaults to the caller.
type TransferRequest struct {
	Caller domain.Address `json:"caller"`
	From   domain.Address `json:"from,omitempty"`
	To     domain.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// ApproveRequest sets or clears a single-use approval.
type ApproveRequest struct {
	Caller   domain.Address `json:"caller"`
	Spender  domain.Address `json:"spender"`
	Approved bool           `json:"approved"`
}

// OperatorRequest sets or clears a blanket operator grant.
type OperatorRequest struct {
	Caller   domain.Address `json:"caller"`
	Operator domain.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

// MetadataRequest writes one metadata entry.
type MetadataRequest struct {
	Caller domain.Address `json:"caller"`
	Key    string         `json:"key"`
	Value  []byte         `json:"value"`
}

// RoleRequest grants or revokes a role.
type RoleRequest struct {
	Caller  domain.Address `json:"caller"`
	Role    domain.Role    `json:"role"`
	Account domain.Address `json:"account"`
	Revoke  bool           `json:"revoke,omitempty"`
}

// RegistrarResponse is the policy view of one registrar.
type RegistrarResponse struct {
	Address     domain.Address `json:"address"`
	Registry    domain.Address `json:"registry"`
	MintPrice   uint64         `json:"mint_price"`
	MaxSupply   uint64         `json:"max_supply"`
	TotalMinted uint64         `json:"total_minted"`
	Open        bool           `json:"open"`
	Public      bool           `json:"public"`
	Locks       []string       `json:"locks,omitempty"`
	Balance     uint64         `json:"balance"`
}

// MintRequest mints to one or more recipients. Empty recipients defaults to
// one unit for the caller.
type MintRequest struct {
	Caller     domain.Address           `json:"caller"`
	Recipients []domain.Address         `json:"recipients,omitempty"`
	Entries    [][]domain.MetadataEntry `json:"entries,omitempty"`
	Attached   uint64                   `json:"attached"`
}

// PolicyRequest applies one registrar policy change.
type PolicyRequest struct {
	Caller    domain.Address `json:"caller"`
	Action    string         `json:"action"` // open|close|set_price|set_max_supply|set_lock
	Public    bool           `json:"public,omitempty"`
	MintPrice uint64         `json:"mint_price,omitempty"`
	MaxSupply uint64         `json:"max_supply,omitempty"`
	Lock      uint8          `json:"lock,omitempty"`
}

// WithdrawRequest moves collected funds to the caller.
type WithdrawRequest struct {
	Caller domain.Address `json:"caller"`
	Amount uint64         `json:"amount"`
}

// CreditRequest funds an account on the in-process ledger.
type CreditRequest struct {
	Amount uint64 `json:"amount"`
}

// BalanceResponse is one ledger account balance.
type BalanceResponse struct {
	Account domain.Address `json:"account"`
	Balance uint64         `json:"balance"`
}

// === Handlers ===

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if !decode(w, r, &req) {
		return
	}
	var (
		reg *registry.Registry
		rar *registrar.Registrar
		err error
	)
	if req.Salt != "" {
		reg, rar, err = h.factory.DeployDeterministic(r.Context(), req.Admin, req.MintPrice, req.MaxSupply, req.Name, req.Salt)
	} else {
		reg, rar, err = h.factory.Deploy(r.Context(), req.Admin, req.MintPrice, req.MaxSupply, req.Name)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, DeployResponse{Registry: reg.Address(), Registrar: rar.Address()})
}

func (h *Handler) ListDeployments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DeploymentsResponse{
		Registries: h.factory.Registries(),
		Registrars: h.factory.Registrars(),
	})
}

func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	record, err := reg.Agent(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AgentResponse{ID: record.ID, Owner: record.Owner, Metadata: record.Metadata})
}

func (h *Handler) GetAgentMetadata(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	value := reg.GetMetadata(id, r.PathValue("key"))
	writeJSON(w, http.StatusOK, domain.MetadataEntry{Key: r.PathValue("key"), Value: value})
}

func (h *Handler) GetCollectionMetadata(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	value := reg.GetCollectionMetadata(r.PathValue("key"))
	writeJSON(w, http.StatusOK, domain.MetadataEntry{Key: r.PathValue("key"), Value: value})
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, reg.Snapshot())
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	addr := domain.Address(r.PathValue("addr"))
	if !h.factory.IsInstance(addr) {
		writeStatus(w, http.StatusNotFound, "unknown instance")
		return
	}
	events, err := h.journal.List(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) RegisterAgents(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	ids, err := reg.RegisterBatch(r.Context(), req.Caller, req.Owners, normalizeEntries(req.Entries, len(req.Owners)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterResponse{IDs: ids})
}

func (h *Handler) TransferAgent(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	var err error
	if req.From == "" || req.From == req.Caller {
		err = reg.Transfer(r.Context(), req.Caller, req.To, id, req.Amount)
	} else {
		err = reg.TransferFrom(r.Context(), req.Caller, req.From, req.To, id, req.Amount)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (h *Handler) ApproveAgent(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := reg.Approve(r.Context(), req.Caller, req.Spender, id, req.Approved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *Handler) SetAgentMetadata(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req MetadataRequest
	if !decode(w, r, &req) {
		return
	}
	if err := reg.SetMetadata(r.Context(), req.Caller, id, req.Key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "set"})
}

func (h *Handler) SetOperator(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	var req OperatorRequest
	if !decode(w, r, &req) {
		return
	}
	if err := reg.SetOperator(r.Context(), req.Caller, req.Operator, req.Approved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "set"})
}

func (h *Handler) SetCollectionMetadata(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	var req MetadataRequest
	if !decode(w, r, &req) {
		return
	}
	if err := reg.SetCollectionMetadata(r.Context(), req.Caller, req.Key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "set"})
}

func (h *Handler) ChangeRegistryRole(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	var req RoleRequest
	if !decode(w, r, &req) {
		return
	}
	var err error
	if req.Revoke {
		err = reg.RevokeRole(r.Context(), req.Caller, req.Role, req.Account)
	} else {
		err = reg.GrantRole(r.Context(), req.Caller, req.Role, req.Account)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ArchiveSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeStatus(w, http.StatusNotImplemented, "no archive store configured")
		return
	}
	reg, ok := h.lookupRegistry(w, r)
	if !ok {
		return
	}
	info, err := h.archiver.Archive(r.Context(), reg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) GetRegistrar(w http.ResponseWriter, r *http.Request) {
	rar, ok := h.lookupRegistrar(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, RegistrarResponse{
		Address:     rar.Address(),
		Registry:    rar.Registry(),
		MintPrice:   rar.MintPrice(),
		MaxSupply:   rar.MaxSupply(),
		TotalMinted: rar.TotalMinted(),
		Open:        rar.IsOpen(),
		Public:      rar.IsPublic(),
		Locks:       lockNames(rar.Locks()),
		Balance:     rar.Balance(),
	})
}

func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	rar, ok := h.lookupRegistrar(w, r)
	if !ok {
		return
	}
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	recipients := req.Recipients
	if len(recipients) == 0 {
		recipients = []domain.Address{req.Caller}
	}
	ids, err := rar.MintBatch(r.Context(), req.Caller, recipients, normalizeEntries(req.Entries, len(recipients)), req.Attached)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterResponse{IDs: ids})
}

func (h *Handler) ChangePolicy(w http.ResponseWriter, r *http.Request) {
	rar, ok := h.lookupRegistrar(w, r)
	if !ok {
		return
	}
	var req PolicyRequest
	if !decode(w, r, &req) {
		return
	}
	var err error
	switch req.Action {
	case "open":
		err = rar.OpenMinting(r.Context(), req.Caller, req.Public)
	case "close":
		err = rar.CloseMinting(r.Context(), req.Caller)
	case "set_price":
		err = rar.SetMintPrice(r.Context(), req.Caller, req.MintPrice)
	case "set_max_supply":
		err = rar.SetMaxSupply(r.Context(), req.Caller, req.MaxSupply)
	case "set_lock":
		err = rar.SetLockBit(r.Context(), req.Caller, domain.LockBit(req.Lock))
	default:
		writeStatus(w, http.StatusBadRequest, "unknown policy action")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	rar, ok := h.lookupRegistrar(w, r)
	if !ok {
		return
	}
	var req WithdrawRequest
	if !decode(w, r, &req) {
		return
	}
	if err := rar.Withdraw(r.Context(), req.Caller, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := domain.Address(r.PathValue("account"))
	writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Balance: h.funds.Balance(account)})
}

func (h *Handler) CreditAccount(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !decode(w, r, &req) {
		return
	}
	account := domain.Address(r.PathValue("account"))
	h.funds.Credit(account, req.Amount)
	writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Balance: h.funds.Balance(account)})
}

// === Helpers ===

func (h *Handler) lookupRegistry(w http.ResponseWriter, r *http.Request) (*registry.Registry, bool) {
	reg, ok := h.factory.Registry(domain.Address(r.PathValue("addr")))
	if !ok {
		writeStatus(w, http.StatusNotFound, "unknown registry")
		return nil, false
	}
	return reg, true
}

func (h *Handler) lookupRegistrar(w http.ResponseWriter, r *http.Request) (*registrar.Registrar, bool) {
	rar, ok := h.factory.Registrar(domain.Address(r.PathValue("addr")))
	if !ok {
		writeStatus(w, http.StatusNotFound, "unknown registrar")
		return nil, false
	}
	return rar, true
}

func pathID(w http.ResponseWriter, r *http.Request) (domain.AgentID, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid agent id")
		return 0, false
	}
	return domain.AgentID(id), true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// normalizeEntries pads a nil entries slice so handlers never reject a
// metadata-free batch for a length mismatch the client did not express.
func normalizeEntries(entries [][]domain.MetadataEntry, n int) [][]domain.MetadataEntry {
	if entries == nil {
		return make([][]domain.MetadataEntry, n)
	}
	return entries
}

func lockNames(bits domain.LockBit) []string {
	var names []string
	for _, bit := range []domain.LockBit{domain.LockMintPrice, domain.LockMaxSupply, domain.LockOpenClose} {
		if bits&bit != 0 {
			names = append(names, bit.String())
		}
	}
	return names
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// statusFor maps the failure taxonomy onto HTTP statuses.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeLengthMismatch, domain.CodeInvalidAmount, domain.CodeZeroAddress,
		domain.CodeInvalidLockBit, domain.CodePriceOverflow, domain.CodeSupplyTooLow:
		return http.StatusBadRequest
	case domain.CodeInsufficientPayment:
		return http.StatusPaymentRequired
	case domain.CodeUnauthorized, domain.CodeInsufficientPermission, domain.CodeNotMinter:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeNotOpen, domain.CodeLocked, domain.CodeSupplyExceeded,
		domain.CodeInsufficientBalance, domain.CodeAlreadyInitialized, domain.CodeSaltConsumed:
		return http.StatusConflict
	case domain.CodeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, factory.ErrUnknownRegistry) {
		writeStatus(w, http.StatusNotFound, err.Error())
		return
	}
	code := domain.ErrorCode(err)
	writeJSON(w, statusFor(code), errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: domain.CodeUnknown, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

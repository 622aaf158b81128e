package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"agentcore/internal/blob"
	"agentcore/internal/factory"
	"agentcore/internal/journal/memory"
	"agentcore/internal/ledger"
	"agentcore/pkg/domain"
)

const (
	admin = domain.Address("0xadmin")
	alice = domain.Address("0xalice")
	bob   = domain.Address("0xbob")
)

type fixture struct {
	api     http.Handler
	factory *factory.Factory
	funds   *ledger.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	j := memory.New()
	funds := ledger.NewMemory()
	f := factory.New("0xfactory", j, funds)
	h := NewHandler(Config{
		Factory:  f,
		Journal:  j,
		Funds:    funds,
		Archiver: blob.NewArchiver(blob.NewMemory()),
	})
	return &fixture{api: h.Routes(), factory: f, funds: funds}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.api.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (f *fixture) deploy(t *testing.T, price, maxSupply uint64) DeployResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/deployments", DeployRequest{
		Admin: admin, MintPrice: price, MaxSupply: maxSupply, Name: "fleet",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[DeployResponse](t, w)
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	f.api.ServeHTTP(rec, req)
	require.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestDeployAndEnumerate(t *testing.T) {
	f := newFixture(t)
	pair := f.deploy(t, 5, 10)
	require.NotEmpty(t, pair.Registry)
	require.NotEmpty(t, pair.Registrar)

	w := f.do(t, http.MethodGet, "/deployments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[DeploymentsResponse](t, w)
	require.Equal(t, []domain.Address{pair.Registry}, got.Registries)
	require.Equal(t, []domain.Address{pair.Registrar}, got.Registrars)
}

func TestDeterministicDeployConflict(t *testing.T) {
	f := newFixture(t)
	req := DeployRequest{Admin: admin, Salt: "s1"}
	w := f.do(t, http.MethodPost, "/deployments", req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/deployments", req)
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody[errorBody](t, w)
	require.Equal(t, domain.CodeSaltConsumed, body.Error.Code)
}

func TestMintFlow(t *testing.T) {
	f := newFixture(t)
	pair := f.deploy(t, 5, 0)

	// Minting before the admin opens fails with a conflict.
	w := f.do(t, http.MethodPost, "/registrars/"+string(pair.Registrar)+"/mint", MintRequest{Caller: alice})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, domain.CodeNotOpen, decodeBody[errorBody](t, w).Error.Code)

	w = f.do(t, http.MethodPost, "/registrars/"+string(pair.Registrar)+"/policy", PolicyRequest{
		Caller: admin, Action: "open", Public: true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Short payment maps to 402.
	w = f.do(t, http.MethodPost, "/registrars/"+string(pair.Registrar)+"/mint", MintRequest{Caller: alice, Attached: 4})
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	// Fund the payer and mint.
	w = f.do(t, http.MethodPost, "/ledger/"+string(alice)+"/credit", CreditRequest{Amount: 20})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/registrars/"+string(pair.Registrar)+"/mint", MintRequest{Caller: alice, Attached: 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	minted := decodeBody[RegisterResponse](t, w)
	require.Equal(t, []domain.AgentID{0}, minted.IDs)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/registries/%s/agents/%d", pair.Registry, minted.IDs[0]), nil)
	require.Equal(t, http.StatusOK, w.Code)
	agent := decodeBody[AgentResponse](t, w)
	require.Equal(t, alice, agent.Owner)

	// Exactly the price was charged.
	w = f.do(t, http.MethodGet, "/ledger/"+string(alice), nil)
	balance := decodeBody[BalanceResponse](t, w)
	require.Equal(t, uint64(15), balance.Balance)

	// The registrar view reflects the mint.
	w = f.do(t, http.MethodGet, "/registrars/"+string(pair.Registrar), nil)
	view := decodeBody[RegistrarResponse](t, w)
	require.Equal(t, uint64(1), view.TotalMinted)
	require.Equal(t, uint64(5), view.Balance)
	require.True(t, view.Open)
}

func TestTransferAndPermissionMapping(t *testing.T) {
	f := newFixture(t)
	pair := f.deploy(t, 0, 0)
	f.do(t, http.MethodPost, "/registrars/"+string(pair.Registrar)+"/policy", PolicyRequest{Caller: admin, Action: "open", Public: true})
	w := f.do(t, http.MethodPost, "/registrars/"+string(pair.Registrar)+"/mint", MintRequest{Caller: alice})
	require.Equal(t, http.StatusCreated, w.Code)

	// A stranger moving alice's agent maps to 403.
	w = f.do(t, http.MethodPost, "/registries/"+string(pair.Registry)+"/agents/0/transfer", TransferRequest{
		Caller: bob, From: alice, To: bob, Amount: 1,
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, domain.CodeInsufficientPermission, decodeBody[errorBody](t, w).Error.Code)

	// Approval then delegated transfer succeeds.
	w = f.do(t, http.MethodPost, "/registries/"+string(pair.Registry)+"/agents/0/approve", ApproveRequest{
		Caller: alice, Spender: bob, Approved: true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/registries/"+string(pair.Registry)+"/agents/0/transfer", TransferRequest{
		Caller: bob, From: alice, To: bob, Amount: 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/registries/"+string(pair.Registry)+"/agents/0", nil)
	require.Equal(t, bob, decodeBody[AgentResponse](t, w).Owner)
}

func TestAgentNotFoundMapping(t *testing.T) {
	f := newFixture(t)
	pair := f.deploy(t, 0, 0)
	w := f.do(t, http.MethodGet, "/registries/"+string(pair.Registry)+"/agents/99", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, domain.CodeNotFound, decodeBody[errorBody](t, w).Error.Code)

	w = f.do(t, http.MethodGet, "/registries/0xunknown/agents/0", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/registries/"+string(pair.Registry)+"/agents/banana", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsAndSnapshot(t *testing.T) {
	f := newFixture(t)
	pair := f.deploy(t, 0, 0)
	f.do(t, http.MethodPost, "/registrars/"+string(pair.Registrar)+"/policy", PolicyRequest{Caller: admin, Action: "open", Public: true})
	w := f.do(t, http.MethodPost, "/registrars/"+string(pair.Registrar)+"/mint", MintRequest{Caller: alice})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/registries/"+string(pair.Registry)+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decodeBody[[]domain.Event](t, w)
	require.NotEmpty(t, events)
	for i, ev := range events {
		require.Equal(t, uint64(i+1), ev.Seq)
	}

	w = f.do(t, http.MethodGet, "/registries/"+string(pair.Registry)+"/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeBody[domain.RegistrySnapshot](t, w)
	require.Equal(t, pair.Registry, snap.Instance)
	require.Len(t, snap.Agents, 1)

	w = f.do(t, http.MethodGet, "/registries/0xunknown/events", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestArchiveEndpoint(t *testing.T) {
	f := newFixture(t)
	pair := f.deploy(t, 0, 0)
	w := f.do(t, http.MethodPost, "/registries/"+string(pair.Registry)+"/archive", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	info := decodeBody[blob.Info](t, w)
	require.Contains(t, info.Key, "snapshots/"+string(pair.Registry))
}

func TestRegisterDirectlyRequiresRole(t *testing.T) {
	f := newFixture(t)
	pair := f.deploy(t, 0, 0)

	w := f.do(t, http.MethodPost, "/registries/"+string(pair.Registry)+"/agents", RegisterRequest{
		Caller: alice, Owners: []domain.Address{alice},
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	// The deployment admin holds the creation role.
	w = f.do(t, http.MethodPost, "/registries/"+string(pair.Registry)+"/agents", RegisterRequest{
		Caller: admin, Owners: []domain.Address{alice, bob},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, []domain.AgentID{0, 1}, decodeBody[RegisterResponse](t, w).IDs)
}

func TestPolicyLockMapping(t *testing.T) {
	f := newFixture(t)
	pair := f.deploy(t, 1, 0)
	path := "/registrars/" + string(pair.Registrar) + "/policy"

	w := f.do(t, http.MethodPost, path, PolicyRequest{Caller: admin, Action: "set_lock", Lock: uint8(domain.LockMintPrice)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, path, PolicyRequest{Caller: admin, Action: "set_price", MintPrice: 9})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, domain.CodeLocked, decodeBody[errorBody](t, w).Error.Code)

	w = f.do(t, http.MethodPost, path, PolicyRequest{Caller: admin, Action: "juggle"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

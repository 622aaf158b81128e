package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentcore/pkg/domain"
)

func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewJournal(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestAppendAndList(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	payload, err := json.Marshal(domain.TransferPayload{From: "0xa", To: "0xb", ID: 7})
	require.NoError(t, err)
	events := []domain.Event{
		{Instance: "0xreg", Timestamp: stamp, Type: domain.EventAgentRegistered},
		{Instance: "0xreg", Timestamp: stamp, Type: domain.EventTransfer, Payload: payload},
	}
	require.NoError(t, j.Append(ctx, events...))
	require.Equal(t, uint64(1), events[0].Seq)
	require.Equal(t, uint64(2), events[1].Seq)

	got, err := j.List(ctx, "0xreg")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, domain.EventTransfer, got[1].Type)
	require.True(t, got[1].Timestamp.Equal(stamp))

	var decoded domain.TransferPayload
	require.NoError(t, json.Unmarshal(got[1].Payload, &decoded))
	require.Equal(t, domain.AgentID(7), decoded.ID)
}

func TestSequencesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx,
		domain.Event{Instance: "0xreg", Timestamp: time.Now().UTC(), Type: domain.EventAgentRegistered},
		domain.Event{Instance: "0xreg", Timestamp: time.Now().UTC(), Type: domain.EventAgentRegistered},
	))
	require.NoError(t, j.Close())

	reopened, err := NewJournal(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	next := domain.Event{Instance: "0xreg", Timestamp: time.Now().UTC(), Type: domain.EventTransfer}
	require.NoError(t, reopened.Append(ctx, next))
	require.Equal(t, uint64(3), next.Seq)

	got, err := reopened.List(ctx, "0xreg")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, ev := range got {
		require.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestInstancesAreIsolated(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.Append(ctx,
		domain.Event{Instance: "0xa", Timestamp: time.Now().UTC(), Type: domain.EventAgentRegistered},
		domain.Event{Instance: "0xb", Timestamp: time.Now().UTC(), Type: domain.EventAgentRegistered},
		domain.Event{Instance: "0xa", Timestamp: time.Now().UTC(), Type: domain.EventTransfer},
	))

	a, err := j.List(ctx, "0xa")
	require.NoError(t, err)
	require.Len(t, a, 2)
	require.Equal(t, uint64(2), a[1].Seq)

	b, err := j.List(ctx, "0xb")
	require.NoError(t, err)
	require.Len(t, b, 1)
	require.Equal(t, uint64(1), b[0].Seq)
}

func TestEmptyAppendIsNoOp(t *testing.T) {
	j, _ := newTestJournal(t)
	require.NoError(t, j.Append(context.Background()))
	got, err := j.List(context.Background(), "0xreg")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDefaultPath(t *testing.T) {
	j, path := newTestJournal(t)
	require.Equal(t, path, j.Path())
	require.NotNil(t, j.DB())
}

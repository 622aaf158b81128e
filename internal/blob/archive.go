package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"agentcore/pkg/domain"
)

// SnapshotSource is the registry surface the archiver reads.
type SnapshotSource interface {
	Address() domain.Address
	Snapshot() domain.RegistrySnapshot
}

// Archiver writes point-in-time registry snapshots into a blob store as JSON
// documents, one immutable object per capture.
type Archiver struct {
	store Store
	nowFn func() time.Time
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithArchiveClock overrides the capture timestamp source.
func WithArchiveClock(now func() time.Time) ArchiverOption {
	return func(a *Archiver) {
		if now != nil {
			a.nowFn = now
		}
	}
}

// NewArchiver returns an archiver writing into store.
func NewArchiver(store Store, opts ...ArchiverOption) *Archiver {
	a := &Archiver{store: store, nowFn: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// keyTimeLayout avoids characters that are awkward as file names.
const keyTimeLayout = "20060102T150405.000000000Z"

func archiveKey(instance domain.Address, at time.Time) string {
	return fmt.Sprintf("snapshots/%s/%s.json", instance, at.UTC().Format(keyTimeLayout))
}

func archivePrefix(instance domain.Address) string {
	return fmt.Sprintf("snapshots/%s/", instance)
}

// Archive captures one snapshot of src and stores it.
func (a *Archiver) Archive(ctx context.Context, src SnapshotSource) (Info, error) {
	snap := src.Snapshot()
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := archiveKey(src.Address(), a.nowFn())
	info, err := a.store.Put(ctx, key, bytes.NewReader(raw), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"instance": string(src.Address())},
	})
	if err != nil {
		return Info{}, fmt.Errorf("store snapshot: %w", err)
	}
	return info, nil
}

// List enumerates the archives captured for one instance, oldest first. The
// key timestamp format makes lexical order chronological.
func (a *Archiver) List(ctx context.Context, instance domain.Address) ([]Info, error) {
	return a.store.List(ctx, archivePrefix(instance))
}

// Load reads one archived snapshot back.
func (a *Archiver) Load(ctx context.Context, key string) (domain.RegistrySnapshot, error) {
	_, body, err := a.store.Get(ctx, key)
	if err != nil {
		return domain.RegistrySnapshot{}, err
	}
	defer func() { _ = body.Close() }()
	raw, err := io.ReadAll(body)
	if err != nil {
		return domain.RegistrySnapshot{}, err
	}
	var snap domain.RegistrySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.RegistrySnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

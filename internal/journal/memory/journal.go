// Package memory provides the in-process event journal used by tests and
// ephemeral deployments.
package memory

import (
	"context"
	"sync"

	"agentcore/pkg/domain"
)

// Journal keeps per-instance event logs in memory. Construct with New.
type Journal struct {
	mu     sync.Mutex
	seqs   map[domain.Address]uint64
	events map[domain.Address][]domain.Event
}

// Compile-time contract assertion.
var _ domain.EventJournal = (*Journal)(nil)

// New returns an empty journal.
func New() *Journal {
	return &Journal{
		seqs:   make(map[domain.Address]uint64),
		events: make(map[domain.Address][]domain.Event),
	}
}

// Append assigns per-instance sequence numbers in order and stores the
// events. The whole batch is stored atomically.
func (j *Journal) Append(_ context.Context, events ...domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, ev := range events {
		j.seqs[ev.Instance]++
		ev.Seq = j.seqs[ev.Instance]
		j.events[ev.Instance] = append(j.events[ev.Instance], ev)
	}
	return nil
}

// List returns every event recorded for instance in append order.
func (j *Journal) List(_ context.Context, instance domain.Address) ([]domain.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.Event, len(j.events[instance]))
	copy(out, j.events[instance])
	return out, nil
}

// Close implements domain.EventJournal.
func (j *Journal) Close() error { return nil }

// Package metastore implements the key/value metadata scope attached to each
// agent and to the collection itself. A Store is a plain value with an
// explicit Clone so the registry can snapshot it inside a transaction.
package metastore

import (
	"sort"

	"agentcore/pkg/domain"
)

// Store holds one metadata scope: string key to byte value. The zero value is
// not usable; construct with New.
type Store struct {
	values map[string][]byte
}

// New returns an empty scope.
func New() Store {
	return Store{values: make(map[string][]byte)}
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (s Store) Clone() Store {
	cloned := Store{values: make(map[string][]byte, len(s.values))}
	for k, v := range s.values {
		cloned.values[k] = append([]byte(nil), v...)
	}
	return cloned
}

// Set overwrites any existing value for key unconditionally. Setting an empty
// value is a real write: it reads back empty, same as a key never set, but the
// caller still records a change for it.
func (s *Store) Set(key string, value []byte) {
	if s.values == nil {
		s.values = make(map[string][]byte)
	}
	s.values[key] = append([]byte(nil), value...)
}

// Get returns the stored bytes for key, or an empty slice when the key was
// never set. The returned slice is a copy.
func (s Store) Get(key string) []byte {
	v, ok := s.values[key]
	if !ok {
		return []byte{}
	}
	return append([]byte(nil), v...)
}

// Len returns the number of keys ever set in the scope.
func (s Store) Len() int {
	return len(s.values)
}

// Entries returns every pair in the scope ordered by key.
func (s Store) Entries() []domain.MetadataEntry {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.MetadataEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.MetadataEntry{Key: k, Value: append([]byte(nil), s.values[k]...)})
	}
	return out
}

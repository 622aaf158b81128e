package metastore

import (
	"bytes"
	"testing"
)

func TestSetOverwritesUnconditionally(t *testing.T) {
	s := New()
	s.Set("endpoint", []byte("https://a"))
	s.Set("endpoint", []byte("https://b"))
	if got := s.Get("endpoint"); !bytes.Equal(got, []byte("https://b")) {
		t.Fatalf("expected later write to win, got %q", got)
	}
}

func TestUnsetAndEmptyReadBackIdentically(t *testing.T) {
	s := New()
	s.Set("present", []byte{})
	if got := s.Get("present"); len(got) != 0 {
		t.Fatalf("expected empty value, got %q", got)
	}
	if got := s.Get("absent"); len(got) != 0 {
		t.Fatalf("expected empty value for unset key, got %q", got)
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly the written key to count, got %d", s.Len())
	}
}

func TestCloneIsolation(t *testing.T) {
	s := New()
	s.Set("k", []byte("v1"))
	c := s.Clone()
	c.Set("k", []byte("v2"))
	c.Set("extra", []byte("x"))
	if got := s.Get("k"); !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("clone write leaked into original: %q", got)
	}
	if s.Len() != 1 {
		t.Fatalf("clone key leaked into original, len=%d", s.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	s.Set("k", []byte("abc"))
	v := s.Get("k")
	v[0] = 'z'
	if got := s.Get("k"); !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("caller mutation leaked into store: %q", got)
	}
}

func TestEntriesOrderedByKey(t *testing.T) {
	s := New()
	s.Set("b", []byte("2"))
	s.Set("a", []byte("1"))
	s.Set("c", []byte("3"))
	entries := s.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].Key != want {
			t.Fatalf("entry %d: expected key %q, got %q", i, want, entries[i].Key)
		}
	}
}

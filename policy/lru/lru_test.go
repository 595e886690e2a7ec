package lru

import (
	"testing"

	"github.com/IvanBrykalov/heapcache/policy"
	"github.com/IvanBrykalov/heapcache/policy/policytest"
)

func newLRU(t *testing.T) (policy.Evictor[string], func(string) *policytest.Node) {
	t.Helper()
	p := New[string]().New(8)
	nodes := map[string]*policytest.Node{}
	get := func(k string) *policytest.Node {
		if n, ok := nodes[k]; ok {
			return n
		}
		n := policytest.NewNode(k)
		nodes[k] = n
		return n
	}
	return p, get
}

// Victims come from the LRU end in insertion order.
func TestLRU_EvictsInInsertionOrder(t *testing.T) {
	t.Parallel()

	p, node := newLRU(t)
	for _, k := range []string{"a", "b", "c"} {
		p.OnInsert(node(k))
	}
	if got := policytest.Evict(p); got != "a" {
		t.Fatalf("first victim want a, got %q", got)
	}
	if p.Len() != 2 {
		t.Fatalf("Len want 2, got %d", p.Len())
	}
}

// OnAccess should promote the node to MRU.
func TestLRU_AccessPromotes(t *testing.T) {
	t.Parallel()

	p, node := newLRU(t)
	p.OnInsert(node("a"))
	p.OnInsert(node("b"))
	p.OnAccess(node("a"))

	if got := policytest.Evict(p); got != "b" {
		t.Fatalf("victim want b, got %q", got)
	}
}

// Pinned nodes (in-flight loads) are skipped.
func TestLRU_SkipsPinned(t *testing.T) {
	t.Parallel()

	p, node := newLRU(t)
	p.OnInsert(node("a"))
	p.OnInsert(node("b"))
	node("a").Pin = true

	if got := policytest.Evict(p); got != "b" {
		t.Fatalf("victim want b, got %q", got)
	}
	if got := policytest.Evict(p); got != "" {
		t.Fatalf("only pinned left, want no victim, got %q", got)
	}
}

// OnRemove is idempotent and resets the node's bookkeeping.
func TestLRU_OnRemoveIdempotent(t *testing.T) {
	t.Parallel()

	p, node := newLRU(t)
	n := node("a")
	p.OnInsert(n)
	p.OnRemove(n)
	p.OnRemove(n)

	if n.Meta().Tracked() {
		t.Fatal("meta must be reset after OnRemove")
	}
	if p.Len() != 0 {
		t.Fatalf("Len want 0, got %d", p.Len())
	}
	// Access after removal must not resurrect the node.
	p.OnAccess(n)
	if p.Len() != 0 {
		t.Fatalf("Len want 0 after stray access, got %d", p.Len())
	}
}

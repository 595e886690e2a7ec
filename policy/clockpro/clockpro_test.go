package clockpro

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/heapcache/policy/policytest"
)

type harness struct {
	t     *testing.T
	p     *clockPro[string]
	max   int
	nodes map[string]*policytest.Node
}

func newHarness(t *testing.T, maxSize int) *harness {
	t.Helper()
	return &harness{
		t:     t,
		p:     New[string]().New(maxSize).(*clockPro[string]),
		max:   maxSize,
		nodes: map[string]*policytest.Node{},
	}
}

func (h *harness) node(k string) *policytest.Node {
	if n, ok := h.nodes[k]; ok {
		return n
	}
	n := policytest.NewNode(k)
	h.nodes[k] = n
	return n
}

// put inserts k and evicts down to capacity, the way the cache's eviction
// job does. It returns the evicted keys.
func (h *harness) put(k string) []string {
	h.p.OnInsert(h.node(k))
	var out []string
	for h.p.Len() > h.max {
		v := policytest.Evict(h.p)
		require.NotEmpty(h.t, v, "victim expected while over capacity")
		out = append(out, v)
	}
	return out
}

func (h *harness) resident(k string) bool {
	n, ok := h.nodes[k]
	return ok && n.Meta().Tracked()
}

func TestClockPro_NewPagesStartCold(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4)
	h.put("a")
	h.put("b")

	assert.Equal(t, 2, h.p.cold.Len())
	assert.Equal(t, 0, h.p.hot.Len())
}

// Unreferenced cold pages go first, in arrival order.
func TestClockPro_EvictsUnreferencedCold(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	for _, k := range []string{"a", "b", "c"} {
		h.put(k)
	}
	h.p.OnAccess(h.node("a"))

	evicted := h.put("d")
	require.Equal(t, []string{"b"}, evicted)
	assert.True(t, h.resident("a"))
	assert.Equal(t, 1, h.p.hot.Len(), "referenced page promoted by the cold hand")
}

func TestClockPro_ScanResistance(t *testing.T) {
	t.Parallel()

	const maxSize = 100
	h := newHarness(t, maxSize)

	var working []string
	for i := 0; i < maxSize/2; i++ {
		k := "w" + strconv.Itoa(i)
		working = append(working, k)
		h.put(k)
		h.p.OnAccess(h.node(k))
	}

	for i := 0; i < 20*maxSize; i++ {
		h.put("scan" + strconv.Itoa(i))
	}

	for _, k := range working {
		assert.True(t, h.resident(k), "working set key %s evicted by scan", k)
	}
	assert.Equal(t, maxSize, h.p.Len())
}

// A key evicted from the cold clock and re-admitted soon after starts hot.
func TestClockPro_GhostHitAdmitsHot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4)
	for _, k := range []string{"a", "b", "c", "d"} {
		h.put(k)
	}
	require.Equal(t, []string{"a"}, h.put("e"))
	require.True(t, h.p.ghost.Contains(h.node("a").Hash()))

	before := h.p.coldTarget
	h.put("a")
	assert.True(t, h.p.hot.Contains(h.node("a").Meta().Slot))
	assert.False(t, h.p.ghost.Contains(h.node("a").Hash()))
	assert.GreaterOrEqual(t, h.p.coldTarget, before)
}

// Explicit removal is not an eviction and leaves no history.
func TestClockPro_RemoveLeavesNoGhost(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4)
	h.put("a")
	h.p.OnRemove(h.node("a"))
	h.p.OnRemove(h.node("a"))

	assert.Equal(t, 0, h.p.Len())
	assert.Equal(t, 0, h.p.ghost.Len())
}

func TestClockPro_SkipsPinned(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.put("a")
	h.put("b")
	h.node("a").Pin = true
	h.node("b").Pin = true

	assert.Nil(t, h.p.SelectVictim())

	h.node("b").Pin = false
	v := h.p.SelectVictim()
	require.NotNil(t, v)
	assert.Equal(t, "b", v.Key())
}

// Among unreferenced cold pages within the window the oldest access loses.
func TestClockPro_TieBreakByAccessTime(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 8)
	for i, k := range []string{"a", "b", "c"} {
		h.put(k)
		h.node(k).Access = int64(10 - i)
	}

	v := h.p.SelectVictim()
	require.NotNil(t, v)
	assert.Equal(t, "c", v.Key())
}

func TestClockPro_HotOverflowDemotes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 8)
	for i := 0; i < 8; i++ {
		k := strconv.Itoa(i)
		h.put(k)
		h.p.OnAccess(h.node(k))
	}
	// Every page is referenced; the cold hand promotes them all and the hot
	// hand has to push some back so a victim can be found.
	evicted := h.put("x")
	require.Len(t, evicted, 1)
	assert.LessOrEqual(t, h.p.hot.Len(), 8-h.p.coldMin)
	assert.Equal(t, 8, h.p.Len())
}

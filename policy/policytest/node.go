// Package policytest provides test doubles for exercising policy.Evictor
// implementations without a cache.
package policytest

import (
	"hash/fnv"

	"github.com/IvanBrykalov/heapcache/policy"
)

// Node is a mutable policy.Node for tests.
type Node struct {
	K       string
	H       uint64
	Pin     bool
	Access  int64
	Created int64
	meta    policy.Meta
}

// NewNode returns an unpinned node whose hash is derived from key.
func NewNode(key string) *Node {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return &Node{K: key, H: h.Sum64()}
}

func (n *Node) Key() string        { return n.K }
func (n *Node) Hash() uint64       { return n.H }
func (n *Node) Pinned() bool       { return n.Pin }
func (n *Node) AccessTime() int64  { return n.Access }
func (n *Node) CreateTime() int64  { return n.Created }
func (n *Node) Meta() *policy.Meta { return &n.meta }

var _ policy.Node[string] = (*Node)(nil)

// Evict runs SelectVictim and OnRemove the way the cache does and returns
// the victim's key, or "" when nothing was eligible.
func Evict(e policy.Evictor[string]) string {
	v := e.SelectVictim()
	if v == nil {
		return ""
	}
	e.OnRemove(v)
	return v.Key()
}

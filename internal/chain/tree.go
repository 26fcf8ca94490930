// Package chain holds the tree of proposed block headers that consensus
// votes over: every issuer's latest header becomes a node, tip-support
// counts track how many issuers currently point at each node, and
// getPreferred implements the descent rule that picks where the next
// round should build. Grounded on original_source/src/Consensus/Chain.{hpp,cpp}.
//
// Modeled as an arena (a map keyed by header id) rather than raw
// parent/child pointers forming a cycle, per the re-architecture note on
// avoiding back-pointer cycles; Go's GC makes the cycle itself harmless,
// but the arena remains the single owner so callers (and tests) can walk
// every node without chasing live pointers.
package chain

import (
	"fmt"
	"sort"

	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
)

type node struct {
	id         crypto.Digest
	header     ledger.BlockHeader
	parent     *node
	children   []*node
	validChild *node
	tipSupport int
}

// Tree is the chain-tree of proposed headers, rooted at genesis. All
// mutation happens on the consensus thread; Tree itself does no locking,
// matching the single-owner concurrency model of spec §5.
type Tree struct {
	nodes     map[crypto.Digest]*node
	positions map[crypto.Digest]*node // issuer id -> node holding that issuer's current vote
	valid     *node
	unlSize   int
}

// New builds a tree rooted at genesis. unlSize is the configured UNL
// size used by UpdateValidBlock's 80% threshold and GetPreferred's
// descent rule.
func New(genesis ledger.BlockHeader, unlSize int) *Tree {
	root := &node{id: genesis.ID(), header: genesis}
	return &Tree{
		nodes:     map[crypto.Digest]*node{root.id: root},
		positions: make(map[crypto.Digest]*node),
		valid:     root,
		unlSize:   unlSize,
	}
}

// Insert records issuer's vote for header. If issuer already held a
// position, that node's tip-support is decremented first (unless local).
// A brand-new header becomes a node under its parent, which must already
// be known; an insert whose parent is unknown is rejected — the caller
// logs and drops it, since the parent will either arrive later or never.
func (t *Tree) Insert(issuer crypto.Digest, header ledger.BlockHeader, local bool) error {
	if prevPos, ok := t.positions[issuer]; ok && !local {
		prevPos.tipSupport--
	}

	id := header.ID()
	n, ok := t.nodes[id]
	if !ok {
		parent, ok := t.nodes[header.PrevBlockID]
		if !ok {
			return fmt.Errorf("chain: insert: unknown parent for header at sequence %d", header.Sequence)
		}
		n = &node{id: id, header: header, parent: parent}
		if !local {
			n.tipSupport = 1
		}
		parent.children = append(parent.children, n)
		t.nodes[id] = n
	} else {
		n.tipSupport++
	}
	t.positions[issuer] = n
	return nil
}

// UpdateValidBlock promotes candidate to valid if its tip-support exceeds
// 80% of the UNL and its sequence is ahead of the current valid node.
func (t *Tree) UpdateValidBlock(candidateID crypto.Digest) bool {
	candidate, ok := t.nodes[candidateID]
	if !ok {
		return false
	}
	threshold := 0.8 * float64(t.unlSize)
	if float64(candidate.tipSupport) <= threshold || candidate.header.Sequence <= t.valid.header.Sequence {
		return false
	}
	if candidate.parent != nil {
		candidate.parent.validChild = candidate
	}
	t.valid = candidate
	return true
}

// AssignAccountHashToValid fills in the current valid node's
// account-Merkle root and re-keys it under the resulting new id, since
// the block id depends on every header field including AccountRoot.
func (t *Tree) AssignAccountHashToValid(accountRoot crypto.Digest) {
	v := t.valid
	oldID := v.id
	v.header.AccountRoot = accountRoot
	newID := v.header.ID()
	delete(t.nodes, oldID)
	v.id = newID
	t.nodes[newID] = v
	// parent.validChild and positions already hold the *node pointer, not
	// the old id, so they track the rename automatically.
}

// Valid returns the current valid node's id and header.
func (t *Tree) Valid() (crypto.Digest, ledger.BlockHeader) {
	return t.valid.id, t.valid.header
}

func subtreeSupport(n *node) int {
	total := n.tipSupport
	for _, c := range n.children {
		total += subtreeSupport(c)
	}
	return total
}

// GetPreferred walks down from the current valid node, at each level
// picking the child with the highest subtree support, and stops as soon
// as the uncommitted voter count can no longer change the outcome.
func (t *Tree) GetPreferred() (crypto.Digest, ledger.BlockHeader) {
	current := t.valid
	for len(current.children) > 0 {
		type scored struct {
			n       *node
			support int
		}
		scores := make([]scored, len(current.children))
		for i, c := range current.children {
			scores[i] = scored{c, subtreeSupport(c)}
		}
		// Stable sort: children are already in first-insertion order, so
		// a support tie keeps the earlier-inserted child first.
		sort.SliceStable(scores, func(i, j int) bool { return scores[i].support > scores[j].support })

		best := scores[0]
		secondBest := 0
		if len(scores) > 1 {
			secondBest = scores[1].support
		}
		committed := t.votersAtOrBeyond(best.n.header.Sequence)
		u := t.unlSize - committed

		if u >= best.support || secondBest+u >= best.support {
			break
		}
		current = best.n
	}
	return current.id, current.header
}

func (t *Tree) votersAtOrBeyond(sequence uint32) int {
	count := 0
	for _, n := range t.positions {
		if n.header.Sequence >= sequence {
			count++
		}
	}
	return count
}

// TipSupportSum returns the sum of tip-support over every node, which
// must equal the number of distinct issuers that have voted — a
// testable invariant from spec §8.
func (t *Tree) TipSupportSum() int {
	sum := 0
	for _, n := range t.nodes {
		sum += n.tipSupport
	}
	return sum
}

func (t *Tree) Size() int { return len(t.nodes) }

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

// edgeSig is the hash-consing signature of a node: two (already canonical)
// children and the edge weights.
type edgeSig struct {
	e0, e1 NodeID
	w0, w1 float64
}

// reduce canonicalizes the shard in place:
//   - edges leading to nodes with no path to the sink are cut, and nodes left
//     without any edge are dropped;
//   - structurally identical nodes of a level are collapsed to one;
//   - nodes unreachable from the root are dropped;
//   - the arena is rebuilt dense, ids renumbered level-major (root is 1).
//
// reduce reports false when the root itself has no remaining path to the
// sink, i.e. the equation is unsatisfiable. It is idempotent.
func (s *Shard) reduce() bool {
	last := len(s.levels) - 1
	sink := s.levels[last].nodes[0]
	root := s.levels[0].nodes[0]

	// backward sweep: keep only nodes with a path to the sink
	alive := make([]bool, len(s.nodes))
	alive[sink] = true
	for i := last - 1; i >= 0; i-- {
		for _, id := range s.levels[i].nodes {
			n := &s.nodes[id]
			if n.e0 != nilNode && !alive[n.e0] {
				n.e0, n.w0 = nilNode, 0
			}
			if n.e1 != nilNode && !alive[n.e1] {
				n.e1, n.w1 = nilNode, 0
			}
			alive[id] = n.e0 != nilNode || n.e1 != nilNode
		}
	}
	if !alive[root] {
		return false
	}

	// bottom-up hash-consing; remap[id] is the canonical representative
	remap := make([]NodeID, len(s.nodes))
	remap[sink] = sink
	for i := last - 1; i >= 0; i-- {
		canon := make(map[edgeSig]NodeID, len(s.levels[i].nodes))
		for _, id := range s.levels[i].nodes {
			if !alive[id] {
				continue
			}
			n := &s.nodes[id]
			sig := edgeSig{e0: n.e0, e1: n.e1, w0: n.w0, w1: n.w1}
			if sig.e0 != nilNode {
				sig.e0 = remap[sig.e0]
			}
			if sig.e1 != nilNode {
				sig.e1 = remap[sig.e1]
			}
			if c, ok := canon[sig]; ok {
				remap[id] = c
				continue
			}
			canon[sig] = id
			remap[id] = id
			n.e0, n.e1 = sig.e0, sig.e1
		}
	}
	root = remap[root]

	// forward sweep from the canonical root
	reach := make([]bool, len(s.nodes))
	reach[root] = true
	for i := 0; i < last; i++ {
		for _, id := range s.levels[i].nodes {
			if !alive[id] || remap[id] != id || !reach[id] {
				continue
			}
			n := &s.nodes[id]
			if n.e0 != nilNode {
				reach[n.e0] = true
			}
			if n.e1 != nilNode {
				reach[n.e1] = true
			}
		}
	}
	reach[sink] = true

	// renumber level-major and rebuild the arena dense
	newID := make([]NodeID, len(s.nodes))
	count := 1
	for i := 0; i <= last; i++ {
		for _, id := range s.levels[i].nodes {
			if alive[id] && remap[id] == id && reach[id] {
				newID[id] = NodeID(count)
				count++
			}
		}
	}
	newNodes := make([]node, count)
	for i := 0; i <= last; i++ {
		kept := s.levels[i].nodes[:0]
		for _, id := range s.levels[i].nodes {
			if !(alive[id] && remap[id] == id && reach[id]) {
				continue
			}
			n := s.nodes[id]
			if n.e0 != nilNode {
				n.e0 = newID[remap[n.e0]]
			}
			if n.e1 != nilNode {
				n.e1 = newID[remap[n.e1]]
			}
			n.level = uint32(i)
			newNodes[newID[id]] = n
			kept = append(kept, newID[id])
		}
		s.levels[i].nodes = kept
	}
	s.nodes = newNodes
	return true
}

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

import (
	"errors"
	"fmt"
	"slices"
)

// NodeID addresses a node inside a shard's arena. The zero value is the nil
// node (absent edge).
type NodeID uint32

const nilNode NodeID = 0

// node is a single decision node. e0/e1 point to the next level (nilNode if
// the corresponding value is inconsistent); w0/w1 are the weights accumulated
// when taking the edge (-log2 of a probability or |correlation| contribution,
// 0 for purely linear constraints).
type node struct {
	e0, e1 NodeID
	w0, w1 float64
	level  uint32
}

// level groups the nodes constraining one linear combination of variables.
// lhs is the sorted list of variable ids in the combination; it is empty only
// on the terminal level, which holds the single sink node.
type level struct {
	lhs   []uint32
	nodes []NodeID
}

// Shard is one CRHS equation in canonical form: no two structurally identical
// nodes, no node unreachable from the root, no node without a path to the
// sink. All exported constructors and operations return canonical shards.
type Shard struct {
	id     uint32
	levels []level
	nodes  []node // arena; index 0 is the nil node
	approx bool
}

// ID returns the shard's tag inside a system (the lowest original round index
// it covers).
func (s *Shard) ID() uint32 { return s.id }

// SetID tags the shard. Used by the builder and the solver; has no effect on
// the equation itself.
func (s *Shard) SetID(id uint32) { s.id = id }

// Approximate reports whether pruning has discarded information from this
// shard (directly or in any shard it was merged from).
func (s *Shard) Approximate() bool { return s.approx }

// NbLevels returns the number of levels, terminal level included.
func (s *Shard) NbLevels() int { return len(s.levels) }

// Lhs returns the variable ids constrained at the given level, sorted
// ascending. The returned slice is owned by the shard and must not be
// modified. It is empty for the terminal level.
func (s *Shard) Lhs(level int) []uint32 { return s.levels[level].lhs }

// NodesAt returns the ids of the live nodes at the given level. The returned
// slice is owned by the shard and must not be modified.
func (s *Shard) NodesAt(level int) []NodeID { return s.levels[level].nodes }

// Root returns the shard's root node.
func (s *Shard) Root() NodeID { return s.levels[0].nodes[0] }

// Sink returns the shard's terminal node.
func (s *Shard) Sink() NodeID { return s.levels[len(s.levels)-1].nodes[0] }

// LevelOf returns the level the node sits on.
func (s *Shard) LevelOf(n NodeID) int { return int(s.nodes[n].level) }

// Edge returns the target of the given node's 0- or 1-edge and its weight.
// The target is 0 (nil) when the edge is absent.
func (s *Shard) Edge(n NodeID, bit uint8) (NodeID, float64) {
	if bit == 0 {
		return s.nodes[n].e0, s.nodes[n].w0
	}
	return s.nodes[n].e1, s.nodes[n].w1
}

// NodeCount returns the number of live nodes, sink included.
func (s *Shard) NodeCount() int {
	count := 0
	for i := range s.levels {
		count += len(s.levels[i].nodes)
	}
	return count
}

// EdgeCount returns the number of present edges.
func (s *Shard) EdgeCount() int {
	count := 0
	for i := range s.levels {
		for _, id := range s.levels[i].nodes {
			if s.nodes[id].e0 != nilNode {
				count++
			}
			if s.nodes[id].e1 != nilNode {
				count++
			}
		}
	}
	return count
}

// Vars returns the sorted set of variable ids appearing in the shard's levels.
func (s *Shard) Vars() []uint32 {
	seen := make(map[uint32]struct{})
	for i := range s.levels {
		for _, v := range s.levels[i].lhs {
			seen[v] = struct{}{}
		}
	}
	out := make([]uint32, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Clone returns a deep copy of the shard.
func (s *Shard) Clone() *Shard {
	c := &Shard{
		id:     s.id,
		levels: make([]level, len(s.levels)),
		nodes:  slices.Clone(s.nodes),
		approx: s.approx,
	}
	for i := range s.levels {
		c.levels[i] = level{
			lhs:   slices.Clone(s.levels[i].lhs),
			nodes: slices.Clone(s.levels[i].nodes),
		}
	}
	return c
}

// lhsKey returns a map key identifying a level's linear combination.
func lhsKey(lhs []uint32) string {
	b := make([]byte, 4*len(lhs))
	for i, v := range lhs {
		b[4*i] = byte(v >> 24)
		b[4*i+1] = byte(v >> 16)
		b[4*i+2] = byte(v >> 8)
		b[4*i+3] = byte(v)
	}
	return string(b)
}

// ShardBuilder assembles a shard level by level. Levels must be added in
// order, the last one being the terminal level (empty lhs, single sink node).
// Edges must connect a node to a node on the next level. Build canonicalizes
// the result.
type ShardBuilder struct {
	s *Shard
}

// NewShardBuilder returns an empty builder.
func NewShardBuilder() *ShardBuilder {
	return &ShardBuilder{s: &Shard{
		nodes: make([]node, 1), // slot 0 reserved for the nil node
	}}
}

// AddLevel appends a level constraining the given variable combination and
// returns its index. The lhs is copied and sorted; an empty lhs denotes the
// terminal level.
func (b *ShardBuilder) AddLevel(lhs []uint32) int {
	cp := slices.Clone(lhs)
	slices.Sort(cp)
	cp = slices.Compact(cp)
	b.s.levels = append(b.s.levels, level{lhs: cp})
	return len(b.s.levels) - 1
}

// AddNode creates a node on the given level with no edges and returns its id.
func (b *ShardBuilder) AddNode(lvl int) NodeID {
	id := NodeID(len(b.s.nodes))
	b.s.nodes = append(b.s.nodes, node{level: uint32(lvl)})
	b.s.levels[lvl].nodes = append(b.s.levels[lvl].nodes, id)
	return id
}

// Connect sets the bit-edge of n to child with the given weight.
func (b *ShardBuilder) Connect(n NodeID, bit uint8, child NodeID, weight float64) {
	if bit == 0 {
		b.s.nodes[n].e0 = child
		b.s.nodes[n].w0 = weight
	} else {
		b.s.nodes[n].e1 = child
		b.s.nodes[n].w1 = weight
	}
}

// Build validates the structure, canonicalizes it and returns the shard. The
// builder must not be reused afterwards.
//
// Build returns ErrUnsatisfiable if no root-to-sink path exists.
func (b *ShardBuilder) Build() (*Shard, error) {
	s := b.s
	b.s = nil
	if len(s.levels) < 2 {
		return nil, errors.New("shard needs at least one constrained level and a terminal level")
	}
	last := len(s.levels) - 1
	if len(s.levels[last].lhs) != 0 {
		return nil, errors.New("terminal level must have an empty lhs")
	}
	if len(s.levels[last].nodes) != 1 {
		return nil, fmt.Errorf("terminal level must hold exactly one node, got %d", len(s.levels[last].nodes))
	}
	if len(s.levels[0].nodes) != 1 {
		return nil, fmt.Errorf("root level must hold exactly one node, got %d", len(s.levels[0].nodes))
	}
	for i := 0; i < last; i++ {
		if len(s.levels[i].lhs) == 0 {
			return nil, fmt.Errorf("level %d has an empty lhs", i)
		}
		for _, id := range s.levels[i].nodes {
			if e := s.nodes[id].e0; e != nilNode && s.nodes[e].level != uint32(i+1) {
				return nil, fmt.Errorf("node %d: 0-edge jumps from level %d to %d", id, i, s.nodes[e].level)
			}
			if e := s.nodes[id].e1; e != nilNode && s.nodes[e].level != uint32(i+1) {
				return nil, fmt.Errorf("node %d: 1-edge jumps from level %d to %d", id, i, s.nodes[e].level)
			}
		}
	}
	if !s.reduce() {
		return nil, ErrUnsatisfiable
	}
	return s, nil
}

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

import (
	"math"
	"sort"
)

// PrunePolicy ranks a shard's nodes by how little they contribute to the
// solution set; Prune removes nodes in the returned order. Result quality is
// sensitive to this choice, so it is replaceable rather than hard-coded.
type PrunePolicy interface {
	Name() string

	// Rank returns candidate victims ordered least contribution first. The
	// root and the sink must not appear in the result.
	Rank(s *Shard) []NodeID
}

// sinkMass computes, for every node, the weight mass flowing to the sink:
// the sum over sink-bound paths of 2^-weight. The sink has mass 1.
func sinkMass(s *Shard) []float64 {
	mass := make([]float64, len(s.nodes))
	mass[s.Sink()] = 1
	for i := len(s.levels) - 2; i >= 0; i-- {
		for _, id := range s.levels[i].nodes {
			n := &s.nodes[id]
			var m float64
			if n.e0 != nilNode {
				m += math.Exp2(-n.w0) * mass[n.e0]
			}
			if n.e1 != nilNode {
				m += math.Exp2(-n.w1) * mass[n.e1]
			}
			mass[id] = m
		}
	}
	return mass
}

// heaviestPath returns the nodes of one root-to-sink path of maximal mass,
// choosing the 0-edge on ties.
func heaviestPath(s *Shard, mass []float64) map[NodeID]struct{} {
	path := make(map[NodeID]struct{}, len(s.levels))
	id := s.Root()
	path[id] = struct{}{}
	for int(s.nodes[id].level) < len(s.levels)-1 {
		n := &s.nodes[id]
		var m0, m1 float64
		if n.e0 != nilNode {
			m0 = math.Exp2(-n.w0) * mass[n.e0]
		}
		if n.e1 != nilNode {
			m1 = math.Exp2(-n.w1) * mass[n.e1]
		}
		if n.e0 != nilNode && m0 >= m1 {
			id = n.e0
		} else {
			id = n.e1
		}
		path[id] = struct{}{}
	}
	return path
}

// LeastMassPolicy is the default pruning policy: it removes first the nodes
// carrying the least weight mass toward the sink, i.e. the smallest
// sum over sink-bound paths of 2^-weight. Ties break on ascending node id.
type LeastMassPolicy struct{}

func (LeastMassPolicy) Name() string { return "least-mass" }

func (LeastMassPolicy) Rank(s *Shard) []NodeID {
	mass := sinkMass(s)
	root, sink := s.Root(), s.Sink()
	victims := make([]NodeID, 0, s.NodeCount())
	for i := range s.levels {
		for _, id := range s.levels[i].nodes {
			if id != root && id != sink {
				victims = append(victims, id)
			}
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		if mass[victims[i]] != mass[victims[j]] {
			return mass[victims[i]] < mass[victims[j]]
		}
		return victims[i] < victims[j]
	})
	return victims
}

// Prune discards nodes until the shard holds at most maxNodes, following the
// given policy (LeastMassPolicy if nil). It is the single operation that
// loses information: if any node is removed the shard is marked approximate,
// irreversibly. A shard already within the ceiling is left untouched.
//
// The heaviest root-to-sink path is never pruned, so the shard stays
// satisfiable; pruning only removes solutions, never adds any.
//
// Prune returns the number of nodes removed.
func (s *Shard) Prune(maxNodes int, policy PrunePolicy) int {
	if maxNodes < 1 || s.NodeCount() <= maxNodes {
		return 0
	}
	if policy == nil {
		policy = LeastMassPolicy{}
	}

	removed := 0
	for s.NodeCount() > maxNodes {
		protected := heaviestPath(s, sinkMass(s))
		excess := s.NodeCount() - maxNodes

		dead := make(map[NodeID]struct{}, excess)
		for _, id := range policy.Rank(s) {
			if excess == 0 {
				break
			}
			if _, ok := protected[id]; ok {
				continue
			}
			dead[id] = struct{}{}
			excess--
		}
		if len(dead) == 0 {
			break // nothing more the policy can safely remove
		}

		// cut edges into the victims and drop them; reduce cascades the cleanup
		for i := range s.levels {
			for _, id := range s.levels[i].nodes {
				if _, ok := dead[id]; ok {
					continue
				}
				n := &s.nodes[id]
				if _, ok := dead[n.e0]; ok {
					n.e0, n.w0 = nilNode, 0
				}
				if _, ok := dead[n.e1]; ok {
					n.e1, n.w1 = nilNode, 0
				}
			}
		}
		for i := range s.levels {
			kept := s.levels[i].nodes[:0]
			for _, id := range s.levels[i].nodes {
				if _, ok := dead[id]; !ok {
					kept = append(kept, id)
				}
			}
			s.levels[i].nodes = kept
		}
		removed += len(dead)
		if !s.reduce() {
			// cannot happen: the heaviest path survives intact
			panic("soc: prune disconnected the root")
		}
	}

	if removed > 0 {
		s.approx = true
	}
	return removed
}

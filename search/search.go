// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package search

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/JBever/SOCs/logger"
	"github.com/JBever/SOCs/soc"
)

// Trail is one differential trail or linear hull: the state vector entering
// each round (difference or mask, round 0 first), the output vector of the
// last round (nil for reflective systems, whose last round feeds round 0),
// and the accumulated weight. Approximate is set when the system was pruned
// during solving; the weight is then only a lower bound on the true weight.
type Trail struct {
	Rounds      []*bitset.BitSet
	Output      *bitset.BitSet
	Weight      float64
	Approximate bool
}

// Option configures a search run.
type Option func(*config) error

type config struct {
	limit     int
	maxWeight float64
}

// WithLimit bounds the number of trails returned. Defaults to 10.
func WithLimit(k int) Option {
	return func(c *config) error {
		if k <= 0 {
			return fmt.Errorf("search: limit must be positive, got %d", k)
		}
		c.limit = k
		return nil
	}
}

// WithMaxWeight discards any trail heavier than w. Defaults to no cutoff.
func WithMaxWeight(w float64) Option {
	return func(c *config) error {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("search: invalid weight cutoff %v", w)
		}
		c.maxWeight = w
		return nil
	}
}

// Run enumerates the lightest trails of a solved system, ascending by weight.
// The requested mode must match the mode the system was built for. Levels
// constraining a linear combination of several variables contribute to the
// path weight only; state vectors are read off the single-variable levels.
//
// A solved system is immutable, so concurrent Run calls on the same system
// are safe.
func Run(sys *soc.System, mode soc.Mode, opts ...Option) ([]Trail, error) {
	if sys == nil {
		return nil, errors.New("search: nil system")
	}
	if !sys.Solved() {
		return nil, errors.New("search: system is not solved")
	}
	if mode != sys.Mode {
		return nil, fmt.Errorf("search: system was built for %s analysis, not %s", sys.Mode, mode)
	}
	cfg := config{limit: 10, maxWeight: math.Inf(1)}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	log := logger.Logger().With().Str("cipher", sys.CipherID).Stringer("mode", mode).Logger()
	start := time.Now()

	g := sys.Final()
	bound := sinkBound(g)
	col := &collector{limit: cfg.limit, maxWeight: cfg.maxWeight}

	// the root's branches explore disjoint subtrees; search them concurrently
	var eg errgroup.Group
	for bit := uint8(0); bit < 2; bit++ {
		child, w := g.Edge(g.Root(), bit)
		if child == 0 {
			continue
		}
		eg.Go(func() error {
			dfs(g, bound, col, child, []uint8{bit}, w)
			return nil
		})
	}
	eg.Wait()

	trails := make([]Trail, len(col.entries))
	for i, e := range col.entries {
		trails[i] = reconstruct(sys, e.bits, e.weight)
	}
	log.Debug().
		Int("trails", len(trails)).
		Dur("took", time.Since(start)).
		Msg("search done")
	return trails, nil
}

// dfs runs an explicit-worklist depth-first traversal from the given node,
// abandoning any branch that cannot beat the collector's current cutoff.
func dfs(g *soc.Shard, bound []float64, col *collector, node soc.NodeID, bits []uint8, weight float64) {
	type frame struct {
		node   soc.NodeID
		bits   []uint8
		weight float64
	}
	sink := g.Sink()
	stack := []frame{{node: node, bits: bits, weight: weight}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node == sink {
			col.add(f.bits, f.weight)
			continue
		}
		for bit := uint8(0); bit < 2; bit++ {
			child, w := g.Edge(f.node, bit)
			if child == 0 {
				continue
			}
			total := f.weight + w
			if total+bound[child] > col.cutoff() {
				continue
			}
			path := make([]uint8, len(f.bits)+1)
			copy(path, f.bits)
			path[len(f.bits)] = bit
			stack = append(stack, frame{node: child, bits: path, weight: total})
		}
	}
}

// sinkBound returns, per node, the minimum weight of any path to the sink.
// Lets the traversal discard partial paths by their best possible completion.
func sinkBound(g *soc.Shard) []float64 {
	bound := make([]float64, g.NodeCount()+1)
	for lvl := g.NbLevels() - 2; lvl >= 0; lvl-- {
		for _, n := range g.NodesAt(lvl) {
			best := math.Inf(1)
			for bit := uint8(0); bit < 2; bit++ {
				if child, w := g.Edge(n, bit); child != 0 {
					if b := w + bound[child]; b < best {
						best = b
					}
				}
			}
			bound[n] = best
		}
	}
	return bound
}

type entry struct {
	bits   []uint8
	weight float64
}

// collector keeps the best limit entries seen so far, ascending by weight,
// ties by path bits so results are reproducible across runs.
type collector struct {
	mu        sync.Mutex
	limit     int
	maxWeight float64
	entries   []entry
}

func (c *collector) add(bits []uint8, weight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if weight > c.maxWeight {
		return
	}
	if len(c.entries) == c.limit && weight > c.entries[len(c.entries)-1].weight {
		return
	}
	i, _ := slices.BinarySearchFunc(c.entries, entry{bits: bits, weight: weight}, cmpEntry)
	c.entries = slices.Insert(c.entries, i, entry{bits: bits, weight: weight})
	if len(c.entries) > c.limit {
		c.entries = c.entries[:c.limit]
	}
}

// cutoff returns the weight a new trail must not exceed to be retained.
func (c *collector) cutoff() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == c.limit {
		return c.entries[len(c.entries)-1].weight
	}
	return c.maxWeight
}

func cmpEntry(a, b entry) int {
	switch {
	case a.weight < b.weight:
		return -1
	case a.weight > b.weight:
		return 1
	default:
		return bytes.Compare(a.bits, b.bits)
	}
}

// reconstruct turns a root-to-sink bit path into per-round state vectors via
// the system's variable table.
func reconstruct(sys *soc.System, bits []uint8, weight float64) Trail {
	g := sys.Final()

	nbRounds := 0
	hasOutput := false
	for _, v := range sys.Vars {
		if v.Role == soc.RoleState && int(v.Round)+1 > nbRounds {
			nbRounds = int(v.Round) + 1
		}
		if v.Role == soc.RoleOutput {
			hasOutput = true
		}
	}

	t := Trail{
		Rounds:      make([]*bitset.BitSet, nbRounds),
		Weight:      weight,
		Approximate: sys.Approximate,
	}
	for r := range t.Rounds {
		t.Rounds[r] = bitset.New(uint(sys.Width))
	}
	if hasOutput {
		t.Output = bitset.New(uint(sys.Width))
	}

	for lvl, bit := range bits {
		lhs := g.Lhs(lvl)
		if len(lhs) != 1 || bit == 0 {
			continue
		}
		v := sys.Vars[lhs[0]]
		switch v.Role {
		case soc.RoleState:
			t.Rounds[v.Round].Set(uint(v.Bit))
		case soc.RoleOutput:
			t.Output.Set(uint(v.Bit))
		}
	}
	return t
}

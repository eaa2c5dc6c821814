// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc_test

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JBever/SOCs/soc"
)

// solution is one satisfying assignment of a shard: the value of every linear
// combination appearing in its levels, plus the accumulated weight.
type solution struct {
	asg    map[string]uint8
	weight float64
}

func (s solution) key() string {
	keys := make([]string, 0, len(s.asg))
	for k := range s.asg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%d;", k, s.asg[k])
	}
	return b.String()
}

func combKey(lhs []uint32) string { return fmt.Sprint(lhs) }

// solutions enumerates every root-to-sink path of s. A path taking a second
// occurrence of a combination with a conflicting value is dropped (canonical
// shards never contain one); paths reaching the same assignment keep the
// lightest weight.
func solutions(s *soc.Shard) map[string]solution {
	out := make(map[string]solution)

	var walk func(n soc.NodeID, lvl int, asg map[string]uint8, weight float64)
	walk = func(n soc.NodeID, lvl int, asg map[string]uint8, weight float64) {
		if lvl == s.NbLevels()-1 {
			sol := solution{asg: asg, weight: weight}
			k := sol.key()
			if prev, ok := out[k]; !ok || weight < prev.weight {
				out[k] = sol
			}
			return
		}
		ck := combKey(s.Lhs(lvl))
		for bit := uint8(0); bit < 2; bit++ {
			child, w := s.Edge(n, bit)
			if child == 0 {
				continue
			}
			if v, ok := asg[ck]; ok && v != bit {
				continue
			}
			next := make(map[string]uint8, len(asg)+1)
			for k, v := range asg {
				next[k] = v
			}
			next[ck] = bit
			walk(child, lvl+1, next, weight+w)
		}
	}
	walk(s.Root(), 0, map[string]uint8{}, 0)
	return out
}

// join computes the expected solution set of a merge: pairs of solutions
// agreeing on every shared combination, assignments united, weights added.
func join(a, b map[string]solution) map[string]solution {
	out := make(map[string]solution)
	for _, sa := range a {
		for _, sb := range b {
			ok := true
			for k, v := range sa.asg {
				if w, shared := sb.asg[k]; shared && w != v {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			asg := make(map[string]uint8, len(sa.asg)+len(sb.asg))
			for k, v := range sa.asg {
				asg[k] = v
			}
			for k, v := range sb.asg {
				asg[k] = v
			}
			sol := solution{asg: asg, weight: sa.weight + sb.weight}
			k := sol.key()
			if prev, exists := out[k]; !exists || sol.weight < prev.weight {
				out[k] = sol
			}
		}
	}
	return out
}

// sameSolutions reports whether two solution sets agree, weights compared
// with a small tolerance.
func sameSolutions(want, got map[string]solution) bool {
	if len(want) != len(got) {
		return false
	}
	for k, w := range want {
		g, ok := got[k]
		if !ok || g.weight-w.weight > 1e-9 || w.weight-g.weight > 1e-9 {
			return false
		}
	}
	return true
}

func requireSameSolutions(t *testing.T, want, got map[string]solution) {
	t.Helper()
	require.Equal(t, len(want), len(got), "solution count mismatch")
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			t.Fatalf("missing solution %s", k)
		}
		require.InDelta(t, w.weight, g.weight, 1e-9, "weight mismatch for %s", k)
	}
}

// pathShard builds a shard over the given single-variable levels where each
// row of paths lists the allowed (bits..., weight on last edge) combinations.
func pathShard(t *testing.T, vars []uint32, paths [][]uint8, weights []float64) *soc.Shard {
	t.Helper()
	sb := soc.NewShardBuilder()
	for _, v := range vars {
		sb.AddLevel([]uint32{v})
	}
	sb.AddLevel(nil)

	type key struct {
		lvl    int
		prefix string
	}
	nodes := map[key]soc.NodeID{{0, ""}: sb.AddNode(0)}
	sink := sb.AddNode(len(vars))
	for pi, p := range paths {
		require.Len(t, p, len(vars))
		cur := nodes[key{0, ""}]
		for d, bit := range p {
			if d == len(vars)-1 {
				sb.Connect(cur, bit, sink, weights[pi])
				break
			}
			k := key{d + 1, string(p[:d+1])}
			child, ok := nodes[k]
			if !ok {
				child = sb.AddNode(d + 1)
				nodes[k] = child
			}
			sb.Connect(cur, bit, child, 0)
			cur = child
		}
	}
	s, err := sb.Build()
	require.NoError(t, err)
	return s
}

// randomShard derives a reproducible shard from a seed: a random subset of
// vars, one to three nodes per level, random edges and small weights. Returns
// nil when the random construction is unsatisfiable.
func randomShard(seed uint64, vars []uint32) *soc.Shard {
	r := rand.New(rand.NewPCG(seed, 0x5eed))

	vs := append([]uint32(nil), vars...)
	r.Shuffle(len(vs), func(i, j int) { vs[i], vs[j] = vs[j], vs[i] })
	vs = vs[:1+r.IntN(len(vs))]

	sb := soc.NewShardBuilder()
	for _, v := range vs {
		sb.AddLevel([]uint32{v})
	}
	sb.AddLevel(nil)

	prev := []soc.NodeID{sb.AddNode(0)}
	for lvl := 1; lvl <= len(vs); lvl++ {
		var cur []soc.NodeID
		if lvl == len(vs) {
			cur = []soc.NodeID{sb.AddNode(lvl)}
		} else {
			for i := 0; i < 1+r.IntN(3); i++ {
				cur = append(cur, sb.AddNode(lvl))
			}
		}
		for _, n := range prev {
			for bit := uint8(0); bit < 2; bit++ {
				if r.IntN(4) == 0 {
					continue // absent edge
				}
				sb.Connect(n, bit, cur[r.IntN(len(cur))], float64(r.IntN(3)))
			}
		}
		prev = cur
	}

	s, err := sb.Build()
	if err != nil {
		return nil
	}
	return s
}

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

import (
	"slices"
)

// Merge computes the product of two shards, restricted to the variables they
// share: the result's root-to-sink paths are exactly the pairs of paths in a
// and b that agree on every shared linear combination.
//
// The result's levels are a's levels followed by b's levels. The first
// occurrence of a shared combination branches as usual; every later
// occurrence is forced to the recorded value, so b's copy of a shared level
// degenerates to single-edge nodes (its weights are preserved). Weights along
// a path add up.
//
// Merge returns ErrUnsatisfiable when no pair of paths agrees. The result is
// canonical, tagged with the smaller of the two shard ids, and approximate if
// either input is.
func Merge(a, b *Shard) (*Shard, error) {
	la := len(a.levels) - 1 // constrained levels of a
	lb := len(b.levels) - 1 // constrained levels of b

	aKeys := make([]string, la)
	for i := 0; i < la; i++ {
		aKeys[i] = lhsKey(a.levels[i].lhs)
	}
	bKeys := make([]string, lb)
	for j := 0; j < lb; j++ {
		bKeys[j] = lhsKey(b.levels[j].lhs)
	}

	// index the shared combinations
	inA := make(map[string]struct{}, la)
	for _, k := range aKeys {
		inA[k] = struct{}{}
	}
	sharedSet := make(map[string]struct{})
	for _, k := range bKeys {
		if _, ok := inA[k]; ok {
			sharedSet[k] = struct{}{}
		}
	}
	sharedKeys := make([]string, 0, len(sharedSet))
	for k := range sharedSet {
		sharedKeys = append(sharedKeys, k)
	}
	slices.Sort(sharedKeys)
	sharedIdx := make(map[string]int, len(sharedKeys))
	for i, k := range sharedKeys {
		sharedIdx[k] = i
	}
	nbShared := len(sharedKeys)

	// bNeed[j] lists the shared indices still constrained at b's levels >= j;
	// a state's key in the b half only retains those values.
	bNeed := make([][]int, lb+1)
	bNeed[lb] = nil
	for j := lb - 1; j >= 0; j-- {
		need := bNeed[j+1]
		if idx, ok := sharedIdx[bKeys[j]]; ok && !slices.Contains(need, idx) {
			need = append(slices.Clone(need), idx)
			slices.Sort(need)
		}
		bNeed[j] = need
	}

	sb := NewShardBuilder()
	for i := 0; i < la; i++ {
		sb.AddLevel(a.levels[i].lhs)
	}
	for j := 0; j <= lb; j++ {
		sb.AddLevel(b.levels[j].lhs)
	}
	total := la + lb + 1 // result levels, terminal included

	type state struct {
		res NodeID
		src NodeID // node in a (levels < la) or b (levels >= la)
		asg []int8 // recorded values of shared combinations, -1 if unset
	}

	stateKey := func(lvl int, src NodeID, asg []int8) string {
		var need []int8
		if lvl < la {
			need = asg
		} else {
			restricted := make([]int8, 0, len(bNeed[lvl-la]))
			for _, idx := range bNeed[lvl-la] {
				restricted = append(restricted, asg[idx])
			}
			need = restricted
		}
		key := make([]byte, 0, 4+len(need))
		key = append(key, byte(src>>24), byte(src>>16), byte(src>>8), byte(src))
		for _, v := range need {
			key = append(key, byte(v))
		}
		return string(key)
	}

	rootAsg := make([]int8, nbShared)
	for i := range rootAsg {
		rootAsg[i] = -1
	}
	frontier := map[string]*state{
		stateKey(0, a.Root(), rootAsg): {res: sb.AddNode(0), src: a.Root(), asg: rootAsg},
	}

	for lvl := 0; lvl < total-1; lvl++ {
		next := make(map[string]*state)
		childOf := func(lvl int, src NodeID, asg []int8) *state {
			k := stateKey(lvl, src, asg)
			st, ok := next[k]
			if !ok {
				st = &state{res: sb.AddNode(lvl), src: src, asg: asg}
				next[k] = st
			}
			return st
		}

		// iterate in key order so node numbering (and everything downstream,
		// pruning tie-breaks included) is reproducible
		keys := make([]string, 0, len(frontier))
		for k := range frontier {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, k := range keys {
			st := frontier[k]
			var key string
			var from *Shard
			if lvl < la {
				key, from = aKeys[lvl], a
			} else {
				key, from = bKeys[lvl-la], b
			}
			idx, isShared := sharedIdx[key]

			for bit := uint8(0); bit < 2; bit++ {
				child, w := from.Edge(st.src, bit)
				if child == nilNode {
					continue
				}
				asg := st.asg
				if isShared {
					if v := asg[idx]; v >= 0 {
						if v != int8(bit) {
							continue
						}
					} else if lvl < la {
						asg = slices.Clone(asg)
						asg[idx] = int8(bit)
					}
				}

				var cst *state
				switch {
				case lvl+1 < la:
					// still inside a
					cst = childOf(lvl+1, child, asg)
				case lvl+1 == la:
					// crossing from a into b; a's sink is dropped
					cst = childOf(lvl+1, b.Root(), asg)
				case lvl+1 == total-1:
					// b's sink becomes the result sink
					cst = childOf(lvl+1, child, asg)
				default:
					cst = childOf(lvl+1, child, asg)
				}
				sb.Connect(st.res, bit, cst.res, w)
			}
		}
		// forced values can kill every child at once; the product is then
		// empty and Build would reject the half-filled shard
		if len(next) == 0 {
			return nil, ErrUnsatisfiable
		}
		frontier = next
	}

	merged, err := sb.Build()
	if err != nil {
		return nil, err
	}
	merged.id = min(a.id, b.id)
	merged.approx = a.approx || b.approx
	return merged, nil
}

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package spn

import (
	"slices"

	"github.com/JBever/SOCs/soc"
)

// linearShard builds the CRHS equation of out = M * in. Levels consume the
// input bits in order; each output bit is emitted (as a forced, single-edge
// level) as soon as its last dependency has been consumed, which keeps the
// number of distinct partial syndromes small for sparse and permutation-like
// matrices. Dense rows keep more syndromes open and the shard grows
// accordingly; that blow-up is inherent to the representation.
func linearShard(m *Matrix, in, out []uint32) (*soc.Shard, error) {
	rows, cols := m.Rows(), m.Cols()

	lastDep := make([]int, rows)
	for j := 0; j < rows; j++ {
		deps := m.RowCols(j)
		if len(deps) == 0 {
			lastDep[j] = -1
			continue
		}
		lastDep[j] = deps[len(deps)-1]
	}
	colRows := make([][]int, cols)
	for j := 0; j < rows; j++ {
		for _, i := range m.RowCols(j) {
			colRows[i] = append(colRows[i], j)
		}
	}

	// level program: inputs in order, outputs as soon as determined
	type step struct {
		output bool
		idx    int
	}
	var program []step
	for j := 0; j < rows; j++ {
		if lastDep[j] == -1 {
			program = append(program, step{output: true, idx: j})
		}
	}
	for i := 0; i < cols; i++ {
		program = append(program, step{idx: i})
		for j := 0; j < rows; j++ {
			if lastDep[j] == i {
				program = append(program, step{output: true, idx: j})
			}
		}
	}

	// pending[p] lists the rows not yet emitted when entering step p; a
	// state's identity is the parity of exactly those rows
	pending := make([][]int, len(program)+1)
	pending[len(program)] = nil
	for p := len(program) - 1; p >= 0; p-- {
		pending[p] = pending[p+1]
		if program[p].output {
			withJ := append([]int{program[p].idx}, pending[p+1]...)
			slices.Sort(withJ)
			pending[p] = withJ
		}
	}

	sb := soc.NewShardBuilder()
	for _, st := range program {
		if st.output {
			sb.AddLevel([]uint32{out[st.idx]})
		} else {
			sb.AddLevel([]uint32{in[st.idx]})
		}
	}
	sb.AddLevel(nil)

	type state struct {
		res    soc.NodeID
		parity []uint8
	}
	stateKey := func(p int, parity []uint8) string {
		key := make([]byte, len(pending[p]))
		for i, j := range pending[p] {
			key[i] = parity[j]
		}
		return string(key)
	}

	zero := make([]uint8, rows)
	frontier := map[string]*state{
		stateKey(0, zero): {res: sb.AddNode(0), parity: zero},
	}
	for p := 0; p < len(program); p++ {
		next := make(map[string]*state)
		childOf := func(parity []uint8) *state {
			k := stateKey(p+1, parity)
			st, ok := next[k]
			if !ok {
				st = &state{res: sb.AddNode(p + 1), parity: parity}
				next[k] = st
			}
			return st
		}

		keys := make([]string, 0, len(frontier))
		for k := range frontier {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, k := range keys {
			st := frontier[k]
			if program[p].output {
				// forced: the output bit equals the accumulated parity
				sb.Connect(st.res, st.parity[program[p].idx], childOf(st.parity).res, 0)
				continue
			}
			// input bit: 0 leaves the syndromes alone, 1 toggles its rows
			sb.Connect(st.res, 0, childOf(st.parity).res, 0)
			flipped := slices.Clone(st.parity)
			for _, j := range colRows[program[p].idx] {
				flipped[j] ^= 1
			}
			sb.Connect(st.res, 1, childOf(flipped).res, 0)
		}
		frontier = next
	}

	return sb.Build()
}

// sboxShard builds the CRHS equation of a substitution layer: per chunk, the
// input bits then the output bits, the union of all weighted transitions. The
// transition weight sits on the last edge of the chunk; within a chunk, level
// k holds bit Bits()-1-k of the transition patterns.
func sboxShard(sub Substitution, in, out []uint32, mode soc.Mode) (*soc.Shard, error) {
	m := sub.Bits()
	chunks := len(in) / m
	trs := sub.Transitions(mode)
	if len(trs) == 0 {
		return nil, configErrorf("substitution has no possible %s transition", mode)
	}

	sb := soc.NewShardBuilder()
	for c := 0; c < chunks; c++ {
		for k := 0; k < m; k++ {
			sb.AddLevel([]uint32{in[c*m+k]})
		}
		for k := 0; k < m; k++ {
			sb.AddLevel([]uint32{out[c*m+k]})
		}
	}
	sb.AddLevel(nil)

	entry := sb.AddNode(0) // root, then each chunk's entry node
	for c := 0; c < chunks; c++ {
		base := c * 2 * m
		var exit soc.NodeID
		if c == chunks-1 {
			exit = sb.AddNode(base + 2*m) // the sink
		} else {
			exit = sb.AddNode(base + 2*m) // next chunk's entry
		}

		// trie over the 2m-bit transition strings, weight on the final edge
		trie := map[string]soc.NodeID{"": entry}
		for _, t := range trs {
			pattern := make([]byte, 2*m)
			for k := 0; k < m; k++ {
				pattern[k] = byte(t.In>>(m-1-k)) & 1
				pattern[m+k] = byte(t.Out>>(m-1-k)) & 1
			}
			cur := entry
			for d := 0; d < 2*m; d++ {
				bit := pattern[d]
				if d == 2*m-1 {
					sb.Connect(cur, bit, exit, t.Weight)
					break
				}
				prefix := string(pattern[:d+1])
				child, ok := trie[prefix]
				if !ok {
					child = sb.AddNode(base + d + 1)
					trie[prefix] = child
				}
				sb.Connect(cur, bit, child, 0)
				cur = child
			}
		}
		entry = exit
	}

	return sb.Build()
}

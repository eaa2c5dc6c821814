// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package spn_test

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JBever/SOCs/internal/smallspn"
	"github.com/JBever/SOCs/soc"
	"github.com/JBever/SOCs/spn"
)

// shardSolutions enumerates the root-to-sink paths of a shard built over
// single-variable levels, as "var=bit" assignments mapped to path weight.
func shardSolutions(s *soc.Shard) map[string]float64 {
	out := make(map[string]float64)
	var walk func(n soc.NodeID, lvl int, asg map[uint32]uint8, weight float64)
	walk = func(n soc.NodeID, lvl int, asg map[uint32]uint8, weight float64) {
		if lvl == s.NbLevels()-1 {
			keys := make([]uint32, 0, len(asg))
			for v := range asg {
				keys = append(keys, v)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
			var b strings.Builder
			for _, v := range keys {
				fmt.Fprintf(&b, "%d=%d;", v, asg[v])
			}
			k := b.String()
			if w, ok := out[k]; !ok || weight < w {
				out[k] = weight
			}
			return
		}
		v := s.Lhs(lvl)[0]
		for bit := uint8(0); bit < 2; bit++ {
			child, w := s.Edge(n, bit)
			if child == 0 {
				continue
			}
			if prev, ok := asg[v]; ok && prev != bit {
				continue
			}
			next := make(map[uint32]uint8, len(asg)+1)
			for k, b := range asg {
				next[k] = b
			}
			next[v] = bit
			walk(child, lvl+1, next, weight+w)
		}
	}
	walk(s.Root(), 0, map[uint32]uint8{}, 0)
	return out
}

func TestBuildToy(t *testing.T) {
	sys, err := spn.Build(smallspn.Toy(), soc.Differential)
	require.NoError(t, err)

	require.Equal(t, 2, sys.NbShards())
	require.Equal(t, soc.Differential, sys.Mode)
	require.Equal(t, 4, sys.Width)
	require.Equal(t, "toy", sys.CipherID)
	require.False(t, sys.Solved())

	require.Equal(t, uint32(0), sys.Shard(0).ID())
	require.Equal(t, uint32(1), sys.Shard(1).ID())

	// rounds share exactly the four connected state bits
	shared := intersect(sys.Shard(0).Vars(), sys.Shard(1).Vars())
	require.Len(t, shared, 4)

	require.Len(t, sys.Connections, 1)
	c := sys.Connections[0]
	require.Equal(t, 0, c.From)
	require.Equal(t, 1, c.To)
	require.False(t, c.Back)
	require.Equal(t, []uint16{0, 1, 2, 3}, c.Bits)
}

func TestBuildSingleRoundMatchesDDT(t *testing.T) {
	c := smallspn.Toy()
	c.Linear = c.Linear[:1]
	c.Subs = c.Subs[:1]

	sys, err := spn.Build(c, soc.Differential)
	require.NoError(t, err)
	require.Equal(t, 1, sys.NbShards())
	require.Len(t, sys.Vars, 12) // x, u, y

	// brute-force the DDT
	lut := smallspn.PresentLUT
	counts := make([][]int, 16)
	for din := range counts {
		counts[din] = make([]int, 16)
		for x := 0; x < 16; x++ {
			counts[din][lut[x]^lut[x^din]]++
		}
	}
	expected := make(map[string]float64)
	for din := 0; din < 16; din++ {
		for dout := 0; dout < 16; dout++ {
			if counts[din][dout] == 0 {
				continue
			}
			var b strings.Builder
			// x0..x3 carry din MSB first, u and y carry dout
			for k := 0; k < 4; k++ {
				fmt.Fprintf(&b, "%d=%d;", k, (din>>(3-k))&1)
			}
			for k := 0; k < 4; k++ {
				fmt.Fprintf(&b, "%d=%d;", 4+k, (dout>>(3-k))&1)
			}
			for k := 0; k < 4; k++ {
				fmt.Fprintf(&b, "%d=%d;", 8+k, (dout>>(3-k))&1)
			}
			expected[b.String()] = 4 - math.Log2(float64(counts[din][dout]))
		}
	}

	got := shardSolutions(sys.Shard(0))
	require.Equal(t, len(expected), len(got))
	for k, w := range expected {
		gw, ok := got[k]
		require.True(t, ok, "missing trail %s", k)
		require.InDelta(t, w, gw, 1e-9)
	}
}

func TestBuildVariableRoles(t *testing.T) {
	c := smallspn.Toy()
	c.Linear = c.Linear[:1]
	c.Subs = c.Subs[:1]
	sys, err := spn.Build(c, soc.Differential)
	require.NoError(t, err)

	roles := map[soc.VarRole]int{}
	for _, v := range sys.Vars {
		roles[v.Role]++
	}
	require.Equal(t, 4, roles[soc.RoleState])
	require.Equal(t, 4, roles[soc.RoleInternal])
	require.Equal(t, 4, roles[soc.RoleOutput])
}

func TestBuildReflective(t *testing.T) {
	sys, err := spn.Build(smallspn.ReflectiveToy(), soc.Differential)
	require.NoError(t, err)

	require.Len(t, sys.Connections, 2)
	var backs int
	for _, c := range sys.Connections {
		if c.Back {
			backs++
			require.Equal(t, 1, c.From)
			require.Equal(t, 0, c.To)
		}
	}
	require.Equal(t, 1, backs)

	// the last round's output is identified with the first round's input, so
	// the two shards share both state vectors
	shared := intersect(sys.Shard(0).Vars(), sys.Shard(1).Vars())
	require.Len(t, shared, 8)

	// no fresh output variables in a reflective system
	for _, v := range sys.Vars {
		require.NotEqual(t, soc.RoleOutput, v.Role)
	}
}

func TestBuildLinearMode(t *testing.T) {
	sys, err := spn.Build(smallspn.Toy(), soc.Linear)
	require.NoError(t, err)
	require.Equal(t, soc.Linear, sys.Mode)
	require.Equal(t, 2, sys.NbShards())
}

func TestBuildMiniPresent(t *testing.T) {
	sys, err := spn.Build(smallspn.MiniPresent(3), soc.Differential)
	require.NoError(t, err)
	require.Equal(t, 3, sys.NbShards())
	require.Equal(t, 16, sys.Width)
	require.Len(t, sys.Connections, 2)
	for i, s := range sys.Shards() {
		require.Equal(t, uint32(i), s.ID())
		require.Greater(t, s.NodeCount(), 16)
	}
}

func TestBuildConfigurationErrors(t *testing.T) {
	requireConfigErr := func(t *testing.T, err error) {
		t.Helper()
		require.Error(t, err)
		var ce *spn.ConfigurationError
		require.True(t, errors.As(err, &ce), "want ConfigurationError, got %v", err)
	}

	t.Run("no rounds", func(t *testing.T) {
		c := smallspn.Toy()
		c.Linear = nil
		c.Subs = nil
		_, err := spn.Build(c, soc.Differential)
		requireConfigErr(t, err)
	})

	t.Run("nil linear layer", func(t *testing.T) {
		c := smallspn.Toy()
		c.Linear[1] = nil
		_, err := spn.Build(c, soc.Differential)
		requireConfigErr(t, err)
	})

	t.Run("linear layer dimension mismatch", func(t *testing.T) {
		c := smallspn.Toy()
		c.Linear[0] = spn.Identity(3)
		_, err := spn.Build(c, soc.Differential)
		requireConfigErr(t, err)
	})

	t.Run("chunk size does not divide width", func(t *testing.T) {
		c := smallspn.Toy()
		c.Width = 6
		_, err := spn.Build(c, soc.Differential)
		requireConfigErr(t, err)
	})

	t.Run("reflective single round", func(t *testing.T) {
		c := smallspn.Toy()
		c.Linear = c.Linear[:1]
		c.Subs = c.Subs[:1]
		c.Reflect = true
		_, err := spn.Build(c, soc.Differential)
		requireConfigErr(t, err)
	})

	t.Run("connection not a bijection", func(t *testing.T) {
		c := smallspn.Toy()
		c.Conn = []uint16{0, 0, 1, 2}
		_, err := spn.Build(c, soc.Differential)
		requireConfigErr(t, err)
	})

	t.Run("connection out of range", func(t *testing.T) {
		c := smallspn.Toy()
		c.Conn = []uint16{0, 1, 2, 7}
		_, err := spn.Build(c, soc.Differential)
		requireConfigErr(t, err)
	})
}

func intersect(a, b []uint32) []uint32 {
	var out []uint32
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

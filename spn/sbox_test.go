// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package spn_test

import (
	"math"
	"math/bits"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JBever/SOCs/soc"
	"github.com/JBever/SOCs/spn"
)

var presentLUT = []uint8{0xC, 0x5, 0x6, 0xB, 0x9, 0x0, 0xA, 0xD, 0x3, 0xE, 0xF, 0x8, 0x4, 0x7, 0x1, 0x2}

func TestNewSBoxValidation(t *testing.T) {
	_, err := spn.NewSBox([]uint8{0, 1, 2})
	require.Error(t, err, "length not a power of two")

	_, err = spn.NewSBox([]uint8{0, 4})
	require.Error(t, err, "entry exceeds input width")

	s, err := spn.NewSBox(presentLUT)
	require.NoError(t, err)
	require.Equal(t, 4, s.Bits())
}

func TestDDT(t *testing.T) {
	s, err := spn.NewSBox(presentLUT)
	require.NoError(t, err)

	counts := make([][]int, 16)
	for din := range counts {
		counts[din] = make([]int, 16)
		for x := 0; x < 16; x++ {
			counts[din][presentLUT[x]^presentLUT[x^din]]++
		}
	}

	trs := s.Transitions(soc.Differential)
	require.True(t, sort.SliceIsSorted(trs, func(i, j int) bool {
		if trs[i].In != trs[j].In {
			return trs[i].In < trs[j].In
		}
		return trs[i].Out < trs[j].Out
	}))

	seen := make(map[[2]uint16]float64)
	for _, tr := range trs {
		seen[[2]uint16{tr.In, tr.Out}] = tr.Weight
	}
	for din := 0; din < 16; din++ {
		for dout := 0; dout < 16; dout++ {
			w, ok := seen[[2]uint16{uint16(din), uint16(dout)}]
			if counts[din][dout] == 0 {
				require.False(t, ok, "impossible transition (%d,%d) present", din, dout)
				continue
			}
			require.True(t, ok, "transition (%d,%d) missing", din, dout)
			require.InDelta(t, 4-math.Log2(float64(counts[din][dout])), w, 1e-12)
		}
	}

	// per input difference, probabilities add up to 1
	for din := 0; din < 16; din++ {
		var p float64
		for _, tr := range trs {
			if int(tr.In) == din {
				p += math.Exp2(-tr.Weight)
			}
		}
		require.InDelta(t, 1.0, p, 1e-9)
	}
}

func TestLAT(t *testing.T) {
	s, err := spn.NewSBox(presentLUT)
	require.NoError(t, err)

	walsh := func(a, b int) int {
		sum := 0
		for x := 0; x < 16; x++ {
			if bits.OnesCount(uint(a&x)^uint(b&int(presentLUT[x])))%2 == 0 {
				sum++
			} else {
				sum--
			}
		}
		return sum
	}

	trs := s.Transitions(soc.Linear)
	seen := make(map[[2]uint16]float64)
	for _, tr := range trs {
		seen[[2]uint16{tr.In, tr.Out}] = tr.Weight
	}
	for a := 0; a < 16; a++ {
		for b := 0; b < 16; b++ {
			w := walsh(a, b)
			got, ok := seen[[2]uint16{uint16(a), uint16(b)}]
			if w == 0 {
				require.False(t, ok, "zero-correlation mask pair (%d,%d) present", a, b)
				continue
			}
			require.True(t, ok, "mask pair (%d,%d) missing", a, b)
			require.InDelta(t, 4-math.Log2(math.Abs(float64(w))), got, 1e-12)
		}
	}
}

func TestTransitionsCachedPerMode(t *testing.T) {
	s, err := spn.NewSBox(presentLUT)
	require.NoError(t, err)

	d1 := s.Transitions(soc.Differential)
	d2 := s.Transitions(soc.Differential)
	require.Equal(t, &d1[0], &d2[0], "tables must be derived once")

	l := s.Transitions(soc.Linear)
	require.NotEqual(t, len(d1), 0)
	require.NotEqual(t, len(l), 0)
}

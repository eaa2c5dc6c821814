// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package spn

import (
	"math"
	"math/bits"
	"sync"

	"github.com/JBever/SOCs/soc"
)

// SBox is a substitution box given by its lookup table. The differential and
// linear transition tables (DDT and LAT) are derived lazily, once, on first
// use; an SBox is safe for concurrent use afterwards.
type SBox struct {
	lut  []uint8
	bits int

	once        [2]sync.Once
	transitions [2][]Transition
}

// NewSBox returns the S-box with the given lookup table. The table length
// must be a power of two and every entry must fit the input width.
func NewSBox(lut []uint8) (*SBox, error) {
	n := len(lut)
	if n < 2 || n&(n-1) != 0 {
		return nil, configErrorf("s-box table length %d is not a power of two", n)
	}
	b := bits.TrailingZeros(uint(n))
	for i, v := range lut {
		if int(v) >= n {
			return nil, configErrorf("s-box entry %d = %d exceeds %d bits", i, v, b)
		}
	}
	return &SBox{lut: append([]uint8(nil), lut...), bits: b}, nil
}

// Bits returns the S-box input/output width.
func (s *SBox) Bits() int { return s.bits }

// Transitions returns the weighted transition table for the given mode:
// for Differential, entries of the DDT with weight -log2(count/2^n); for
// Linear, non-zero entries of the LAT with weight -log2(|walsh|/2^n).
func (s *SBox) Transitions(mode soc.Mode) []Transition {
	s.once[mode].Do(func() {
		switch mode {
		case soc.Differential:
			s.transitions[mode] = s.ddt()
		case soc.Linear:
			s.transitions[mode] = s.lat()
		}
	})
	return s.transitions[mode]
}

func (s *SBox) ddt() []Transition {
	n := len(s.lut)
	counts := make([]int, n*n)
	for din := 0; din < n; din++ {
		for x := 0; x < n; x++ {
			dout := int(s.lut[x] ^ s.lut[x^din])
			counts[din*n+dout]++
		}
	}
	logN := math.Log2(float64(n))
	out := make([]Transition, 0, n*n/2)
	for din := 0; din < n; din++ {
		for dout := 0; dout < n; dout++ {
			if c := counts[din*n+dout]; c > 0 {
				out = append(out, Transition{
					In:     uint16(din),
					Out:    uint16(dout),
					Weight: logN - math.Log2(float64(c)),
				})
			}
		}
	}
	return out
}

func (s *SBox) lat() []Transition {
	n := len(s.lut)
	logN := math.Log2(float64(n))
	out := make([]Transition, 0, n*n/2)
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			walsh := 0
			for x := 0; x < n; x++ {
				if bits.OnesCount(uint(a&x)^uint(b&int(s.lut[x])))%2 == 0 {
					walsh++
				} else {
					walsh--
				}
			}
			if walsh != 0 {
				out = append(out, Transition{
					In:     uint16(a),
					Out:    uint16(b),
					Weight: logN - math.Log2(math.Abs(float64(walsh))),
				})
			}
		}
	}
	return out
}

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package smallspn provides small block ciphers used across the test suites:
// toy constructions whose trail weights can be brute-forced, including a
// deliberately contradictory one and a reflective one.
package smallspn

import (
	"github.com/JBever/SOCs/soc"
	"github.com/JBever/SOCs/spn"
)

// PresentLUT is the 4-bit PRESENT S-box.
var PresentLUT = []uint8{0xC, 0x5, 0x6, 0xB, 0x9, 0x0, 0xA, 0xD, 0x3, 0xE, 0xF, 0x8, 0x4, 0x7, 0x1, 0x2}

// Cipher is a CipherSpec backed by plain per-round tables.
type Cipher struct {
	CipherName string
	Width      int
	Linear     []*spn.Matrix      // one per round
	Subs       []spn.Substitution // one per round
	Conn       []uint16           // same map between all rounds; identity if nil
	Reflect    bool
}

func (c *Cipher) Name() string    { return c.CipherName }
func (c *Cipher) Params() []uint64 {
	return []uint64{uint64(c.Width), uint64(len(c.Linear))}
}
func (c *Cipher) Rounds() int                          { return len(c.Linear) }
func (c *Cipher) StateWidth() int                      { return c.Width }
func (c *Cipher) LinearLayer(round int) *spn.Matrix    { return c.Linear[round] }
func (c *Cipher) NonlinearLayer(round int) spn.Substitution { return c.Subs[round] }
func (c *Cipher) Reflective() bool                     { return c.Reflect }

func (c *Cipher) Connection(round int) []uint16 {
	if c.Conn != nil {
		return c.Conn
	}
	conn := make([]uint16, c.Width)
	for i := range conn {
		conn[i] = uint16(i)
	}
	return conn
}

func mustSBox(lut []uint8) *spn.SBox {
	s, err := spn.NewSBox(lut)
	if err != nil {
		panic(err)
	}
	return s
}

// Toy returns a 2-round, 4-bit cipher: one PRESENT S-box per round, identity
// linear layer, identity connection. Small enough to brute-force all trails.
func Toy() *Cipher {
	s := mustSBox(PresentLUT)
	return &Cipher{
		CipherName: "toy",
		Width:      4,
		Linear:     []*spn.Matrix{spn.Identity(4), spn.Identity(4)},
		Subs:       []spn.Substitution{s, s},
	}
}

// ReflectiveToy returns Toy with the last round's output fed back onto the
// first round's input.
func ReflectiveToy() *Cipher {
	c := Toy()
	c.CipherName = "toy-reflective"
	c.Reflect = true
	return c
}

// Contradiction returns a 2-round cipher with no valid trail: round 0 forces
// the low output bit of its substitution to 1, round 1 forces the low input
// bit to 0, and the identity connection identifies the two.
func Contradiction() *Cipher {
	s := mustSBox(PresentLUT)
	return &Cipher{
		CipherName: "contradiction",
		Width:      4,
		Linear:     []*spn.Matrix{spn.Identity(4), spn.Identity(4)},
		Subs: []spn.Substitution{
			&maskedSub{base: s, outMask: 1, outVal: 1},
			&maskedSub{base: s, inMask: 1, inVal: 0},
		},
	}
}

// MiniPresent returns a 16-bit, PRESENT-like cipher: four S-box chunks per
// round and the PRESENT bit permutation scaled down to 16 bits.
func MiniPresent(rounds int) *Cipher {
	perm := make([]int, 16)
	for i := 0; i < 15; i++ {
		perm[i] = i * 4 % 15
	}
	perm[15] = 15
	m, err := spn.Permutation(perm)
	if err != nil {
		panic(err)
	}
	s := mustSBox(PresentLUT)
	c := &Cipher{
		CipherName: "mini-present",
		Width:      16,
	}
	for r := 0; r < rounds; r++ {
		c.Linear = append(c.Linear, m)
		c.Subs = append(c.Subs, s)
	}
	return c
}

// maskedSub keeps only the base transitions matching the given input and
// output bit patterns.
type maskedSub struct {
	base            spn.Substitution
	inMask, inVal   uint16
	outMask, outVal uint16
}

func (m *maskedSub) Bits() int { return m.base.Bits() }

func (m *maskedSub) Transitions(mode soc.Mode) []spn.Transition {
	var out []spn.Transition
	for _, t := range m.base.Transitions(mode) {
		if t.In&m.inMask == m.inVal && t.Out&m.outMask == m.outVal {
			out = append(out, t)
		}
	}
	return out
}

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package spn

import (
	"fmt"

	"github.com/JBever/SOCs/soc"
)

// CipherSpec describes one SPN block cipher to the builder. A round maps its
// input state x to output y = L(S(x)): the substitution layer applied
// chunk-wise, then the linear layer.
//
// Implementations are plain values; the per-round tables they return are
// treated as read-only.
type CipherSpec interface {
	// Name identifies the cipher in serialized systems and logs.
	Name() string

	// Params returns the cipher's numeric parameters (block size, round
	// count, ...) as recorded in serialized systems.
	Params() []uint64

	// Rounds returns the number of rounds, at least 1.
	Rounds() int

	// StateWidth returns the state width in bits.
	StateWidth() int

	// LinearLayer returns the round's linear layer as a StateWidth x
	// StateWidth matrix over GF(2).
	LinearLayer(round int) *Matrix

	// NonlinearLayer returns the round's substitution, applied to
	// consecutive chunks of Bits() state bits.
	NonlinearLayer(round int) Substitution

	// Connection maps the round's output bits onto the input bits of the
	// next round: output bit i is identified with input bit Connection(round)[i].
	// It is consulted for rounds 0..Rounds()-2, and additionally for the last
	// round when the cipher is reflective, in which case it maps onto the
	// input bits of round 0.
	Connection(round int) []uint16

	// Reflective reports whether the last round's output feeds back into the
	// first round's input (involutive designs). Represented as an explicit
	// back-edge in the built system.
	Reflective() bool
}

// Transition is one entry of a substitution transition table: input pattern
// In maps to output pattern Out at the given weight (-log2 of the transition
// probability, or of the absolute correlation). Within a chunk, state bit k
// is bit Bits()-1-k of In and Out.
type Transition struct {
	In, Out uint16
	Weight  float64
}

// Substitution is a nonlinear layer: an explicit mapping from (input, output)
// pairs to probability or correlation, exposed as ready-made weights for a
// given analysis mode. SBox derives these tables from a lookup table; tests
// and exotic designs may implement the interface directly.
type Substitution interface {
	// Bits returns the chunk size in bits.
	Bits() int

	// Transitions returns the possible (input, output) transitions and their
	// weights for the given mode, sorted by (In, Out). Impossible transitions
	// (probability or correlation zero) are absent.
	Transitions(mode soc.Mode) []Transition
}

// ConfigurationError reports a malformed CipherSpec. It aborts Build and is
// surfaced unchanged to the caller.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "invalid cipher spec: " + e.Msg }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

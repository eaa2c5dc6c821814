// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

import (
	"errors"
	"fmt"
)

// Mode selects the kind of analysis a system is built for: differential
// (transition probabilities, weight = -log2 p) or linear (correlations,
// weight = -log2 |c|).
type Mode uint8

const (
	Differential Mode = iota
	Linear
)

func (m Mode) String() string {
	switch m {
	case Differential:
		return "differential"
	case Linear:
		return "linear"
	default:
		return "unknown"
	}
}

// VarRole classifies a system variable for trail reconstruction.
type VarRole uint8

const (
	// RoleState marks a bit of a round's input state; trails report one
	// vector of state bits per round.
	RoleState VarRole = iota
	// RoleInternal marks an intermediate bit (between the substitution and
	// linear halves of a round); not part of reported trails.
	RoleInternal
	// RoleOutput marks a bit of the last round's output state.
	RoleOutput
)

// VarInfo locates one variable in the cipher: which round and bit position it
// belongs to, and whether trails should report it.
type VarInfo struct {
	Round uint16
	Bit   uint16
	Role  VarRole
}

// Connection records that output bit i of equation From is identified with
// input bit Bits[i] of equation To. Back marks the single allowed back-edge
// of a reflective cipher (To is an earlier equation than From).
type Connection struct {
	From, To int
	Bits     []uint16
	Back     bool
}

// System is a System of CRHS Equations (SOC): the ordered per-round shards of
// one cipher over a common variable space, plus connection metadata. The
// solver merges the shards down to one; a solved system is immutable and may
// be shared by concurrent searches.
type System struct {
	SocsVersion string
	CipherID    string
	Params      []uint64
	Mode        Mode
	// Width is the cipher's state width in bits.
	Width int

	// Threshold is the node ceiling the solver enforced; 0 while unsolved.
	Threshold int
	// Approximate is true when pruning discarded information anywhere in the
	// solve. It propagates to every search result.
	Approximate bool

	Vars        []VarInfo
	Connections []Connection

	shards []*Shard
}

// NewSystem returns an empty system for the given cipher and analysis mode.
// version is the socs library version string, recorded in serialized form.
func NewSystem(version, cipherID string, params []uint64, mode Mode) *System {
	return &System{
		SocsVersion: version,
		CipherID:    cipherID,
		Params:      params,
		Mode:        mode,
	}
}

// AddShard appends a shard to the system.
func (sys *System) AddShard(s *Shard) {
	sys.shards = append(sys.shards, s)
}

// NbShards returns the number of shards.
func (sys *System) NbShards() int { return len(sys.shards) }

// Shard returns the i-th shard.
func (sys *System) Shard(i int) *Shard { return sys.shards[i] }

// Shards returns the underlying shard slice. Callers must not mutate it once
// the system is solved.
func (sys *System) Shards() []*Shard { return sys.shards }

// Solved reports whether the system has been reduced to a single shard by the
// solver.
func (sys *System) Solved() bool {
	return sys.Threshold > 0 && len(sys.shards) == 1
}

// Final returns the single remaining shard of a solved system.
func (sys *System) Final() *Shard {
	if !sys.Solved() {
		panic("soc: Final called on unsolved system")
	}
	return sys.shards[0]
}

// SetSolved installs the solver's result: the single merged shard and the
// threshold it was solved under. The system's Approximate flag mirrors the
// shard's.
func (sys *System) SetSolved(final *Shard, threshold int) error {
	if threshold < 1 {
		return errors.New("threshold must be positive")
	}
	sys.shards = []*Shard{final}
	sys.Threshold = threshold
	sys.Approximate = final.Approximate()
	return nil
}

// NodeCount returns the total number of nodes across all shards.
func (sys *System) NodeCount() int {
	count := 0
	for _, s := range sys.shards {
		count += s.NodeCount()
	}
	return count
}

// Validate checks the connection metadata: endpoints must exist, referenced
// bits must fit the endpoints' variable spaces, and a reflective system must
// declare exactly one back-edge.
func (sys *System) Validate() error {
	backEdges := 0
	for i, c := range sys.Connections {
		if c.From < 0 || c.From >= len(sys.shards) || c.To < 0 || c.To >= len(sys.shards) {
			return fmt.Errorf("connection %d references shard out of range", i)
		}
		if c.Back {
			backEdges++
			if c.To >= c.From {
				return fmt.Errorf("connection %d: back-edge must target an earlier equation", i)
			}
		} else if c.To != c.From+1 {
			return fmt.Errorf("connection %d: forward connection must target the next equation", i)
		}
		if len(c.Bits) != sys.Width {
			return fmt.Errorf("connection %d maps %d bits, state width is %d", i, len(c.Bits), sys.Width)
		}
		for _, bit := range c.Bits {
			if int(bit) >= sys.Width {
				return fmt.Errorf("connection %d references bit %d outside the state", i, bit)
			}
		}
	}
	if backEdges > 1 {
		return fmt.Errorf("system declares %d back-edges, at most one allowed", backEdges)
	}
	return nil
}

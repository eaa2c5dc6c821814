// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package spn

import (
	"fmt"
	"time"

	socs "github.com/JBever/SOCs"
	"github.com/JBever/SOCs/logger"
	"github.com/JBever/SOCs/soc"
)

// Build constructs the unsolved system of CRHS equations modeling a
// differential or linear trail through the given cipher: one shard per round,
// consecutive rounds tied together by sharing variables per the spec's
// connection maps. A malformed spec yields a *ConfigurationError.
func Build(spec CipherSpec, mode soc.Mode) (*soc.System, error) {
	log := logger.Logger().With().
		Str("cipher", spec.Name()).
		Stringer("mode", mode).
		Logger()
	start := time.Now()

	if err := validateSpec(spec, mode); err != nil {
		return nil, err
	}

	rounds := spec.Rounds()
	w := spec.StateWidth()

	sys := soc.NewSystem(socs.Version.String(), spec.Name(), spec.Params(), mode)
	sys.Width = w

	// global variable space: x_r fresh per round input, u_r fresh per round
	// substitution output, and the round output aliased onto the next round's
	// input through the connection map
	var nextVar uint32
	fresh := func(n int, info func(i int) soc.VarInfo) []uint32 {
		vars := make([]uint32, n)
		for i := range vars {
			vars[i] = nextVar
			nextVar++
			sys.Vars = append(sys.Vars, info(i))
		}
		return vars
	}

	x := make([][]uint32, rounds)
	x[0] = fresh(w, func(i int) soc.VarInfo {
		return soc.VarInfo{Round: 0, Bit: uint16(i), Role: soc.RoleState}
	})
	for r := 1; r < rounds; r++ {
		x[r] = fresh(w, func(i int) soc.VarInfo {
			return soc.VarInfo{Round: uint16(r), Bit: uint16(i), Role: soc.RoleState}
		})
	}

	for r := 0; r < rounds; r++ {
		u := fresh(w, func(i int) soc.VarInfo {
			return soc.VarInfo{Round: uint16(r), Bit: uint16(i), Role: soc.RoleInternal}
		})

		y := make([]uint32, w)
		switch {
		case r < rounds-1:
			conn := spec.Connection(r)
			for i := 0; i < w; i++ {
				y[i] = x[r+1][conn[i]]
			}
			sys.Connections = append(sys.Connections, soc.Connection{
				From: r, To: r + 1, Bits: append([]uint16(nil), conn...),
			})
		case spec.Reflective():
			conn := spec.Connection(r)
			for i := 0; i < w; i++ {
				y[i] = x[0][conn[i]]
			}
			sys.Connections = append(sys.Connections, soc.Connection{
				From: r, To: 0, Bits: append([]uint16(nil), conn...), Back: true,
			})
		default:
			y = fresh(w, func(i int) soc.VarInfo {
				return soc.VarInfo{Round: uint16(r), Bit: uint16(i), Role: soc.RoleOutput}
			})
		}

		sub, err := sboxShard(spec.NonlinearLayer(r), x[r], u, mode)
		if err != nil {
			return nil, fmt.Errorf("round %d substitution layer: %w", r, err)
		}
		lin, err := linearShard(spec.LinearLayer(r), u, y)
		if err != nil {
			return nil, fmt.Errorf("round %d linear layer: %w", r, err)
		}
		shard, err := soc.Merge(sub, lin)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", r, err)
		}
		shard.SetID(uint32(r))
		sys.AddShard(shard)
		log.Debug().Int("round", r).Int("nodes", shard.NodeCount()).Msg("built round")
	}

	if err := sys.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Int("rounds", rounds).
		Int("width", w).
		Int("nbVars", len(sys.Vars)).
		Int("nodes", sys.NodeCount()).
		Dur("took", time.Since(start)).
		Msg("built system")
	return sys, nil
}

func validateSpec(spec CipherSpec, mode soc.Mode) error {
	rounds := spec.Rounds()
	if rounds < 1 {
		return configErrorf("cipher has %d rounds", rounds)
	}
	w := spec.StateWidth()
	if w < 1 {
		return configErrorf("state width %d", w)
	}
	if spec.Reflective() && rounds < 2 {
		return configErrorf("reflective cipher needs at least 2 rounds")
	}

	for r := 0; r < rounds; r++ {
		m := spec.LinearLayer(r)
		if m == nil {
			return configErrorf("round %d has no linear layer", r)
		}
		if m.Rows() != w || m.Cols() != w {
			return configErrorf("round %d linear layer is %dx%d, state width is %d",
				r, m.Rows(), m.Cols(), w)
		}

		sub := spec.NonlinearLayer(r)
		if sub == nil {
			return configErrorf("round %d has no substitution layer", r)
		}
		bits := sub.Bits()
		if bits < 1 || w%bits != 0 {
			return configErrorf("round %d substitution width %d does not divide state width %d",
				r, bits, w)
		}
		trs := sub.Transitions(mode)
		if len(trs) == 0 {
			return configErrorf("round %d substitution has no possible %s transition", r, mode)
		}
		for _, t := range trs {
			if int(t.In) >= 1<<bits || int(t.Out) >= 1<<bits {
				return configErrorf("round %d transition (%d, %d) exceeds %d bits",
					r, t.In, t.Out, bits)
			}
		}

		if r == rounds-1 && !spec.Reflective() {
			continue
		}
		conn := spec.Connection(r)
		if len(conn) != w {
			return configErrorf("round %d connection has %d bits, state width is %d",
				r, len(conn), w)
		}
		seen := make([]bool, w)
		for i, c := range conn {
			if int(c) >= w {
				return configErrorf("round %d connection bit %d targets %d, state width is %d",
					r, i, c, w)
			}
			if seen[c] {
				return configErrorf("round %d connection targets bit %d twice", r, c)
			}
			seen[c] = true
		}
	}
	return nil
}

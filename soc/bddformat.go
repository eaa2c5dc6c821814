// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	socs "github.com/JBever/SOCs"
)

// The .bdd text format describes a system of shards:
//
//	nvar nbShards
//	id nbLevels
//	v1+v2:(id;e0,e1)(id;e0,e1)|
//	...
//	:(id;0,0)|
//	---
//
// One level per line: the constrained variables joined by '+', a colon, the
// level's nodes as (id;e0,e1) triples with 0 denoting an absent edge, a
// closing '|'. The terminal level has an empty lhs. Each shard ends with
// '---'. A lhs entry of -1 is removed at parse time; an odd number of them
// flips the 0- and 1-edges of the level's nodes. Edge weights have no text
// representation: WriteBDD drops them, parsed shards are unweighted.

// NbVars returns the number of variables of the system: the size of the
// variable table when present, otherwise one past the largest variable id
// used by any shard.
func (sys *System) NbVars() int {
	if len(sys.Vars) > 0 {
		return len(sys.Vars)
	}
	maxVar := -1
	for _, s := range sys.shards {
		for _, v := range s.Vars() {
			if int(v) > maxVar {
				maxVar = int(v)
			}
		}
	}
	return maxVar + 1
}

// WriteBDD writes the system in .bdd text form.
func (sys *System) WriteBDD(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", sys.NbVars(), len(sys.shards))
	for _, s := range sys.shards {
		fmt.Fprintf(bw, "%d %d\n", s.id, len(s.levels))
		for i := range s.levels {
			for j, v := range s.levels[i].lhs {
				if j != 0 {
					bw.WriteByte('+')
				}
				fmt.Fprintf(bw, "%d", v)
			}
			bw.WriteByte(':')
			for _, id := range s.levels[i].nodes {
				n := &s.nodes[id]
				fmt.Fprintf(bw, "(%d;%d,%d)", id, n.e0, n.e1)
			}
			bw.WriteString("|\n")
		}
		bw.WriteString("---\n")
	}
	return bw.Flush()
}

type nodeSpec struct {
	id, e0, e1 uint32
}

type levelSpec struct {
	lhs []int64
	rhs []nodeSpec
}

// removeMinusOne drops -1 entries from the lhs and flips the level's node
// edges when an odd number of them was dropped.
func (l *levelSpec) removeMinusOne() {
	n := 0
	kept := l.lhs[:0]
	for _, v := range l.lhs {
		if v == -1 {
			n++
			continue
		}
		kept = append(kept, v)
	}
	l.lhs = kept
	if n%2 != 0 {
		for i := range l.rhs {
			l.rhs[i].e0, l.rhs[i].e1 = l.rhs[i].e1, l.rhs[i].e0
		}
	}
}

// ParseBDD reads a system in .bdd text form. The resulting system has no
// connection metadata and a flat variable table (every variable a round-0
// state bit); it is primarily meant for hand-written systems and debugging.
func ParseBDD(r io.Reader) (*System, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<24)

	readLine := func() (string, bool) {
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line != "" {
				return line, true
			}
		}
		return "", false
	}

	header, ok := readLine()
	if !ok {
		return nil, fmt.Errorf("bdd: missing header")
	}
	nvar, nbShards, err := parsePair(header)
	if err != nil {
		return nil, fmt.Errorf("bdd: header: %w", err)
	}

	sys := NewSystem(socs.Version.String(), "bdd-file", nil, Differential)
	sys.Vars = make([]VarInfo, nvar)
	for i := range sys.Vars {
		sys.Vars[i] = VarInfo{Round: 0, Bit: uint16(i), Role: RoleState}
	}

	for si := 0; si < nbShards; si++ {
		params, ok := readLine()
		if !ok {
			return nil, fmt.Errorf("bdd: shard %d: missing parameter line", si)
		}
		id, nbLevels, err := parsePair(params)
		if err != nil {
			return nil, fmt.Errorf("bdd: shard %d: %w", si, err)
		}

		var levels []levelSpec
		for {
			line, ok := readLine()
			if !ok {
				return nil, fmt.Errorf("bdd: shard %d: unexpected end of input", si)
			}
			if line == "---" {
				break
			}
			spec, err := parseLevel(line)
			if err != nil {
				return nil, fmt.Errorf("bdd: shard %d: %w", si, err)
			}
			levels = append(levels, spec)
		}
		if nbLevels != 0 && nbLevels != len(levels) {
			return nil, fmt.Errorf("bdd: shard %d: declared %d levels, found %d", si, nbLevels, len(levels))
		}

		s, err := buildFromSpec(uint32(id), levels)
		if err != nil {
			return nil, fmt.Errorf("bdd: shard %d: %w", si, err)
		}
		sys.AddShard(s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return sys, nil
}

func parsePair(line string) (int, int, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected two integers, got %q", line)
	}
	a, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseLevel(line string) (levelSpec, error) {
	var spec levelSpec
	colon := strings.IndexByte(line, ':')
	bar := strings.LastIndexByte(line, '|')
	if colon < 0 || bar < colon {
		return spec, fmt.Errorf("malformed level line %q", line)
	}
	lhs := strings.TrimSpace(line[:colon])
	if lhs != "" {
		for _, tok := range strings.Split(lhs, "+") {
			v, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
			if err != nil {
				return spec, fmt.Errorf("lhs term %q: %w", tok, err)
			}
			spec.lhs = append(spec.lhs, v)
		}
	}
	rhs := strings.TrimSpace(line[colon+1 : bar])
	for rhs != "" {
		if rhs[0] != '(' {
			return spec, fmt.Errorf("malformed node list %q", rhs)
		}
		end := strings.IndexByte(rhs, ')')
		if end < 0 {
			return spec, fmt.Errorf("unterminated node in %q", rhs)
		}
		body := rhs[1:end]
		rhs = strings.TrimSpace(rhs[end+1:])

		semi := strings.IndexByte(body, ';')
		comma := strings.IndexByte(body, ',')
		if semi < 0 || comma < semi {
			return spec, fmt.Errorf("malformed node %q", body)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(body[:semi]), 10, 32)
		if err != nil {
			return spec, err
		}
		e0, err := strconv.ParseUint(strings.TrimSpace(body[semi+1:comma]), 10, 32)
		if err != nil {
			return spec, err
		}
		e1, err := strconv.ParseUint(strings.TrimSpace(body[comma+1:]), 10, 32)
		if err != nil {
			return spec, err
		}
		spec.rhs = append(spec.rhs, nodeSpec{id: uint32(id), e0: uint32(e0), e1: uint32(e1)})
	}
	return spec, nil
}

// buildFromSpec assembles a shard from parsed levels. File node ids are
// remapped; an edge jumping over levels is replaced by a chain of don't-care
// nodes (both edges to the same child), as the format permits such shortcuts.
func buildFromSpec(id uint32, levels []levelSpec) (*Shard, error) {
	if len(levels) < 2 {
		return nil, fmt.Errorf("need at least two levels, got %d", len(levels))
	}
	for i := range levels {
		levels[i].removeMinusOne()
	}

	b := NewShardBuilder()
	levelOf := make(map[uint32]int)
	mapped := make(map[uint32]NodeID)
	for i := range levels {
		lhs := make([]uint32, len(levels[i].lhs))
		for j, v := range levels[i].lhs {
			if v < 0 {
				return nil, fmt.Errorf("level %d: negative lhs term %d", i, v)
			}
			lhs[j] = uint32(v)
		}
		b.AddLevel(lhs)
		for _, ns := range levels[i].rhs {
			if ns.id == 0 {
				return nil, fmt.Errorf("level %d: node id 0 is reserved", i)
			}
			if _, dup := levelOf[ns.id]; dup {
				return nil, fmt.Errorf("duplicate node id %d", ns.id)
			}
			levelOf[ns.id] = i
			mapped[ns.id] = b.AddNode(i)
		}
	}

	connect := func(from uint32, bit uint8, to uint32) error {
		if to == 0 {
			return nil
		}
		src, ok := mapped[from]
		if !ok {
			return fmt.Errorf("unknown node id %d", from)
		}
		dst, ok := mapped[to]
		if !ok {
			return fmt.Errorf("edge targets unknown node id %d", to)
		}
		fromLvl, toLvl := levelOf[from], levelOf[to]
		if toLvl <= fromLvl {
			return fmt.Errorf("edge from level %d to level %d is not downward", fromLvl, toLvl)
		}
		// bridge jumping edges with don't-care nodes
		for lvl := toLvl - 1; lvl > fromLvl; lvl-- {
			bridge := b.AddNode(lvl)
			b.Connect(bridge, 0, dst, 0)
			b.Connect(bridge, 1, dst, 0)
			dst = bridge
		}
		b.Connect(src, bit, dst, 0)
		return nil
	}

	for _, lv := range levels {
		for _, ns := range lv.rhs {
			if err := connect(ns.id, 0, ns.e0); err != nil {
				return nil, err
			}
			if err := connect(ns.id, 1, ns.e1); err != nil {
				return nil, err
			}
		}
	}

	s, err := b.Build()
	if err != nil {
		return nil, err
	}
	s.id = id
	return s, nil
}

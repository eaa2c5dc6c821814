// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDot writes a GraphViz representation of the shard: one rank per level,
// labelled with the level's linear combination, dashed 0-edges, solid
// 1-edges, the sink drawn as a box. Weighted edges carry their weight as an
// edge label. Output for large shards can be huge and slow to render.
func (s *Shard) WriteDot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	last := len(s.levels) - 1

	fmt.Fprintln(bw, "digraph \"CRHS\" {")
	fmt.Fprintln(bw, "center = true;")
	fmt.Fprintln(bw, "edge [dir = none];")

	// left-hand column: the constrained combinations, one per rank
	fmt.Fprintln(bw, "{ node [shape = plaintext];")
	fmt.Fprintln(bw, "edge [style = invis];")
	for i := 0; i < last; i++ {
		fmt.Fprintf(bw, "\"%d. %s\" -> ", i, lhsLabel(s.levels[i].lhs))
	}
	fmt.Fprintln(bw, "\"T\";\n}")

	// one rank per level
	for i := 0; i < last; i++ {
		fmt.Fprintf(bw, "{ rank = same; \"%d. %s\";\n", i, lhsLabel(s.levels[i].lhs))
		for _, id := range s.levels[i].nodes {
			fmt.Fprintf(bw, "\"%d\" [label = \"\"; shape = point; width = 0.06];\n", id)
		}
		fmt.Fprintln(bw, "}")
	}
	fmt.Fprintf(bw, "{ rank = same; \"T\"; { node [shape = box]; \"%d\" [label = \"T\"]; } }\n", s.Sink())

	for i := 0; i < last; i++ {
		for _, id := range s.levels[i].nodes {
			n := &s.nodes[id]
			if n.e0 != nilNode {
				fmt.Fprintf(bw, "\"%d\" -> \"%d\" [style = dashed%s];\n", id, n.e0, weightLabel(n.w0))
			}
			if n.e1 != nilNode {
				fmt.Fprintf(bw, "\"%d\" -> \"%d\" [style = solid%s];\n", id, n.e1, weightLabel(n.w1))
			}
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func lhsLabel(lhs []uint32) string {
	if len(lhs) == 0 {
		return "0"
	}
	label := ""
	for i, v := range lhs {
		if i > 0 {
			label += " + "
		}
		label += fmt.Sprintf("x%d", v)
	}
	return label
}

func weightLabel(w float64) string {
	if w == 0 {
		return ""
	}
	return fmt.Sprintf("; label = \"%.2f\"", w)
}

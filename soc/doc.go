// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package soc implements Compressed Right-Hand Side (CRHS) equations and
// systems of them.
//
// A CRHS equation (Shard) is a layered decision DAG: each level constrains one
// linear combination of the system's variables (usually a single variable), and
// each node holds two outgoing edges, one per value of that combination. A
// root-to-sink path is one satisfying assignment of the equation. Structurally
// identical subgraphs are shared (hash-consing), which keeps the graph far
// smaller than the set of assignments it represents.
//
// A System is an ordered collection of shards over a common variable space,
// with connection metadata recording which output bits of one equation are
// identified with which input bits of another. Shards sharing variables can be
// merged (Merge) into a single shard whose paths are exactly the pairs of
// paths that agree on every shared variable.
//
// Merging can blow up; Prune bounds the node count by discarding the least
// contributing nodes, at the price of marking the shard approximate. The flag
// is sticky: no later operation clears it.
package soc

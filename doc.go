// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package socs builds and solves systems of Compressed Right-Hand Side (CRHS)
// equations derived from substitution-permutation-network block ciphers, and
// searches the solved system for high-probability differential trails or
// high-correlation linear hulls.
//
// The pipeline is:
//   - spn.Build turns a cipher description (spn.CipherSpec) into an unsolved
//     soc.System: one CRHS equation (soc.Shard) per round, plus the
//     bit-connection metadata between rounds.
//   - solver.Solver merges the per-round shards into a single shard, keeping
//     peak memory below an operator-set node-count threshold by pruning.
//     Pruning makes the result approximate, irrecoverably.
//   - search.Run walks the solved system and returns the best trails or hulls,
//     ordered by ascending weight (-log2 of probability or |correlation|).
//
// A solved system can be serialized (soc.Store / soc.Load) so the expensive
// solve step need not be repeated.
package socs

import (
	"github.com/blang/semver/v4"
)

// Version of the socs library. Embedded in serialized systems; major version
// mismatches are rejected at load time.
var Version = semver.MustParse("0.4.0")

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package spn turns a substitution-permutation-network cipher description
// into an unsolved system of CRHS equations.
//
// A cipher is described by the CipherSpec contract: per-round linear layers
// (matrices over GF(2)), substitution layers (explicit transition tables with
// probabilities or correlations), bit connections between rounds, and a
// reflective-structure flag. Build produces one soc.Shard per round relating
// the round's input difference (or mask) to its output, with substitution
// transition weights attached; consecutive rounds are tied together by
// sharing variables according to the connection maps.
package spn

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package search enumerates the best differential trails or linear hulls of a
// solved system of CRHS equations.
//
// Run walks the solved equation root to sink, branch-and-bound style, keeping
// a bounded best-of-k collection: a partial path whose accumulated weight
// already exceeds the worst retained weight is abandoned. The root's branches
// are searched concurrently, funneling candidates into a shared collector.
package search

// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package solver joins the shards of a system of CRHS equations into a single
// equation by repeated merging, pruning whenever an intermediate result
// exceeds the configured node threshold.
//
// The order of merges is chosen greedily by predicted cost, re-evaluated after
// every merge; pruning makes the final equation approximate, which the system
// records. A system whose equations admit no common solution fails with
// soc.ErrUnsatisfiable.
package solver

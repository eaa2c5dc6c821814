// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package solver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JBever/SOCs/internal/smallspn"
	"github.com/JBever/SOCs/soc"
	"github.com/JBever/SOCs/solver"
	"github.com/JBever/SOCs/spn"
)

func buildToy(t *testing.T) *soc.System {
	t.Helper()
	sys, err := spn.Build(smallspn.Toy(), soc.Differential)
	require.NoError(t, err)
	return sys
}

func TestSolveToy(t *testing.T) {
	sys := buildToy(t)

	s, err := solver.New(sys, solver.WithThreshold(1<<16))
	require.NoError(t, err)
	require.Equal(t, solver.Unsolved, s.Status())

	require.NoError(t, s.Solve())
	require.Equal(t, solver.Solved, s.Status())
	require.True(t, sys.Solved())
	require.Equal(t, 1, sys.NbShards())
	require.False(t, sys.Approximate)
	require.Equal(t, 1<<16, sys.Threshold)

	// the merged equation still spans every variable
	require.Len(t, sys.Final().Vars(), len(sys.Vars))
}

func TestSolveMiniPresent(t *testing.T) {
	sys, err := spn.Build(smallspn.MiniPresent(3), soc.Differential)
	require.NoError(t, err)

	s, err := solver.New(sys, solver.WithThreshold(1<<17))
	require.NoError(t, err)
	require.NoError(t, s.Solve())
	require.True(t, sys.Solved())
}

func TestSolveContradictionFails(t *testing.T) {
	sys, err := spn.Build(smallspn.Contradiction(), soc.Differential)
	require.NoError(t, err)

	s, err := solver.New(sys, solver.WithThreshold(1<<16))
	require.NoError(t, err)

	err = s.Solve()
	require.ErrorIs(t, err, soc.ErrUnsatisfiable)
	require.Equal(t, solver.Failed, s.Status())
	require.False(t, sys.Solved())
}

func TestSolveReflective(t *testing.T) {
	sys, err := spn.Build(smallspn.ReflectiveToy(), soc.Differential)
	require.NoError(t, err)

	s, err := solver.New(sys, solver.WithThreshold(1<<16))
	require.NoError(t, err)
	require.NoError(t, s.Solve())
	require.Equal(t, solver.Solved, s.Status())
}

func TestSolveWithPruning(t *testing.T) {
	sys := buildToy(t)

	s, err := solver.New(sys, solver.WithThreshold(40))
	require.NoError(t, err)
	require.NoError(t, s.Solve())
	require.Equal(t, solver.SolvedApproximate, s.Status())
	require.True(t, sys.Approximate)
	require.True(t, sys.Final().Approximate())
}

func TestSolvePropagatesPrunedInput(t *testing.T) {
	sys := buildToy(t)
	before := sys.Shard(0).NodeCount()
	sys.Shard(0).Prune(before/2, nil)
	require.True(t, sys.Shard(0).Approximate())

	s, err := solver.New(sys, solver.WithThreshold(1<<16))
	require.NoError(t, err)
	require.NoError(t, s.Solve())
	require.Equal(t, solver.SolvedApproximate, s.Status())
}

func TestSolveDeterministic(t *testing.T) {
	run := func() *soc.System {
		sys := buildToy(t)
		s, err := solver.New(sys, solver.WithThreshold(60))
		require.NoError(t, err)
		require.NoError(t, s.Solve())
		return sys
	}
	a, b := run(), run()
	require.Equal(t, a.Final().NodeCount(), b.Final().NodeCount())
	require.Equal(t, a.Final().EdgeCount(), b.Final().EdgeCount())
	require.Equal(t, a.Approximate, b.Approximate)
}

func TestSolverOptions(t *testing.T) {
	sys := buildToy(t)

	_, err := solver.New(sys)
	require.Error(t, err, "threshold is mandatory")

	_, err = solver.New(sys, solver.WithThreshold(0))
	require.Error(t, err)

	_, err = solver.New(sys, solver.WithThreshold(10), solver.WithPrunePolicy(nil))
	require.Error(t, err)

	_, err = solver.New(nil, solver.WithThreshold(10))
	require.Error(t, err)
}

func TestSolveTwiceRejected(t *testing.T) {
	sys := buildToy(t)
	s, err := solver.New(sys, solver.WithThreshold(1<<16))
	require.NoError(t, err)
	require.NoError(t, s.Solve())
	require.Error(t, s.Solve())
}

func TestNewRejectsSolvedSystem(t *testing.T) {
	sys := buildToy(t)
	s, err := solver.New(sys, solver.WithThreshold(1<<16))
	require.NoError(t, err)
	require.NoError(t, s.Solve())

	_, err = solver.New(sys, solver.WithThreshold(1<<16))
	require.Error(t, err)
}

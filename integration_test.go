// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package socs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JBever/SOCs/internal/smallspn"
	"github.com/JBever/SOCs/search"
	"github.com/JBever/SOCs/soc"
	"github.com/JBever/SOCs/solver"
	"github.com/JBever/SOCs/spn"
)

// TestIntegration runs the whole pipeline: build a cipher model, solve it,
// round-trip it through the serialized form, and check that searching the
// loaded system gives exactly the same trails as the in-memory one.
func TestIntegration(t *testing.T) {
	for _, mode := range []soc.Mode{soc.Differential, soc.Linear} {
		t.Run(mode.String(), func(t *testing.T) {
			sys, err := spn.Build(smallspn.Toy(), mode)
			require.NoError(t, err)

			s, err := solver.New(sys, solver.WithThreshold(1<<16))
			require.NoError(t, err)
			require.NoError(t, s.Solve())
			require.True(t, sys.Solved())

			path := filepath.Join(t.TempDir(), "toy.socs")
			require.NoError(t, soc.Store(path, sys))
			loaded, err := soc.Load(path)
			require.NoError(t, err)

			require.Equal(t, sys.NodeCount(), loaded.NodeCount())
			require.Equal(t, sys.Final().EdgeCount(), loaded.Final().EdgeCount())
			require.Equal(t, sys.Approximate, loaded.Approximate)

			want, err := search.Run(sys, mode, search.WithLimit(20))
			require.NoError(t, err)
			got, err := search.Run(loaded, mode, search.WithLimit(20))
			require.NoError(t, err)

			require.Equal(t, len(want), len(got))
			for i := range want {
				require.InDelta(t, want[i].Weight, got[i].Weight, 1e-12)
				require.Equal(t, want[i].Approximate, got[i].Approximate)
				require.Len(t, got[i].Rounds, len(want[i].Rounds))
				for r := range want[i].Rounds {
					require.True(t, want[i].Rounds[r].Equal(got[i].Rounds[r]))
				}
				if want[i].Output != nil {
					require.NotNil(t, got[i].Output)
					require.True(t, want[i].Output.Equal(got[i].Output))
				}
			}
		})
	}
}

// TestIntegrationPruned checks the pipeline under pruning: the approximate
// flag must survive the round trip and tag every search result.
func TestIntegrationPruned(t *testing.T) {
	sys, err := spn.Build(smallspn.MiniPresent(2), soc.Differential)
	require.NoError(t, err)

	s, err := solver.New(sys, solver.WithThreshold(500))
	require.NoError(t, err)
	require.NoError(t, s.Solve())

	if !sys.Approximate {
		t.Skip("threshold did not force pruning")
	}
	require.Equal(t, solver.SolvedApproximate, s.Status())

	path := filepath.Join(t.TempDir(), "mini.socs")
	require.NoError(t, soc.Store(path, sys))
	loaded, err := soc.Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Approximate)

	trails, err := search.Run(loaded, soc.Differential, search.WithLimit(5))
	require.NoError(t, err)
	require.NotEmpty(t, trails)
	for _, tr := range trails {
		require.True(t, tr.Approximate)
	}
}

// TestIntegrationBDDExport exercises the text format end to end. The format
// carries no edge weights, so the reparsed system may hash-cons further than
// the weighted original; satisfiability and the level structure are preserved.
func TestIntegrationBDDExport(t *testing.T) {
	sys, err := spn.Build(smallspn.Toy(), soc.Differential)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "toy.bdd")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, sys.WriteBDD(f))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	reparsed, err := soc.ParseBDD(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)

	require.Equal(t, sys.NbShards(), reparsed.NbShards())
	require.Equal(t, sys.NbVars(), reparsed.NbVars())
	for i := 0; i < sys.NbShards(); i++ {
		require.Equal(t, sys.Shard(i).NbLevels(), reparsed.Shard(i).NbLevels())
		require.LessOrEqual(t, reparsed.Shard(i).NodeCount(), sys.Shard(i).NodeCount())
	}

	for _, target := range []*soc.System{sys, reparsed} {
		s, err := solver.New(target, solver.WithThreshold(1<<16))
		require.NoError(t, err)
		require.NoError(t, s.Solve())
	}
	require.Equal(t, sys.Final().NbLevels(), reparsed.Final().NbLevels())
	require.LessOrEqual(t, reparsed.Final().NodeCount(), sys.Final().NodeCount())
}

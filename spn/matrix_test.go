// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package spn_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JBever/SOCs/spn"
)

func TestIdentity(t *testing.T) {
	m := spn.Identity(4)
	x := []uint8{1, 0, 1, 1}
	require.Equal(t, x, m.Apply(x))
}

func TestPermutation(t *testing.T) {
	m, err := spn.Permutation([]int{2, 0, 1})
	require.NoError(t, err)

	// y[perm[i]] = x[i]
	require.Equal(t, []uint8{0, 1, 1}, m.Apply([]uint8{1, 0, 1}))
	require.Equal(t, []int{1}, m.RowCols(0))
	require.Equal(t, []int{2}, m.RowCols(1))
	require.Equal(t, []int{0}, m.RowCols(2))
}

func TestPermutationRejectsNonBijections(t *testing.T) {
	_, err := spn.Permutation([]int{0, 0, 1})
	require.Error(t, err)
	_, err = spn.Permutation([]int{0, 3, 1})
	require.Error(t, err)
}

func TestMatrixApply(t *testing.T) {
	// y0 = x0 + x2, y1 = x1
	m := spn.NewMatrix(2, 3)
	m.Set(0, 0)
	m.Set(0, 2)
	m.Set(1, 1)

	require.True(t, m.Test(0, 2))
	require.False(t, m.Test(1, 2))
	require.Equal(t, []uint8{0, 1}, m.Apply([]uint8{1, 1, 1}))
	require.Equal(t, []uint8{1, 0}, m.Apply([]uint8{1, 0, 0}))
	require.Equal(t, []int{0, 2}, m.RowCols(0))
}

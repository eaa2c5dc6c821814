// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package spn

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Matrix is a dense matrix over GF(2), rows stored as bitsets.
type Matrix struct {
	rows []*bitset.BitSet
	cols int
}

// NewMatrix returns a zero rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	m := &Matrix{rows: make([]*bitset.BitSet, rows), cols: cols}
	for i := range m.rows {
		m.rows[i] = bitset.New(uint(cols))
	}
	return m
}

// Identity returns the n x n identity matrix.
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.rows[i].Set(uint(i))
	}
	return m
}

// Permutation returns the matrix of the bit permutation sending input bit i
// to output bit perm[i]: y[perm[i]] = x[i].
func Permutation(perm []int) (*Matrix, error) {
	n := len(perm)
	m := NewMatrix(n, n)
	seen := bitset.New(uint(n))
	for i, p := range perm {
		if p < 0 || p >= n {
			return nil, fmt.Errorf("permutation entry %d out of range", p)
		}
		if seen.Test(uint(p)) {
			return nil, fmt.Errorf("permutation entry %d repeated", p)
		}
		seen.Set(uint(p))
		m.rows[p].Set(uint(i))
	}
	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return len(m.rows) }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Set sets entry (row, col) to 1.
func (m *Matrix) Set(row, col int) { m.rows[row].Set(uint(col)) }

// Test reports whether entry (row, col) is 1.
func (m *Matrix) Test(row, col int) bool { return m.rows[row].Test(uint(col)) }

// RowCols returns the column indices set in the given row, ascending.
func (m *Matrix) RowCols(row int) []int {
	out := make([]int, 0, m.rows[row].Count())
	for i, ok := m.rows[row].NextSet(0); ok; i, ok = m.rows[row].NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Apply multiplies the matrix with the column vector x (x[i] is input bit i).
func (m *Matrix) Apply(x []uint8) []uint8 {
	y := make([]uint8, len(m.rows))
	for j := range m.rows {
		var parity uint8
		for _, i := range m.RowCols(j) {
			parity ^= x[i] & 1
		}
		y[j] = parity
	}
	return y
}

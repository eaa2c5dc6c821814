// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

import "errors"

var (
	// ErrUnsatisfiable is returned by Merge when the two equations admit no
	// common solution. A system built from a syntactically valid cipher spec
	// is never contradictory, so hitting this during a solve is fatal.
	ErrUnsatisfiable = errors.New("unsatisfiable: equations admit no common solution")

	// ErrIncompatibleFormat is returned when loading a serialized system whose
	// format (magic or major version) does not match this library.
	ErrIncompatibleFormat = errors.New("incompatible serialized system format")
)

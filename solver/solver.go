// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package solver

import (
	"errors"
	"fmt"
	"time"

	"github.com/JBever/SOCs/debug"
	"github.com/JBever/SOCs/logger"
	"github.com/JBever/SOCs/profile"
	"github.com/JBever/SOCs/soc"
	"github.com/JBever/SOCs/utils/parallel"
)

// Status is the lifecycle state of a Solver.
type Status uint8

const (
	Unsolved Status = iota
	Solving
	Solved
	SolvedApproximate
	Failed
)

func (s Status) String() string {
	switch s {
	case Unsolved:
		return "unsolved"
	case Solving:
		return "solving"
	case Solved:
		return "solved"
	case SolvedApproximate:
		return "solved (approximate)"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Option configures a Solver.
type Option func(*Solver) error

// WithThreshold sets the node ceiling enforced after every merge. Required,
// and must be positive.
func WithThreshold(n int) Option {
	return func(s *Solver) error {
		if n <= 0 {
			return fmt.Errorf("solver: threshold must be positive, got %d", n)
		}
		s.threshold = n
		return nil
	}
}

// WithPrunePolicy overrides the pruning policy. Defaults to
// soc.LeastMassPolicy.
func WithPrunePolicy(p soc.PrunePolicy) Option {
	return func(s *Solver) error {
		if p == nil {
			return errors.New("solver: nil prune policy")
		}
		s.policy = p
		return nil
	}
}

// Solver reduces a multi-shard system to a single equation.
type Solver struct {
	sys       *soc.System
	threshold int
	policy    soc.PrunePolicy
	status    Status
}

// New returns a solver over the given system. WithThreshold is mandatory.
func New(sys *soc.System, opts ...Option) (*Solver, error) {
	if sys == nil {
		return nil, errors.New("solver: nil system")
	}
	if sys.Solved() {
		return nil, errors.New("solver: system is already solved")
	}
	s := &Solver{sys: sys, policy: soc.LeastMassPolicy{}}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.threshold == 0 {
		return nil, errors.New("solver: no threshold set")
	}
	return s, nil
}

// Status returns the solver's current state.
func (s *Solver) Status() Status { return s.status }

// System returns the system the solver operates on.
func (s *Solver) System() *soc.System { return s.sys }

// Solve merges the system's shards pairwise until one remains, pruning to the
// threshold after every merge. On success the system is marked solved; pruning
// at any point yields SolvedApproximate. A contradictory system transitions to
// Failed and returns an error wrapping soc.ErrUnsatisfiable.
func (s *Solver) Solve() (err error) {
	if s.status != Unsolved {
		return fmt.Errorf("solver: cannot solve from state %q", s.status)
	}
	s.status = Solving
	defer func() {
		if r := recover(); r != nil {
			s.status = Failed
			err = fmt.Errorf("%v\n%s", r, debug.Stack())
		}
	}()

	log := logger.Logger().With().
		Str("cipher", s.sys.CipherID).
		Int("threshold", s.threshold).
		Str("policy", s.policy.Name()).
		Logger()
	start := time.Now()
	log.Info().Int("nbShards", s.sys.NbShards()).Int("nodes", s.sys.NodeCount()).Msg("solving")

	pool := append([]*soc.Shard(nil), s.sys.Shards()...)
	vars := make(map[*soc.Shard][]uint32, len(pool))
	for _, sh := range pool {
		vars[sh] = sh.Vars()
	}

	for len(pool) > 1 {
		i, j, ok := s.pickPair(pool, vars)
		if !ok {
			s.status = Failed
			return errors.New("solver: remaining shards share no variable")
		}
		a, b := pool[i], pool[j]

		merged, err := soc.Merge(a, b)
		if err != nil {
			if errors.Is(err, soc.ErrUnsatisfiable) {
				s.status = Failed
			}
			return fmt.Errorf("solver: merging shards %d and %d: %w", a.ID(), b.ID(), err)
		}
		profile.RecordNodes(merged.NodeCount())

		if merged.NodeCount() > s.threshold {
			removed := merged.Prune(s.threshold, s.policy)
			log.Debug().
				Uint32("shard", merged.ID()).
				Int("removed", removed).
				Int("nodes", merged.NodeCount()).
				Msg("pruned")
		}
		log.Debug().
			Uint32("a", a.ID()).
			Uint32("b", b.ID()).
			Int("nodes", merged.NodeCount()).
			Int("nbShards", len(pool)-1).
			Msg("merged")

		// replace the pair, keeping the pool ordered by shard id
		pool = append(pool[:j], pool[j+1:]...)
		pool[i] = merged
		delete(vars, a)
		delete(vars, b)
		vars[merged] = merged.Vars()
	}

	final := pool[0]
	if err := s.sys.SetSolved(final, s.threshold); err != nil {
		return err
	}
	if s.sys.Approximate {
		s.status = SolvedApproximate
	} else {
		s.status = Solved
	}
	log.Info().
		Int("nodes", final.NodeCount()).
		Bool("approximate", s.sys.Approximate).
		Dur("took", time.Since(start)).
		Msg(s.status.String())
	return nil
}

// pickPair scores every pair of shards sharing at least one variable and
// returns the indices of the cheapest, ties broken by ascending shard ids.
func (s *Solver) pickPair(pool []*soc.Shard, vars map[*soc.Shard][]uint32) (int, int, bool) {
	type pair struct{ i, j int }
	var pairs []pair
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			if sharedCount(vars[pool[i]], vars[pool[j]]) > 0 {
				pairs = append(pairs, pair{i, j})
			}
		}
	}
	if len(pairs) == 0 {
		return 0, 0, false
	}

	costs := make([]uint64, len(pairs))
	parallel.Execute(0, len(pairs), func(start, end int) {
		for k := start; k < end; k++ {
			a, b := pool[pairs[k].i], pool[pairs[k].j]
			shared := sharedCount(vars[a], vars[b])
			if shared > 30 {
				shared = 30
			}
			costs[k] = uint64(a.NodeCount()+b.NodeCount()) << shared
		}
	})

	best := 0
	for k := 1; k < len(pairs); k++ {
		if costs[k] < costs[best] {
			best = k
		}
	}
	return pairs[best].i, pairs[best].j, true
}

func sharedCount(a, b []uint32) int {
	n := 0
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			n++
			i++
			j++
		}
	}
	return n
}

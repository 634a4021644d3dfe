package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/remotendvi/internal/series"
)

// ErrSuperseded is returned when committing a run that a later run replaced
var ErrSuperseded = errors.New("run superseded by a later run")

// Snapshot is the complete series of one context at one version. It is
// never modified once published.
type Snapshot struct {
	Version uint64    `json:"version"`
	RunID   uuid.UUID `json:"run_id"`
	Running bool      `json:"running"`
	Result  Result    `json:"result"`
}

// Collection returns the snapshot's samples, empty for a nil snapshot
func (s *Snapshot) Collection() series.Collection {
	if s == nil {
		return series.Collection{}
	}
	return s.Result.Series
}

// SeriesStore holds the latest snapshot of each context. Readers load a
// snapshot without locking; writers replace it wholesale.
type SeriesStore struct {
	mu       sync.Mutex
	version  uint64
	latest   map[series.Context]uuid.UUID
	contexts map[series.Context]*atomic.Pointer[Snapshot]
}

// NewSeriesStore returns a store with empty main and comparison series
func NewSeriesStore() *SeriesStore {
	s := &SeriesStore{
		latest:   make(map[series.Context]uuid.UUID),
		contexts: make(map[series.Context]*atomic.Pointer[Snapshot]),
	}
	for _, c := range []series.Context{series.ContextMain, series.ContextComparison} {
		s.contexts[c] = new(atomic.Pointer[Snapshot])
		s.contexts[c].Store(&Snapshot{})
	}
	return s
}

// Snapshot returns the current snapshot of c
func (s *SeriesStore) Snapshot(c series.Context) *Snapshot {
	p, ok := s.contexts[c]
	if !ok {
		return nil
	}
	return p.Load()
}

// Begin starts a run for c: the context is emptied and any run still in
// flight for it is superseded. The returned token must be passed to Commit.
func (s *SeriesStore) Begin(c series.Context) (uuid.UUID, error) {
	if !c.Valid() {
		return uuid.Nil, fmt.Errorf("unknown context %q", c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	run := uuid.New()
	s.latest[c] = run
	s.publish(c, &Snapshot{RunID: run, Running: true})
	return run, nil
}

// Commit publishes the result of run unless a later Begin or Reset for the
// same context superseded it, in which case the result is dropped whole.
func (s *SeriesStore) Commit(c series.Context, run uuid.UUID, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest[c] != run {
		return fmt.Errorf("%w: %s run %s", ErrSuperseded, c, run)
	}
	res.Context = c
	if res.Finished.IsZero() {
		res.Finished = time.Now()
	}
	s.publish(c, &Snapshot{RunID: run, Result: res})
	return nil
}

// Abort ends run without publishing anything, leaving c empty
func (s *SeriesStore) Abort(c series.Context, run uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[c] == run {
		s.publish(c, &Snapshot{RunID: run})
	}
}

// Reset empties c and supersedes any run in flight for it
func (s *SeriesStore) Reset(c series.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[c] = uuid.Nil
	s.publish(c, &Snapshot{})
}

// Restore publishes a previously archived result as the current series of
// its context, unless a run is in flight for it.
func (s *SeriesStore) Restore(run uuid.UUID, res Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[res.Context] != uuid.Nil {
		return false
	}
	s.publish(res.Context, &Snapshot{RunID: run, Result: res})
	return true
}

// Version returns the number of snapshots published so far
func (s *SeriesStore) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// publish must be called with mu held
func (s *SeriesStore) publish(c series.Context, snap *Snapshot) {
	p, ok := s.contexts[c]
	if !ok {
		return
	}
	s.version++
	snap.Version = s.version
	p.Store(snap)
}

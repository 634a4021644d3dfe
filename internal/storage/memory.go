package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/chrissnell/remotendvi/internal/series"
)

// MemoryStore keeps runs and annotations in process memory
type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[series.Context]Run
	annotations []series.Annotation
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[series.Context]Run)}
}

func (m *MemoryStore) SaveRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.Context] = run
	return nil
}

func (m *MemoryStore) LatestRun(_ context.Context, c series.Context) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[c]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (m *MemoryStore) SaveAnnotation(_ context.Context, a series.Annotation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotations = series.UpsertAnnotation(m.annotations, a)
	return nil
}

func (m *MemoryStore) Annotations(_ context.Context) ([]series.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.annotations), nil
}

// CheckHealth always reports healthy
func (m *MemoryStore) CheckHealth(context.Context) Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return NewHealth(StatusHealthy, fmt.Sprintf("in-memory archive holds %d run(s)", len(m.runs)), nil)
}

func (m *MemoryStore) Close() error { return nil }

package gate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/logger"
)

// ManagerOptions configures a Manager
type ManagerOptions struct {
	// Store is optional; without it runs live only in memory
	Store  Persister
	Logger *zap.SugaredLogger
	Clock  func() time.Time
}

// Manager owns the runs of one process. Runs are independent; the manager
// only guards its run map and subscriber list.
type Manager struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	store  Persister
	logger *zap.SugaredLogger
	clock  func() time.Time

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewManager creates a run manager
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		runs:   make(map[string]*Run),
		store:  opts.Store,
		logger: logger.OrNop(opts.Logger),
		clock:  opts.Clock,
		subs:   make(map[int]chan Event),
	}
}

func (m *Manager) runOptions() Options {
	return Options{Clock: m.clock, OnEvent: m.broadcast}
}

// Create starts a new run at INPUT.PENDING
func (m *Manager) Create(actor string) *Run {
	run := NewRun(uuid.NewString(), actor, m.runOptions())

	m.mu.Lock()
	m.runs[run.ID()] = run
	m.mu.Unlock()

	m.logger.Infow("Run created",
		logger.FieldRunID, run.ID(),
		logger.FieldActor, actor,
	)
	return run
}

// Get returns a run from memory or, failing that, from the store
func (m *Manager) Get(ctx context.Context, runID string) (*Run, error) {
	m.mu.RLock()
	run, ok := m.runs[runID]
	m.mu.RUnlock()
	if ok {
		return run, nil
	}
	if m.store == nil {
		return nil, errors.NewNotFoundError("run not found: %s", runID)
	}

	snap, err := m.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// another caller may have restored it meanwhile
	if existing, ok := m.runs[runID]; ok {
		return existing, nil
	}
	run = Restore(snap, m.runOptions())
	m.runs[runID] = run
	return run, nil
}

// List returns run states, newest first
func (m *Manager) List(ctx context.Context, limit int) ([]State, error) {
	if m.store != nil {
		return m.store.List(ctx, limit)
	}

	m.mu.RLock()
	states := make([]State, 0, len(m.runs))
	for _, run := range m.runs {
		states = append(states, run.State())
	}
	m.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		if !states[i].CreatedAt.Equal(states[j].CreatedAt) {
			return states[i].CreatedAt.After(states[j].CreatedAt)
		}
		return states[i].RunID < states[j].RunID
	})
	if limit > 0 && len(states) > limit {
		states = states[:limit]
	}
	return states, nil
}

// Save persists a run when a store is configured
func (m *Manager) Save(ctx context.Context, run *Run) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, run.Snapshot()); err != nil {
		m.logger.Errorw("Failed to persist run",
			logger.FieldRunID, run.ID(),
			logger.FieldError, err,
		)
		return err
	}
	return nil
}

// Supersede starts a new run from a frozen run's approved input.
// The frozen run itself is not modified.
func (m *Manager) Supersede(ctx context.Context, runID, actor string) (*Run, error) {
	old, err := m.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !old.State().Frozen {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrInvalidApprovalTransition, "run %s is not frozen", runID),
			"reject and regenerate a stage of an open run instead",
		)
	}
	input, err := old.ApprovedArtifact(StageInput)
	if err != nil {
		return nil, err
	}

	opts := m.runOptions()
	opts.ParentRunID = runID
	run := NewRun(uuid.NewString(), actor, opts)

	if _, err := run.SubmitArtifact(StageInput, input.Payload, actor); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.runs[run.ID()] = run
	m.mu.Unlock()

	m.logger.Infow("Run superseded",
		logger.FieldRunID, run.ID(),
		"parent_run_id", runID,
		logger.FieldActor, actor,
	)
	return run, nil
}

// Subscribe returns a channel receiving every event of every run, and a
// function that cancels the subscription. Slow subscribers miss events.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) broadcast(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Warnw("Dropping gate event for slow subscriber",
				"subscriber", id,
				logger.FieldRunID, ev.RunID,
			)
		}
	}
}

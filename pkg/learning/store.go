package learning

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// StateVersion is the current persisted state layout.
const StateVersion = 1

// ErrNoState is returned by a backend that has nothing persisted yet.
var ErrNoState = errors.New("no learning state")

// State is the whole associative memory.
type State struct {
	Version  int             `json:"version"`
	Matrix   Matrix          `json:"matrix"`
	Clusters []FamilyCluster `json:"clusters"`
	Turns    int             `json:"turns"`
}

// NewState returns an empty memory with an identity matrix.
func NewState() *State {
	return &State{Version: StateVersion, Matrix: IdentityMatrix()}
}

// Clone deep-copies the state.
func (s *State) Clone() *State {
	out := &State{Version: s.Version, Matrix: s.Matrix, Turns: s.Turns}
	if s.Clusters != nil {
		out.Clusters = make([]FamilyCluster, len(s.Clusters))
		for i, c := range s.Clusters {
			out.Clusters[i] = c.clone()
		}
	}
	return out
}

// Cluster finds a cluster by id.
func (s *State) Cluster(id string) (*FamilyCluster, bool) {
	for i := range s.Clusters {
		if s.Clusters[i].ID == id {
			return &s.Clusters[i], true
		}
	}
	return nil, false
}

// Backend persists the memory between sessions.
type Backend interface {
	LoadState(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, s *State) error
}

// Store owns the live memory of a session. Readers take snapshots; the
// single writer commits at the end of a turn.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	state   *State
	dirty   bool
}

// NewStore creates a store with fresh state. A nil backend keeps the memory
// in process only.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, state: NewState()}
}

// Load replaces the live state with the persisted one. Missing or unusable
// state is logged and replaced with fresh state; only a cancelled context is
// returned as an error.
func (s *Store) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.backend == nil {
		return nil
	}

	loaded, err := s.backend.LoadState(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("learning state unavailable, starting fresh")
		loaded = NewState()
	case loaded == nil || loaded.Version != StateVersion || !loaded.Matrix.Valid():
		log.Warn().Msg("learning state invalid, starting fresh")
		loaded = NewState()
	default:
		log.Info().Int("clusters", len(loaded.Clusters)).Int("turns", loaded.Turns).Msg("learning state loaded")
	}

	s.mu.Lock()
	s.state = loaded
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Snapshot returns a private copy of the current state.
func (s *Store) Snapshot() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Commit applies fn to a working copy and publishes it atomically.
func (s *Store) Commit(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.Clone()
	fn(next)
	s.state = next
	s.dirty = true
}

// Dirty reports whether there are commits not yet persisted.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Persist writes the current state to the backend.
func (s *Store) Persist(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	snap := s.Snapshot()
	if err := s.backend.SaveState(ctx, snap); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Reset discards all learned state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = NewState()
	s.dirty = true
}

// MemoryBackend keeps state in process.
type MemoryBackend struct {
	mu    sync.Mutex
	state *State
	Saves int
}

// LoadState implements Backend.
func (b *MemoryBackend) LoadState(context.Context) (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return nil, ErrNoState
	}
	return b.state.Clone(), nil
}

// SaveState implements Backend.
func (b *MemoryBackend) SaveState(_ context.Context, s *State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s.Clone()
	b.Saves++
	return nil
}

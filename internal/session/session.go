// Package session implements the session registry (C4): a concurrent map
// of session identity and lifecycle metadata, keyed by a monotonically
// increasing id allocated once per process lifetime and never reused.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/marlowe-finch/corral/internal/errs"
)

// State is one of the lifecycle states a Session can be in. Transitions
// between states are not enforced here; the external status source (the
// sidecar, via the ingress) drives them.
type State string

const (
	StateStarting   State = "Starting"
	StateIdle       State = "Idle"
	StateWorking    State = "Working"
	StateNeedsInput State = "NeedsInput"
	StateDone       State = "Done"
	StateError      State = "Error"
)

// Session is the registry's record for one running (or terminating)
// session. Project is always a canonicalized absolute path.
type Session struct {
	ID      uint32
	Project string

	mu         sync.Mutex
	state      State
	branch     string
	workingDir string
	needsInput string
}

// Info is a point-in-time, copy-safe snapshot of a Session's mutable
// fields, suitable for returning to callers without exposing the mutex.
type Info struct {
	ID               uint32 `json:"id"`
	Project          string `json:"project"`
	State            State  `json:"state"`
	Branch           string `json:"branch,omitempty"`
	WorkingDir       string `json:"working_directory,omitempty"`
	NeedsInputPrompt string `json:"needs_input_prompt,omitempty"`
}

func (s *Session) snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:               s.ID,
		Project:          s.Project,
		State:            s.state,
		Branch:           s.branch,
		WorkingDir:       s.workingDir,
		NeedsInputPrompt: s.needsInput,
	}
}

// Registry is the concurrent session map. The zero value is not ready to
// use; construct one with New.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
	nextID   uint32 // accessed only via atomic ops
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[uint32]*Session)}
}

// NextID allocates and returns the next session id. Ids are never reused
// within the registry's lifetime; overflowing 32 bits is a fatal,
// unrecoverable condition reported as errs.IDOverflow.
func (r *Registry) NextID() (uint32, error) {
	for {
		cur := atomic.LoadUint32(&r.nextID)
		if cur == ^uint32(0) {
			return 0, errs.NewPTYError(errs.IDOverflow, "session id space exhausted")
		}
		if atomic.CompareAndSwapUint32(&r.nextID, cur, cur+1) {
			return cur + 1, nil
		}
	}
}

// Create registers a new session record with the given id and project
// path in the Starting state. It fails if id is already present.
func (r *Registry) Create(id uint32, project string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return nil, errs.NewPTYError(errs.SpawnFailed, "session id %d already registered", id)
	}
	s := &Session{ID: id, Project: project, state: StateStarting}
	r.sessions[id] = s
	return s, nil
}

// Get returns the session for id, or nil if it is not registered.
func (r *Registry) Get(id uint32) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// UpdateStatus sets a session's lifecycle state and, for NeedsInput,
// its prompt text. Returns errs.SessionNotFound if id is unregistered.
func (r *Registry) UpdateStatus(id uint32, state State, needsInputPrompt string) error {
	s := r.Get(id)
	if s == nil {
		return errs.NewPTYError(errs.SessionNotFound, "session %d not found", id)
	}
	s.mu.Lock()
	s.state = state
	if state == StateNeedsInput {
		s.needsInput = needsInputPrompt
	} else {
		s.needsInput = ""
	}
	s.mu.Unlock()
	return nil
}

// AssignBranch atomically sets a session's branch label and working
// directory path.
func (r *Registry) AssignBranch(id uint32, branch, workingDir string) error {
	s := r.Get(id)
	if s == nil {
		return errs.NewPTYError(errs.SessionNotFound, "session %d not found", id)
	}
	s.mu.Lock()
	s.branch = branch
	s.workingDir = workingDir
	s.mu.Unlock()
	return nil
}

// All returns a snapshot of every registered session, in no particular
// order.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	return out
}

// FilterByProject returns every session whose Project matches exactly.
func (r *Registry) FilterByProject(project string) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Info
	for _, s := range r.sessions {
		if s.Project == project {
			out = append(out, s.snapshot())
		}
	}
	return out
}

// Remove deletes id from the registry. It is a no-op if id is not present.
func (r *Registry) Remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// RemoveAllForProject removes every session belonging to project and
// returns their snapshots so the caller can cascade teardown (kill PTY,
// remove worktree, remove config entry) for each.
func (r *Registry) RemoveAllForProject(project string) []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Info
	for id, s := range r.sessions {
		if s.Project == project {
			removed = append(removed, s.snapshot())
			delete(r.sessions, id)
		}
	}
	return removed
}

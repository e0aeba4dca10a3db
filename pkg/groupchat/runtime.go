package groupchat

import (
	"sort"
	"sync"
	"time"
)

// RuntimeStore owns the volatile per-conversation routing state: the
// pending-response set, the read-only latch, the keep-alive hold and the
// round generation counter. One instance is injected into the Router by
// whatever composes it, so tests and multi-tenant hosts stay isolated.
//
// All mutations for a given conversation are serialized on that
// conversation's mutex; concurrent MarkParticipantResponded calls are
// linearized so last-responder detection can neither double-fire nor
// never-fire.
type RuntimeStore struct {
	mu       sync.Mutex
	runtimes map[string]*conversationRuntime
	live     sync.WaitGroup
}

type conversationRuntime struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	readOnly bool
	state    State
	round    uint64
	timer    *time.Timer
	held     bool
}

// NewRuntimeStore creates an empty runtime store.
func NewRuntimeStore() *RuntimeStore {
	return &RuntimeStore{runtimes: make(map[string]*conversationRuntime)}
}

func (s *RuntimeStore) runtime(id string) *conversationRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[id]
	if !ok {
		rt = &conversationRuntime{}
		s.runtimes[id] = rt
	}
	return rt
}

// AddPendingParticipant records that an invocation for name was dispatched.
// It returns false when the participant is already pending, in which case
// the caller must not dispatch again.
func (s *RuntimeStore) AddPendingParticipant(id, name string) bool {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.pending == nil {
		rt.pending = make(map[string]struct{})
	}
	if _, exists := rt.pending[name]; exists {
		return false
	}
	rt.pending[name] = struct{}{}
	return true
}

// MarkParticipantResponded removes name from the pending set. It returns
// true iff this removal emptied the set; the set is deleted at the same
// time, so the signal fires exactly once per round. The true return is the
// only authorized trigger for a moderator synthesis round.
func (s *RuntimeStore) MarkParticipantResponded(id, name string) bool {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.pending == nil {
		return false
	}
	if _, exists := rt.pending[name]; !exists {
		return false
	}
	delete(rt.pending, name)
	if len(rt.pending) > 0 {
		return false
	}
	rt.pending = nil
	rt.closeRoundLocked()
	return true
}

// ClearPendingParticipants abandons the current round, leaving the tracker
// as if it had never started. Idempotent.
func (s *RuntimeStore) ClearPendingParticipants(id string) {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.pending = nil
	rt.closeRoundLocked()
}

// PendingParticipants returns the names still awaited, sorted.
func (s *RuntimeStore) PendingParticipants(id string) []string {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.pending))
	for name := range rt.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetReadOnly latches the conversation's read-only flag. The latch holds
// across moderator and participant turns until the next user message
// changes it.
func (s *RuntimeStore) SetReadOnly(id string, readOnly bool) {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.readOnly = readOnly
}

// ReadOnly reports the conversation's latched read-only flag.
func (s *RuntimeStore) ReadOnly(id string) bool {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.readOnly
}

// SetState records the conversation's routing state.
func (s *RuntimeStore) SetState(id string, state State) {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.state = state
}

// State returns the conversation's routing state, defaulting to idle.
func (s *RuntimeStore) State(id string) State {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.state == "" {
		return StateIdle
	}
	return rt.state
}

// ArmRoundTimer schedules expire to run after d with the current round
// generation. A round that completes or is cleared before the timer fires
// advances the generation, so a stale timer expires into nothing.
func (s *RuntimeStore) ArmRoundTimer(id string, d time.Duration, expire func(generation uint64)) {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.timer != nil {
		rt.timer.Stop()
	}
	gen := rt.round
	rt.timer = time.AfterFunc(d, func() { expire(gen) })
}

// ExpirePending atomically takes the remaining pending names when
// generation still identifies the current round. A stale generation, or an
// already-empty set, yields nil.
func (s *RuntimeStore) ExpirePending(id string, generation uint64) []string {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.round != generation || len(rt.pending) == 0 {
		return nil
	}
	names := make([]string, 0, len(rt.pending))
	for name := range rt.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	rt.pending = nil
	rt.closeRoundLocked()
	return names
}

// closeRoundLocked advances the round generation and stops any armed
// timer. Caller holds rt.mu.
func (rt *conversationRuntime) closeRoundLocked() {
	rt.round++
	if rt.timer != nil {
		rt.timer.Stop()
		rt.timer = nil
	}
}

// Hold keeps the host process alive for the conversation until Release.
// At most one hold is held per conversation; extra calls are no-ops.
func (s *RuntimeStore) Hold(id string) {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.held {
		rt.held = true
		s.live.Add(1)
	}
}

// Release drops the conversation's keep-alive hold. Idempotent.
func (s *RuntimeStore) Release(id string) {
	rt := s.runtime(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.held {
		rt.held = false
		s.live.Done()
	}
}

// Wait blocks until every conversation's hold has been released.
func (s *RuntimeStore) Wait() {
	s.live.Wait()
}

// Forget drops all volatile state for a closed conversation.
func (s *RuntimeStore) Forget(id string) {
	s.mu.Lock()
	rt, ok := s.runtimes[id]
	if ok {
		delete(s.runtimes, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.timer != nil {
		rt.timer.Stop()
	}
	if rt.held {
		rt.held = false
		s.live.Done()
	}
}

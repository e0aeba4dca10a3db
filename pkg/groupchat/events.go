package groupchat

import "sync"

// ParticipantActivity values carried by OnParticipantState.
const (
	ActivityWorking = "working"
	ActivityIdle    = "idle"
)

// Listener receives conversation events. Delivery is at-least-once,
// best-effort ordered by emission time; listeners must not block.
type Listener interface {
	OnMessage(conversationID string, entry MessageEntry)
	OnStateChange(conversationID string, state State)
	OnParticipantState(conversationID, name, activity string)
	OnParticipantsChanged(conversationID string, roster []*Participant)
	OnHistoryEntry(conversationID string, entry HistoryEntry)
}

// Emitter fans conversation events out to registered listeners.
type Emitter struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a listener for all subsequent events.
func (e *Emitter) Subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Emitter) snapshot() []Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Listener, len(e.listeners))
	copy(out, e.listeners)
	return out
}

func (e *Emitter) message(id string, entry MessageEntry) {
	for _, l := range e.snapshot() {
		l.OnMessage(id, entry)
	}
}

func (e *Emitter) stateChange(id string, state State) {
	for _, l := range e.snapshot() {
		l.OnStateChange(id, state)
	}
}

func (e *Emitter) participantState(id, name, activity string) {
	for _, l := range e.snapshot() {
		l.OnParticipantState(id, name, activity)
	}
}

func (e *Emitter) participantsChanged(id string, roster []*Participant) {
	for _, l := range e.snapshot() {
		l.OnParticipantsChanged(id, roster)
	}
}

func (e *Emitter) historyEntry(id string, entry HistoryEntry) {
	for _, l := range e.snapshot() {
		l.OnHistoryEntry(id, entry)
	}
}

// NoopListener implements Listener with empty methods so consumers can
// embed it and override only what they need.
type NoopListener struct{}

func (NoopListener) OnMessage(string, MessageEntry)                 {}
func (NoopListener) OnStateChange(string, State)                    {}
func (NoopListener) OnParticipantState(string, string, string)      {}
func (NoopListener) OnParticipantsChanged(string, []*Participant)   {}
func (NoopListener) OnHistoryEntry(string, HistoryEntry)            {}

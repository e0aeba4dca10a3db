package groupchat

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/roundtablehq/roundtable/pkg/logging"
	"github.com/roundtablehq/roundtable/pkg/mention"
	"github.com/roundtablehq/roundtable/pkg/sessions"
)

// Recoverer re-dispatches a participant whose backing session vanished.
// The router depends on this interface rather than on the concrete
// controller so composition stays acyclic.
type Recoverer interface {
	RespawnParticipantWithRecovery(conversationID, participantName string) error
}

// RouterOptions carries the router's injected dependencies. Store,
// Runtime, Directory and Dispatcher are required.
type RouterOptions struct {
	Store      Store
	Runtime    *RuntimeStore
	Directory  sessions.Directory
	Dispatcher Dispatcher
	Events     *Emitter
	Recovery   Recoverer

	// HistoryWindow bounds the recent-history window in prompts.
	HistoryWindow int

	// RoundTimeout, when non-zero, bounds how long a participant round
	// may stay open before stragglers are dropped and synthesis runs over
	// the responses collected so far.
	RoundTimeout time.Duration
}

// Router decides, for every inbound message, who must be invoked next. Its
// entry points are expected to be called from a single-threaded dispatcher
// per conversation; cross-conversation calls may run concurrently.
// Dispatches are fire-and-forget: the corresponding response arrives later
// as a separate inbound event.
type Router struct {
	store        Store
	runtime      *RuntimeStore
	directory    sessions.Directory
	dispatcher   Dispatcher
	events       *Emitter
	recovery     Recoverer
	prompts      *PromptBuilder
	roundTimeout time.Duration
	log          *logrus.Entry
}

// NewRouter builds a Router from its dependencies.
func NewRouter(opts RouterOptions) *Router {
	events := opts.Events
	if events == nil {
		events = NewEmitter()
	}
	return &Router{
		store:        opts.Store,
		runtime:      opts.Runtime,
		directory:    opts.Directory,
		dispatcher:   opts.Dispatcher,
		events:       events,
		recovery:     opts.Recovery,
		prompts:      &PromptBuilder{HistoryWindow: opts.HistoryWindow},
		roundTimeout: opts.RoundTimeout,
		log:          logging.NewLogger("router"),
	}
}

// Events returns the emitter so hosts can subscribe listeners.
func (r *Router) Events() *Emitter {
	return r.events
}

// CreateConversation persists a new active conversation with an empty
// roster.
func (r *Router) CreateConversation(name string, moderator ModeratorConfig) (*Conversation, error) {
	now := time.Now()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		Moderator: moderator,
		LogRef:    "",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	conv.LogRef = conv.ID
	if err := r.store.SaveConversation(conv); err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return conv, nil
}

// State reports the conversation's current routing state.
func (r *Router) State(conversationID string) State {
	return r.runtime.State(conversationID)
}

// PendingParticipants exposes the pending set for inspection.
func (r *Router) PendingParticipants(conversationID string) []string {
	return r.runtime.PendingParticipants(conversationID)
}

// ReadOnlyState reports the conversation's latched read-only flag.
func (r *Router) ReadOnlyState(conversationID string) bool {
	return r.runtime.ReadOnly(conversationID)
}

// SetReadOnlyState latches the read-only flag directly.
func (r *Router) SetReadOnlyState(conversationID string, readOnly bool) {
	r.runtime.SetReadOnly(conversationID, readOnly)
}

// CloseRound abandons any outstanding participant round, leaving the
// tracker as if the round never started.
func (r *Router) CloseRound(conversationID string) {
	r.runtime.ClearPendingParticipants(conversationID)
	r.setState(conversationID, StateIdle)
	r.runtime.Release(conversationID)
}

// RespawnParticipantWithRecovery delegates to the injected recovery
// controller.
func (r *Router) RespawnParticipantWithRecovery(conversationID, participantName string) error {
	if r.recovery == nil {
		return errors.New("no recovery controller configured")
	}
	return r.recovery.RespawnParticipantWithRecovery(conversationID, participantName)
}

// RouteUserMessage handles an inbound human message: auto-joins mentioned
// available sessions, appends and broadcasts the message, latches the
// read-only flag, and dispatches one moderator invocation.
func (r *Router) RouteUserMessage(conversationID, text string, readOnly bool) error {
	conv, err := r.loadActive(conversationID)
	if err != nil {
		return err
	}

	r.autoJoin(conv, mention.ExtractAllMentions(text))

	entry := MessageEntry{
		Timestamp: time.Now(),
		From:      SenderUser,
		Content:   text,
		ReadOnly:  readOnly,
	}
	if err := r.store.AppendLogEntry(conv.LogRef, entry); err != nil {
		return r.failToIdle(conversationID, errors.Wrap(err, "append user message"))
	}

	r.runtime.SetReadOnly(conversationID, readOnly)
	if conv.ReadOnly != readOnly {
		conv.ReadOnly = readOnly
		conv.UpdatedAt = time.Now()
		if err := r.store.SaveConversation(conv); err != nil {
			r.log.WithError(err).Warn("Failed to persist read-only flag")
		}
	}

	r.events.message(conversationID, entry)
	r.runtime.Hold(conversationID)

	return r.dispatchModeratorTurn(conv, false)
}

// RouteModeratorResponse handles a completed moderator turn: appends and
// broadcasts it, records a history entry, auto-joins newly mentioned
// sessions, and fans out one invocation per resolved participant. With no
// resolved participants the round is final and the conversation returns to
// idle.
func (r *Router) RouteModeratorResponse(conversationID, text string) error {
	conv, err := r.loadActive(conversationID)
	if err != nil {
		return err
	}

	entry := MessageEntry{Timestamp: time.Now(), From: SenderModerator, Content: text}
	if err := r.store.AppendLogEntry(conv.LogRef, entry); err != nil {
		return r.failToIdle(conversationID, errors.Wrap(err, "append moderator message"))
	}
	r.events.message(conversationID, entry)

	r.recordHistory(conversationID, HistoryEntry{
		Timestamp:    entry.Timestamp,
		Summary:      FirstSentence(text),
		Type:         HistoryTypeModerator,
		FullResponse: text,
	})

	// Mentions are resolved against the roster as it exists at dispatch
	// time, so a mention that just triggered an auto-join is dispatched in
	// the same round.
	r.autoJoin(conv, mention.ExtractAllMentions(text))
	resolved := mention.ExtractMentions(text, conv.RosterNames())

	if len(resolved) == 0 {
		r.setState(conversationID, StateIdle)
		r.runtime.Release(conversationID)
		return nil
	}

	logEntries, err := r.store.ReadLog(conv.LogRef)
	if err != nil {
		return r.failToIdle(conversationID, errors.Wrap(err, "read log for participant prompts"))
	}
	readOnly := r.runtime.ReadOnly(conversationID)

	dispatched := 0
	for _, name := range resolved {
		p := conv.Participant(name)
		if p == nil {
			continue
		}
		// An already-pending participant is not re-dispatched.
		if !r.runtime.AddPendingParticipant(conversationID, name) {
			continue
		}

		prompt := r.prompts.ParticipantPrompt(conv, p, logEntries, readOnly)
		r.events.participantState(conversationID, name, ActivityWorking)

		if err := r.dispatcher.DispatchParticipant(conv, p, prompt); err != nil {
			// Partial-failure tolerant: one bad participant must not
			// prevent the rest of the fan-out.
			r.log.WithError(err).WithFields(logrus.Fields{
				"conversation": conversationID,
				"participant":  name,
			}).Error("Failed to dispatch participant")
			r.runtime.MarkParticipantResponded(conversationID, name)
			r.events.participantState(conversationID, name, ActivityIdle)
			continue
		}
		dispatched++
	}

	if dispatched == 0 {
		r.setState(conversationID, StateIdle)
		r.runtime.Release(conversationID)
		return nil
	}

	r.setState(conversationID, StateAgentWorking)
	if r.roundTimeout > 0 {
		r.runtime.ArmRoundTimer(conversationID, r.roundTimeout, func(generation uint64) {
			r.expireRound(conversationID, generation)
		})
	}
	return nil
}

// RouteAgentResponse handles a completed participant turn. It returns true
// when this response emptied the pending set; the caller must then invoke
// SpawnModeratorSynthesis exactly once. Synthesis is not dispatched here so
// "a participant exited" stays decoupled from "all participants are done".
func (r *Router) RouteAgentResponse(conversationID, participantName, text string) (bool, error) {
	conv, err := r.loadActive(conversationID)
	if err != nil {
		return false, err
	}

	p := conv.Participant(participantName)
	if p == nil {
		return false, errors.Wrap(ErrParticipantNotFound, participantName)
	}

	entry := MessageEntry{Timestamp: time.Now(), From: participantName, Content: text}
	if err := r.store.AppendLogEntry(conv.LogRef, entry); err != nil {
		return false, errors.Wrap(err, "append participant message")
	}
	r.events.message(conversationID, entry)

	// Usage counters and summaries are best-effort: losing them must not
	// break the live message flow.
	p.MessageCount++
	p.LastActiveAt = entry.Timestamp
	p.LastSummary = FirstSentence(text)
	if err := r.store.AddOrUpdateParticipant(conversationID, p); err != nil {
		r.log.WithError(err).WithField("participant", participantName).Warn("Failed to update participant stats")
	}

	r.recordHistory(conversationID, HistoryEntry{
		Timestamp:       entry.Timestamp,
		Summary:         p.LastSummary,
		ParticipantName: participantName,
		Type:            HistoryTypeParticipant,
		FullResponse:    text,
	})

	r.events.participantState(conversationID, participantName, ActivityIdle)

	return r.runtime.MarkParticipantResponded(conversationID, participantName), nil
}

// SpawnModeratorSynthesis dispatches the single synthesis invocation that
// closes a participant round. The moderator's output routes back through
// RouteModeratorResponse, so a synthesis round may itself open a further
// participant round.
func (r *Router) SpawnModeratorSynthesis(conversationID string) error {
	conv, err := r.loadActive(conversationID)
	if err != nil {
		return err
	}
	return r.dispatchModeratorTurn(conv, true)
}

// dispatchModeratorTurn builds the moderator prompt and spawns it, moving
// the conversation into moderator-thinking. Any failure resets to idle.
func (r *Router) dispatchModeratorTurn(conv *Conversation, synthesis bool) error {
	logEntries, err := r.store.ReadLog(conv.LogRef)
	if err != nil {
		return r.failToIdle(conv.ID, errors.Wrap(err, "read log for moderator prompt"))
	}

	var prompt string
	if synthesis {
		prompt = r.prompts.SynthesisPrompt(conv, logEntries)
	} else {
		available := r.availableSessions()
		prompt = r.prompts.ModeratorPrompt(conv, logEntries, available)
	}

	r.setState(conv.ID, StateModeratorThinking)
	if err := r.dispatcher.DispatchModerator(conv, prompt); err != nil {
		return r.failToIdle(conv.ID, errors.Wrap(err, "dispatch moderator"))
	}
	return nil
}

// expireRound fires when a participant round outlives the configured
// timeout: the stragglers are dropped and synthesis runs over what was
// collected. A stale generation means the round already closed.
func (r *Router) expireRound(conversationID string, generation uint64) {
	stragglers := r.runtime.ExpirePending(conversationID, generation)
	if len(stragglers) == 0 {
		return
	}
	r.log.WithFields(logrus.Fields{
		"conversation": conversationID,
		"stragglers":   stragglers,
	}).Warn("Participant round timed out, synthesizing partial responses")

	for _, name := range stragglers {
		r.events.participantState(conversationID, name, ActivityIdle)
	}
	if err := r.SpawnModeratorSynthesis(conversationID); err != nil {
		r.log.WithError(err).WithField("conversation", conversationID).Error("Partial synthesis dispatch failed")
	}
}

// autoJoin inserts a participant for every raw mention that matches an
// available, not-yet-joined session.
func (r *Router) autoJoin(conv *Conversation, rawMentions []string) {
	if len(rawMentions) == 0 {
		return
	}
	available := r.availableSessions()
	if len(available) == 0 {
		return
	}

	joined := make(map[string]struct{}, len(conv.Participants))
	for _, p := range conv.Participants {
		joined[mention.Normalize(p.Name)] = struct{}{}
	}

	changed := false
	for _, token := range rawMentions {
		norm := mention.Normalize(token)
		for _, s := range available {
			if mention.Normalize(s.Name) != norm {
				continue
			}
			if _, ok := joined[norm]; ok {
				break
			}
			p := participantFromSession(s, len(conv.Participants))
			conv.Participants = append(conv.Participants, p)
			joined[norm] = struct{}{}
			changed = true

			if err := r.store.AddOrUpdateParticipant(conv.ID, p); err != nil {
				r.log.WithError(err).WithField("participant", p.Name).Warn("Failed to persist auto-joined participant")
			}
			r.log.WithFields(logrus.Fields{
				"conversation": conv.ID,
				"participant":  p.Name,
				"agent":        p.AgentKind,
			}).Info("Participant auto-joined on mention")
			break
		}
	}

	if changed {
		conv.UpdatedAt = time.Now()
		if err := r.store.SaveConversation(conv); err != nil {
			r.log.WithError(err).Warn("Failed to persist roster change")
		}
		r.events.participantsChanged(conv.ID, conv.Participants)
	}
}

func participantFromSession(s sessions.AvailableSession, seat int) *Participant {
	return &Participant{
		Name:        sanitizeName(s.Name),
		AgentKind:   s.AgentKind,
		SessionID:   s.ID,
		Remote:      s.Remote,
		WorkingDir:  s.WorkingDir,
		CustomArgs:  s.CustomArgs,
		CustomEnv:   s.CustomEnv,
		CustomModel: s.CustomModel,
		Color:       PaletteColor(seat),
	}
}

func (r *Router) availableSessions() []sessions.AvailableSession {
	available, err := r.directory.ListAvailableSessions()
	if err != nil {
		// A broken directory only disables auto-join and invitations.
		r.log.WithError(err).Warn("Failed to list available sessions")
		return nil
	}
	return available
}

func (r *Router) recordHistory(conversationID string, entry HistoryEntry) {
	if err := r.store.AppendHistoryEntry(conversationID, entry); err != nil {
		r.log.WithError(err).Warn("Failed to append history entry")
		return
	}
	r.events.historyEntry(conversationID, entry)
}

func (r *Router) setState(conversationID string, state State) {
	r.runtime.SetState(conversationID, state)
	r.events.stateChange(conversationID, state)
}

// failToIdle resets the conversation after a routing error so it is never
// left stuck in moderator-thinking or agent-working.
func (r *Router) failToIdle(conversationID string, err error) error {
	r.runtime.ClearPendingParticipants(conversationID)
	r.setState(conversationID, StateIdle)
	r.runtime.Release(conversationID)
	return err
}

func (r *Router) loadActive(conversationID string) (*Conversation, error) {
	conv, err := r.store.LoadConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.Wrap(ErrConversationNotFound, conversationID)
	}
	if !conv.Active {
		return nil, errors.Wrap(ErrConversationNotActive, conversationID)
	}
	return conv, nil
}

package groupchat_test

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtablehq/roundtable/pkg/groupchat"
	"github.com/roundtablehq/roundtable/pkg/sessions"
)

// memStore is an in-memory groupchat.Store for router tests.
type memStore struct {
	mu          sync.Mutex
	convs       map[string]*groupchat.Conversation
	logs        map[string][]groupchat.MessageEntry
	history     map[string][]groupchat.HistoryEntry
	failHistory bool
	failAppend  bool
}

func newMemStore() *memStore {
	return &memStore{
		convs:   map[string]*groupchat.Conversation{},
		logs:    map[string][]groupchat.MessageEntry{},
		history: map[string][]groupchat.HistoryEntry{},
	}
}

func (m *memStore) LoadConversation(id string) (*groupchat.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil, errors.Wrap(groupchat.ErrConversationNotFound, id)
	}
	return conv, nil
}

func (m *memStore) SaveConversation(c *groupchat.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[c.ID] = c
	return nil
}

func (m *memStore) AddOrUpdateParticipant(conversationID string, p *groupchat.Participant) error {
	return nil
}

func (m *memStore) AppendLogEntry(logRef string, e groupchat.MessageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return errors.New("disk full")
	}
	m.logs[logRef] = append(m.logs[logRef], e)
	return nil
}

func (m *memStore) ReadLog(logRef string) ([]groupchat.MessageEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]groupchat.MessageEntry{}, m.logs[logRef]...), nil
}

func (m *memStore) AppendHistoryEntry(conversationID string, e groupchat.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHistory {
		return errors.New("history store down")
	}
	m.history[conversationID] = append(m.history[conversationID], e)
	return nil
}

// recordingDispatcher records dispatches instead of spawning processes.
type recordingDispatcher struct {
	mu                 sync.Mutex
	moderatorPrompts   []string
	participants       []string
	participantSpecs   []*groupchat.Participant
	participantPrompts []string
	failParticipant    map[string]error
	failModerator      error
}

func (d *recordingDispatcher) DispatchModerator(conv *groupchat.Conversation, prompt string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failModerator != nil {
		return d.failModerator
	}
	d.moderatorPrompts = append(d.moderatorPrompts, prompt)
	return nil
}

func (d *recordingDispatcher) DispatchParticipant(conv *groupchat.Conversation, p *groupchat.Participant, prompt string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failParticipant[p.Name]; err != nil {
		return err
	}
	d.participants = append(d.participants, p.Name)
	d.participantSpecs = append(d.participantSpecs, p)
	d.participantPrompts = append(d.participantPrompts, prompt)
	return nil
}

func (d *recordingDispatcher) moderatorCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.moderatorPrompts)
}

type fixture struct {
	store      *memStore
	dispatcher *recordingDispatcher
	router     *groupchat.Router
	conv       *groupchat.Conversation
}

func newFixture(t *testing.T, available []sessions.AvailableSession, opts ...func(*groupchat.RouterOptions)) *fixture {
	t.Helper()

	store := newMemStore()
	dispatcher := &recordingDispatcher{failParticipant: map[string]error{}}

	ro := groupchat.RouterOptions{
		Store:      store,
		Runtime:    groupchat.NewRuntimeStore(),
		Directory:  &sessions.StaticDirectory{Sessions: available},
		Dispatcher: dispatcher,
	}
	for _, o := range opts {
		o(&ro)
	}
	router := groupchat.NewRouter(ro)

	conv, err := router.CreateConversation("test table", groupchat.ModeratorConfig{AgentKind: "claude"})
	require.NoError(t, err)

	return &fixture{store: store, dispatcher: dispatcher, router: router, conv: conv}
}

func TestRouteUserMessageUnknownConversation(t *testing.T) {
	f := newFixture(t, nil)
	err := f.router.RouteUserMessage("missing", "hello", false)
	assert.True(t, errors.Is(err, groupchat.ErrConversationNotFound))
}

func TestRouteUserMessageInactiveConversation(t *testing.T) {
	f := newFixture(t, nil)
	f.conv.Active = false
	require.NoError(t, f.store.SaveConversation(f.conv))

	err := f.router.RouteUserMessage(f.conv.ID, "hello", false)
	assert.True(t, errors.Is(err, groupchat.ErrConversationNotActive))
}

func TestRouteUserMessageAutoJoinsMentionedSession(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s1", Name: "Bob", AgentKind: "claude"},
	})

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "@Bob please check", false))

	require.Len(t, f.conv.Participants, 1)
	assert.Equal(t, "Bob", f.conv.Participants[0].Name)
	assert.Equal(t, "s1", f.conv.Participants[0].SessionID)
	assert.NotEmpty(t, f.conv.Participants[0].Color)

	assert.Equal(t, 1, f.dispatcher.moderatorCount())
	assert.Equal(t, groupchat.StateModeratorThinking, f.router.State(f.conv.ID))

	logEntries, _ := f.store.ReadLog(f.conv.LogRef)
	require.Len(t, logEntries, 1)
	assert.Equal(t, groupchat.SenderUser, logEntries[0].From)
}

func TestReadOnlyLatchPersistsAcrossTurns(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "look only", true))
	assert.True(t, f.router.ReadOnlyState(f.conv.ID))

	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "nothing to delegate"))
	assert.True(t, f.router.ReadOnlyState(f.conv.ID), "latch survives moderator turn")

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "go ahead and edit", false))
	assert.False(t, f.router.ReadOnlyState(f.conv.ID))
}

func TestModeratorFanOut(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s1", Name: "Bob", AgentKind: "claude"},
		{ID: "s2", Name: "Carol", AgentKind: "codex"},
	})

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "@Bob @Carol are needed", false))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Bob @Carol please proceed, @bob especially"))

	assert.Equal(t, []string{"Bob", "Carol"}, f.router.PendingParticipants(f.conv.ID))
	assert.Equal(t, []string{"Bob", "Carol"}, f.dispatcher.participants, "duplicate mention must not double-dispatch")
	assert.Equal(t, groupchat.StateAgentWorking, f.router.State(f.conv.ID))
}

func TestModeratorResponseAutoJoinsAndDispatchesSameRound(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s3", Name: "Dave", AgentKind: "claude"},
	})

	// Dave is not on the roster yet: the moderator's mention both joins and
	// dispatches him in the same round.
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Dave take a look"))

	require.Len(t, f.conv.Participants, 1)
	assert.Equal(t, []string{"Dave"}, f.router.PendingParticipants(f.conv.ID))
	assert.Equal(t, []string{"Dave"}, f.dispatcher.participants)
}

func TestModeratorResponseNoMentionsEndsRound(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "just thinking aloud", false))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "nothing to delegate here"))

	assert.Empty(t, f.router.PendingParticipants(f.conv.ID))
	assert.Equal(t, groupchat.StateIdle, f.router.State(f.conv.ID))
	assert.Empty(t, f.dispatcher.participants)
}

func TestAlreadyPendingParticipantNotRedispatched(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s1", Name: "Bob", AgentKind: "claude"},
	})

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "@Bob hello", false))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Bob go"))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Bob still waiting"))

	assert.Equal(t, []string{"Bob"}, f.dispatcher.participants, "pending participant must not be dispatched again")
	assert.Equal(t, []string{"Bob"}, f.router.PendingParticipants(f.conv.ID))
}

func TestRouteAgentResponseSignalsOnlyOnLast(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s1", Name: "Bob", AgentKind: "claude"},
		{ID: "s2", Name: "Carol", AgentKind: "codex"},
	})
	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "@Bob @Carol check this", false))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Bob @Carol proceed"))

	last, err := f.router.RouteAgentResponse(f.conv.ID, "Bob", "Bob's answer. With detail.")
	require.NoError(t, err)
	assert.False(t, last)
	assert.Equal(t, []string{"Carol"}, f.router.PendingParticipants(f.conv.ID))

	last, err = f.router.RouteAgentResponse(f.conv.ID, "Carol", "Carol's answer.")
	require.NoError(t, err)
	assert.True(t, last)
	assert.Empty(t, f.router.PendingParticipants(f.conv.ID))

	// Usage counters and summaries were updated on the roster.
	bob := f.conv.Participant("Bob")
	require.NotNil(t, bob)
	assert.Equal(t, 1, bob.MessageCount)
	assert.Equal(t, "Bob's answer.", bob.LastSummary)

	// History entries were derived alongside the moderator and participant
	// log entries (user messages produce none).
	require.Len(t, f.store.history[f.conv.ID], 3)
}

func TestRouteAgentResponseUnknownParticipant(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.router.RouteAgentResponse(f.conv.ID, "Nobody", "hi")
	assert.True(t, errors.Is(err, groupchat.ErrParticipantNotFound))
}

func TestParticipantDispatchFailureIsPartial(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s1", Name: "Bob", AgentKind: "claude"},
		{ID: "s2", Name: "Carol", AgentKind: "codex"},
	})
	f.dispatcher.failParticipant["Bob"] = errors.New("spawn failed")

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "@Bob @Carol go", false))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Bob @Carol proceed"))

	// One bad participant must not prevent the other from being dispatched.
	assert.Equal(t, []string{"Carol"}, f.dispatcher.participants)
	assert.Equal(t, []string{"Carol"}, f.router.PendingParticipants(f.conv.ID))
	assert.Equal(t, groupchat.StateAgentWorking, f.router.State(f.conv.ID))
}

func TestAllParticipantDispatchesFailEndsRound(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s1", Name: "Bob", AgentKind: "claude"},
	})
	f.dispatcher.failParticipant["Bob"] = errors.New("spawn failed")

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "@Bob go", false))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Bob proceed"))

	assert.Empty(t, f.router.PendingParticipants(f.conv.ID))
	assert.Equal(t, groupchat.StateIdle, f.router.State(f.conv.ID))
}

func TestModeratorDispatchFailureResetsToIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.dispatcher.failModerator = errors.New("binary missing")

	err := f.router.RouteUserMessage(f.conv.ID, "hello", false)
	assert.Error(t, err)
	assert.Equal(t, groupchat.StateIdle, f.router.State(f.conv.ID),
		"conversation must never be left in moderator-thinking after an error")
}

func TestAppendFailureResetsToIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.store.failAppend = true

	err := f.router.RouteUserMessage(f.conv.ID, "hello", false)
	assert.Error(t, err)
	assert.Equal(t, groupchat.StateIdle, f.router.State(f.conv.ID))
}

func TestHistoryFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, nil)
	f.store.failHistory = true

	// Losing a summary must not break the live message flow.
	assert.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "all good"))
}

func TestSpawnModeratorSynthesis(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.router.SpawnModeratorSynthesis(f.conv.ID))
	assert.Equal(t, 1, f.dispatcher.moderatorCount())
	assert.Equal(t, groupchat.StateModeratorThinking, f.router.State(f.conv.ID))
}

func TestRoundTimeoutTriggersPartialSynthesis(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s1", Name: "Bob", AgentKind: "claude"},
		{ID: "s2", Name: "Carol", AgentKind: "codex"},
	}, func(o *groupchat.RouterOptions) {
		o.RoundTimeout = 25 * time.Millisecond
	})

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "@Bob @Carol go", false))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Bob @Carol proceed"))
	moderatorBefore := f.dispatcher.moderatorCount()

	// Bob responds; Carol never does. The round timer drops the straggler
	// and synthesizes over what was collected.
	_, err := f.router.RouteAgentResponse(f.conv.ID, "Bob", "done")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.dispatcher.moderatorCount() == moderatorBefore+1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.router.PendingParticipants(f.conv.ID))
}

func TestRoundTimerDoesNotFireAfterRoundCompletes(t *testing.T) {
	f := newFixture(t, []sessions.AvailableSession{
		{ID: "s1", Name: "Bob", AgentKind: "claude"},
	}, func(o *groupchat.RouterOptions) {
		o.RoundTimeout = 20 * time.Millisecond
	})

	require.NoError(t, f.router.RouteUserMessage(f.conv.ID, "@Bob go", false))
	require.NoError(t, f.router.RouteModeratorResponse(f.conv.ID, "@Bob proceed"))

	last, err := f.router.RouteAgentResponse(f.conv.ID, "Bob", "done")
	require.NoError(t, err)
	require.True(t, last)
	require.NoError(t, f.router.SpawnModeratorSynthesis(f.conv.ID))
	count := f.dispatcher.moderatorCount()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, f.dispatcher.moderatorCount(), "stale round timer must expire into nothing")
}

package groupchat_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roundtablehq/roundtable/pkg/groupchat"
	"github.com/roundtablehq/roundtable/pkg/sessions"
)

func promptConv() *groupchat.Conversation {
	return &groupchat.Conversation{
		ID:   "c1",
		Name: "design review",
		Participants: []*groupchat.Participant{
			{Name: "Bob", AgentKind: "claude", MessageCount: 2},
		},
	}
}

func promptLog(n int) []groupchat.MessageEntry {
	var out []groupchat.MessageEntry
	for i := 0; i < n; i++ {
		out = append(out, groupchat.MessageEntry{
			Timestamp: time.Now(),
			From:      groupchat.SenderUser,
			Content:   "line",
		})
	}
	return out
}

func TestModeratorPromptListsInvitableSessions(t *testing.T) {
	b := &groupchat.PromptBuilder{}
	available := []sessions.AvailableSession{
		{Name: "Bob", AgentKind: "claude"},
		{Name: "Carol", AgentKind: "codex"},
	}

	prompt := b.ModeratorPrompt(promptConv(), nil, available)

	assert.Contains(t, prompt, "- @Bob (claude, 2 messages)")
	assert.Contains(t, prompt, "@Carol (codex)")
	assert.NotContains(t, prompt, "@Bob (claude)", "joined sessions must not appear in the invitation list")
}

func TestParticipantPromptCarriesReadOnlyInstruction(t *testing.T) {
	b := &groupchat.PromptBuilder{}
	conv := promptConv()
	p := conv.Participants[0]

	rw := b.ParticipantPrompt(conv, p, nil, false)
	ro := b.ParticipantPrompt(conv, p, nil, true)

	assert.NotContains(t, rw, "read-only mode")
	assert.Contains(t, ro, "read-only mode")
	assert.Contains(t, ro, `"Bob"`)
}

func TestHistoryWindowIsBounded(t *testing.T) {
	b := &groupchat.PromptBuilder{HistoryWindow: 5}
	prompt := b.SynthesisPrompt(promptConv(), promptLog(50))

	assert.Equal(t, 5, strings.Count(prompt, "user: line"))
}

func TestFirstSentence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Done. More detail follows.", "Done."},
		{"Is it ready?", "Is it ready?"},
		{"no terminator at all", "no terminator at all"},
		{"first line\nsecond line", "first line"},
		{"  padded. ", "padded."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, groupchat.FirstSentence(tt.in))
	}
}

// Package groupchat implements the moderated multi-agent conversation
// core: the router state machine, the pending-response tracker, participant
// auto-join on mention, and session recovery.
package groupchat

import (
	"strings"
	"time"
	"unicode"

	"github.com/roundtablehq/roundtable/pkg/remote"
)

// State is the routing state of one conversation.
type State string

const (
	// StateIdle means no moderator or participant work is outstanding.
	StateIdle State = "idle"
	// StateModeratorThinking means a moderator invocation is in flight.
	StateModeratorThinking State = "moderator-thinking"
	// StateAgentWorking means one or more participant invocations are in
	// flight.
	StateAgentWorking State = "agent-working"
)

// ModeratorConfig describes how the moderator agent is launched.
type ModeratorConfig struct {
	AgentKind  string            `yaml:"agent" json:"agent"`
	Binary     string            `yaml:"binary,omitempty" json:"binary,omitempty"`
	Args       []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env        map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Model      string            `yaml:"model,omitempty" json:"model,omitempty"`
	WorkingDir string            `yaml:"working_dir,omitempty" json:"workingDir,omitempty"`
	Remote     *remote.Binding   `yaml:"remote,omitempty" json:"remote,omitempty"`
}

// Participant is a named seat in a conversation. Names are unique within a
// conversation; matching against mentions is case- and separator-
// insensitive but the canonical form is stored.
type Participant struct {
	Name           string            `yaml:"name" json:"name"`
	AgentKind      string            `yaml:"agent" json:"agent"`
	SessionID      string            `yaml:"session_id,omitempty" json:"sessionId,omitempty"`
	Remote         *remote.Binding   `yaml:"remote,omitempty" json:"remote,omitempty"`
	PriorSessionID string            `yaml:"prior_session_id,omitempty" json:"priorSessionId,omitempty"`
	WorkingDir     string            `yaml:"working_dir,omitempty" json:"workingDir,omitempty"`
	CustomArgs     []string          `yaml:"args,omitempty" json:"args,omitempty"`
	CustomEnv      map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	CustomModel    string            `yaml:"model,omitempty" json:"model,omitempty"`
	MessageCount   int               `yaml:"message_count" json:"messageCount"`
	LastActiveAt   time.Time         `yaml:"last_active_at,omitempty" json:"lastActiveAt,omitempty"`
	LastSummary    string            `yaml:"last_summary,omitempty" json:"lastSummary,omitempty"`
	Color          string            `yaml:"color,omitempty" json:"color,omitempty"`
}

// Conversation is one multi-party chat instance.
type Conversation struct {
	ID           string          `yaml:"id" json:"id"`
	Name         string          `yaml:"name" json:"name"`
	Moderator    ModeratorConfig `yaml:"moderator" json:"moderator"`
	Participants []*Participant  `yaml:"participants,omitempty" json:"participants,omitempty"`
	LogRef       string          `yaml:"log_ref" json:"logRef"`
	ReadOnly     bool            `yaml:"read_only" json:"readOnly"`
	Active       bool            `yaml:"active" json:"active"`
	CreatedAt    time.Time       `yaml:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `yaml:"updated_at" json:"updatedAt"`
}

// Participant returns the seat with the given canonical name, or nil.
func (c *Conversation) Participant(name string) *Participant {
	for _, p := range c.Participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// RosterNames returns the canonical participant names in join order.
func (c *Conversation) RosterNames() []string {
	names := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		names[i] = p.Name
	}
	return names
}

// Senders for MessageEntry.From besides participant names.
const (
	SenderUser      = "user"
	SenderModerator = "moderator"
)

// MessageEntry is one immutable line in the append-only conversation log.
type MessageEntry struct {
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	Content   string    `json:"content"`
	ReadOnly  bool      `json:"readOnly,omitempty"`
}

// History entry types.
const (
	HistoryTypeModerator   = "moderator"
	HistoryTypeParticipant = "participant"
)

// HistoryEntry is a derived, queryable summary record produced alongside a
// MessageEntry.
type HistoryEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Summary         string    `json:"summary"`
	ParticipantName string    `json:"participantName,omitempty"`
	Type            string    `json:"type"`
	FullResponse    string    `json:"fullResponse"`
}

// FirstSentence extracts the summary form of a response: the text up to the
// first sentence terminator, or the first line when there is none.
func FirstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			return strings.TrimSpace(text[:i+1])
		}
	}
	return text
}

// participantPalette is cycled through when seats join, giving each
// participant a stable display color.
var participantPalette = []string{"cyan", "magenta", "green", "yellow", "blue", "red"}

// PaletteColor returns the display color for the nth seat.
func PaletteColor(n int) string {
	return participantPalette[n%len(participantPalette)]
}

// sanitizeName trims a raw session name into a canonical participant name.
func sanitizeName(name string) string {
	return strings.TrimFunc(name, unicode.IsSpace)
}

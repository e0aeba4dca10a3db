package groupchat

import (
	"fmt"
	"strings"

	"github.com/roundtablehq/roundtable/pkg/sessions"
)

// recoveryContextLimit bounds the number of a participant's own prior turns
// replayed when its backing session has to be rebuilt.
const recoveryContextLimit = 10

const moderatorInstructions = `You are the moderator of a multi-party conversation between a human and a set of named agents.
Read the conversation and decide which agents must respond next by mentioning them with @name.
Mention an agent only when its input is needed. If no agent needs to respond, reply to the human directly without any mention.`

const synthesisInstructions = `All mentioned agents have now responded.
Synthesize their responses for the human: summarize agreements, call out conflicts, and state the recommended next step.
You may mention agents again with @name if a follow-up round is required.`

// PromptBuilder renders moderator and participant prompts from the
// conversation log. The log is the sole source of the recent-history
// window.
type PromptBuilder struct {
	// HistoryWindow is the number of trailing log entries included.
	HistoryWindow int
}

func (b *PromptBuilder) window() int {
	if b.HistoryWindow <= 0 {
		return 30
	}
	return b.HistoryWindow
}

// ModeratorPrompt builds the prompt for a regular moderator turn.
// Available-but-not-joined sessions are offered as an invitation list so
// the moderator can pull new seats in by mention.
func (b *PromptBuilder) ModeratorPrompt(conv *Conversation, log []MessageEntry, available []sessions.AvailableSession) string {
	var sb strings.Builder
	sb.WriteString(moderatorInstructions)
	sb.WriteString("\n\n")

	b.writeRoster(&sb, conv)

	joined := make(map[string]struct{}, len(conv.Participants))
	for _, p := range conv.Participants {
		joined[p.Name] = struct{}{}
	}
	var invitable []string
	for _, s := range available {
		if _, ok := joined[s.Name]; !ok {
			invitable = append(invitable, fmt.Sprintf("@%s (%s)", s.Name, s.AgentKind))
		}
	}
	if len(invitable) > 0 {
		sb.WriteString("Agents available to invite: ")
		sb.WriteString(strings.Join(invitable, ", "))
		sb.WriteString("\n\n")
	}

	b.writeHistory(&sb, log)
	return sb.String()
}

// SynthesisPrompt builds the prompt for the synthesis turn that follows a
// completed participant round. The recent history already contains every
// participant response collected in the round.
func (b *PromptBuilder) SynthesisPrompt(conv *Conversation, log []MessageEntry) string {
	var sb strings.Builder
	sb.WriteString(synthesisInstructions)
	sb.WriteString("\n\n")
	b.writeRoster(&sb, conv)
	b.writeHistory(&sb, log)
	return sb.String()
}

// ParticipantPrompt builds the prompt for one participant invocation.
func (b *PromptBuilder) ParticipantPrompt(conv *Conversation, p *Participant, log []MessageEntry, readOnly bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %q, a participant in the conversation %q.\n", p.Name, conv.Name)
	sb.WriteString("The moderator has asked you to respond. Reply once, addressing the latest request.\n")
	if readOnly {
		sb.WriteString("This conversation is in read-only mode: do not modify any files or external state; answer from inspection only.\n")
	}
	sb.WriteString("\n")
	b.writeHistory(&sb, log)
	return sb.String()
}

// RecoveryPrompt rebuilds continuation context for a participant whose
// backing session vanished: only that participant's own prior statements
// are replayed, bounded, ahead of a fresh standard prompt.
func (b *PromptBuilder) RecoveryPrompt(conv *Conversation, p *Participant, log []MessageEntry, readOnly bool) string {
	var own []MessageEntry
	for _, e := range log {
		if e.From == p.Name {
			own = append(own, e)
		}
	}
	if len(own) > recoveryContextLimit {
		own = own[len(own)-recoveryContextLimit:]
	}

	var sb strings.Builder
	if len(own) > 0 {
		sb.WriteString("Your previous session was lost. For continuity, these are the statements you made earlier in this conversation:\n\n")
		for _, e := range own {
			fmt.Fprintf(&sb, "- %s\n", e.Content)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(b.ParticipantPrompt(conv, p, log, readOnly))
	return sb.String()
}

func (b *PromptBuilder) writeRoster(sb *strings.Builder, conv *Conversation) {
	if len(conv.Participants) == 0 {
		sb.WriteString("No agents have joined yet.\n\n")
		return
	}
	sb.WriteString("Current participants:\n")
	for _, p := range conv.Participants {
		fmt.Fprintf(sb, "- @%s (%s, %d messages)\n", p.Name, p.AgentKind, p.MessageCount)
	}
	sb.WriteString("\n")
}

func (b *PromptBuilder) writeHistory(sb *strings.Builder, log []MessageEntry) {
	if len(log) == 0 {
		return
	}
	if n := b.window(); len(log) > n {
		log = log[len(log)-n:]
	}
	sb.WriteString("Recent conversation:\n")
	for _, e := range log {
		fmt.Fprintf(sb, "[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.From, e.Content)
	}
}

package cmd

import (
	"fmt"
	"sync"

	"github.com/fatih/color"

	"github.com/roundtablehq/roundtable/pkg/groupchat"
)

var senderColors = map[string]color.Attribute{
	"cyan":    color.FgCyan,
	"magenta": color.FgMagenta,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"red":     color.FgRed,
}

func colorAttr(name string) color.Attribute {
	if attr, ok := senderColors[name]; ok {
		return attr
	}
	return color.FgWhite
}

// transcriptPrinter subscribes to conversation events and prints a live
// colored transcript. Participant colors follow the seat colors recorded on
// the roster.
type transcriptPrinter struct {
	groupchat.NoopListener

	mu     sync.Mutex
	colors map[string]string
}

func newTranscriptPrinter(conv *groupchat.Conversation) *transcriptPrinter {
	p := &transcriptPrinter{colors: map[string]string{}}
	p.OnParticipantsChanged(conv.ID, conv.Participants)
	return p
}

func (t *transcriptPrinter) OnParticipantsChanged(_ string, roster []*groupchat.Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range roster {
		t.colors[p.Name] = p.Color
	}
}

func (t *transcriptPrinter) OnMessage(_ string, entry groupchat.MessageEntry) {
	printTranscriptLine(entry, t.seatColor(entry.From))
}

func (t *transcriptPrinter) OnParticipantState(_, name, activity string) {
	if activity == groupchat.ActivityWorking {
		color.New(color.Faint).Printf("  %s is working...\n", name)
	}
}

func (t *transcriptPrinter) OnStateChange(_ string, state groupchat.State) {
	if state == groupchat.StateModeratorThinking {
		color.New(color.Faint).Println("  moderator is thinking...")
	}
}

func (t *transcriptPrinter) seatColor(from string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.colors[from]
}

// printTranscriptLine renders one log entry. Used both by the live printer
// and by `chat show`.
func printTranscriptLine(entry groupchat.MessageEntry, seatColor string) {
	ts := entry.Timestamp.Format("15:04:05")

	var label *color.Color
	switch entry.From {
	case groupchat.SenderUser:
		label = color.New(color.Bold)
	case groupchat.SenderModerator:
		label = color.New(color.FgCyan, color.Bold)
	default:
		label = color.New(colorAttr(seatColor), color.Bold)
	}

	suffix := ""
	if entry.ReadOnly {
		suffix = " (read-only)"
	}
	fmt.Printf("%s %s%s\n%s\n\n", color.New(color.Faint).Sprint(ts), label.Sprint(entry.From), suffix, entry.Content)
}

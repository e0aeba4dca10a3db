package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roundtablehq/roundtable/pkg/groupchat"
	"github.com/roundtablehq/roundtable/pkg/logging"
)

func NewChatCmd() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Manage moderated multi-agent conversations",
	}
	chatCmd.AddCommand(newChatNewCmd())
	chatCmd.AddCommand(newChatSendCmd())
	chatCmd.AddCommand(newChatListCmd())
	chatCmd.AddCommand(newChatShowCmd())
	chatCmd.AddCommand(newChatCloseCmd())
	return chatCmd
}

func newChatNewCmd() *cobra.Command {
	var moderatorKind, model string

	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a new conversation",
		Long: `Create a new conversation with an empty roster.

Participants are not added up front: mentioning a registered session by
name (e.g. @Bob) in any message joins it automatically.

Examples:
  roundtable chat new "design review"
  roundtable chat new "incident" --moderator claude --model opus`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			conv, err := a.router.CreateConversation(args[0], groupchat.ModeratorConfig{
				AgentKind: moderatorKind,
				Model:     model,
			})
			if err != nil {
				return err
			}

			pretty := logging.NewPrettyLogger()
			pretty.Success(fmt.Sprintf("Created conversation %q", conv.Name))
			pretty.Info(conv.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&moderatorKind, "moderator", "m", "claude", "Agent kind that moderates the conversation")
	cmd.Flags().StringVar(&model, "model", "", "Model override for the moderator")
	return cmd
}

func newChatSendCmd() *cobra.Command {
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "send <conversation-id> <message>",
		Short: "Send a message and stream the resulting turns",
		Long: `Send a user message into a conversation and stay attached until the
round settles back to idle.

The moderator decides who responds; @-mentions of registered sessions
join them on the spot. With --read-only every agent invoked for this
message is instructed not to modify any files.

Examples:
  roundtable chat send 3f2a... "@Bob @Carol what broke the deploy?"
  roundtable chat send 3f2a... --read-only "summarize the discussion"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			id := args[0]
			text := strings.Join(args[1:], " ")

			conv, err := a.store.LoadConversation(id)
			if err != nil {
				return err
			}
			a.router.Events().Subscribe(newTranscriptPrinter(conv))

			if err := a.router.RouteUserMessage(id, text, readOnly); err != nil {
				return err
			}

			// Block until the round (and any rounds it cascades into)
			// returns the conversation to idle.
			a.runtime.Wait()
			return nil
		},
	}

	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Instruct all invoked agents not to modify files")
	return cmd
}

func newChatListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			convs, err := a.store.ListConversations()
			if err != nil {
				return err
			}

			pretty := logging.NewPrettyLogger()
			if len(convs) == 0 {
				pretty.Info("No conversations yet.")
				return nil
			}
			for _, c := range convs {
				status := "active"
				if !c.Active {
					status = "closed"
				}
				pretty.Info(fmt.Sprintf("%s  %-30s %s  %d participants  %s",
					c.ID, c.Name, status, len(c.Participants), c.UpdatedAt.Format("2006-01-02 15:04")))
			}
			return nil
		},
	}
}

func newChatShowCmd() *cobra.Command {
	var showHistory bool

	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			conv, err := a.store.LoadConversation(args[0])
			if err != nil {
				return err
			}

			if showHistory {
				return printHistory(a, conv)
			}

			seatColors := map[string]string{}
			for _, p := range conv.Participants {
				seatColors[p.Name] = p.Color
			}

			entries, err := a.store.ReadLog(conv.LogRef)
			if err != nil {
				return err
			}
			for _, e := range entries {
				printTranscriptLine(e, seatColors[e.From])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showHistory, "history", false, "Show one-line turn summaries instead of the full transcript")
	return cmd
}

func printHistory(a *app, conv *groupchat.Conversation) error {
	entries, err := a.store.ReadHistory(conv.ID)
	if err != nil {
		return err
	}
	pretty := logging.NewPrettyLogger()
	for _, e := range entries {
		who := e.ParticipantName
		if e.Type == groupchat.HistoryTypeModerator {
			who = groupchat.SenderModerator
		}
		pretty.Info(fmt.Sprintf("%s  %-12s %s", e.Timestamp.Format("15:04:05"), who, e.Summary))
	}
	return nil
}

func newChatCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <conversation-id>",
		Short: "Mark a conversation inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			conv, err := a.store.LoadConversation(args[0])
			if err != nil {
				return err
			}
			if !conv.Active {
				logging.NewPrettyLogger().Warn("Conversation is already closed.")
				return nil
			}
			conv.Active = false
			conv.UpdatedAt = time.Now()
			if err := a.store.SaveConversation(conv); err != nil {
				return err
			}
			a.runtime.Forget(conv.ID)

			logging.NewPrettyLogger().Success(fmt.Sprintf("Closed conversation %q", conv.Name))
			return nil
		},
	}
}

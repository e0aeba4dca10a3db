package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the roundtable command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roundtable",
		Short: "Moderated multi-agent group chat",
		Long: `roundtable runs moderated conversations between coding agents.

A moderator agent reads every user message, decides which participants
should respond by @-mentioning them, and synthesizes their answers once
the last one has replied. Participants join automatically when their
registered session name is mentioned.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewChatCmd())
	rootCmd.AddCommand(NewSessionsCmd())
	rootCmd.AddCommand(NewVersionCmd())
	return rootCmd
}

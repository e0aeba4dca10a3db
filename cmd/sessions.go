package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roundtablehq/roundtable/pkg/logging"
	"github.com/roundtablehq/roundtable/pkg/sessions"
)

func NewSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect the registry of joinable agent sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCmd())
	return sessionsCmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions that can be joined by mention",
		Long: `List the sessions registered in the session file. Mentioning any of
these names in a conversation joins the session as a participant.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			directory := sessions.NewFileDirectory(a.cfg.SessionsFile)
			available, err := directory.ListAvailableSessions()
			if err != nil {
				return err
			}

			pretty := logging.NewPrettyLogger()
			if len(available) == 0 {
				pretty.Info(fmt.Sprintf("No sessions registered in %s.", a.cfg.SessionsFile))
				return nil
			}
			for _, s := range available {
				line := fmt.Sprintf("@%-20s %-10s", s.Name, s.AgentKind)
				if s.Remote != nil {
					line += "  remote:" + s.Remote.HostID
				}
				if s.WorkingDir != "" {
					line += "  " + s.WorkingDir
				}
				pretty.Info(line)
			}
			return nil
		},
	}
}

package main

import (
	"os"

	"github.com/spf13/cobra"

	"foreman/internal/tui"
)

var tuiApprover string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive dashboard",
	Long: `Launch a terminal dashboard that polls a running foreman server and
shows approvals, jobs and scheduling conflicts in tabbed tables.

Key bindings:
  Tab/Shift+Tab   Switch tabs
  Up/Down         Move selection
  a / x / e       Approve, reject, escalate (approvals tab)
  c / p / u       Cancel, pause, resume (jobs tab)
  R               Resolve all conflicts (conflicts tab)
  q / Ctrl+C      Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run(serverURL, tuiApprover)
	},
}

func init() {
	tuiCmd.Flags().StringVar(&tuiApprover, "approver", os.Getenv("USER"), "acting approver identity")
}

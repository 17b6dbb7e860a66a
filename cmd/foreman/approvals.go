package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"foreman/internal/approval"
	"foreman/pkg/client"
)

var (
	approvalApprover string
	approvalComment  string
	approvalAll      bool
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Inspect and decide approval requests",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval requests (pending by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		var (
			requests []approval.Request
			err      error
		)
		if approvalAll {
			requests, err = c.Approvals()
		} else {
			requests, err = c.PendingApprovals()
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTION\tLEVEL\tSTATUS\tREQUESTER\tEXPIRES")
		for _, req := range requests {
			expires := "-"
			if req.ExpiresAt != nil {
				expires = req.ExpiresAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				req.ID, req.ActionType, req.Level, req.Status, req.Requester, expires)
		}
		return w.Flush()
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := client.New(serverURL).Approve(args[0], approvalApprover, approvalComment)
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := client.New(serverURL).Reject(args[0], approvalApprover, approvalComment)
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

var approvalsEscalateCmd = &cobra.Command{
	Use:   "escalate <id>",
	Short: "Escalate a pending request one level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := client.New(serverURL).Escalate(args[0], approvalComment)
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

func init() {
	approvalsListCmd.Flags().BoolVar(&approvalAll, "all", false, "include decided requests")
	for _, cmd := range []*cobra.Command{approvalsApproveCmd, approvalsRejectCmd, approvalsEscalateCmd} {
		cmd.Flags().StringVar(&approvalApprover, "approver", os.Getenv("USER"), "acting approver identity")
		cmd.Flags().StringVar(&approvalComment, "comment", "", "decision comment or reason")
	}

	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
	approvalsCmd.AddCommand(approvalsRejectCmd)
	approvalsCmd.AddCommand(approvalsEscalateCmd)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

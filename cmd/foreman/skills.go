package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"foreman/pkg/client"
)

var skillParams string

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect and execute skills",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered skills and their state",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := client.New(serverURL).Skills()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tEXECUTIONS\tFAILURES\tAVG LATENCY")
		for _, s := range report {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				s.Name, s.State, s.Stats.TotalExecutions, s.Stats.FailureCount, s.Stats.AvgLatency)
		}
		return w.Flush()
	},
}

var skillsExecuteCmd = &cobra.Command{
	Use:   "execute <name>",
	Short: "Execute a skill by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params map[string]interface{}
		if skillParams != "" {
			if err := json.Unmarshal([]byte(skillParams), &params); err != nil {
				return fmt.Errorf("invalid params JSON: %w", err)
			}
		}

		result, err := client.New(serverURL).ExecuteSkill(args[0], params)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.New(serverURL).Status()
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

func init() {
	skillsExecuteCmd.Flags().StringVar(&skillParams, "params", "", "skill parameters as JSON")

	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsExecuteCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"foreman/pkg/client"
)

var (
	jobName     string
	jobResource string
	jobPayload  string
	jobWhen     string
	jobSpec     string
	jobSequence string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage scheduled jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs in creation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := client.New(serverURL).Jobs()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tRESOURCE\tSTATUS\tNEXT FIRE\tRUNS\tRECURRING")
		for _, job := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%v\n",
				job.ID, job.Name, job.Resource, job.Status,
				job.NextFire.Local().Format("2006-01-02 15:04"),
				job.RunCount, job.Recurring)
		}
		return w.Flush()
	},
}

var jobsScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a job",
	Long: `Schedule a job on a resource. Pick one trigger:

  --at       RFC3339 timestamp for a one-time job
  --spec     cron expression for a recurring job
  --sequence template name for a multi-step sequence

With no trigger the job is placed in the next optimal engagement window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := client.ScheduleRequest{
			Name:     jobName,
			Resource: jobResource,
			Spec:     jobSpec,
			Sequence: jobSequence,
		}
		if jobPayload != "" {
			if err := json.Unmarshal([]byte(jobPayload), &req.Payload); err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}
		}
		if jobWhen != "" {
			when, err := time.Parse(time.RFC3339, jobWhen)
			if err != nil {
				return fmt.Errorf("invalid --at timestamp: %w", err)
			}
			req.When = &when
		}

		created, err := client.New(serverURL).Schedule(req)
		if err != nil {
			return err
		}
		var pretty interface{}
		if err := json.Unmarshal(created, &pretty); err != nil {
			return err
		}
		return printJSON(pretty)
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a live job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := client.New(serverURL).CancelJob(args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := client.New(serverURL).PauseJob(args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := client.New(serverURL).ResumeJob(args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var jobsConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show scheduling conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, err := client.New(serverURL).Conflicts()
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			fmt.Println("No conflicts")
			return nil
		}
		return printJSON(groups)
	},
}

var jobsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve all scheduling conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		moved, err := client.New(serverURL).ResolveConflicts()
		if err != nil {
			return err
		}
		fmt.Printf("Moved %d job(s)\n", len(moved))
		return printJSON(moved)
	},
}

func init() {
	jobsScheduleCmd.Flags().StringVar(&jobName, "name", "", "job name")
	jobsScheduleCmd.Flags().StringVar(&jobResource, "resource", "", "resource the job occupies")
	jobsScheduleCmd.Flags().StringVar(&jobPayload, "payload", "", "job payload as JSON")
	jobsScheduleCmd.Flags().StringVar(&jobWhen, "at", "", "one-time fire timestamp (RFC3339)")
	jobsScheduleCmd.Flags().StringVar(&jobSpec, "spec", "", "cron expression for a recurring job")
	jobsScheduleCmd.Flags().StringVar(&jobSequence, "sequence", "", "sequence template name")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsScheduleCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsPauseCmd)
	jobsCmd.AddCommand(jobsResumeCmd)
	jobsCmd.AddCommand(jobsConflictsCmd)
	jobsCmd.AddCommand(jobsResolveCmd)
}

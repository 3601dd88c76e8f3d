package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pawhub/pawhub/cmd/pawhub/cli"
	"github.com/pawhub/pawhub/internal/app"
)

// NewJobsCmd creates the jobs subcommand.
func NewJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a job immediately",
		Args:      cobra.ExactArgs(1),
		ValidArgs: cli.Triggerable,
		RunE: withJobsCLI(func(cmd *cobra.Command, jc *cli.JobsCLI, args []string) error {
			info, err := jc.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and upcoming scheduled tasks",
		RunE: withJobsCLI(func(cmd *cobra.Command, jc *cli.JobsCLI, _ []string) error {
			stats, err := jc.InspectQueue()
			if err != nil {
				return err
			}
			cmd.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			scheduled, err := jc.ListScheduled(10)
			if err != nil {
				return err
			}
			for _, task := range scheduled {
				cmd.Printf("  %s %s at %s\n", task.ID, task.Type, task.NextProcessAt.UTC().Format(time.RFC3339))
			}
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "requeue",
		Short: "Retry archived tasks such as undelivered emails",
		Args:  cobra.NoArgs,
		RunE: withJobsCLI(func(cmd *cobra.Command, jc *cli.JobsCLI, _ []string) error {
			n, err := jc.Requeue()
			if err != nil {
				return err
			}
			cmd.Printf("requeued %d archived tasks\n", n)
			return nil
		}),
	})
	return cmd
}

func withJobsCLI(fn func(*cobra.Command, *cli.JobsCLI, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		jc := cli.NewJobsCLI(cfg.RedisAddr)
		defer func() {
			_ = jc.Close()
		}()
		return fn(cmd, jc, args)
	}
}

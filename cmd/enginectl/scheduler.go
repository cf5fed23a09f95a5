package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newSchedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Query the scheduler's ready-job views",
	}
	cmd.AddCommand(
		newSchedulerReadyJobsCmd(),
		newSchedulerReadyChatJobsCmd(),
		newSchedulerQueueStatusCmd(),
		newSchedulerWatchCmd(),
	)
	return cmd
}

func newSchedulerReadyJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready-jobs <namespace-id>",
		Short: "Compute the namespace's currently ready assignment jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			jobs, err := current.scheduler.GetReadyJobs(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(jobs)
		},
	}
}

func newSchedulerReadyChatJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready-chat-jobs <namespace-id>",
		Short: "List the namespace's pending chat jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			jobs, err := current.scheduler.GetReadyChatJobs(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(jobs)
		},
	}
}

func newSchedulerQueueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-status <namespace-id>",
		Short: "Report ready assignment- and chat-job counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			status, err := current.scheduler.GetQueueStatus(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(status)
		},
	}
}

func newSchedulerWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <namespace-id>",
		Short: "Stream debounced ready-job snapshots until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			ch, err := current.scheduler.WatchQueue(ctx, current.events, args[0], current.cfg.WatchDebounce)
			if err != nil {
				return fail(err)
			}
			for snapshot := range ch {
				fmt.Fprintf(os.Stderr, "--- %d ready job(s) ---\n", len(snapshot))
				if err := printJSON(snapshot); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

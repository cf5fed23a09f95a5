package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relayforge/taskmesh/internal/engine"
	"github.com/relayforge/taskmesh/internal/group"
)

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage job groups and jobs",
	}
	cmd.AddCommand(
		newGroupCreateCmd(),
		newGroupInsertAfterCmd(),
		newGroupListCmd(),
		newGroupGetCmd(),
		newGroupGetWithJobsCmd(),
		newJobListCmd(),
		newJobGetCmd(),
		newJobGetWithAssignmentCmd(),
		newJobStartCmd(),
		newJobCompleteCmd(),
		newJobFailCmd(),
		newJobUpdateMetricsCmd(),
	)
	return cmd
}

// parseJobDefs parses "jobType:harness[:context]" triples into JobDefs.
func parseJobDefs(specs []string) ([]group.JobDef, error) {
	defs := make([]group.JobDef, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid job spec %q, want jobType:harness[:context]", spec)
		}
		def := group.JobDef{JobType: parts[0], Harness: engine.Harness(parts[1])}
		if len(parts) == 3 {
			def.Context = parts[2]
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func newGroupCreateCmd() *cobra.Command {
	var jobSpecs []string
	cmd := &cobra.Command{
		Use:   "create <assignment-id>",
		Short: "Create a job group with one or more jobs (--job jobType:harness[:context], repeatable)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			defs, err := parseJobDefs(jobSpecs)
			if err != nil {
				return err
			}
			result, err := current.groups.CreateGroup(cmd.Context(), args[0], defs)
			if err != nil {
				return fail(err)
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringArrayVar(&jobSpecs, "job", nil, "jobType:harness[:context], repeatable")
	return cmd
}

func newGroupInsertAfterCmd() *cobra.Command {
	var jobSpecs []string
	cmd := &cobra.Command{
		Use:   "insert-after <group-id>",
		Short: "Splice a new group in after an existing group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			defs, err := parseJobDefs(jobSpecs)
			if err != nil {
				return err
			}
			result, err := current.groups.InsertGroupAfter(cmd.Context(), args[0], defs)
			if err != nil {
				return fail(err)
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringArrayVar(&jobSpecs, "job", nil, "jobType:harness[:context], repeatable")
	return cmd
}

func newGroupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <assignment-id>",
		Short: "List an assignment's groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			groups, err := current.groups.ListGroups(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(groups)
		},
	}
}

func newGroupGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			g, err := current.groups.GetGroup(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(g)
		},
	}
}

func newGroupGetWithJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-with-jobs <id>",
		Short: "Get a group with its member jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			g, err := current.groups.GetGroupWithJobs(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(g)
		},
	}
}

func newJobListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "job-list <group-id>",
		Short: "List a group's jobs, optionally filtered by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			var statusPtr *engine.JobStatus
			if status != "" {
				s := engine.JobStatus(status)
				statusPtr = &s
			}
			jobs, err := current.groups.ListJobs(cmd.Context(), args[0], statusPtr)
			if err != nil {
				return fail(err)
			}
			return printJSON(jobs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending|running|complete|failed")
	return cmd
}

func newJobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job-get <id>",
		Short: "Get a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			j, err := current.groups.GetJob(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
}

func newJobGetWithAssignmentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job-get-with-assignment <id>",
		Short: "Get a job with its owning group and assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			j, err := current.groups.GetJobWithAssignment(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
}

func newJobStartCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "job-start <id>",
		Short: "Start a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			var promptPtr *string
			if cmd.Flags().Changed("prompt") {
				promptPtr = &prompt
			}
			j, err := current.groups.StartJob(cmd.Context(), args[0], promptPtr)
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "the rendered prompt the runner dispatched")
	return cmd
}

func parseMetricsFlag(raw string) (*engine.JobMetrics, error) {
	if raw == "" {
		return nil, nil
	}
	var m engine.JobMetrics
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parse metrics json: %w", err)
	}
	return &m, nil
}

func newJobCompleteCmd() *cobra.Command {
	var metricsJSON string
	cmd := &cobra.Command{
		Use:   "job-complete <id> <result>",
		Short: "Complete a running job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			metrics, err := parseMetricsFlag(metricsJSON)
			if err != nil {
				return err
			}
			j, err := current.groups.CompleteJob(cmd.Context(), args[0], args[1], metrics)
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
	cmd.Flags().StringVar(&metricsJSON, "metrics", "", "JSON-encoded JobMetrics")
	return cmd
}

func newJobFailCmd() *cobra.Command {
	var result, metricsJSON string
	cmd := &cobra.Command{
		Use:   "job-fail <id>",
		Short: "Fail a running (or cancel a pending) job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			metrics, err := parseMetricsFlag(metricsJSON)
			if err != nil {
				return err
			}
			var resultPtr *string
			if cmd.Flags().Changed("result") {
				resultPtr = &result
			}
			j, err := current.groups.FailJob(cmd.Context(), args[0], resultPtr, metrics)
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "failure detail")
	cmd.Flags().StringVar(&metricsJSON, "metrics", "", "JSON-encoded JobMetrics")
	return cmd
}

func newJobUpdateMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job-update-metrics <id> <metrics-json>",
		Short: "Merge telemetry into a job's metrics, last-write-wins per field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			var m engine.JobMetrics
			if err := json.Unmarshal([]byte(args[1]), &m); err != nil {
				return fmt.Errorf("parse metrics json: %w", err)
			}
			j, err := current.groups.UpdateMetrics(cmd.Context(), args[0], m)
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relayforge/taskmesh/internal/assignment"
	"github.com/relayforge/taskmesh/internal/engine"
)

func newAssignmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignment",
		Short: "Manage assignments",
	}
	cmd.AddCommand(
		newAssignmentListCmd(),
		newAssignmentGetCmd(),
		newAssignmentGetWithGroupsCmd(),
		newAssignmentGetGroupChainCmd(),
		newAssignmentCreateCmd(),
		newAssignmentUpdateCmd(),
		newAssignmentCompleteCmd(),
		newAssignmentBlockCmd(),
		newAssignmentUnblockCmd(),
		newAssignmentRemoveCmd(),
	)
	return cmd
}

func newAssignmentListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <namespace-id>",
		Short: "List a namespace's assignments, optionally filtered by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			var statusPtr *engine.AssignmentStatus
			if status != "" {
				s := engine.AssignmentStatus(status)
				statusPtr = &s
			}
			list, err := current.assignments.List(cmd.Context(), args[0], statusPtr)
			if err != nil {
				return fail(err)
			}
			return printJSON(list)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending|active|blocked|complete")
	return cmd
}

func newAssignmentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			a, err := current.assignments.Get(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(a)
		},
	}
}

func newAssignmentGetWithGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-with-groups <id>",
		Short: "Get an assignment with its full group chain and jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			out, err := current.assignments.GetWithGroups(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(out)
		},
	}
}

func newAssignmentGetGroupChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-group-chain <id>",
		Short: "Walk and return an assignment's group chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			chain, err := current.assignments.GetGroupChain(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(chain)
		},
	}
}

func newAssignmentCreateCmd() *cobra.Command {
	var independent, watchDurable bool
	var priority int
	cmd := &cobra.Command{
		Use:   "create <namespace-id> <north-star>",
		Short: "Create an assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			var priorityPtr *int
			if cmd.Flags().Changed("priority") {
				priorityPtr = &priority
			}
			a, err := current.assignments.Create(cmd.Context(), args[0], args[1], independent, priorityPtr)
			if err != nil {
				return fail(err)
			}
			if watchDurable {
				if current.durable == nil || !current.durable.IsConnected() {
					return fmt.Errorf("--watch-durable requires ENGINE_TEMPORAL_ENABLED=true and a reachable Temporal server")
				}
				if _, err := current.durable.StartGroupChainWorkflow(cmd.Context(), a.ID); err != nil {
					return fail(err)
				}
			}
			return printJSON(a)
		},
	}
	cmd.Flags().BoolVar(&independent, "independent", false, "never competes for the namespace's sequential slot")
	cmd.Flags().IntVar(&priority, "priority", engine.DefaultAssignmentPriority, "lower runs first among sequential assignments")
	cmd.Flags().BoolVar(&watchDurable, "watch-durable", false, "start a Temporal workflow that polls the assignment to completion")
	return cmd
}

func newAssignmentUpdateCmd() *cobra.Command {
	var northStar, blockedReason string
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Patch an assignment's mutable fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			patch := assignment.AssignmentPatch{}
			if cmd.Flags().Changed("north-star") {
				patch.NorthStar = &northStar
			}
			if cmd.Flags().Changed("priority") {
				patch.Priority = &priority
			}
			if cmd.Flags().Changed("blocked-reason") {
				patch.BlockedReason = &blockedReason
			}
			a, err := current.assignments.Update(cmd.Context(), args[0], patch)
			if err != nil {
				return fail(err)
			}
			return printJSON(a)
		},
	}
	cmd.Flags().StringVar(&northStar, "north-star", "", "new north star")
	cmd.Flags().IntVar(&priority, "priority", 0, "new priority")
	cmd.Flags().StringVar(&blockedReason, "blocked-reason", "", "new blocked reason")
	return cmd
}

func newAssignmentCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark an assignment complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			a, err := current.assignments.Complete(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(a)
		},
	}
}

func newAssignmentBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <id> <reason>",
		Short: "Block an assignment with a reason",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			a, err := current.assignments.Block(cmd.Context(), args[0], args[1])
			if err != nil {
				return fail(err)
			}
			return printJSON(a)
		},
	}
}

func newAssignmentUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <id>",
		Short: "Unblock an assignment back to active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			a, err := current.assignments.Unblock(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(a)
		},
	}
}

func newAssignmentRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an assignment and its groups/jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			result, err := current.assignments.Remove(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			fmt.Printf("removed %d groups, %d jobs\n", result.GroupsDeleted, result.JobsDeleted)
			return nil
		},
	}
}

package main

import (
	"github.com/spf13/cobra"
)

func newNamespaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "namespace",
		Short: "Manage namespaces",
	}
	cmd.AddCommand(
		newNamespaceListCmd(),
		newNamespaceGetCmd(),
		newNamespaceCreateCmd(),
		newNamespaceUpdateCmd(),
		newNamespaceRemoveCmd(),
		newNamespaceBackfillCmd(),
	)
	return cmd
}

func newNamespaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all namespaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			ns, err := current.namespaces.List(cmd.Context())
			if err != nil {
				return fail(err)
			}
			return printJSON(ns)
		},
	}
}

func newNamespaceGetCmd() *cobra.Command {
	byName := false
	cmd := &cobra.Command{
		Use:   "get <id-or-name>",
		Short: "Get a namespace by id or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			if byName {
				ns, err := current.namespaces.GetByName(cmd.Context(), args[0])
				if err != nil {
					return fail(err)
				}
				return printJSON(ns)
			}
			ns, err := current.namespaces.Get(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(ns)
		},
	}
	cmd.Flags().BoolVar(&byName, "by-name", false, "look up by name instead of id")
	return cmd
}

func newNamespaceCreateCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			ns, err := current.namespaces.Create(cmd.Context(), args[0], description)
			if err != nil {
				return fail(err)
			}
			return printJSON(ns)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "namespace description")
	return cmd
}

func newNamespaceUpdateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a namespace's name/description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			var namePtr, descPtr *string
			if cmd.Flags().Changed("name") {
				namePtr = &name
			}
			if cmd.Flags().Changed("description") {
				descPtr = &description
			}
			ns, err := current.namespaces.Update(cmd.Context(), args[0], namePtr, descPtr)
			if err != nil {
				return fail(err)
			}
			return printJSON(ns)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func newNamespaceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			return fail(current.namespaces.Remove(cmd.Context(), args[0]))
		},
	}
}

func newNamespaceBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-counts",
		Short: "Recompute every namespace's assignmentCounts from its assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			return fail(current.namespaces.BackfillNamespaceCounts(cmd.Context()))
		},
	}
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/relayforge/taskmesh/internal/engine"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Manage chat threads, messages, and chat jobs",
	}
	cmd.AddCommand(
		newChatThreadCreateCmd(),
		newChatThreadListCmd(),
		newChatThreadGetCmd(),
		newChatThreadUpdateModeCmd(),
		newChatThreadEnableGuardianCmd(),
		newChatThreadRemoveCmd(),
		newChatMessageListCmd(),
		newChatMessageAddCmd(),
		newChatJobTriggerCmd(),
		newChatJobStartCmd(),
		newChatJobCompleteCmd(),
		newChatJobFailCmd(),
		newChatJobGetCmd(),
		newChatJobGetPendingCmd(),
		newChatJobGetActiveForThreadCmd(),
	)
	return cmd
}

func newChatThreadCreateCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "thread-create <namespace-id> <title>",
		Short: "Create a chat thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			m := engine.ChatMode(mode)
			if m == "" {
				m = engine.ChatModeJam
			}
			t, err := current.threads.Create(cmd.Context(), args[0], args[1], m)
			if err != nil {
				return fail(err)
			}
			return printJSON(t)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(engine.ChatModeJam), "jam|cook|guardian")
	return cmd
}

func newChatThreadListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread-list <namespace-id>",
		Short: "List a namespace's chat threads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			threads, err := current.threads.List(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(threads)
		},
	}
}

func newChatThreadGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread-get <id>",
		Short: "Get a chat thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			t, err := current.threads.Get(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(t)
		},
	}
}

func newChatThreadUpdateModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread-update-mode <id> <mode>",
		Short: "Update a chat thread's mode (jam|cook|guardian)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			t, err := current.threads.UpdateMode(cmd.Context(), args[0], engine.ChatMode(args[1]))
			if err != nil {
				return fail(err)
			}
			return printJSON(t)
		},
	}
}

func newChatThreadEnableGuardianCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread-enable-guardian <id> <assignment-id>",
		Short: "Link a thread to an assignment and enable guardian mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			t, err := current.threads.EnableGuardianMode(cmd.Context(), args[0], args[1])
			if err != nil {
				return fail(err)
			}
			return printJSON(t)
		},
	}
}

func newChatThreadRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread-remove <id>",
		Short: "Remove a chat thread and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			return fail(current.threads.Remove(cmd.Context(), args[0]))
		},
	}
}

func newChatMessageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "message-list <thread-id>",
		Short: "List a thread's messages in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			msgs, err := current.threads.ListMessages(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(msgs)
		},
	}
}

func newChatMessageAddCmd() *cobra.Command {
	var role, hint string
	cmd := &cobra.Command{
		Use:   "message-add <thread-id> <content>",
		Short: "Add a message to a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			r := engine.ChatRole(role)
			if r == "" {
				r = engine.ChatRoleUser
			}
			m, err := current.threads.AddMessage(cmd.Context(), args[0], r, args[1], hint)
			if err != nil {
				return fail(err)
			}
			return printJSON(m)
		},
	}
	cmd.Flags().StringVar(&role, "role", string(engine.ChatRoleUser), "user|assistant|pm")
	cmd.Flags().StringVar(&hint, "hint", "", "optional prompting hint")
	return cmd
}

func newChatJobTriggerCmd() *cobra.Command {
	var harness string
	var guardianEval bool
	cmd := &cobra.Command{
		Use:   "job-trigger <thread-id>",
		Short: "Select the latest eligible message and enqueue a pending chat job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			h := engine.Harness(harness)
			j, err := current.chatJobs.Trigger(cmd.Context(), args[0], h, guardianEval)
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
	cmd.Flags().StringVar(&harness, "harness", string(engine.HarnessClaude), "claude|codex|gemini")
	cmd.Flags().BoolVar(&guardianEval, "guardian-evaluation", false, "select the latest pm message instead of the latest user message")
	return cmd
}

func newChatJobStartCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "job-start <id>",
		Short: "Start a pending chat job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			var promptPtr *string
			if cmd.Flags().Changed("prompt") {
				promptPtr = &prompt
			}
			j, err := current.chatJobs.Start(cmd.Context(), args[0], promptPtr)
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "the rendered prompt the runner dispatched")
	return cmd
}

func newChatJobCompleteCmd() *cobra.Command {
	var metricsJSON string
	cmd := &cobra.Command{
		Use:   "job-complete <id> <result>",
		Short: "Complete a running chat job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			metrics, err := parseMetricsFlag(metricsJSON)
			if err != nil {
				return err
			}
			j, err := current.chatJobs.Complete(cmd.Context(), args[0], args[1], metrics)
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
	cmd.Flags().StringVar(&metricsJSON, "metrics", "", "JSON-encoded JobMetrics")
	return cmd
}

func newChatJobFailCmd() *cobra.Command {
	var result, metricsJSON string
	cmd := &cobra.Command{
		Use:   "job-fail <id>",
		Short: "Fail a running (or cancel a pending) chat job",
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
			j, err := current.chatJobs.Fail(cmd.Context(), args[0], resultPtr, metrics)
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

func newChatJobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job-get <id>",
		Short: "Get a chat job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			j, err := current.chatJobs.Get(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
}

func newChatJobGetPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job-get-pending <namespace-id>",
		Short: "List a namespace's pending chat jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			jobs, err := current.chatJobs.GetPending(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(jobs)
		},
	}
}

func newChatJobGetActiveForThreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job-get-active-for-thread <thread-id>",
		Short: "Get a thread's active (pending, else running) chat job, if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.checkAuth(); err != nil {
				return err
			}
			j, err := current.chatJobs.GetActiveForThread(cmd.Context(), args[0])
			if err != nil {
				return fail(err)
			}
			return printJSON(j)
		},
	}
}

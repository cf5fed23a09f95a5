package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relayforge/taskmesh/internal/assignment"
	"github.com/relayforge/taskmesh/internal/auth"
	"github.com/relayforge/taskmesh/internal/bus"
	"github.com/relayforge/taskmesh/internal/chat"
	"github.com/relayforge/taskmesh/internal/config"
	"github.com/relayforge/taskmesh/internal/durable"
	"github.com/relayforge/taskmesh/internal/engine"
	"github.com/relayforge/taskmesh/internal/group"
	"github.com/relayforge/taskmesh/internal/namespace"
	"github.com/relayforge/taskmesh/internal/scheduler"
	"github.com/relayforge/taskmesh/internal/storage"
	"github.com/relayforge/taskmesh/pkg/logger"
)

var (
	version   = "dev"
	gitCommit string
)

// app bundles every service a subcommand might need, built once from the
// resolved config in PersistentPreRunE.
type app struct {
	cfg         *config.Config
	store       *storage.SQLiteStore
	events      engine.EventBus
	gate        *auth.Gate
	namespaces  *namespace.Service
	assignments *assignment.Service
	groups      *group.Service
	scheduler   *scheduler.Scheduler
	threads     *chat.ThreadService
	chatJobs    *chat.JobService
	durable     *durable.Client
}

var (
	flagPassword string
	current      *app
)

// newEventBus builds the in-process bus, mirroring to NATS when the engine
// is configured with a JetStream URL so a second engine process or an
// external dashboard can observe the same events.
func newEventBus(cfg *config.Config) (engine.EventBus, error) {
	if cfg.NATSURL == "" {
		return bus.NewChannelBus(), nil
	}
	notifier, err := bus.NewNATSNotifier(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect notifier: %w", err)
	}
	return bus.NewNotifyingBus(notifier), nil
}

// newDurableClient connects to Temporal and starts the group-chain worker
// when cfg.Temporal.Enabled. A connection failure never fails the caller —
// Temporal is an optional crash-recovery hook, not a dependency of the
// store-backed invariants.
func newDurableClient(ctx context.Context, cfg *config.Config, store engine.Store) (*durable.Client, error) {
	if !cfg.Temporal.Enabled {
		return nil, nil
	}
	client := durable.NewClient(cfg.Temporal)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect temporal: %w", err)
	}
	if client.IsConnected() {
		if err := client.StartWorker(&durable.Activities{Store: store}); err != nil {
			return nil, fmt.Errorf("start temporal worker: %w", err)
		}
	}
	return client, nil
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	eventBus, err := newEventBus(cfg)
	if err != nil {
		return nil, err
	}
	durableClient, err := newDurableClient(context.Background(), cfg, store)
	if err != nil {
		logger.WarnCF("enginectl", "durable workflows unavailable", map[string]interface{}{"error": err.Error()})
	}
	return &app{
		cfg:         cfg,
		store:       store,
		events:      eventBus,
		gate:        auth.NewGate(cfg.AuthSecret),
		namespaces:  namespace.New(store),
		assignments: assignment.New(store, eventBus),
		groups:      group.New(store, eventBus),
		scheduler:   scheduler.New(store),
		threads:     chat.NewThreadService(store),
		chatJobs:    chat.NewJobService(store),
		durable:     durableClient,
	}, nil
}

func (a *app) checkAuth() error {
	return a.gate.Check(flagPassword)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail is the single place a subcommand hands its service-layer error to
// cobra: every operation fails fast by surfacing the error to the caller
// untouched, never retrying or swallowing it.
func fail(err error) error {
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "enginectl",
		Short:   "Operate the workflow engine's namespaces, assignments, groups, and chat",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			current = a
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flagPassword, "password", "", "shared secret compared against ENGINE_AUTH_SECRET")
	root.AddCommand(
		newNamespaceCmd(),
		newAssignmentCmd(),
		newGroupCmd(),
		newSchedulerCmd(),
		newChatCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// Command notifyctl operates the notification scheduler from a terminal.
//
// Usage:
//
//	notifyctl schedule run --events events.json --followed 12,34
//	notifyctl schedule show
//	notifyctl schedule cancel
//	notifyctl preview --events events.json --followed 12,34
//	notifyctl history list
//	notifyctl history clear
//	notifyctl discover swipe
//	notifyctl discover schedule --events events.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/playbuddy/playbuddy-notify/internal/config"
	"github.com/playbuddy/playbuddy-notify/internal/db"
	"github.com/playbuddy/playbuddy-notify/internal/event"
	"github.com/playbuddy/playbuddy-notify/internal/kv"
	"github.com/playbuddy/playbuddy-notify/internal/notify"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "notifyctl",
		Short: "PlayBuddy notification scheduler CLI",
	}

	root.AddCommand(scheduleCmd())
	root.AddCommand(previewCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(discoverCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

type runtimeDeps struct {
	store     kv.Store
	scheduler *notify.Scheduler
	discover  *notify.DiscoverScheduler
	close     func()
}

func setup(ctx context.Context) (*runtimeDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var store kv.Store
	closeFn := func() {}
	if cfg.KVBackend == config.KVBackendPostgres {
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		store = kv.NewPostgres(pool.Pool)
		closeFn = pool.Close
	} else {
		logger.Warn("no DATABASE_URL set; state will not persist beyond this run")
		store = kv.NewMemory()
	}

	notifier := notify.NewLogNotifier(logger, cfg.AndroidChannels)
	return &runtimeDeps{
		store:     store,
		scheduler: notify.NewScheduler(store, notifier, logger),
		discover:  notify.NewDiscoverScheduler(store, notifier, logger),
		close:     closeFn,
	}, nil
}

func loadEvents(path string) ([]event.Event, error) {
	if path == "" {
		return nil, fmt.Errorf("--events is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	var events []event.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("parse events file: %w", err)
	}
	return events, nil
}

func followedSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func printJSON(v any) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("encode output", "error", err)
		return
	}
	fmt.Println(string(encoded))
}

// --------------------------------------------------------------------------
// schedule command
// --------------------------------------------------------------------------

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the organizer notification batch",
	}
	cmd.AddCommand(scheduleRunCmd())
	cmd.AddCommand(scheduleShowCmd())
	cmd.AddCommand(scheduleCancelCmd())
	return cmd
}

func scheduleRunCmd() *cobra.Command {
	var eventsPath string
	var followed []int64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scheduling batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			events, err := loadEvents(eventsPath)
			if err != nil {
				return err
			}

			start := time.Now()
			plan := deps.scheduler.Schedule(ctx, notify.ScheduleInput{
				Events:               events,
				FollowedOrganizerIDs: followedSet(followed),
			})
			logger.Info("schedule run finished",
				"slots", len(plan), "duration", time.Since(start).Round(time.Millisecond))
			printJSON(plan)
			return nil
		},
	}
	cmd.Flags().StringVar(&eventsPath, "events", "", "Path to a JSON file of events")
	cmd.Flags().Int64SliceVar(&followed, "followed", nil, "Followed organizer ids")
	return cmd
}

func scheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the persisted plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.close()
			printJSON(deps.scheduler.Plan(ctx))
			return nil
		},
	}
}

func scheduleCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the current batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.close()
			deps.scheduler.Cancel(ctx, notify.CancelOptions{})
			logger.Info("batch canceled")
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// preview command
// --------------------------------------------------------------------------

func previewCmd() *cobra.Command {
	var eventsPath string
	var followed []int64
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show eligibility and the immediate notification candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			events, err := loadEvents(eventsPath)
			if err != nil {
				return err
			}

			set := followedSet(followed)
			printJSON(deps.scheduler.Eligibility(events, set, notify.WindowDays{}))
			if ev, content := deps.scheduler.Candidate(events, set, time.Time{}); ev != nil {
				printJSON(map[string]any{
					"event_id": ev.ID,
					"title":    content.Title,
					"body":     content.Body,
				})
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventsPath, "events", "", "Path to a JSON file of events")
	cmd.Flags().Int64SliceVar(&followed, "followed", nil, "Followed organizer ids")
	return cmd
}

// --------------------------------------------------------------------------
// history command
// --------------------------------------------------------------------------

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the notification history",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the history log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.close()
			history, err := deps.scheduler.History().Get(ctx)
			if err != nil {
				return err
			}
			printJSON(history)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the history log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.close()
			if _, err := deps.scheduler.History().Set(ctx, nil); err != nil {
				return err
			}
			logger.Info("history cleared")
			return nil
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// discover command
// --------------------------------------------------------------------------

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Manage discover-game reminders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "swipe",
		Short: "Record a swipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.close()
			count, err := deps.discover.RecordSwipe(ctx)
			if err != nil {
				return err
			}
			logger.Info("swipe recorded", "count", count)
			return nil
		},
	})

	var eventsPath string
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the discover-game reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			events, err := loadEvents(eventsPath)
			if err != nil {
				return err
			}
			if err := deps.discover.SetEnabled(ctx, true); err != nil {
				return err
			}
			deps.discover.Schedule(ctx, events)
			return nil
		},
	}
	scheduleCmd.Flags().StringVar(&eventsPath, "events", "", "Path to a JSON file of events")
	cmd.AddCommand(scheduleCmd)
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/internal/api"
	"github.com/jakechorley/volunteer-hub/internal/config"
	"github.com/jakechorley/volunteer-hub/pkg/cache"
	"github.com/jakechorley/volunteer-hub/pkg/capacity"
	"github.com/jakechorley/volunteer-hub/pkg/clients/gmailclient"
	"github.com/jakechorley/volunteer-hub/pkg/services"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
	"github.com/jakechorley/volunteer-hub/pkg/storage/file"
	"github.com/jakechorley/volunteer-hub/pkg/storage/postgres"
	"github.com/jakechorley/volunteer-hub/pkg/utils/logging"
)

// App holds the application dependencies shared across all commands.
type App struct {
	cfg      *config.Config
	backend  storage.Backend
	cache    *cache.Cache
	settings *services.SettingsService
	users    *services.UserService
	events   *services.EventService
	messages *services.MessageService
	fanout   *services.Fanout
	inbox    *services.Inbox
	logger   *zap.Logger
	ctx      context.Context
}

var (
	configPath string
	app        *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "volunteerhub",
		Short: "VolunteerHub - manage volunteer events, roles and sign-ups",
		Long:  `A server and admin CLI for publishing volunteer events, enforcing role capacity, and exchanging internal messages.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if app.backend != nil {
					app.backend.Close()
				}
				if app.logger != nil {
					app.logger.Sync()
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the config file (default: volunteerhub.yaml in cwd or home)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(staffingCmd())
	rootCmd.AddCommand(transferOwnerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, the storage backend and the service layer.
func initApp() error {
	var err error
	app = &App{
		ctx: context.Background(),
	}

	app.cfg, err = loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app.logger, err = logging.InitLogger(app.cfg.Env, app.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.logger.Info("Starting application", zap.String("environment", app.cfg.Env))

	// Backend selection happens exactly once, here. A configured database
	// URL means postgres; otherwise the local file backend. There is no
	// runtime fallback between the two.
	if app.cfg.DatabaseURL != "" {
		app.backend, err = postgres.New(app.ctx, app.cfg.DatabaseURL, app.logger)
	} else {
		app.backend, err = file.New(app.cfg.DataDir, app.logger)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	app.cache = cache.New()
	app.settings = services.NewSettingsService(app.backend, app.cache, app.logger)
	app.users = services.NewUserService(app.backend, app.cache, app.logger)
	app.events = services.NewEventService(app.backend, app.cache, app.logger)
	app.messages = services.NewMessageService(app.backend, app.cache, app.logger)
	app.inbox = services.NewInbox(app.messages, app.users, app.logger)

	var mailer services.Mailer
	if app.cfg.Gmail.Enabled() {
		gmail, err := gmailclient.NewClient(app.ctx,
			app.cfg.Gmail.ClientID,
			app.cfg.Gmail.ClientSecret,
			app.cfg.Gmail.RefreshToken,
			app.cfg.Gmail.Sender)
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
		mailer = gmail
		app.logger.Info("email notifications enabled", zap.String("sender", app.cfg.Gmail.Sender))
	}
	app.fanout = services.NewFanout(app.users, app.events, app.messages, mailer, app.logger)

	app.logger.Info("Application initialized")
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			router := api.NewRouter(api.Services{
				Settings: app.settings,
				Users:    app.users,
				Events:   app.events,
				Messages: app.messages,
				Fanout:   app.fanout,
				Inbox:    app.inbox,
			}, app.logger)

			app.logger.Info("HTTP server listening", zap.String("port", app.cfg.Port))
			if err := router.Run(":" + app.cfg.Port); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
}

func staffingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "staffing",
		Short: "Print the staffing report across all events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := app.events.List(app.ctx)
			if err != nil {
				return err
			}

			report := capacity.BuildReport(events)
			fmt.Printf("\nOverall: %d filled / %d minimum (ceiling %d) - %d%%\n\n",
				report.Filled, report.Minimum, report.Ceiling, report.FillRate)
			for _, ev := range report.Events {
				fmt.Printf("%s - %d%% staffed\n", ev.EventName, ev.FillRate)
				for _, role := range ev.Roles {
					fmt.Printf("  %-30s %2d/%2d (%s)\n", role.RoleName, role.Filled, role.Minimum, role.Level)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func transferOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transferOwner <user_id>",
		Short: "Transfer organization ownership to another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetID := args[0]

			if err := app.users.TransferOwnership(app.ctx, targetID); err != nil {
				return err
			}

			fmt.Printf("Ownership transferred to %s\n", targetID)
			return nil
		},
	}
}

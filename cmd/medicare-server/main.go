package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chela967/medicare/internal/config"
	"github.com/chela967/medicare/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medicare-server",
		Short: "Medicare clinic portal",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindersCmd())
	rootCmd.AddCommand(mailWorkerCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolOptions())
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolOptions())
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Consultation reminder emails",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Send every due reminder once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := signalContext()
			defer cancel()
			app, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			sent, err := app.reminders.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("send reminders: %w", err)
			}
			fmt.Printf("Sent %d reminder(s).\n", sent)
			return nil
		},
	})
	return cmd
}

func mailWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mail-worker",
		Short: "Deliver queued emails over SMTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return fmt.Errorf("AMQP_URL is required for the mail worker")
			}
			if cfg.SMTPHost == "" {
				return fmt.Errorf("SMTP_HOST is required for the mail worker")
			}
			ctx, cancel := signalContext()
			defer cancel()
			return runMailWorker(ctx, cfg, newLogger(cfg))
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			app, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer app.Close()

			u, err := app.identity.CreateAdmin(ctx, name, email, password)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Printf("Created admin %s (id %d).\n", u.Email, u.ID)
			return nil
		},
	}
	createAdmin.Flags().String("name", "Administrator", "Display name")
	createAdmin.Flags().String("email", "", "Sign-in email")
	createAdmin.Flags().String("password", "", "Initial password (at least 8 characters)")
	cmd.AddCommand(createAdmin)

	return cmd
}

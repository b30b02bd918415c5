package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/genelab/dnabooking/internal/config"
	"github.com/genelab/dnabooking/internal/domain/catalog"
	"github.com/genelab/dnabooking/internal/platform/db"
	"github.com/genelab/dnabooking/internal/platform/document"
	"github.com/genelab/dnabooking/internal/platform/notification"
	"github.com/genelab/dnabooking/internal/platform/reminder"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "booking-server",
		Short: "DNA test booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(bookCmd())
	rootCmd.AddCommand(workerCmd())
	return rootCmd
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
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StorageBackend != config.StoragePostgres {
		return nil, nil, fmt.Errorf("migrations need STORAGE_BACKEND=%s", config.StoragePostgres)
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, dir), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			target, _ := cmd.Flags().GetInt("to")

			ctx := cmd.Context()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.UpTo(ctx, target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := cmd.Context()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the active service catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			kind, _ := cmd.Flags().GetString("type")

			set, err := loadCatalogs(file)
			if err != nil {
				return err
			}
			types := []catalog.ServiceType{catalog.Legal, catalog.NonLegal}
			if kind != "" {
				types = []catalog.ServiceType{catalog.ServiceType(kind)}
			}
			for _, t := range types {
				c, err := set.For(t)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderCatalog(c))
			}
			return nil
		},
	}
	cmd.Flags().String("file", os.Getenv("CATALOG_FILE"), "YAML catalog overriding the built-in prices")
	cmd.Flags().String("type", "", "Only print this service type (legal or non-legal)")
	return cmd
}

func loadCatalogs(file string) (*catalog.Set, error) {
	if file == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(file)
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func renderCatalog(c *catalog.Catalog) string {
	services := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "SERVICE", "BASE PRICE", "EXPRESS")
	for _, s := range c.Services {
		express := "-"
		if s.ExpressPrice != nil {
			express = document.FormatVND(*s.ExpressPrice)
		}
		services.Row(s.ID, s.Name, document.FormatVND(s.BasePrice), express)
	}

	methods := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("COLLECTION METHOD", "PRICE")
	for _, m := range c.CollectionMethods {
		methods.Row(m.Name, document.FormatVND(m.Price))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		headingStyle.Render(fmt.Sprintf("%s services", c.Type)),
		services.Render(),
		methods.Render(),
	)
}

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process confirmation and appointment reminder tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required for the worker")
			}
			logger := newLogger(cfg)

			sender := notification.LogSender{Logger: logger.With().Str("component", "notification").Logger()}
			notifier := notification.NewManager(sender, sender, notification.NewTemplateEngine())
			worker := reminder.NewWorker(notifier, logger)

			ctx, stop := signalContext()
			defer stop()
			logger.Info().Int("concurrency", concurrency).Msg("starting reminder worker")
			return worker.Run(ctx, cfg.RedisURL, concurrency)
		},
	}
	cmd.Flags().Int("concurrency", 5, "Number of tasks processed in parallel")
	return cmd
}

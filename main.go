package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iabalyuk/etapy/bot"
	"github.com/iabalyuk/etapy/config"
	"github.com/iabalyuk/etapy/session"
	"github.com/iabalyuk/etapy/storage"
	"github.com/iabalyuk/etapy/worker"
)

func main() {
	// A missing .env is fine; the environment may already carry everything.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded settings from .env")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		debug bool
		token string
	)

	cmd := &cobra.Command{
		Use:          "etapy",
		Short:        "Telegram bot for tracking construction stage progress",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags win over the environment
			if token != "" {
				os.Setenv("TELEGRAM_TOKEN", token)
			}
			if debug {
				os.Setenv("DEBUG", "true")
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug mode")
	cmd.Flags().StringVar(&token, "token", "", "Telegram bot token (or use TELEGRAM_TOKEN env var)")

	cmd.AddCommand(newExportCmd())
	return cmd
}

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := storage.Open(cfg.StorageBackend, cfg.DataDir, cfg.LockTimeout)
	if err != nil {
		return fmt.Errorf("failed to open %s storage in %s: %w", cfg.StorageBackend, cfg.DataDir, err)
	}
	defer store.Close()
	log.Printf("Storage: %s in %s", cfg.StorageBackend, cfg.DataDir)

	sessions, err := session.NewStore(cfg.StateDir())
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telegramBot, err := bot.New(ctx, cfg, store, sessions)
	if err != nil {
		return err
	}

	if cfg.ExportInterval > 0 {
		exportWorker := worker.NewExportWorker(worker.NewExportWorkerConfig{
			Storage:  store,
			Path:     cfg.ExportPath(),
			Interval: cfg.ExportInterval,
		})
		exportWorker.Start()
		defer exportWorker.Stop()
	}

	if err := telegramBot.Start(ctx); err != nil {
		return fmt.Errorf("bot stopped with error: %w", err)
	}
	log.Println("Shutdown complete")
	return nil
}

func newExportCmd() *cobra.Command {
	var (
		out     string
		dataDir string
		backend string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a spreadsheet snapshot of all projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if backend == storage.BackendMemory {
				return fmt.Errorf("nothing to export from the memory backend")
			}
			store, err := storage.Open(backend, dataDir, 30*time.Second)
			if err != nil {
				return fmt.Errorf("failed to open %s storage in %s: %w", backend, dataDir, err)
			}
			defer store.Close()

			if err := storage.ExportWorkbook(store, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "projects-export.xlsx", "Target workbook")
	cmd.Flags().StringVar(&dataDir, "data-dir", envOr("DATA_DIR", "."), "Data directory")
	cmd.Flags().StringVar(&backend, "backend", envOr("STORAGE_BACKEND", storage.BackendSQLite), "Storage backend (sqlite or xlsx)")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

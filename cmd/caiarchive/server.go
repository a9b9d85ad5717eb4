package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/caiarchive/internal/api"
	"github.com/kalambet/caiarchive/internal/config"
	"github.com/kalambet/caiarchive/internal/fetch"
	"github.com/kalambet/caiarchive/internal/ingest"
	"github.com/kalambet/caiarchive/internal/pdftext"
	"github.com/kalambet/caiarchive/internal/schedule"
	"github.com/kalambet/caiarchive/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withSchedule, _ := cmd.Flags().GetBool("schedule")
		return runServer(cmd.Flags().Changed("schedule"), withSchedule)
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one ingestion pass over the listing pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape()
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Extract text for stored decisions that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRepair()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the archive over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and archive status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("schedule", false, "run the daily scrape and repair jobs (overrides schedule.enabled)")
}

// app holds the long-lived components shared by the server and the one-shot
// commands.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	store       *storage.Store
	coordinator *ingest.Coordinator
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	fetcher := fetch.New(fetch.Options{
		UserAgent:      cfg.Scrape.UserAgent,
		ListingTimeout: cfg.Scrape.ListingTimeout,
		PDFTimeout:     cfg.Scrape.PDFTimeout,
		Logger:         logger,
	})
	extractor := pdftext.New(cfg.Scrape.TempDir, logger)
	coordinator := ingest.NewCoordinator(store, fetcher, extractor, ingest.Options{
		ListingURLs: cfg.Scrape.ListingURLs,
		Workers:     cfg.Scrape.PDFWorkers,
		RepairLimit: cfg.Scrape.RepairLimit,
		Logger:      logger,
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		coordinator: coordinator,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func runServer(scheduleFlagSet, withSchedule bool) error {
	fmt.Fprintf(os.Stderr, "caiarchive version %s\n", version)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !scheduleFlagSet {
		withSchedule = a.cfg.Schedule.Enabled
	}
	if withSchedule {
		sched, err := schedule.New(a.coordinator, schedule.Options{
			ScrapeSpec: a.cfg.Schedule.ScrapeCron,
			RepairSpec: a.cfg.Schedule.RepairCron,
			Logger:     a.logger,
		})
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(api.AppDeps{Store: a.store, Logger: a.logger}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "caiarchive listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runScrape() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("Scraping %d listing page(s)...", len(a.cfg.Scrape.ListingURLs))
	res, err := a.coordinator.Run(ctx)
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}

	printSuccess("Run %s complete", res.RunID)
	printStatus("Pages", "%d", res.Pages)
	printStatus("Records", "%d (%d duplicate)", res.Extracted, res.Duplicates)
	printStatus("Written", "%d (%d updated, %d skipped)", res.Added, res.Updated, res.Skipped)
	printStatus("Documents", "%d downloaded, %d already extracted, %d failed, %d without text",
		res.Downloaded, res.Deduped, res.FetchFailed, res.EmptyText)
	if res.Skipped > 0 {
		printWarning("%d record(s) could not be written; see the log for details", res.Skipped)
	}
	return nil
}

func runRepair() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("Repairing missing document text...")
	res, err := a.coordinator.RepairMissingText(ctx)
	if err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}

	if res.Candidates == 0 {
		printSuccess("Nothing to repair")
		return nil
	}
	printSuccess("Repaired %d of %d decision(s)", res.Repaired, res.Candidates)
	printStatus("Without text", "%d", res.EmptyText)
	printStatus("Download failed", "%d", res.FetchFailed)
	if res.Failed > 0 {
		printWarning("%d extracted text(s) could not be saved", res.Failed)
	}
	return nil
}

func runMCP() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: a.store})
	stdioSrv := server.NewStdioServer(mcpSrv)
	a.logger.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := clientFor(cfg)
	ctx := context.Background()

	var health struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	resp, err := client.get(ctx, "/api/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else if err := decodeJSON(resp, &health); err != nil {
		printStatus("Server", "error (%v)", err)
	} else {
		printStatus("Server", "running on port %d", cfg.Server.Port)

		var st stats
		if resp, err := client.get(ctx, "/api/decisions/stats/summary"); err == nil && decodeJSON(resp, &st) == nil {
			printStatus("Decisions", "%d", st.Total)
			printStatus("With text", "%d (%.1f%%)", st.WithExtractedText, st.ExtractionPercentage)
		}
		var runs []run
		if resp, err := client.get(ctx, "/api/decisions/history?limit=1"); err == nil && decodeJSON(resp, &runs) == nil && len(runs) > 0 {
			printStatus("Last run", "%s (%s)", runs[0].ScrapedAt, runs[0].Status)
		}
	}

	printStatus("Schedule", "%s", scheduleLabel(cfg))
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func scheduleLabel(cfg config.Config) string {
	if !cfg.Schedule.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("scrape %q, repair %q", cfg.Schedule.ScrapeCron, cfg.Schedule.RepairCron)
}

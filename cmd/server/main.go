package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "mentionscan/internal/adapters/http"
	pg "mentionscan/internal/adapters/postgres"
	"mentionscan/internal/logger"
	"mentionscan/internal/services/reports"
	"mentionscan/internal/services/scanner"
	"mentionscan/internal/workers/dispatcher"
	scanworker "mentionscan/internal/workers/scanrunner"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mentionscan",
		Short:         "AI visibility scans for business websites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), dispatchCmd(), crawlCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scan workers and the weekly dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			waitWorkers := scanworker.Run(ctx, a.store, a.orch, a.cfg.ScanWorkers, a.cfg.PollInterval, a.log.With(logger.String("component", "worker")))
			// Runs before a.Close so requeues still reach the store.
			defer waitWorkers()
			if a.cfg.ScanWorkers > 0 {
				a.log.Info("scan workers started", logger.Int("workers", a.cfg.ScanWorkers))
			}

			d := dispatcher.New(a.store, a.bus, clockwork.NewRealClock(), a.metrics, a.log.With(logger.String("component", "dispatcher")))
			cron, err := d.Start(ctx, a.cfg.DispatchSchedule)
			if err != nil {
				return err
			}
			defer cron.Stop()

			api := httpadapter.New(httpadapter.Deps{
				Scanner:   a.scanner,
				Reports:   reports.New(a.store),
				Jobs:      a.store,
				Processor: a.orch,
				Metrics:   a.metrics.Handler(),
				Health:    a.health(),
				Logger:    a.log.With(logger.String("component", "http")),
			})
			r := chi.NewRouter()
			r.Mount("/", api.Routes())
			srv := &http.Server{Addr: a.cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.log.Info("listening", logger.String("addr", a.cfg.ListenAddr))

			select {
			case <-ctx.Done():
				a.log.Info("shutting down")
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("migrate requires DATABASE_URL")
			}
			db, err := pg.Connect(cmd.Context(), cfg.DatabaseURL, int32(cfg.DBMaxConns))
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatch pass over active subscriptions and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			d := dispatcher.New(a.store, a.bus, clockwork.NewRealClock(), a.metrics, a.log)
			sent, err := d.Tick(ctx)
			if err != nil {
				return err
			}
			// scan/requested handlers only create runs, so waiting is short.
			a.bus.Wait()
			fmt.Fprintf(cmd.OutOrStdout(), "dispatched %d scan(s)\n", sent)
			return nil
		},
	}
}

func crawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <domain>",
		Short: "Crawl a site and print the extracted pages as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := scanner.NormalizeDomain(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.crawler.CrawlSite(cmd.Context(), site)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

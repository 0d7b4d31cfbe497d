// Command lendingd runs the controlled digital lending service: the HTTP
// API, the recurring expiration and reminder jobs, and the SQLite-backed
// circulation state.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/example/digital-lending/internal/application"
	"github.com/example/digital-lending/internal/config"
	httptransport "github.com/example/digital-lending/internal/http"
	"github.com/example/digital-lending/internal/ledger"
	"github.com/example/digital-lending/internal/notify"
	"github.com/example/digital-lending/internal/persistence/sqlite"
	"github.com/example/digital-lending/internal/scheduler"
	"github.com/example/digital-lending/internal/storage"
	"github.com/example/digital-lending/internal/watermark"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "lendingd",
		Short:         "Controlled digital lending service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(logger), newMigrateCommand(logger))

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newMigrateCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			pool, err := sqlite.NewConnectionPool(sqlite.DefaultDSN(cfg.SQLitePath))
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer pool.Close()

			if err := sqlite.Migrate(cmd.Context(), pool); err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			logger.Info("migrations applied", "path", cfg.SQLitePath)
			return nil
		},
	}
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the lending API and circulation jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := sqlite.NewConnectionPool(sqlite.DefaultDSN(cfg.SQLitePath))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close database", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	masters, err := storage.NewGateway(cfg.MasterRoot)
	if err != nil {
		return fmt.Errorf("preparing master storage: %w", err)
	}
	circulation, err := storage.NewGateway(cfg.CirculationRoot)
	if err != nil {
		return fmt.Errorf("preparing circulation storage: %w", err)
	}

	books := sqlite.NewBookRepository(pool)
	patrons := sqlite.NewPatronRepository(pool)
	loans := sqlite.NewLoanRepository(pool)
	waitlist := sqlite.NewWaitlistRepository(pool)

	copyLedger := ledger.NewCopyLedger(books)
	generator := watermark.NewGenerator(cfg.LibraryName, cfg.ContactEmail, cfg.WatermarkTimeout)

	var notifier notify.Notifier
	if cfg.SMTPAddr != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPSender)
		logger.Info("notifications via SMTP relay", "addr", cfg.SMTPAddr)
	} else {
		notifier = notify.NewLogNotifier(logger)
		logger.Warn("no SMTP relay configured, notifications are logged only")
	}

	service := application.NewLendingService(application.LendingServiceConfig{
		Loans:       newLoanStoreAdapter(loans),
		Books:       newBookCatalogAdapter(books),
		Patrons:     newPatronDirectoryAdapter(patrons),
		Waitlist:    newWaitlistStoreAdapter(waitlist),
		Ledger:      newCopyLedgerAdapter(copyLedger),
		Generator:   generator,
		Masters:     masters,
		Circulation: circulation,
		Notifier:    notifier,
		LibraryName: cfg.LibraryName,
		Policy: application.Policy{
			DefaultLoanDays:   cfg.DefaultLoanDays,
			MaxLoansPerPatron: cfg.MaxLoansPerPatron,
			MaxRenewals:       cfg.MaxRenewals,
			ReminderLead:      time.Duration(cfg.ReminderLeadDays) * 24 * time.Hour,
		},
		Logger: logger,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	driver := scheduler.NewDriver(logger, time.Now, registry)
	driver.Register(scheduler.Job{
		Name:     "expire_loans",
		Interval: cfg.ExpiryInterval,
		Run: func(ctx context.Context) error {
			_, err := service.ExpireDueLoans(ctx)
			return err
		},
	})
	driver.Register(scheduler.Job{
		Name:     "send_reminders",
		Interval: cfg.ReminderInterval,
		Run: func(ctx context.Context) error {
			_, err := service.SendReminders(ctx)
			return err
		},
	})
	driver.Start(ctx)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Lending: httptransport.NewLendingHandler(service, logger),
		Health:  httptransport.NewHealthHandler(driver, pool, logger),
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.ResolvePrincipal(),
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("lending API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	driver.Wait()
	logger.Info("lending service stopped")
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "time/tzdata"

	"github.com/soochol/finauto/internal/api"
	"github.com/soochol/finauto/internal/config"
	"github.com/soochol/finauto/internal/db"
	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/notify"
	"github.com/soochol/finauto/internal/repository"
	"github.com/soochol/finauto/internal/services"
	"github.com/soochol/finauto/internal/services/scheduler"
)

const version = "v0.1.0"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "serve":
		serve()
	case "sweep":
		sweep()
	case "version":
		fmt.Println("finauto " + version)
	default:
		fmt.Println("finauto " + version)
		fmt.Println("Usage: finauto serve|sweep|version")
	}
}

// app holds the wired services shared by every command.
type app struct {
	cfg          *config.Config
	database     *db.DB
	runs         *services.RunHistoryService
	orchestrator *services.Orchestrator
}

func setup(ctx context.Context) *app {
	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	st := memoryStores()
	var database *db.DB
	if cfg.Database.URL != "" {
		database, err = db.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		if err := database.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = stores{
			automations:   repository.NewPersistentAutomationRepository(database),
			actions:       repository.NewPersistentActionRepository(database),
			runs:          repository.NewPersistentRunRepository(database),
			notifications: repository.NewPersistentNotificationRepository(database),
		}
		slog.Info("using postgres store")
	} else {
		slog.Warn("no database url configured, using in-memory store")
	}

	a := wire(cfg, st)
	a.database = database
	return a
}

// stores groups the repositories one process works against.
type stores struct {
	automations   repository.AutomationRepository
	actions       repository.ActionRepository
	runs          repository.RunRepository
	notifications repository.NotificationRepository
}

func memoryStores() stores {
	return stores{
		automations:   repository.NewMemoryAutomationRepository(),
		actions:       repository.NewMemoryActionRepository(),
		runs:          repository.NewMemoryRunRepository(),
		notifications: repository.NewMemoryNotificationRepository(),
	}
}

func wire(cfg *config.Config, st stores) *app {
	smtpMailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:          cfg.Mail.Host,
		Port:          cfg.Mail.Port,
		Username:      cfg.Mail.Username,
		Password:      cfg.Mail.Password,
		From:          cfg.Mail.From,
		FromName:      cfg.Mail.FromName,
		Timeout:       cfg.Mail.Timeout,
		RatePerSecond: cfg.Mail.RatePerSecond,
	})
	if !smtpMailer.Configured() {
		slog.Warn("smtp not configured, email actions will fail")
	}
	var mailer notify.Mailer = smtpMailer
	if cfg.Mail.Retries > 0 {
		mailer = notify.NewRetryMailer(smtpMailer, notify.RetryPolicy{
			MaxRetries:    cfg.Mail.Retries,
			InitialDelay:  cfg.Mail.RetryDelay,
			MaxDelay:      10 * cfg.Mail.RetryDelay,
			BackoffFactor: 2,
		})
	}

	runs := services.NewRunHistoryService(st.runs)
	orch := services.NewOrchestrator(
		st.automations,
		st.actions,
		runs,
		services.NewDispatcher(mailer, st.notifications),
		services.NewAutomationLimiter(),
		services.OrchestratorConfig{
			MaxParallel:   cfg.Scheduler.MaxParallel,
			ActionTimeout: cfg.Scheduler.ActionTimeout,
		},
	)

	return &app{cfg: cfg, runs: runs, orchestrator: orch}
}

// startServing prepares a long-running process. Runs left in running state
// belong to a previous serve process that died; a one-shot sweep must not
// touch them because another process may still own them.
func (a *app) startServing(ctx context.Context) {
	a.runs.CleanupOrphanedRuns(ctx)
}

// sweepOnce performs a single scheduled pass.
func (a *app) sweepOnce(ctx context.Context) (finauto.Summary, error) {
	return scheduler.NewSchedulerService(a.orchestrator, "", a.cfg.Scheduler.Timezone).Sweep(ctx)
}

func (a *app) close() {
	if a.database != nil {
		a.database.Close()
	}
}

func setupLogger(c config.LogConfig) {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if c.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := setup(ctx)
	defer a.close()
	a.startServing(ctx)

	srv := api.NewServer(a.orchestrator, a.runs)
	if a.cfg.Auth.JWTSecret != "" {
		srv.SetAuthenticator(api.NewAuthenticator(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer))
	} else {
		slog.Warn("no jwt secret configured, api is unauthenticated")
	}

	var sched *scheduler.SchedulerService
	if a.cfg.Scheduler.Enabled {
		sched = scheduler.NewSchedulerService(a.orchestrator, a.cfg.Scheduler.Cron, a.cfg.Scheduler.Timezone)
		if err := sched.Start(ctx); err != nil {
			slog.Error("scheduler start failed", "err", err)
			os.Exit(1)
		}
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting finauto server", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "err", err)
	}
	if sched != nil {
		sched.Stop()
	}
}

func sweep() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := setup(ctx)
	defer a.close()

	sum, err := a.sweepOnce(ctx)
	if err != nil {
		slog.Error("sweep failed", "err", err)
		a.close()
		os.Exit(1)
	}
	json.NewEncoder(os.Stdout).Encode(sum)
}

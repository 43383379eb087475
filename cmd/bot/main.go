package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crmbot/internal/adapters/storage"
	"crmbot/internal/admin"
	"crmbot/internal/bot"
	"crmbot/internal/calls/repository"
	"crmbot/internal/conversation"
	"crmbot/internal/enrichment"
	"crmbot/internal/events"
	apphttp "crmbot/internal/http"
	"crmbot/internal/http/router"
	"crmbot/internal/importer"
	"crmbot/internal/ledger"
	"crmbot/internal/metrics"
	"crmbot/internal/scheduler"
	"crmbot/internal/telegram"
	"crmbot/migrations"
	"crmbot/platform/config"
	"crmbot/platform/db"
	"crmbot/platform/logger"
	"crmbot/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting bot", "env", cfg.Env, "addr", cfg.HTTPAddr, "webhook", cfg.IsWebhookMode())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	repo := repository.New(pool)
	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	appMetrics := metrics.New()
	appMetrics.Subscribe(eventBus)

	closeReminders := initReminders(cfg, repo, eventBus, log)
	if closeReminders != nil {
		defer closeReminders()
	}

	sessions, closeSessions, err := conversation.NewSessionStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize session store", "error", err)
		panic("failed to initialize session store: " + err.Error())
	}
	defer closeSessions()

	tg := telegram.NewClient(cfg, log)
	if tg == nil {
		panic("failed to initialize telegram client: TELEGRAM_BOT_TOKEN is required")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	ledgerModule, err := ledger.NewModule(ctx, cfg, appMetrics, log)
	if err != nil {
		log.Error("failed to initialize ledgers", "error", err)
		panic("failed to initialize ledgers: " + err.Error())
	}

	enrichmentModule := enrichment.NewModule(cfg, log)
	enrichmentModule.Service().SetRecorder(appMetrics)

	importOpts := []importer.Option{}
	if archive := initArchive(ctx, cfg, log); archive != nil {
		importOpts = append(importOpts, importer.WithArchiver(archive))
	}
	importSvc := importer.New(ledgerModule.Engine(), repo, val, eventBus, cfg.GetReminderLocation(), log, importOpts...)

	machine := conversation.New(conversation.Deps{
		Managers:    repo,
		Calls:       repo,
		Enricher:    enrichmentModule.Service(),
		Syncer:      ledgerModule.Engine(),
		Provisioner: ledgerModule.Operator(),
		Importer:    importSvc,
		Agenda:      ledgerModule.Agenda(),
		Bus:         eventBus,
		Validator:   val,
		Log:         log,
		Location:    cfg.GetReminderLocation(),
		Admins:      cfg.GetAdminIDs(),
	}, sessions)
	telegramBot := bot.New(machine, tg, log)

	adminModule := admin.NewModule(admin.Deps{
		Managers:    repo,
		Importer:    importSvc,
		Enricher:    enrichmentModule.Service(),
		Refresher:   ledgerModule.Engine(),
		Operator:    ledgerModule.Operator(),
		Aggregate:   ledgerModule.Aggregate(),
		AggregateID: ledgerModule.Engine().AggregateID(),
		Log:         log,
	})

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	modules := []apphttp.Module{adminModule}
	if cfg.IsWebhookMode() {
		modules = append(modules, bot.NewWebhookModule(telegramBot, cfg.GetTelegramWebhookSecret()))
	}

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  repo,
		Metrics: appMetrics,
		Modules: modules,
	}

	srv := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// ========================================================================
	// Update intake
	// ========================================================================

	var intake sync.WaitGroup
	if cfg.IsWebhookMode() {
		registerWebhook(ctx, cfg, tg, log)
	} else {
		if err := tg.DeleteWebhook(ctx); err != nil {
			log.Warn("failed to delete webhook before polling", "error", err)
		}
		poller := telegram.NewPoller(tg, telegramBot.HandleUpdate, log)
		intake.Add(1)
		go func() {
			defer intake.Done()
			if err := poller.Run(ctx); err != nil {
				log.Error("telegram poller stopped", "error", err)
			}
		}()
		log.Info("telegram long polling started")
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		log.Error("server error", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", "error", err)
	}
	intake.Wait()
	eventBus.Wait()
	log.Info("bot stopped")
}

func registerWebhook(ctx context.Context, cfg config.TelegramConfig, tg *telegram.Client, log *logger.Logger) {
	base := cfg.GetTelegramWebhookURL()
	if base == "" {
		log.Warn("TELEGRAM_WEBHOOK_URL not set; assuming the webhook is registered externally")
		return
	}
	url := fmt.Sprintf("%s/telegram/webhook/%s", base, cfg.GetTelegramWebhookSecret())
	if err := withRetry(ctx, log, "telegram setWebhook", 3, time.Second, func() error {
		return tg.SetWebhook(ctx, url, cfg.GetTelegramWebhookSecret())
	}); err != nil {
		log.Error("failed to register telegram webhook", "error", err)
		panic("failed to register telegram webhook: " + err.Error())
	}
	log.Info("telegram webhook registered", "base", base)
}

// initReminders schedules follow-up reminders for captured calls. Without
// redis the feature is off.
func initReminders(cfg config.SchedulerConfig, managers scheduler.LedgerLookup, bus events.Bus, log *logger.Logger) func() {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; follow-up reminders disabled")
		return nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		return nil
	}

	reminders, err := scheduler.NewReminders(client, managers, cfg.GetReminderTime(), cfg.GetReminderLocation(), log)
	if err != nil {
		_ = client.Close()
		log.Error("failed to initialize reminders", "error", err)
		return nil
	}
	reminders.Subscribe(bus)

	return func() {
		_ = client.Close()
	}
}

// initArchive returns nil when MinIO is not configured or unreachable.
func initArchive(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) importer.Archiver {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; import files are not archived")
		return nil
	}
	archive, err := storage.NewMinIOArchive(cfg)
	if err != nil {
		log.Error("failed to initialize import archive", "error", err)
		return nil
	}
	if err := withRetry(ctx, log, "ensure imports bucket", 5, 2*time.Second, func() error {
		return archive.EnsureBucketExists(ctx)
	}); err != nil {
		log.Error("failed to ensure imports bucket exists", "error", err, "bucket", cfg.GetMinioBucketImports())
		return nil
	}
	log.Info("import archive initialized", "bucket", cfg.GetMinioBucketImports())
	return archive
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

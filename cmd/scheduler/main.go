package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"crmbot/internal/ledger"
	"crmbot/internal/scheduler"
	"crmbot/internal/telegram"
	"crmbot/platform/config"
	"crmbot/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tg := telegram.NewClient(cfg, log)
	if tg == nil {
		panic("failed to initialize telegram client: TELEGRAM_BOT_TOKEN is required")
	}

	// The worker only reads ledgers to drop rescheduled reminders.
	ledgerModule, err := ledger.NewModule(ctx, cfg, nil, log)
	if err != nil {
		log.Error("failed to initialize ledgers", "error", err)
		panic("failed to initialize ledgers: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, tg, ledgerModule.Operator(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

package main

import (
	"context"
	"fmt"

	"crmbot/internal/adapters/storage"
	"crmbot/internal/admin"
	"crmbot/internal/calls/repository"
	"crmbot/internal/enrichment"
	"crmbot/internal/events"
	"crmbot/internal/importer"
	"crmbot/internal/ledger"
	"crmbot/platform/config"
	"crmbot/platform/db"
	"crmbot/platform/logger"
	"crmbot/platform/validator"
)

// env is the wiring shared by every subcommand.
type env struct {
	admin *admin.Service
	bus   *events.InMemoryBus
	close func()
}

func newEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Env)

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	repo := repository.New(pool)

	ledgerModule, err := ledger.NewModule(ctx, cfg, nil, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize ledgers: %w", err)
	}
	enrichmentModule := enrichment.NewModule(cfg, log)

	bus := events.NewInMemoryBus(log)
	var opts []importer.Option
	if cfg.IsMinIOEnabled() {
		archive, err := storage.NewMinIOArchive(cfg)
		if err != nil {
			log.Warn("import archive unavailable", "error", err)
		} else if err := archive.EnsureBucketExists(ctx); err != nil {
			log.Warn("import archive unavailable", "error", err)
		} else {
			opts = append(opts, importer.WithArchiver(archive))
		}
	}
	importSvc := importer.New(ledgerModule.Engine(), repo, validator.New(), bus, cfg.GetReminderLocation(), log, opts...)

	svc := admin.New(admin.Deps{
		Managers:    repo,
		Importer:    importSvc,
		Enricher:    enrichmentModule.Service(),
		Refresher:   ledgerModule.Engine(),
		Operator:    ledgerModule.Operator(),
		Aggregate:   ledgerModule.Aggregate(),
		AggregateID: ledgerModule.Engine().AggregateID(),
		Log:         log,
	})

	return &env{
		admin: svc,
		bus:   bus,
		close: func() {
			bus.Wait()
			pool.Close()
		},
	}, nil
}

// Package app assembles the store, pipeline and services shared by the HTTP
// server and the command-line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsvalues/PACS-DataBridge/internal/config"
	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/metrics"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/pipeline"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
	"github.com/bsvalues/PACS-DataBridge/internal/rules"
	"github.com/bsvalues/PACS-DataBridge/internal/services"
	"github.com/bsvalues/PACS-DataBridge/internal/source"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Store     repository.Store
	Metrics   *metrics.Metrics
	Pipeline  *pipeline.Orchestrator
	Rules     rules.Provider
	Registry  *rules.Registry
	Opener    *source.Opener
	Imports   services.ImportService
	Parcels   services.ParcelService
	Addresses services.AddressService
}

// Options adjusts assembly.
type Options struct {
	// RuntimeMetrics adds Go runtime and process collectors.
	RuntimeMetrics bool
	// Store replaces the configured store. Used by tests.
	Store repository.Store
}

// New opens the configured store and wires every service over it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = repository.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
		}
	}

	provider, err := RuleProvider(cfg.Pipeline.RulesFile, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client, err := source.NewS3Client(ctx, cfg.S3)
	if err != nil {
		log.Warn("S3 sources disabled", map[string]interface{}{
			"error": err.Error(),
		})
	}
	var opener *source.Opener
	if client != nil {
		opener = source.NewOpener(client)
	} else {
		opener = source.NewOpener(nil)
	}

	m := metrics.New(opts.RuntimeMetrics)
	registry := rules.DefaultRegistry(time.Now)
	orchestrator := pipeline.New(store, provider, registry, log,
		pipeline.OptionsFromConfig(cfg.Pipeline),
		pipeline.WithRecorder(m),
	)

	open := func(ctx context.Context, uri string, importType models.ImportType) (services.Rows, error) {
		return opener.Open(ctx, uri, importType)
	}
	parcels := services.NewParcelService(store, log)

	return &App{
		Config:    cfg,
		Log:       log,
		Store:     store,
		Metrics:   m,
		Pipeline:  orchestrator,
		Rules:     provider,
		Registry:  registry,
		Opener:    opener,
		Imports:   services.NewImportService(orchestrator, store, open, log),
		Parcels:   parcels,
		Addresses: services.NewAddressService(store, parcels, m, log, services.DefaultIndexTTL),
	}, nil
}

// RuleProvider layers the rule sources: the rule file when one is named, then
// rule rows in the store, then the embedded defaults.
func RuleProvider(rulesFile string, store rules.Provider) (rules.Provider, error) {
	defaults, err := rules.Defaults()
	if err != nil {
		return nil, fmt.Errorf("failed to load default rules: %w", err)
	}
	var chain []rules.Provider
	if rulesFile != "" {
		if _, err := rules.LoadFile(rulesFile); err != nil {
			return nil, fmt.Errorf("failed to load rules file: %w", err)
		}
		chain = append(chain, rules.FileProvider{Path: rulesFile})
	}
	if store != nil {
		chain = append(chain, store)
	}
	chain = append(chain, defaults)
	return rules.Fallback(chain...), nil
}

// Close stops background imports, waiting until ctx is done, then closes
// the store.
func (a *App) Close(ctx context.Context) error {
	shutdownErr := a.Imports.Shutdown(ctx)
	closeErr := a.Store.Close()
	return errors.Join(shutdownErr, closeErr)
}

package fetch

import (
	"fmt"
	"log/slog"

	"github.com/dtnitsch/postgrab/internal/pipeline"
	"github.com/dtnitsch/postgrab/models"
	"github.com/dtnitsch/postgrab/pkg/artifact_manager"
	"github.com/dtnitsch/postgrab/pkg/caching"
	"github.com/dtnitsch/postgrab/pkg/db"
	"github.com/dtnitsch/postgrab/pkg/extractor"
	"github.com/dtnitsch/postgrab/pkg/fetcher"
	"github.com/dtnitsch/postgrab/pkg/language"
	"github.com/dtnitsch/postgrab/pkg/naming"
	"github.com/dtnitsch/postgrab/pkg/pacing"
	"github.com/dtnitsch/postgrab/pkg/worklist"
)

// Build wires a Driver from cfg. The returned cleanup closes the history
// database; the fetch session is closed by the driver itself.
func Build(cfg models.Config, logger *slog.Logger) (*pipeline.Driver, func(), error) {
	artifacts, err := artifact_manager.NewManager(artifact_manager.Options{
		Dir:          cfg.OutputDir,
		Extension:    cfg.Extension,
		TemplatePath: cfg.TemplatePath,
		DateLabel:    cfg.DateLabel,
	})
	if err != nil {
		return nil, nil, err
	}

	detector, err := language.NewDetector(cfg.Languages)
	if err != nil {
		return nil, nil, err
	}

	var dwell pacing.Jitter
	if cfg.DwellMax > 0 {
		dwell = pacing.Uniform(cfg.DwellMin, cfg.DwellMax)
	}
	var session fetcher.Session = fetcher.NewHTTPSession(fetcher.HTTPOptions{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Headers:   cfg.Headers,
		Proxy:     cfg.Proxy,
		Dwell:     dwell,
		Logger:    logger,
	})
	if cfg.CacheDir != "" {
		cache, err := caching.NewCache(cfg.CacheDir, cfg.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		session = fetcher.NewCachingSession(session, cache, logger)
	}

	deps := pipeline.Deps{
		Store:     worklist.NewStore(),
		Session:   session,
		Extractor: extractor.Chain{extractor.NewSelectorExtractor(), extractor.NewReadabilityExtractor()},
		Artifacts: artifacts,
		Namer:     naming.TitleNamer{Length: cfg.SlugLength},
		Detector:  detector,
		Logger:    logger,
	}

	cleanup := func() {}
	if !cfg.NoHistory {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open history database: %w", err)
		}
		deps.History = database
		cleanup = func() {
			if err := database.Close(); err != nil {
				logger.Warn("failed to close history database", "error", err)
			}
		}
	}

	driver := pipeline.New(deps, pipeline.Options{
		InputPath: cfg.Input,
		Dedup:     cfg.Dedup,
		Retry:     pacing.RetryPolicy{Attempts: cfg.Retries, Base: cfg.RetryBase},
		Delay:     pacing.Uniform(cfg.DelayMin, cfg.DelayMax),
		MaxItems:  cfg.MaxItems,
	})
	return driver, cleanup, nil
}

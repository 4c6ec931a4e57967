package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FranksOps/leadfinder/internal/audit"
	"github.com/FranksOps/leadfinder/internal/config"
	"github.com/FranksOps/leadfinder/internal/discovery"
	"github.com/FranksOps/leadfinder/internal/fingerprint"
	"github.com/FranksOps/leadfinder/internal/pipeline"
	"github.com/FranksOps/leadfinder/internal/scoring"
	"github.com/FranksOps/leadfinder/internal/scraper"
	"github.com/FranksOps/leadfinder/internal/storage"
	"github.com/FranksOps/leadfinder/pkg/proxy"
	"github.com/FranksOps/leadfinder/pkg/ratelimit"
	"github.com/FranksOps/leadfinder/pkg/useragent"
)

// app is the fully wired pipeline with its repository.
type app struct {
	repo     storage.Repository
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	repo, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	p, err := buildPipeline(cfg, repo, logger)
	if err != nil {
		repo.Close()
		return nil, err
	}
	return &app{repo: repo, pipeline: p}, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}

func buildFetcher(cfg *config.Config, logger *slog.Logger) (*scraper.Fetcher, error) {
	f := cfg.Fetch
	profile, err := fingerprint.ParseProfile(f.TLSProfile)
	if err != nil {
		return nil, err
	}

	sc := scraper.DefaultConfig()
	sc.Search = scraper.Policy{Timeout: f.SearchTimeout, MaxRetries: f.SearchRetries}
	sc.Website = scraper.Policy{Timeout: f.WebsiteTimeout, MaxRetries: f.WebsiteRetries}
	sc.MaxRedirects = f.MaxRedirects
	sc.UseCookieJar = f.CookieJar
	sc.MaxBodyBytes = f.MaxBodyBytes
	sc.BackoffBase = f.BackoffBase
	sc.BackoffMax = f.BackoffMax
	sc.RespectRobots = f.RespectRobots
	sc.Fingerprint = profile
	sc.InsecureSkipVerify = f.InsecureSkipVerify
	sc.UAPool = useragent.NewPool(f.UserAgents)
	sc.Limiter = ratelimit.NewHostLimiter(f.HostDelay, f.Jitter)
	sc.Logger = logger

	if f.ProxyFile != "" {
		pool := proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(f.ProxyFile); err != nil {
			return nil, err
		}
		logger.Info("loaded proxies", "count", pool.Len(), "file", f.ProxyFile)
		sc.ProxyPool = pool
	}
	return scraper.NewFetcher(sc)
}

func selectors(s config.SelectorsConfig) discovery.Selectors {
	out := discovery.DefaultSelectors()
	for _, o := range []struct {
		dst *string
		val string
	}{
		{&out.Result, s.Result},
		{&out.Name, s.Name},
		{&out.Category, s.Category},
		{&out.Street, s.Street},
		{&out.Locality, s.Locality},
		{&out.Phone, s.Phone},
		{&out.Website, s.Website},
		{&out.Rating, s.Rating},
		{&out.RatingAttr, s.RatingAttr},
		{&out.Reviews, s.Reviews},
		{&out.SourceIDAttr, s.SourceIDAttr},
		{&out.Next, s.Next},
	} {
		if o.val != "" {
			*o.dst = o.val
		}
	}
	return out
}

func buildPipeline(cfg *config.Config, repo storage.Repository, logger *slog.Logger) (*pipeline.Pipeline, error) {
	fetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}

	provider, err := discovery.NewHTMLProvider(fetcher, cfg.Discovery.SearchURL, selectors(cfg.Discovery.Selectors), logger)
	if err != nil {
		return nil, err
	}
	disc := discovery.New(provider, discovery.Config{
		MaxPages: cfg.Discovery.MaxPages,
		Region:   cfg.Discovery.Region,
		Logger:   logger,
	})
	auditor := audit.New(fetcher, audit.Config{
		SlowThreshold:    cfg.Audit.SlowThreshold,
		PlaceholderTerms: cfg.Audit.PlaceholderTerms,
		Region:           cfg.Discovery.Region,
		Logger:           logger,
	})

	return pipeline.New(disc, auditor, scoring.NewModel(nil), repo, pipeline.Config{
		Workers:       cfg.Pipeline.Workers,
		MaxResultsCap: cfg.Pipeline.MaxResultsCap,
		Logger:        logger,
	}), nil
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-scout/internal/research"
	"github.com/sells-group/profile-scout/internal/resilience"
	"github.com/sells-group/profile-scout/internal/resolver"
	"github.com/sells-group/profile-scout/internal/search"
	"github.com/sells-group/profile-scout/internal/server"
	"github.com/sells-group/profile-scout/internal/store"
	"github.com/sells-group/profile-scout/internal/workflow"
	anthropicpkg "github.com/sells-group/profile-scout/pkg/anthropic"
	"github.com/sells-group/profile-scout/pkg/brightdata"
)

// appEnv holds the initialized store, clients, and services shared by the
// serve/search/research commands.
type appEnv struct {
	Store      store.Store
	Resolver   *resolver.Resolver
	Searcher   *server.Service
	Manager    *research.Manager
	Anthropic  anthropicpkg.Client
	BrightData brightdata.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func retryConfig() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelayMS > 0 {
		rc.InitialBackoff = time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond
	}
	if cfg.Retry.MaxBackoffSec > 0 {
		rc.MaxBackoff = time.Duration(cfg.Retry.MaxBackoffSec) * time.Second
	}
	return rc
}

// initEnv validates config for the given mode and wires the store, provider
// clients, resolver, and search service. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	bdOpts := []brightdata.Option{
		brightdata.WithBaseURL(cfg.BrightData.BaseURL),
		brightdata.WithZone(cfg.BrightData.Zone),
		brightdata.WithRateLimit(cfg.BrightData.RateLimit, 1),
	}
	if cfg.BrightData.ProfileDataset != "" {
		bdOpts = append(bdOpts, brightdata.WithProfileDataset(cfg.BrightData.ProfileDataset))
	}
	if cfg.BrightData.TimeoutSecs > 0 {
		bdOpts = append(bdOpts, brightdata.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.BrightData.TimeoutSecs) * time.Second,
		}))
	}
	bd := brightdata.NewClient(cfg.BrightData.Token, bdOpts...)
	llm := anthropicpkg.NewClient(cfg.Anthropic.Key)

	provider := resolver.NewBrightDataProvider(bd, retryConfig())
	res := resolver.New(st, provider)

	parser := search.NewLLMParser(llm, cfg.Anthropic.ParserModel)
	discoverer := search.NewDiscoverer(bd, retryConfig(), cfg.Search.MaxResults)

	wfCfg := workflow.DefaultConfig()
	if cfg.Research.ConfigPath != "" {
		loaded, err := workflow.LoadConfig(cfg.Research.ConfigPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		wfCfg = *loaded
	}
	if cfg.Anthropic.SummaryModel != "" {
		wfCfg.SummaryModel = cfg.Anthropic.SummaryModel
	}
	if cfg.Anthropic.ResearchModel != "" {
		wfCfg.ResearchModel = cfg.Anthropic.ResearchModel
	}
	if cfg.Research.MaxSummaries > 0 {
		wfCfg.MaxSummaries = cfg.Research.MaxSummaries
	}
	wfCfg.Retry = retryConfig()
	wf := workflow.NewDeepResearch(provider, bd, llm, wfCfg)

	return &appEnv{
		Store:      st,
		Resolver:   res,
		Searcher:   server.NewService(parser, discoverer, res),
		Manager:    research.NewManager(st, wf),
		Anthropic:  llm,
		BrightData: bd,
	}, nil
}

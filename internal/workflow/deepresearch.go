package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/resilience"
	"github.com/sells-group/profile-scout/internal/resolver"
	"github.com/sells-group/profile-scout/pkg/anthropic"
	"github.com/sells-group/profile-scout/pkg/brightdata"
)

// DeepResearch produces a background report for one person by combining
// their LinkedIn profile, a web search, per-result summaries, and a final
// synthesis pass. Individual steps are allowed to fail; the run only fails
// when no report can be written at the end.
type DeepResearch struct {
	provider resolver.FetchProvider
	search   brightdata.Client
	llm      anthropic.Client
	cfg      Config
}

// NewDeepResearch wires the workflow from its three upstream clients.
func NewDeepResearch(provider resolver.FetchProvider, search brightdata.Client, llm anthropic.Client, cfg Config) *DeepResearch {
	cfg.applyDefaults()
	return &DeepResearch{
		provider: provider,
		search:   search,
		llm:      llm,
		cfg:      cfg,
	}
}

type summary struct {
	url  string
	text string
}

// Run executes the four research steps for one subject. It returns the
// synthesized report and per-step metadata; metadata is non-nil even on
// error so callers can persist what happened.
func (d *DeepResearch) Run(ctx context.Context, identifier, subjectName string) (*model.ResearchReport, *model.JobMetadata, error) {
	meta := &model.JobMetadata{}
	log := zap.L().With(zap.String("identifier", identifier))

	// Step 1: LinkedIn profile data. Missing data degrades the report, it
	// does not abort the run.
	profile := d.fetchProfile(ctx, identifier, meta, log)

	// Step 2: web search for the subject.
	results := d.searchWeb(ctx, subjectName, meta, log)

	// Step 3: summarize the top results in parallel.
	summaries := d.summarize(ctx, subjectName, results, meta, log)

	// Step 4: synthesize. This is the only step whose failure fails the run.
	report, err := d.synthesize(ctx, subjectName, profile, summaries)
	if err != nil {
		return nil, meta, eris.Wrap(err, "workflow: synthesize report")
	}

	sources := make([]model.Source, 0, len(summaries))
	for _, s := range summaries {
		sources = append(sources, model.Source{URL: s.url, Summary: s.text})
	}

	log.Info("workflow: research complete",
		zap.Int("search_results", meta.SearchResults),
		zap.Int("web_summaries", meta.WebSummaries),
		zap.Bool("linkedin_data", meta.LinkedInDataAvailable),
		zap.Int("step_errors", len(meta.StepErrors)),
	)
	return &model.ResearchReport{Report: report, Sources: sources}, meta, nil
}

func (d *DeepResearch) fetchProfile(ctx context.Context, identifier string, meta *model.JobMetadata, log *zap.Logger) *model.Profile {
	profiles, err := d.provider.FetchBatch(ctx, []string{model.ProfileURL(identifier)})
	if err != nil {
		meta.StepErrors = append(meta.StepErrors, fmt.Sprintf("linkedin: %s", err))
		log.Warn("workflow: linkedin fetch failed", zap.Error(err))
		return nil
	}
	if len(profiles) == 0 {
		meta.StepErrors = append(meta.StepErrors, "linkedin: no profile data returned")
		return nil
	}
	meta.LinkedInDataAvailable = true
	return &profiles[0]
}

func (d *DeepResearch) searchWeb(ctx context.Context, subjectName string, meta *model.JobMetadata, log *zap.Logger) []brightdata.OrganicResult {
	query := fmt.Sprintf("%q professional background", subjectName)
	retry := d.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("brightdata", "search_google")
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*brightdata.SearchResponse, error) {
		return d.search.SearchGoogle(ctx, query, 0, "")
	})
	if err != nil {
		meta.StepErrors = append(meta.StepErrors, fmt.Sprintf("search: %s", err))
		log.Warn("workflow: web search failed", zap.Error(err))
		return nil
	}
	meta.SearchResults = len(resp.Organic)
	return resp.Organic
}

func (d *DeepResearch) summarize(ctx context.Context, subjectName string, results []brightdata.OrganicResult, meta *model.JobMetadata, log *zap.Logger) []summary {
	if len(results) > d.cfg.MaxSummaries {
		results = results[:d.cfg.MaxSummaries]
	}
	if len(results) == 0 {
		return nil
	}

	var (
		mu        sync.Mutex
		summaries = make([]summary, 0, len(results))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.SummaryConcurrency)

	for _, r := range results {
		g.Go(func() error {
			text, err := d.summarizeOne(gctx, subjectName, r)
			if err != nil {
				mu.Lock()
				meta.StepErrors = append(meta.StepErrors, fmt.Sprintf("summarize %s: %s", r.Link, err))
				mu.Unlock()
				log.Warn("workflow: summarize failed",
					zap.String("url", r.Link),
					zap.Error(err),
				)
				return nil
			}
			if text == "" {
				return nil
			}
			mu.Lock()
			summaries = append(summaries, summary{url: r.Link, text: text})
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait only reflects context cancellation.
	if err := g.Wait(); err != nil {
		mu.Lock()
		meta.StepErrors = append(meta.StepErrors, fmt.Sprintf("summarize: %s", err))
		mu.Unlock()
	}

	meta.WebSummaries = len(summaries)
	return summaries
}

func (d *DeepResearch) summarizeOne(ctx context.Context, subjectName string, r brightdata.OrganicResult) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n\n", subjectName)
	fmt.Fprintf(&b, "Search result:\nTitle: %s\nURL: %s\nSnippet: %s\n", r.Title, r.Link, r.Snippet)

	resp, err := d.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     d.cfg.SummaryModel,
		MaxTokens: int64(d.cfg.MaxSummaryTokens),
		System:    d.cfg.SummaryPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: b.String()},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (d *DeepResearch) synthesize(ctx context.Context, subjectName string, profile *model.Profile, summaries []summary) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a research report about %s.\n\n", subjectName)

	if profile != nil {
		b.WriteString("## LinkedIn profile\n")
		fmt.Fprintf(&b, "Name: %s\n", profile.Name)
		if profile.Headline != "" {
			fmt.Fprintf(&b, "Headline: %s\n", profile.Headline)
		}
		if profile.CurrentCompany != "" {
			fmt.Fprintf(&b, "Current company: %s\n", profile.CurrentCompany)
		}
		if profile.Location != "" {
			fmt.Fprintf(&b, "Location: %s\n", profile.Location)
		}
		if profile.About != "" {
			fmt.Fprintf(&b, "About: %s\n", profile.About)
		}
		if len(profile.Skills) > 0 {
			fmt.Fprintf(&b, "Skills: %s\n", strings.Join(profile.Skills, ", "))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No LinkedIn profile data was available.\n\n")
	}

	if len(summaries) > 0 {
		b.WriteString("## Web findings\n")
		for _, s := range summaries {
			fmt.Fprintf(&b, "- %s (%s)\n", s.text, s.url)
		}
		b.WriteString("\n")
	}

	if profile == nil && len(summaries) == 0 {
		return "", eris.New("no source material gathered")
	}

	resp, err := d.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     d.cfg.ResearchModel,
		MaxTokens: int64(d.cfg.MaxReportTokens),
		System:    d.cfg.SynthesisPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: b.String()},
		},
	})
	if err != nil {
		return "", err
	}

	report := strings.TrimSpace(resp.Text())
	if report == "" {
		return "", eris.New("model returned an empty report")
	}
	return report, nil
}

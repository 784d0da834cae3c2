package workflow

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/profile-scout/internal/resilience"
)

// Config tunes the deep research workflow. All fields have working defaults
// so a zero Config (no YAML file) still produces a usable workflow.
type Config struct {
	// SummaryModel handles per-page summarization; ResearchModel writes the
	// final report.
	SummaryModel  string `yaml:"summary_model"`
	ResearchModel string `yaml:"research_model"`

	// MaxSummaries caps how many search results are summarized in parallel.
	MaxSummaries int `yaml:"max_summaries"`
	// SummaryConcurrency bounds the parallel summarize fan-out.
	SummaryConcurrency int `yaml:"summary_concurrency"`

	MaxSummaryTokens int `yaml:"max_summary_tokens"`
	MaxReportTokens  int `yaml:"max_report_tokens"`

	// Prompts override the built-in prompt templates.
	SummaryPrompt   string `yaml:"summary_prompt"`
	SynthesisPrompt string `yaml:"synthesis_prompt"`

	// Retry governs transient Bright Data failures during the search step.
	// It is wired by the caller, not read from YAML.
	Retry resilience.RetryConfig `yaml:"-"`
}

const (
	defaultSummaryModel  = "claude-haiku-4-5"
	defaultResearchModel = "claude-sonnet-4-5"

	defaultSummaryPrompt = "You summarize web search results about a person. " +
		"Extract only facts relevant to the subject's professional background. " +
		"Reply with a short factual paragraph, no preamble."

	defaultSynthesisPrompt = "You are a professional researcher writing a " +
		"background report about a person. Use only the provided material. " +
		"Write a structured markdown report with sections for background, " +
		"current role, and notable work. Note gaps explicitly rather than " +
		"guessing."
)

// LoadConfig reads workflow config from a YAML file. The YAML has a
// top-level "research" key so it can share a file with other sections.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: read config %s", path)
	}

	var wrapper struct {
		Research Config `yaml:"research"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "workflow: parse config")
	}

	cfg := &wrapper.Research
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SummaryModel == "" {
		c.SummaryModel = defaultSummaryModel
	}
	if c.ResearchModel == "" {
		c.ResearchModel = defaultResearchModel
	}
	if c.MaxSummaries <= 0 {
		c.MaxSummaries = 5
	}
	if c.SummaryConcurrency <= 0 {
		c.SummaryConcurrency = 3
	}
	if c.MaxSummaryTokens <= 0 {
		c.MaxSummaryTokens = 512
	}
	if c.MaxReportTokens <= 0 {
		c.MaxReportTokens = 4096
	}
	if c.SummaryPrompt == "" {
		c.SummaryPrompt = defaultSummaryPrompt
	}
	if c.SynthesisPrompt == "" {
		c.SynthesisPrompt = defaultSynthesisPrompt
	}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

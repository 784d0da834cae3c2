package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/pkg/anthropic"
)

// Parser turns a natural-language people search into a structured query.
type Parser interface {
	Parse(ctx context.Context, query string) (*model.ParsedQuery, error)
}

const (
	defaultCount = 10
	maxCount     = 50

	parserSystemText = "You parse people-search queries into structured JSON. " +
		"Given a query like \"find me 5 software engineers in Toronto\", return a valid JSON object:\n" +
		"{\"count\": <int, 0 if unspecified>, \"role\": \"<job title or profession>\", " +
		"\"location\": \"<place or company, empty if none>\", " +
		"\"country_code\": \"<ISO 3166-1 alpha-2 of the location, empty if the location is a company or unknown>\", " +
		"\"keywords\": [\"<extra qualifiers>\"]}\n" +
		"Return only the JSON object, no prose."
)

// LLMParser implements Parser with an Anthropic model.
type LLMParser struct {
	llm   anthropic.Client
	model string
}

func NewLLMParser(llm anthropic.Client, modelName string) *LLMParser {
	return &LLMParser{llm: llm, model: modelName}
}

func (p *LLMParser) Parse(ctx context.Context, query string) (*model.ParsedQuery, error) {
	resp, err := p.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: 512,
		System:    parserSystemText,
		Messages: []anthropic.Message{
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: parse query")
	}

	var parsed model.ParsedQuery
	cleaned := cleanJSON(resp.Text())
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, eris.Wrapf(err, "search: model returned invalid JSON: %s", cleaned)
	}

	normalizeParsed(&parsed)
	if parsed.Role == "" && len(parsed.Keywords) == 0 {
		return nil, eris.Errorf("search: could not extract a role from %q", query)
	}

	parsed.GoogleQuery = buildGoogleQuery(&parsed)

	zap.L().Debug("search: parsed query",
		zap.String("query", query),
		zap.Int("count", parsed.Count),
		zap.String("role", parsed.Role),
		zap.String("location", parsed.Location),
		zap.String("country_code", parsed.CountryCode),
	)
	return &parsed, nil
}

// normalizeParsed applies count defaulting and clamping and validates the
// country code shape. A location that names a company rather than a place
// carries no country code.
func normalizeParsed(q *model.ParsedQuery) {
	if q.Count <= 0 {
		q.Count = defaultCount
	}
	if q.Count > maxCount {
		q.Count = maxCount
	}

	q.CountryCode = strings.ToLower(strings.TrimSpace(q.CountryCode))
	if len(q.CountryCode) != 2 {
		q.CountryCode = ""
	}
	q.Role = strings.TrimSpace(q.Role)
	q.Location = strings.TrimSpace(q.Location)
}

// buildGoogleQuery assembles the site-scoped Google query used for
// candidate discovery.
func buildGoogleQuery(q *model.ParsedQuery) string {
	parts := []string{"site:linkedin.com/in"}
	if q.Role != "" {
		parts = append(parts, fmt.Sprintf("%q", q.Role))
	}
	if q.Location != "" {
		parts = append(parts, fmt.Sprintf("%q", q.Location))
	}
	parts = append(parts, q.Keywords...)
	return strings.Join(parts, " ")
}

// cleanJSON strips markdown code fences and surrounding prose so the model
// output parses as a bare JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

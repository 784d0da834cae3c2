package search

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/resilience"
	"github.com/sells-group/profile-scout/pkg/brightdata"
)

const defaultMaxResults = 50

// Discoverer finds candidate LinkedIn profile URLs for a parsed query by
// paging through Google search results. Transient search failures are
// retried the same way profile scrapes are.
type Discoverer struct {
	search     brightdata.Client
	retry      resilience.RetryConfig
	maxPages   int
	maxResults int
}

// NewDiscoverer creates a Discoverer. maxResults caps how many profile URLs
// a single discovery can return regardless of the parsed count; 0 uses the
// default cap.
func NewDiscoverer(search brightdata.Client, retry resilience.RetryConfig, maxResults int) *Discoverer {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Discoverer{search: search, retry: retry, maxPages: 3, maxResults: maxResults}
}

// Discover returns up to q.Count profile URLs, in result order, with
// duplicates (same normalized identifier) removed. It stops early once the
// count is reached and gives up after a few result pages.
func (d *Discoverer) Discover(ctx context.Context, q *model.ParsedQuery) ([]string, error) {
	count := q.Count
	if count > d.maxResults {
		count = d.maxResults
	}

	seen := make(map[string]struct{})
	urls := make([]string, 0, count)

	for page := 0; page < d.maxPages && len(urls) < count; page++ {
		resp, err := d.searchPage(ctx, q, page)
		if err != nil {
			if page == 0 {
				return nil, eris.Wrap(err, "search: discover candidates")
			}
			// Later pages are best-effort; return what we have.
			zap.L().Warn("search: result page fetch failed",
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}
		if len(resp.Organic) == 0 {
			break
		}

		for _, r := range resp.Organic {
			id, err := model.NormalizeIdentifier(r.Link)
			if err != nil {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			urls = append(urls, model.ProfileURL(id))
			if len(urls) == count {
				break
			}
		}
	}

	zap.L().Info("search: discovery finished",
		zap.String("google_query", q.GoogleQuery),
		zap.Int("requested", count),
		zap.Int("found", len(urls)),
	)
	return urls, nil
}

func (d *Discoverer) searchPage(ctx context.Context, q *model.ParsedQuery, page int) (*brightdata.SearchResponse, error) {
	cfg := d.retry
	cfg.OnRetry = resilience.RetryLogger("brightdata", "search_google")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*brightdata.SearchResponse, error) {
		return d.search.SearchGoogle(ctx, q.GoogleQuery, page, q.CountryCode)
	})
}

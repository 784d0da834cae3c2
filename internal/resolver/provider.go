package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/resilience"
	"github.com/sells-group/profile-scout/pkg/brightdata"
)

// BrightDataProvider adapts the Bright Data dataset scrape into the
// FetchProvider contract, with retry on transient provider errors.
type BrightDataProvider struct {
	client brightdata.Client
	retry  resilience.RetryConfig
}

// NewBrightDataProvider creates the production fetch provider.
func NewBrightDataProvider(client brightdata.Client, retry resilience.RetryConfig) *BrightDataProvider {
	return &BrightDataProvider{client: client, retry: retry}
}

func (p *BrightDataProvider) FetchBatch(ctx context.Context, refs []string) ([]model.Profile, error) {
	cfg := p.retry
	cfg.OnRetry = resilience.RetryLogger("brightdata", "scrape_profiles")
	results, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]brightdata.ProfileResult, error) {
		return p.client.ScrapeProfiles(ctx, refs)
	})
	if err != nil {
		return nil, err
	}

	profiles := make([]model.Profile, 0, len(results))
	now := time.Now().UTC()
	for _, r := range results {
		id, err := model.NormalizeIdentifier(r.URL)
		if err != nil {
			// The provider occasionally echoes redirects or company pages.
			zap.L().Warn("provider: skipping unidentifiable result",
				zap.String("url", r.URL),
				zap.Error(err),
			)
			continue
		}
		profiles = append(profiles, model.Profile{
			Identifier:     id,
			URL:            model.ProfileURL(id),
			Name:           r.Name,
			Headline:       r.Position,
			Location:       joinLocation(r.City, r.CountryCode),
			CurrentCompany: r.CurrentCompany,
			About:          r.About,
			Skills:         r.Skills,
			FetchedAt:      now,
		})
	}
	return profiles, nil
}

func joinLocation(city, countryCode string) string {
	switch {
	case city == "":
		return countryCode
	case countryCode == "":
		return city
	default:
		return city + ", " + countryCode
	}
}

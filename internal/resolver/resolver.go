// Package resolver implements the cache-aside resolution pipeline: a list of
// raw profile references is normalized, checked against the cache in one
// multi-get, and the misses are fetched from the provider in a single batched
// call, with write-through of every newly fetched record.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/store"
)

// FetchProvider resolves raw profile references into full records. It may
// return fewer records than requested (partial success) or fail wholesale
// on a provider outage.
type FetchProvider interface {
	FetchBatch(ctx context.Context, refs []string) ([]model.Profile, error)
}

// Result is the outcome of one Resolve call.
type Result struct {
	Profiles []model.Profile `json:"profiles"`
	Cached   int             `json:"cached"`
	Fetched  int             `json:"fetched"`
	Dropped  int             `json:"dropped"` // duplicate or unnormalizable candidates
}

// Resolver turns candidate references into profiles via the cache store and
// the fetch provider. It holds no state of its own between calls.
type Resolver struct {
	store    store.Store
	provider FetchProvider
}

// New creates a Resolver.
func New(st store.Store, provider FetchProvider) *Resolver {
	return &Resolver{store: st, provider: provider}
}

// candidate pairs a normalized identifier with the first raw reference that
// produced it; the provider gets the raw form, the cache gets the identifier.
type candidate struct {
	identifier string
	raw        string
}

// Resolve runs the cache-aside pipeline. The provider is called at most once
// per invocation, only for identifiers absent from the cache. Provider and
// cache-read failures degrade the result instead of failing the call; only
// the returned counts shrink.
func (r *Resolver) Resolve(ctx context.Context, candidates []string) (*Result, error) {
	log := zap.L()
	result := &Result{}

	ordered, dropped := normalize(candidates)
	result.Dropped = dropped
	if len(ordered) == 0 {
		return result, nil
	}

	identifiers := make([]string, len(ordered))
	for i, c := range ordered {
		identifiers[i] = c.identifier
	}

	cached, err := r.store.GetProfiles(ctx, identifiers)
	if err != nil {
		// Treat an unreadable cache as all-miss; the fetch path still works.
		log.Warn("resolver: cache read failed, treating all candidates as misses", zap.Error(err))
		cached = map[string]model.Profile{}
	}

	var missRefs []string
	for _, c := range ordered {
		if p, ok := cached[c.identifier]; ok {
			result.Profiles = append(result.Profiles, p)
			result.Cached++
		} else {
			missRefs = append(missRefs, c.raw)
		}
	}

	if len(missRefs) == 0 {
		return result, nil
	}

	fetched, err := r.provider.FetchBatch(ctx, missRefs)
	if err != nil {
		// Graceful degradation: the hit set is still a useful answer.
		log.Error("resolver: batch fetch failed, returning cached subset",
			zap.Int("misses", len(missRefs)),
			zap.Error(err),
		)
		return result, nil
	}

	for _, p := range fetched {
		if err := r.store.PutProfile(ctx, p); err != nil {
			// A cold cache next time, but the caller still gets the profile.
			log.Warn("resolver: write-through failed",
				zap.String("identifier", p.Identifier),
				zap.Error(err),
			)
		}
		result.Profiles = append(result.Profiles, p)
		result.Fetched++
	}

	log.Info("resolver: resolved candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("cached", result.Cached),
		zap.Int("fetched", result.Fetched),
		zap.Int("dropped", result.Dropped),
	)
	return result, nil
}

// normalize maps raw candidates to unique identifiers, preserving first-seen
// order. Duplicates and unnormalizable references are dropped silently.
func normalize(raws []string) ([]candidate, int) {
	seen := make(map[string]struct{}, len(raws))
	var out []candidate
	dropped := 0

	for _, raw := range raws {
		id, err := model.NormalizeIdentifier(raw)
		if err != nil {
			dropped++
			continue
		}
		if _, dup := seen[id]; dup {
			dropped++
			continue
		}
		seen[id] = struct{}{}
		out = append(out, candidate{identifier: id, raw: raw})
	}
	return out, dropped
}

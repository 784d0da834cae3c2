package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/resilience"
	"github.com/sells-group/profile-scout/pkg/brightdata"
)

type fakeSearch struct {
	pages map[int]*brightdata.SearchResponse
	errs  map[int]error
	// failures[page] makes the first N calls for that page fail with failErr
	// before succeeding.
	failures map[int]int
	failErr  error
	calls    []int
	ccs      []string
}

func (f *fakeSearch) SearchGoogle(ctx context.Context, query string, page int, countryCode string) (*brightdata.SearchResponse, error) {
	f.calls = append(f.calls, page)
	f.ccs = append(f.ccs, countryCode)
	if f.failures[page] > 0 {
		f.failures[page]--
		return nil, f.failErr
	}
	if err := f.errs[page]; err != nil {
		return nil, err
	}
	if resp, ok := f.pages[page]; ok {
		return resp, nil
	}
	return &brightdata.SearchResponse{}, nil
}

func (f *fakeSearch) ScrapeProfiles(ctx context.Context, urls []string) ([]brightdata.ProfileResult, error) {
	return nil, nil
}

func newTestDiscoverer(fs *fakeSearch, maxResults int) *Discoverer {
	retry := resilience.RetryConfig{InitialBackoff: time.Millisecond, JitterFraction: -1}
	return NewDiscoverer(fs, retry, maxResults)
}

func profileResults(slugs ...string) *brightdata.SearchResponse {
	resp := &brightdata.SearchResponse{}
	for _, s := range slugs {
		resp.Organic = append(resp.Organic, brightdata.OrganicResult{
			Title: s,
			Link:  fmt.Sprintf("https://www.linkedin.com/in/%s", s),
		})
	}
	return resp
}

func TestDiscover_CapsAtCount(t *testing.T) {
	fs := &fakeSearch{pages: map[int]*brightdata.SearchResponse{
		0: profileResults("alice", "bob", "carol", "dave"),
	}}
	d := newTestDiscoverer(fs, 0)

	urls, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 2, GoogleQuery: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.linkedin.com/in/alice",
		"https://www.linkedin.com/in/bob",
	}, urls)
	assert.Equal(t, []int{0}, fs.calls, "stops once count is reached")
}

func TestDiscover_CapsAtMaxResults(t *testing.T) {
	fs := &fakeSearch{pages: map[int]*brightdata.SearchResponse{
		0: profileResults("alice", "bob", "carol", "dave"),
	}}
	d := newTestDiscoverer(fs, 2)

	urls, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 4, GoogleQuery: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.linkedin.com/in/alice",
		"https://www.linkedin.com/in/bob",
	}, urls, "configured cap overrides the parsed count")
}

func TestDiscover_PagesUntilCount(t *testing.T) {
	fs := &fakeSearch{pages: map[int]*brightdata.SearchResponse{
		0: profileResults("alice", "bob"),
		1: profileResults("carol"),
		2: profileResults("dave"),
	}}
	d := newTestDiscoverer(fs, 0)

	urls, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 4, GoogleQuery: "q"})
	require.NoError(t, err)
	assert.Len(t, urls, 4)
	assert.Equal(t, []int{0, 1, 2}, fs.calls)
}

func TestDiscover_SkipsNonProfileAndDuplicateLinks(t *testing.T) {
	resp := profileResults("alice")
	resp.Organic = append(resp.Organic,
		brightdata.OrganicResult{Link: "https://www.linkedin.com/company/acme"},
		brightdata.OrganicResult{Link: "https://example.com/alice"},
		brightdata.OrganicResult{Link: "https://ca.linkedin.com/in/ALICE?trk=x"},
		brightdata.OrganicResult{Link: "https://www.linkedin.com/in/bob"},
	)
	fs := &fakeSearch{pages: map[int]*brightdata.SearchResponse{0: resp}}
	d := newTestDiscoverer(fs, 0)

	urls, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 10, GoogleQuery: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.linkedin.com/in/alice",
		"https://www.linkedin.com/in/bob",
	}, urls)
}

func TestDiscover_PassesCountryCode(t *testing.T) {
	fs := &fakeSearch{pages: map[int]*brightdata.SearchResponse{0: profileResults("alice")}}
	d := newTestDiscoverer(fs, 0)

	_, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 1, GoogleQuery: "q", CountryCode: "ca"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ca"}, fs.ccs)
}

func TestDiscover_FirstPageErrorFails(t *testing.T) {
	fs := &fakeSearch{errs: map[int]error{0: eris.New("blocked")}}
	d := newTestDiscoverer(fs, 0)

	_, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 5, GoogleQuery: "q"})
	assert.Error(t, err)
	assert.Equal(t, []int{0}, fs.calls, "non-transient errors are not retried")
}

func TestDiscover_RetriesTransientSearchFailure(t *testing.T) {
	fs := &fakeSearch{
		pages:    map[int]*brightdata.SearchResponse{0: profileResults("alice")},
		failures: map[int]int{0: 1},
		failErr:  resilience.NewTransientError(eris.New("service unavailable"), 503),
	}
	d := newTestDiscoverer(fs, 0)

	urls, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 1, GoogleQuery: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.linkedin.com/in/alice"}, urls)
	assert.Equal(t, []int{0, 0}, fs.calls, "a transient 503 is retried, not surfaced")
}

func TestDiscover_LaterPageErrorReturnsPartial(t *testing.T) {
	fs := &fakeSearch{
		pages: map[int]*brightdata.SearchResponse{0: profileResults("alice", "bob")},
		errs:  map[int]error{1: eris.New("blocked")},
	}
	d := newTestDiscoverer(fs, 0)

	urls, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 5, GoogleQuery: "q"})
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestDiscover_EmptyPageStopsPaging(t *testing.T) {
	fs := &fakeSearch{pages: map[int]*brightdata.SearchResponse{
		0: profileResults("alice"),
	}}
	d := newTestDiscoverer(fs, 0)

	urls, err := d.Discover(context.Background(), &model.ParsedQuery{Count: 10, GoogleQuery: "q"})
	require.NoError(t, err)
	assert.Len(t, urls, 1)
	assert.Equal(t, []int{0, 1}, fs.calls, "an empty page ends discovery")
}

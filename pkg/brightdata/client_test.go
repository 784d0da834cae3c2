package brightdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-scout/internal/resilience"
)

func TestSearchGoogle(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/request", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Write([]byte(`{"organic":[
			{"title":"Alice Levi - AI Engineer","link":"https://il.linkedin.com/in/alice-levi","snippet":"Tel Aviv"},
			{"title":"Acme Corp","link":"https://acme.example.com/about"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL), WithZone("custom_zone"))
	resp, err := c.SearchGoogle(context.Background(), `site:linkedin.com/in "AI Engineer" "Israel"`, 0, "IL")
	require.NoError(t, err)

	require.Len(t, resp.Organic, 2)
	assert.Equal(t, "https://il.linkedin.com/in/alice-levi", resp.Organic[0].Link)

	assert.Equal(t, "custom_zone", gotBody["zone"])
	assert.Equal(t, "raw", gotBody["format"])
	assert.Contains(t, gotBody["url"], "brd_json=1")
	assert.Contains(t, gotBody["url"], "gl=IL")
	assert.Contains(t, gotBody["url"], "start=0")
}

func TestSearchGoogle_Pagination(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"organic":[]}`))
	}))
	defer srv.Close()

	c := NewClient("t", WithBaseURL(srv.URL))
	_, err := c.SearchGoogle(context.Background(), "q", 2, "")
	require.NoError(t, err)
	assert.Contains(t, gotBody["url"], "start=20")
	assert.NotContains(t, gotBody["url"], "gl=")
}

func TestScrapeProfiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/v3/scrape", r.URL.Path)
		assert.Equal(t, "gd_custom", r.URL.Query().Get("dataset_id"))

		var body struct {
			Input []map[string]string `json:"input"`
		}
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Len(t, body.Input, 2)

		w.Write([]byte(`[
			{"url":"https://www.linkedin.com/in/alice","name":"Alice Levi","position":"AI Engineer","city":"Tel Aviv"},
			{"url":"https://www.linkedin.com/in/bob","name":"Bob Smith"}
		]`))
	}))
	defer srv.Close()

	c := NewClient("t", WithBaseURL(srv.URL), WithProfileDataset("gd_custom"))
	results, err := c.ScrapeProfiles(context.Background(), []string{
		"https://www.linkedin.com/in/alice",
		"https://www.linkedin.com/in/bob",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Alice Levi", results[0].Name)
	assert.Equal(t, "AI Engineer", results[0].Position)
}

func TestScrapeProfiles_EmptyInput(t *testing.T) {
	c := NewClient("t")
	results, err := c.ScrapeProfiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestPost_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{name: "rate_limited", status: http.StatusTooManyRequests, wantTransient: true},
		{name: "server_error", status: http.StatusBadGateway, wantTransient: true},
		{name: "unauthorized", status: http.StatusUnauthorized, wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			c := NewClient("t", WithBaseURL(srv.URL))
			_, err := c.SearchGoogle(context.Background(), "q", 0, "")
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
		})
	}
}

func TestGoogleSearchURL(t *testing.T) {
	u := googleSearchURL(`site:linkedin.com/in "PM"`, 1, "us")
	assert.Contains(t, u, "start=10")
	assert.Contains(t, u, "gl=US")
	assert.Contains(t, u, "q=site%3Alinkedin.com%2Fin")
}

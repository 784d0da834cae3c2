package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: "https://www.linkedin.com/in/alice", want: "alice"},
		{name: "query_params_stripped", raw: "https://www.linkedin.com/in/alice?originalSubdomain=il&trk=x", want: "alice"},
		{name: "fragment_stripped", raw: "https://www.linkedin.com/in/alice#about", want: "alice"},
		{name: "trailing_slash", raw: "https://www.linkedin.com/in/alice/", want: "alice"},
		{name: "bare_host", raw: "https://linkedin.com/in/alice", want: "alice"},
		{name: "country_subdomain", raw: "https://il.linkedin.com/in/alice", want: "alice"},
		{name: "case_folded", raw: "https://www.linkedin.com/in/Alice-Smith", want: "alice-smith"},
		{name: "extra_path_segments", raw: "https://www.linkedin.com/in/alice/details/experience/", want: "alice"},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace_only", raw: "   ", wantErr: true},
		{name: "not_linkedin", raw: "https://example.com/in/alice", wantErr: true},
		{name: "company_page", raw: "https://www.linkedin.com/company/acme", wantErr: true},
		{name: "in_without_slug", raw: "https://www.linkedin.com/in/", wantErr: true},
		{name: "relative_path", raw: "/in/alice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeIdentifier(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdentifier_Stable(t *testing.T) {
	// Aliases of the same profile must share one cache key.
	aliases := []string{
		"https://www.linkedin.com/in/bob-jones",
		"https://linkedin.com/in/bob-jones?utm_source=share",
		"https://uk.linkedin.com/in/Bob-Jones/",
	}
	for _, raw := range aliases {
		id, err := NormalizeIdentifier(raw)
		require.NoError(t, err)
		assert.Equal(t, "bob-jones", id)
	}
}

func TestProfileURL(t *testing.T) {
	assert.Equal(t, "https://www.linkedin.com/in/alice", ProfileURL("alice"))

	// Round trip: normalizing the reconstructed URL yields the same identifier.
	id, err := NormalizeIdentifier(ProfileURL("alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
}

func TestIsProfileReference(t *testing.T) {
	assert.True(t, IsProfileReference("https://www.linkedin.com/in/alice"))
	assert.False(t, IsProfileReference("https://www.linkedin.com/feed/"))
	assert.False(t, IsProfileReference("not a url"))
}

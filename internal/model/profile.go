package model

import "time"

// Profile holds the enriched data for one LinkedIn profile, keyed by its
// normalized identifier. Profiles are immutable once cached; a re-fetch
// overwrites the whole record rather than merging.
type Profile struct {
	Identifier     string    `json:"identifier"`
	URL            string    `json:"url"`
	Name           string    `json:"name"`
	Headline       string    `json:"headline,omitempty"`
	Location       string    `json:"location,omitempty"`
	CurrentCompany string    `json:"current_company,omitempty"`
	About          string    `json:"about,omitempty"`
	Skills         []string  `json:"skills,omitempty"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// ParsedQuery is the structured form of a natural-language search query.
type ParsedQuery struct {
	Count       int      `json:"count"`
	Role        string   `json:"role"`
	Location    string   `json:"location,omitempty"`
	CountryCode string   `json:"country_code,omitempty"` // empty when location is a company, not a place
	Keywords    []string `json:"keywords,omitempty"`
	GoogleQuery string   `json:"google_query"`
}

package model

import "time"

// PublicStats carries the scalar counters of the public projection.
// nil means hidden by a visibility flag or never fetched.
type PublicStats struct {
	Repos     *int `json:"repos"`
	Stars     *int `json:"stars"`
	Followers *int `json:"followers"`
	Following *int `json:"following"`
}

// PublicView is the visibility-filtered projection of a snapshot served to
// anonymous consumers. It never carries the credential or its reference.
type PublicView struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Location    *string `json:"location,omitempty"`
	Company     *string `json:"company,omitempty"`
	BlogURL     *string `json:"blog_url,omitempty"`

	Show  VisibilityFlags `json:"show"`
	Stats PublicStats     `json:"stats"`

	Languages  []LanguageUsage `json:"languages,omitempty"`
	TopRepos   []TopRepo       `json:"top_repos,omitempty"`
	ReposByOrg OrgRollup       `json:"repos_by_org,omitempty"`

	Contributions *Contributions `json:"contributions,omitempty"`

	Theme    Theme      `json:"theme"`
	LastSync *time.Time `json:"last_sync"`
}

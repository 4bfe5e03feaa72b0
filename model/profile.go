package model

import "strings"

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// VisibilityFlags control which snapshot sections appear in the PublicView.
// A flag turned off hides its section regardless of whether the data was fetched.
type VisibilityFlags struct {
	Avatar        bool `json:"avatar"`
	Bio           bool `json:"bio"`
	Location      bool `json:"location"`
	Repos         bool `json:"repos"`
	Stars         bool `json:"stars"`
	Followers     bool `json:"followers"`
	Languages     bool `json:"languages"`
	Contributions bool `json:"contributions"`
}

func DefaultVisibilityFlags() VisibilityFlags {
	return VisibilityFlags{
		Avatar:        true,
		Bio:           true,
		Location:      true,
		Repos:         true,
		Stars:         true,
		Followers:     true,
		Languages:     true,
		Contributions: true,
	}
}

// Profile is an operator-configured GitHub identity to track.
// The refresh pipeline never mutates it.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`

	// CredentialRef is an opaque reference resolved by the credential source
	// at call time. The decrypted token never lives on the profile.
	CredentialRef string `json:"-"`

	// ExcludedOrgs hides org logins or "org/repo" full names from the public
	// view at read time. Contribution stats still count everything.
	ExcludedOrgs []string `json:"excludedOrgs,omitempty"`

	Show            VisibilityFlags `json:"show"`
	MaxReposDisplay int             `json:"maxReposDisplay"`
	Theme           Theme           `json:"theme"`
}

// ExcludedSet returns the lowercase exclusion set for display filtering
func (p Profile) ExcludedSet() map[string]struct{} {
	excluded := make(map[string]struct{}, len(p.ExcludedOrgs))

	for _, org := range p.ExcludedOrgs {
		trimmed := strings.ToLower(strings.TrimSpace(org))
		if trimmed != "" {
			excluded[trimmed] = struct{}{}
		}
	}

	return excluded
}

// ConfigSummary is the minimal profile info exposed on the list endpoint
// used by the page-builder integration. No sensitive data.
type ConfigSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// TopReposCount is the fixed number of repositories kept in a snapshot
const TopReposCount = 6

// LanguageUsage is one (language, byte-count weight) pair. It marshals as a
// two-element array to match the widget wire format: ["Go", 10742]
type LanguageUsage struct {
	Name  string
	Bytes int
}

func (u LanguageUsage) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{u.Name, u.Bytes})
}

func (u *LanguageUsage) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}

	if err := json.Unmarshal(pair[0], &u.Name); err != nil {
		return err
	}

	return json.Unmarshal(pair[1], &u.Bytes)
}

type TopRepo struct {
	Name        string  `json:"name"`
	FullName    string  `json:"full_name"`
	Owner       string  `json:"owner"`
	URL         string  `json:"url"`
	Description *string `json:"description"`
	Language    *string `json:"language"`
	Stars       int     `json:"stars"`
	Forks       int     `json:"forks"`
}

type OrgStats struct {
	Org   string `json:"org"`
	Count int    `json:"count"`
	Stars int    `json:"stars"`
}

// OrgRollup preserves first-encounter insertion order. It marshals as a JSON
// object keyed by org login; consumers may re-sort.
type OrgRollup []OrgStats

func (r OrgRollup) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, org := range r {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(org.Org)
		if err != nil {
			return nil, err
		}

		value, err := json.Marshal(struct {
			Count int `json:"count"`
			Stars int `json:"stars"`
		}{Count: org.Count, Stars: org.Stars})
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *OrgRollup) UnmarshalJSON(data []byte) error {
	// decode tokens in document order so the insertion order survives a reload
	dec := json.NewDecoder(bytes.NewReader(data))

	if _, err := dec.Token(); err != nil { // opening brace
		return err
	}

	rollup := OrgRollup{}

	for dec.More() {
		keyToken, err := dec.Token()
		if err != nil {
			return err
		}

		var stats struct {
			Count int `json:"count"`
			Stars int `json:"stars"`
		}
		if err := dec.Decode(&stats); err != nil {
			return err
		}

		rollup = append(rollup, OrgStats{
			Org:   keyToken.(string),
			Count: stats.Count,
			Stars: stats.Stars,
		})
	}

	*r = rollup
	return nil
}

// ContributionDay is one calendar day with GitHub's own quartile
// classification mapped to the 0-4 intensity scale
type ContributionDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Level int    `json:"level"`
}

type Contributions struct {
	TotalContributions      int               `json:"total_contributions"`
	TotalCommits            int               `json:"total_commits"`
	TotalPRs                int               `json:"total_prs"`
	TotalIssues             int               `json:"total_issues"`
	TotalReviews            int               `json:"total_reviews"`
	RestrictedContributions int               `json:"restricted_contributions"`
	Days                    []ContributionDay `json:"days"`
}

// Snapshot is the immutable result of one aggregation cycle for a profile.
// Nullable fields are pointers: nil means the API did not return the value
// (or its sub-fetch failed), distinct from an empty string or zero.
type Snapshot struct {
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Bio         *string `json:"bio"`
	Location    *string `json:"location"`
	Company     *string `json:"company"`
	BlogURL     *string `json:"blog_url"`

	Repos       *int `json:"repos"`
	Stars       *int `json:"stars"`
	Followers   *int `json:"followers"`
	Following   *int `json:"following"`
	PublicGists *int `json:"public_gists"`

	Languages  []LanguageUsage `json:"languages"`
	TopRepos   []TopRepo       `json:"top_repos"`
	ReposByOrg OrgRollup       `json:"repos_by_org"`

	Contributions *Contributions `json:"contributions"`

	FetchedAt   time.Time `json:"fetched_at"`
	FetchErrors []string  `json:"fetch_errors"`
}

// HasRepoData reports whether the repository sub-fetch populated this snapshot
func (s Snapshot) HasRepoData() bool {
	return s.Repos != nil
}

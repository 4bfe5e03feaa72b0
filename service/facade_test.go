package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/simstech/github-stats-service/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() model.Snapshot {
	return model.Snapshot{
		Username:    "octocat",
		DisplayName: strPtr("The Octocat"),
		AvatarURL:   strPtr("https://avatars.example/octocat"),
		Bio:         strPtr("I build things"),
		Location:    strPtr("San Francisco"),
		Repos:       intPtr(8),
		Stars:       intPtr(120),
		Followers:   intPtr(999),
		Following:   intPtr(12),
		Languages: []model.LanguageUsage{
			{Name: "Go", Bytes: 9000},
			{Name: "Ruby", Bytes: 100},
		},
		TopRepos: []model.TopRepo{
			{Name: "hello-world", FullName: "octocat/hello-world", Owner: "octocat", Stars: 100},
			{Name: "tooling", FullName: "enterprise-corp/tooling", Owner: "enterprise-corp", Stars: 50},
			{Name: "dotfiles", FullName: "octocat/dotfiles", Owner: "octocat", Stars: 1},
		},
		ReposByOrg: model.OrgRollup{
			{Org: "enterprise-corp", Count: 3, Stars: 60},
			{Org: "oss-club", Count: 1, Stars: 5},
		},
		Contributions: &model.Contributions{
			TotalContributions: 500,
			Days:                []model.ContributionDay{{Date: "2026-08-01", Count: 3, Level: 2}},
		},
		FetchedAt:   time.Now(),
		FetchErrors: []string{},
	}
}

// TestFacadeRead will test the full projection with all flags on
func TestFacadeRead(t *testing.T) {
	store, err := NewSnapshotStore("")
	require.NoError(t, err)
	require.NoError(t, store.Put("p1", testSnapshot()))

	profile := model.Profile{
		ID:              "p1",
		Username:        "octocat",
		Show:            model.DefaultVisibilityFlags(),
		MaxReposDisplay: 6,
		Theme:           model.ThemeDark,
	}
	facade := NewFacade(store, NewProfileRegistry([]model.Profile{profile}))

	view, err := facade.Read("p1")
	require.NoError(t, err)

	assert.Equal(t, "p1", view.ID)
	assert.Equal(t, "The Octocat", view.DisplayName, "display name falls back to the snapshot")
	assert.Equal(t, "https://avatars.example/octocat", *view.AvatarURL)
	assert.Equal(t, 8, *view.Stats.Repos)
	assert.Equal(t, 120, *view.Stats.Stars)
	assert.Equal(t, 999, *view.Stats.Followers)
	assert.Len(t, view.Languages, 2)
	assert.Len(t, view.TopRepos, 3)
	assert.Len(t, view.ReposByOrg, 2)
	assert.Equal(t, 500, view.Contributions.TotalContributions)
	assert.Equal(t, model.ThemeDark, view.Theme)
}

// TestFacadeVisibilityFlags checks a flag turned off removes the section from
// the view regardless of the fetched data
func TestFacadeVisibilityFlags(t *testing.T) {
	tests := []struct {
		name   string
		adjust func(*model.VisibilityFlags)
		verify func(*testing.T, model.PublicView)
	}{
		{
			name:   "languages hidden",
			adjust: func(flags *model.VisibilityFlags) { flags.Languages = false },
			verify: func(t *testing.T, view model.PublicView) {
				assert.Nil(t, view.Languages)
			},
		},
		{
			name:   "avatar hidden",
			adjust: func(flags *model.VisibilityFlags) { flags.Avatar = false },
			verify: func(t *testing.T, view model.PublicView) {
				assert.Nil(t, view.AvatarURL)
			},
		},
		{
			name:   "repos hidden",
			adjust: func(flags *model.VisibilityFlags) { flags.Repos = false },
			verify: func(t *testing.T, view model.PublicView) {
				assert.Nil(t, view.Stats.Repos)
				assert.Nil(t, view.TopRepos)
				assert.Nil(t, view.ReposByOrg)
			},
		},
		{
			name:   "contributions hidden",
			adjust: func(flags *model.VisibilityFlags) { flags.Contributions = false },
			verify: func(t *testing.T, view model.PublicView) {
				assert.Nil(t, view.Contributions)
			},
		},
		{
			name:   "followers hidden",
			adjust: func(flags *model.VisibilityFlags) { flags.Followers = false },
			verify: func(t *testing.T, view model.PublicView) {
				assert.Nil(t, view.Stats.Followers)
				assert.Nil(t, view.Stats.Following)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewSnapshotStore("")
			require.NoError(t, err)
			require.NoError(t, store.Put("p1", testSnapshot()))

			flags := model.DefaultVisibilityFlags()
			tt.adjust(&flags)

			profile := model.Profile{ID: "p1", Username: "octocat", Show: flags, MaxReposDisplay: 6, Theme: model.ThemeAuto}
			facade := NewFacade(store, NewProfileRegistry([]model.Profile{profile}))

			view, err := facade.Read("p1")
			require.NoError(t, err)
			tt.verify(t, view)
		})
	}
}

// TestFacadeHiddenFieldsAbsentFromJSON checks omitted sections disappear from
// the wire format, not just turn null
func TestFacadeHiddenFieldsAbsentFromJSON(t *testing.T) {
	store, err := NewSnapshotStore("")
	require.NoError(t, err)
	require.NoError(t, store.Put("p1", testSnapshot()))

	flags := model.DefaultVisibilityFlags()
	flags.Languages = false
	flags.Contributions = false

	profile := model.Profile{ID: "p1", Username: "octocat", Show: flags, MaxReposDisplay: 6, Theme: model.ThemeAuto}
	facade := NewFacade(store, NewProfileRegistry([]model.Profile{profile}))

	view, err := facade.Read("p1")
	require.NoError(t, err)

	encoded, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	assert.NotContains(t, decoded, "languages")
	assert.NotContains(t, decoded, "contributions")
	assert.Contains(t, decoded, "top_repos")
}

// TestFacadeExcludedOrgs checks the display-time exclusion filter on both the
// top repositories and the org rollup
func TestFacadeExcludedOrgs(t *testing.T) {
	store, err := NewSnapshotStore("")
	require.NoError(t, err)
	require.NoError(t, store.Put("p1", testSnapshot()))

	profile := model.Profile{
		ID:              "p1",
		Username:        "octocat",
		ExcludedOrgs:    []string{"Enterprise-Corp"},
		Show:            model.DefaultVisibilityFlags(),
		MaxReposDisplay: 6,
		Theme:           model.ThemeAuto,
	}
	facade := NewFacade(store, NewProfileRegistry([]model.Profile{profile}))

	view, err := facade.Read("p1")
	require.NoError(t, err)

	require.Len(t, view.TopRepos, 2)
	for _, repo := range view.TopRepos {
		assert.NotEqual(t, "enterprise-corp", repo.Owner)
	}

	require.Len(t, view.ReposByOrg, 1)
	assert.Equal(t, "oss-club", view.ReposByOrg[0].Org)
}

// TestFacadeMaxReposDisplay checks the display cap applies after exclusion
func TestFacadeMaxReposDisplay(t *testing.T) {
	store, err := NewSnapshotStore("")
	require.NoError(t, err)
	require.NoError(t, store.Put("p1", testSnapshot()))

	profile := model.Profile{
		ID:              "p1",
		Username:        "octocat",
		Show:            model.DefaultVisibilityFlags(),
		MaxReposDisplay: 1,
		Theme:           model.ThemeAuto,
	}
	facade := NewFacade(store, NewProfileRegistry([]model.Profile{profile}))

	view, err := facade.Read("p1")
	require.NoError(t, err)

	require.Len(t, view.TopRepos, 1)
	assert.Equal(t, "hello-world", view.TopRepos[0].Name)
}

// TestFacadeNotFound checks both the unknown-profile and the
// no-snapshot-yet cases
func TestFacadeNotFound(t *testing.T) {
	store, err := NewSnapshotStore("")
	require.NoError(t, err)

	profile := model.Profile{ID: "p1", Username: "octocat", Show: model.DefaultVisibilityFlags(), MaxReposDisplay: 6}
	facade := NewFacade(store, NewProfileRegistry([]model.Profile{profile}))

	_, err = facade.Read("ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = facade.Read("p1")
	assert.ErrorIs(t, err, model.ErrNotFound, "configured profile without a snapshot yet")
}

// TestFacadeListConfigs checks the picker list keeps configured order and
// falls back to the username when no display name is set
func TestFacadeListConfigs(t *testing.T) {
	store, err := NewSnapshotStore("")
	require.NoError(t, err)

	profiles := []model.Profile{
		{ID: "p1", Username: "octocat", DisplayName: "The Octocat"},
		{ID: "p2", Username: "torvalds"},
	}
	facade := NewFacade(store, NewProfileRegistry(profiles))

	summaries := facade.ListConfigs()
	require.Len(t, summaries, 2)
	assert.Equal(t, "The Octocat", summaries[0].DisplayName)
	assert.Equal(t, "torvalds", summaries[1].DisplayName)
}

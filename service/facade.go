package service

import (
	"strings"

	"github.com/simstech/github-stats-service/model"
)

// Facade serves the public projection of stored snapshots. It never touches
// the network and its only error is model.ErrNotFound.
type Facade struct {
	store    *SnapshotStore
	profiles *ProfileRegistry
}

func NewFacade(store *SnapshotStore, profiles *ProfileRegistry) *Facade {
	return &Facade{store: store, profiles: profiles}
}

// Read projects the latest snapshot through the profile's visibility flags.
// A section whose flag is off is omitted no matter what was fetched; fetch
// failures surface only as absent fields, never as errors.
func (f *Facade) Read(profileID string) (model.PublicView, error) {
	profile, found := f.profiles.Get(profileID)
	if !found {
		return model.PublicView{}, model.ErrNotFound
	}

	snapshot, err := f.store.Get(profileID)
	if err != nil {
		return model.PublicView{}, err
	}

	fetchedAt := snapshot.FetchedAt

	view := model.PublicView{
		ID:          profile.ID,
		Username:    profile.Username,
		DisplayName: displayName(profile, snapshot),
		Show:        profile.Show,
		Theme:       profile.Theme,
		LastSync:    &fetchedAt,
	}

	if profile.Show.Avatar {
		view.AvatarURL = snapshot.AvatarURL
	}

	if profile.Show.Bio {
		view.Bio = snapshot.Bio
	}

	if profile.Show.Location {
		view.Location = snapshot.Location
	}

	view.Company = snapshot.Company
	view.BlogURL = snapshot.BlogURL

	if profile.Show.Repos {
		view.Stats.Repos = snapshot.Repos
	}

	if profile.Show.Stars {
		view.Stats.Stars = snapshot.Stars
	}

	if profile.Show.Followers {
		view.Stats.Followers = snapshot.Followers
		view.Stats.Following = snapshot.Following
	}

	if profile.Show.Languages {
		view.Languages = snapshot.Languages
	}

	if profile.Show.Repos {
		excluded := profile.ExcludedSet()
		view.TopRepos = filterTopRepos(snapshot.TopRepos, excluded, profile.MaxReposDisplay)
		view.ReposByOrg = filterOrgRollup(snapshot.ReposByOrg, excluded)
	}

	if profile.Show.Contributions {
		view.Contributions = snapshot.Contributions
	}

	return view, nil
}

// ListConfigs returns the minimal profile list for the page-builder picker,
// in configured order
func (f *Facade) ListConfigs() []model.ConfigSummary {
	profiles := f.profiles.All()
	summaries := make([]model.ConfigSummary, 0, len(profiles))

	for _, profile := range profiles {
		name := profile.DisplayName
		if name == "" {
			name = profile.Username
		}

		summaries = append(summaries, model.ConfigSummary{
			ID:          profile.ID,
			Username:    profile.Username,
			DisplayName: name,
		})
	}

	return summaries
}

func displayName(profile model.Profile, snapshot model.Snapshot) string {
	if profile.DisplayName != "" {
		return profile.DisplayName
	}

	if snapshot.DisplayName != nil && *snapshot.DisplayName != "" {
		return *snapshot.DisplayName
	}

	return profile.Username
}

// filterTopRepos drops repositories from excluded orgs (by owner login or
// "org/repo" full name) and applies the display cap. Exclusion happens at
// read time so operators can change it without a re-sync.
func filterTopRepos(topRepos []model.TopRepo, excluded map[string]struct{}, maxDisplay int) []model.TopRepo {
	if topRepos == nil {
		return nil
	}

	filtered := make([]model.TopRepo, 0, len(topRepos))
	for _, repo := range topRepos {
		if _, hidden := excluded[strings.ToLower(repo.Owner)]; hidden {
			continue
		}

		if _, hidden := excluded[strings.ToLower(repo.FullName)]; hidden {
			continue
		}

		filtered = append(filtered, repo)

		if len(filtered) == maxDisplay {
			break
		}
	}

	return filtered
}

func filterOrgRollup(rollup model.OrgRollup, excluded map[string]struct{}) model.OrgRollup {
	if rollup == nil {
		return nil
	}

	filtered := make(model.OrgRollup, 0, len(rollup))
	for _, org := range rollup {
		if _, hidden := excluded[strings.ToLower(org.Org)]; hidden {
			continue
		}

		filtered = append(filtered, org)
	}

	return filtered
}

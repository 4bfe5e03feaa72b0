package service

import "github.com/simstech/github-stats-service/model"

// ProfileRegistry holds the operator-configured profiles in their configured
// order. Profiles are immutable at runtime, only operator edits (a config
// reload) replace the registry.
type ProfileRegistry struct {
	ordered []model.Profile
	byID    map[string]model.Profile
}

func NewProfileRegistry(profiles []model.Profile) *ProfileRegistry {
	byID := make(map[string]model.Profile, len(profiles))
	for _, profile := range profiles {
		byID[profile.ID] = profile
	}

	return &ProfileRegistry{ordered: profiles, byID: byID}
}

func (r *ProfileRegistry) Get(profileID string) (model.Profile, bool) {
	profile, found := r.byID[profileID]
	return profile, found
}

func (r *ProfileRegistry) All() []model.Profile {
	return r.ordered
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CIDgravity/snakelet"
	"github.com/simstech/github-stats-service/model"
)

// config structure
type Config struct {
	API       APIConfig       `mapstructure:"API"`
	Tasks     TasksConfig     `mapstructure:"TASKS"`
	Logs      LogsConfig      `mapstructure:"LOGS"`
	Github    GithubConfig    `mapstructure:"GITHUB"`
	Scheduler SchedulerConfig `mapstructure:"SCHEDULER"`
	Store     StoreConfig     `mapstructure:"STORE"`
	Profiles  []ProfileConfig `mapstructure:"PROFILES"`
}

type APIConfig struct {
	ListenPort string `mapstructure:"ListenPort"`
}

type TasksConfig struct {
	MaxParallelTasksAllowed int `mapstructure:"MaxParallelTasksAllowed"`
}

type LogsConfig struct {
	Level            string `mapstructure:"Level"` // error | warn | info | debug - case insensitive
	OutputLogsAsJSON bool   `mapstructure:"OutputLogsAsJson"`
}

type GithubConfig struct {
	CallTimeoutSeconds int `mapstructure:"CallTimeoutSeconds"`

	// empty means the public github.com endpoints
	APIBaseURL string `mapstructure:"ApiBaseUrl"`
	GraphQLURL string `mapstructure:"GraphQlUrl"`
}

type SchedulerConfig struct {
	Enabled      bool   `mapstructure:"Enabled"`
	CronSchedule string `mapstructure:"CronSchedule"`
	RunOnStartup bool   `mapstructure:"RunOnStartup"`
}

type StoreConfig struct {
	// empty keeps snapshots in memory only
	SnapshotFilePath string `mapstructure:"SnapshotFilePath"`
}

// ProfileConfig is one [[PROFILES]] entry. Show* flags are pointers so an
// omitted flag keeps its default (true) instead of collapsing to false.
type ProfileConfig struct {
	ID            string   `mapstructure:"Id"`
	Username      string   `mapstructure:"Username"`
	DisplayName   string   `mapstructure:"DisplayName"`
	CredentialEnv string   `mapstructure:"CredentialEnv"`
	ExcludedOrgs  []string `mapstructure:"ExcludedOrgs"`

	ShowAvatar        *bool `mapstructure:"ShowAvatar"`
	ShowBio           *bool `mapstructure:"ShowBio"`
	ShowLocation      *bool `mapstructure:"ShowLocation"`
	ShowRepos         *bool `mapstructure:"ShowRepos"`
	ShowStars         *bool `mapstructure:"ShowStars"`
	ShowFollowers     *bool `mapstructure:"ShowFollowers"`
	ShowLanguages     *bool `mapstructure:"ShowLanguages"`
	ShowContributions *bool `mapstructure:"ShowContributions"`

	MaxReposDisplay int    `mapstructure:"MaxReposDisplay"`
	Theme           string `mapstructure:"Theme"`
}

// boolOrDefault returns the pointed-to value, or def when the flag was omitted
func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// ToProfile converts a config entry to the domain profile with defaults applied
func (p ProfileConfig) ToProfile() model.Profile {
	profile := model.Profile{
		ID:            p.ID,
		Username:      p.Username,
		DisplayName:   p.DisplayName,
		CredentialRef: p.CredentialEnv,
		ExcludedOrgs:  p.ExcludedOrgs,
		Show: model.VisibilityFlags{
			Avatar:        boolOrDefault(p.ShowAvatar, true),
			Bio:           boolOrDefault(p.ShowBio, true),
			Location:      boolOrDefault(p.ShowLocation, true),
			Repos:         boolOrDefault(p.ShowRepos, true),
			Stars:         boolOrDefault(p.ShowStars, true),
			Followers:     boolOrDefault(p.ShowFollowers, true),
			Languages:     boolOrDefault(p.ShowLanguages, true),
			Contributions: boolOrDefault(p.ShowContributions, true),
		},
		MaxReposDisplay: p.MaxReposDisplay,
		Theme:           model.Theme(p.Theme),
	}

	if profile.MaxReposDisplay <= 0 {
		profile.MaxReposDisplay = model.TopReposCount
	}

	switch profile.Theme {
	case model.ThemeLight, model.ThemeDark, model.ThemeAuto:
	default:
		profile.Theme = model.ThemeAuto
	}

	return profile
}

// ProfileList converts and validates all configured profiles
func (c Config) ProfileList() ([]model.Profile, error) {
	profiles := make([]model.Profile, 0, len(c.Profiles))
	seen := make(map[string]struct{}, len(c.Profiles))

	for _, entry := range c.Profiles {
		if entry.ID == "" || entry.Username == "" {
			return nil, fmt.Errorf("profile entries require both Id and Username (got Id=%q Username=%q)", entry.ID, entry.Username)
		}

		if _, duplicate := seen[entry.ID]; duplicate {
			return nil, fmt.Errorf("duplicate profile Id %q", entry.ID)
		}

		seen[entry.ID] = struct{}{}
		profiles = append(profiles, entry.ToProfile())
	}

	return profiles, nil
}

// Load
func Load() (*Config, error) {
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))

	if err != nil {
		return nil, err
	}

	// check config file exists
	// missing file is fine: run on defaults (profiles can only come from a file though)
	configFilePath := dir + "/config/config.toml"

	if _, err := os.Stat(dir + "/config/config.toml"); errors.Is(err, os.ErrNotExist) {
		if _, err := os.Stat("config/config.toml"); errors.Is(err, os.ErrNotExist) {
			return GetDefault(), nil
		} else {
			configFilePath = "config/config.toml"
		}
	}

	// load default and config file content
	cfg := GetDefault()
	_, err = snakelet.InitAndLoad(cfg, configFilePath)

	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// GetDefault
func GetDefault() *Config {
	return &Config{
		API: APIConfig{
			ListenPort: "5000",
		},
		Tasks: TasksConfig{
			MaxParallelTasksAllowed: 8,
		},
		Logs: LogsConfig{
			Level:            "debug",
			OutputLogsAsJSON: false,
		},
		Github: GithubConfig{
			CallTimeoutSeconds: 15,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			CronSchedule: "@hourly",
			RunOnStartup: false,
		},
		Store: StoreConfig{
			SnapshotFilePath: "",
		},
	}
}

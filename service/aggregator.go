package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/simstech/github-stats-service/config"
	"github.com/simstech/github-stats-service/model"

	"github.com/remeh/sizedwaitgroup"
	log "github.com/sirupsen/logrus"
)

// Aggregator orchestrates the independent sub-fetches for one profile and
// merges whatever succeeded into a single immutable snapshot
type Aggregator interface {
	Aggregate(ctx context.Context, profile model.Profile) (*model.Snapshot, error)
}

type aggregator struct {
	client      GithubClient
	budgets     *BudgetTracker
	credentials CredentialSource
	maxParallel int
	now         func() time.Time
}

func NewAggregator(cfg config.Config, client GithubClient, budgets *BudgetTracker, credentials CredentialSource) Aggregator {
	maxParallel := cfg.Tasks.MaxParallelTasksAllowed
	if maxParallel < 1 {
		maxParallel = 1
	}

	return &aggregator{
		client:      client,
		budgets:     budgets,
		credentials: credentials,
		maxParallel: maxParallel,
		now:         time.Now,
	}
}

// repoAggregation carries everything derived from the repository sub-fetch
type repoAggregation struct {
	repoCount  int
	totalStars int
	languages  []model.LanguageUsage
	topRepos   []model.TopRepo
	reposByOrg model.OrgRollup
}

// Aggregate runs the profile, repository and contribution sub-fetches
// concurrently. Each branch fails on its own: a failed branch nulls only its
// fields and lands in FetchErrors. Only when every attempted branch fails does
// the aggregation as a whole fail and no snapshot is produced.
func (a *aggregator) Aggregate(ctx context.Context, profile model.Profile) (*model.Snapshot, error) {
	credential, credErr := a.credentials.Token(profile.ID)

	if credErr != nil {
		// misconfigured credential reference: run the REST fetches on the
		// anonymous budget, the calendar branch records the failure
		log.WithFields(log.Fields{
			"profileId": profile.ID,
			"username":  profile.Username,
		}).WithError(credErr).Warning("unable to resolve profile credential, falling back to anonymous access")

		credential = ""
	}

	log.WithFields(log.Fields{
		"profileId":     profile.ID,
		"username":      profile.Username,
		"authenticated": credential != "",
	}).Info("aggregating github data for profile")

	var (
		user    *github.User
		userErr error

		repoData repoAggregation
		repoErr  error

		contributions *model.Contributions
		contribErr    error
	)

	swg := sizedwaitgroup.New(a.maxParallel)

	swg.Add()
	go func() {
		defer swg.Done()
		user, userErr = a.client.FetchUser(ctx, credential, profile.Username)
	}()

	swg.Add()
	go func() {
		defer swg.Done()
		repoData, repoErr = a.fetchRepoData(ctx, credential, profile)
	}()

	// the calendar query requires authentication: without a credential the
	// branch is skipped entirely, contributions stay null and it is no error
	contributionsAttempted := credential != "" || credErr != nil

	if credential != "" {
		swg.Add()
		go func() {
			defer swg.Done()
			contributions, contribErr = a.client.FetchContributions(ctx, credential, profile.Username)
		}()
	} else if credErr != nil {
		contribErr = &model.FatalError{SubFetch: model.SubFetchContributions, Err: credErr}
	}

	swg.Wait()

	snapshot := &model.Snapshot{
		Username:    profile.Username,
		FetchedAt:   a.now(),
		FetchErrors: []string{},
	}

	if userErr != nil {
		log.WithError(userErr).WithField("profileId", profile.ID).Error("profile sub-fetch failed")
		snapshot.FetchErrors = append(snapshot.FetchErrors, model.SubFetchProfile)
	} else {
		snapshot.DisplayName = user.Name
		snapshot.AvatarURL = user.AvatarURL
		snapshot.Bio = user.Bio
		snapshot.Location = user.Location
		snapshot.Company = user.Company
		snapshot.BlogURL = user.Blog
		snapshot.Followers = user.Followers
		snapshot.Following = user.Following
		snapshot.PublicGists = user.PublicGists
	}

	if repoErr != nil {
		log.WithError(repoErr).WithField("profileId", profile.ID).Error("repository sub-fetch failed")
		snapshot.FetchErrors = append(snapshot.FetchErrors, model.SubFetchRepos)
	} else {
		snapshot.Repos = &repoData.repoCount
		snapshot.Stars = &repoData.totalStars
		snapshot.Languages = repoData.languages
		snapshot.TopRepos = repoData.topRepos
		snapshot.ReposByOrg = repoData.reposByOrg
	}

	if contributionsAttempted && contribErr != nil {
		log.WithError(contribErr).WithField("profileId", profile.ID).Error("contributions sub-fetch failed")
		snapshot.FetchErrors = append(snapshot.FetchErrors, model.SubFetchContributions)
	} else if contribErr == nil {
		snapshot.Contributions = contributions
	}

	attempted := 2
	if contributionsAttempted {
		attempted = 3
	}

	if len(snapshot.FetchErrors) == attempted {
		// nothing new was learned: the previously stored snapshot must survive
		return nil, pickAggregateError(userErr, repoErr, contribErr)
	}

	return snapshot, nil
}

// fetchRepoData loads the repository list, fans out the per-repository
// language calls and derives the snapshot sections that depend on them
func (a *aggregator) fetchRepoData(ctx context.Context, credential string, profile model.Profile) (repoAggregation, error) {
	repos, err := a.client.FetchRepos(ctx, credential, profile.Username)
	if err != nil {
		return repoAggregation{}, err
	}

	languages, err := a.fetchOwnedLanguages(ctx, credential, profile, repos)
	if err != nil {
		return repoAggregation{}, err
	}

	aggregated := repoAggregation{
		repoCount:  len(repos),
		languages:  sortLanguages(languages),
		topRepos:   deriveTopRepos(repos),
		reposByOrg: deriveOrgRollup(repos, profile.Username),
	}

	for _, repo := range repos {
		aggregated.totalStars += repo.GetStargazersCount()
	}

	return aggregated, nil
}

// fetchOwnedLanguages sums byte-count weights across all owned repositories.
// The whole fan-out budget is claimed upfront: either every repository's
// languages can be loaded or none are attempted (avoids half-loaded weights
// eating the budget for nothing).
func (a *aggregator) fetchOwnedLanguages(ctx context.Context, credential string, profile model.Profile, repos []*github.Repository) (map[string]int, error) {
	// repos without a primary language have nothing to list, skip the call
	var targets []*github.Repository
	for _, repo := range repos {
		if !strings.EqualFold(repo.GetOwner().GetLogin(), profile.Username) {
			continue
		}

		if repo.Language != nil {
			targets = append(targets, repo)
		}
	}

	if len(targets) == 0 {
		return map[string]int{}, nil
	}

	if err := a.budgets.ReserveN(credential, len(targets)); err != nil {
		log.WithField("repositoriesToLoad", len(targets)).Warning("not enough requests in the budget to load languages for all repositories")
		return nil, err
	}

	log.WithFields(log.Fields{
		"profileId":            profile.ID,
		"numberOfRepositories": len(targets),
	}).Debug("will load languages for all owned repositories with a primary language")

	type languagesResult struct {
		languages map[string]int
		err       error
	}

	swg := sizedwaitgroup.New(a.maxParallel)
	results := make(chan languagesResult, len(targets))

	for _, repo := range targets {
		swg.Add()

		go func(owner, name string) {
			defer swg.Done()

			languages, err := a.client.FetchLanguages(ctx, credential, owner, name)
			results <- languagesResult{languages: languages, err: err}
		}(repo.GetOwner().GetLogin(), repo.GetName())
	}

	swg.Wait()
	close(results)

	summed := make(map[string]int)
	for result := range results {
		if result.err != nil {
			// a failed language call only drops that repository's weights,
			// the repository sub-fetch itself still counts as a success
			log.WithError(result.err).Debug("skipping languages for one repository")
			continue
		}

		for language, bytes := range result.languages {
			summed[language] += bytes
		}
	}

	return summed, nil
}

// sortLanguages orders by byte weight descending, ties broken by name
// ascending for determinism
func sortLanguages(summed map[string]int) []model.LanguageUsage {
	usages := make([]model.LanguageUsage, 0, len(summed))
	for name, bytes := range summed {
		usages = append(usages, model.LanguageUsage{Name: name, Bytes: bytes})
	}

	sort.Slice(usages, func(i, j int) bool {
		if usages[i].Bytes != usages[j].Bytes {
			return usages[i].Bytes > usages[j].Bytes
		}
		return usages[i].Name < usages[j].Name
	})

	return usages
}

// deriveTopRepos ranks by star count descending (name ascending on ties) and
// keeps the fixed snapshot count
func deriveTopRepos(repos []*github.Repository) []model.TopRepo {
	ranked := make([]*github.Repository, len(repos))
	copy(ranked, repos)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].GetStargazersCount() != ranked[j].GetStargazersCount() {
			return ranked[i].GetStargazersCount() > ranked[j].GetStargazersCount()
		}
		return ranked[i].GetName() < ranked[j].GetName()
	})

	if len(ranked) > model.TopReposCount {
		ranked = ranked[:model.TopReposCount]
	}

	topRepos := make([]model.TopRepo, 0, len(ranked))
	for _, repo := range ranked {
		topRepos = append(topRepos, model.TopRepo{
			Name:        repo.GetName(),
			FullName:    repo.GetFullName(),
			Owner:       repo.GetOwner().GetLogin(),
			URL:         repo.GetHTMLURL(),
			Description: repo.Description,
			Language:    repo.Language,
			Stars:       repo.GetStargazersCount(),
			Forks:       repo.GetForksCount(),
		})
	}

	return topRepos
}

// deriveOrgRollup groups repositories whose owner differs from the profile's
// own username, in first-encounter order
func deriveOrgRollup(repos []*github.Repository, username string) model.OrgRollup {
	rollup := model.OrgRollup{}
	index := make(map[string]int)

	for _, repo := range repos {
		owner := repo.GetOwner().GetLogin()
		if owner == "" || strings.EqualFold(owner, username) {
			continue
		}

		i, found := index[owner]
		if !found {
			i = len(rollup)
			index[owner] = i
			rollup = append(rollup, model.OrgStats{Org: owner})
		}

		rollup[i].Count++
		rollup[i].Stars += repo.GetStargazersCount()
	}

	return rollup
}

// pickAggregateError chooses the error surfaced on total failure, preferring
// the rate-limit one since it carries the reset time
func pickAggregateError(errs ...error) error {
	var firstErr error

	for _, err := range errs {
		if err == nil {
			continue
		}

		var rateLimitErr *model.RateLimitError
		if errors.As(err, &rateLimitErr) {
			return err
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

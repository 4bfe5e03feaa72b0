package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/simstech/github-stats-service/config"
	"github.com/simstech/github-stats-service/model"
	log "github.com/sirupsen/logrus"

	"golang.org/x/time/rate"
)

// pages of 100 repos; safety cap matching the upstream widget behaviour
const maxRepoPages = 10

// GithubClient is the rate-limited client over both github API surfaces.
// Every method fails fast with a model.RateLimitError when the credential's
// budget is exhausted, without issuing a network call.
type GithubClient interface {
	FetchUser(ctx context.Context, credential, username string) (*github.User, error)
	FetchRepos(ctx context.Context, credential, username string) ([]*github.Repository, error)
	FetchLanguages(ctx context.Context, credential, owner, repo string) (map[string]int, error)
	FetchContributions(ctx context.Context, credential, username string) (*model.Contributions, error)
}

// RESTClientFactory builds a go-github client for one credential.
// Tests swap this for a factory returning a mocked http client.
type RESTClientFactory func(credential string) *github.Client

// DefaultRESTClientFactory builds real api.github.com clients, honouring the
// base URL override from config
func DefaultRESTClientFactory(cfg config.Config) RESTClientFactory {
	return func(credential string) *github.Client {
		client := github.NewClient(nil)

		if credential != "" {
			client = client.WithAuthToken(credential)
		}

		if cfg.Github.APIBaseURL != "" {
			base := cfg.Github.APIBaseURL
			if !strings.HasSuffix(base, "/") {
				base += "/"
			}

			if parsed, err := url.Parse(base); err == nil {
				client.BaseURL = parsed
			}
		}

		return client
	}
}

type githubClient struct {
	budgets     *BudgetTracker
	pacer       *rate.Limiter
	callTimeout time.Duration
	graphqlURL  string
	restClient  RESTClientFactory
}

// NewGithubClient builds the rate-limited client
// the local pacer smooths bursts so one refresh cannot fire the whole fan-out at once
func NewGithubClient(cfg config.Config, budgets *BudgetTracker, restClient RESTClientFactory) GithubClient {
	graphqlURL := cfg.Github.GraphQLURL
	if graphqlURL == "" {
		graphqlURL = defaultGraphQLURL
	}

	return &githubClient{
		budgets:     budgets,
		pacer:       rate.NewLimiter(rate.Limit(10), 10),
		callTimeout: time.Duration(cfg.Github.CallTimeoutSeconds) * time.Second,
		graphqlURL:  graphqlURL,
		restClient:  restClient,
	}
}

// prepare runs the pacer and the budget reservation, returning the per-call
// timeout context. The timeout is the de facto cancellation boundary.
func (c *githubClient) prepare(ctx context.Context, credential, subFetch string) (context.Context, context.CancelFunc, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)

	if err := c.pacer.Wait(callCtx); err != nil {
		cancel()
		return nil, nil, &model.TransientError{SubFetch: subFetch, Err: err}
	}

	if err := c.budgets.Reserve(credential); err != nil {
		cancel()
		return nil, nil, err
	}

	return callCtx, cancel, nil
}

func (c *githubClient) FetchUser(ctx context.Context, credential, username string) (*github.User, error) {
	callCtx, cancel, err := c.prepare(ctx, credential, model.SubFetchProfile)
	if err != nil {
		return nil, err
	}
	defer cancel()

	user, resp, err := c.restClient(credential).Users.Get(callCtx, username)

	if resp != nil {
		c.budgets.Observe(credential, resp.Rate)
	}

	if err != nil {
		return nil, c.classifyError(model.SubFetchProfile, credential, err)
	}

	return user, nil
}

// FetchRepos pages through the repository list. With a credential it uses the
// authenticated listing so organization repos are included; anonymous access
// only sees the user's own public repos.
func (c *githubClient) FetchRepos(ctx context.Context, credential, username string) ([]*github.Repository, error) {
	var allRepos []*github.Repository
	page := 1

	for {
		callCtx, cancel, err := c.prepare(ctx, credential, model.SubFetchRepos)
		if err != nil {
			return nil, err
		}

		var repos []*github.Repository
		var resp *github.Response

		if credential != "" {
			repos, resp, err = c.restClient(credential).Repositories.ListByAuthenticatedUser(callCtx, &github.RepositoryListByAuthenticatedUserOptions{
				Affiliation: "owner,collaborator,organization_member",
				Sort:        "updated",
				ListOptions: github.ListOptions{Page: page, PerPage: 100},
			})
		} else {
			repos, resp, err = c.restClient(credential).Repositories.ListByUser(callCtx, username, &github.RepositoryListByUserOptions{
				Sort:        "updated",
				ListOptions: github.ListOptions{Page: page, PerPage: 100},
			})
		}

		cancel()

		if resp != nil {
			c.budgets.Observe(credential, resp.Rate)
		}

		if err != nil {
			return nil, c.classifyError(model.SubFetchRepos, credential, err)
		}

		allRepos = append(allRepos, repos...)

		if resp == nil || resp.NextPage == 0 || page >= maxRepoPages {
			break
		}
		page = resp.NextPage
	}

	log.WithFields(log.Fields{
		"username":             username,
		"numberOfRepositories": len(allRepos),
	}).Debug("fetched repository list from github")

	return allRepos, nil
}

// FetchLanguages gets the byte counts per language for a single repository.
// note: the budget is not reserved here, the aggregator claims the whole
// fan-out upfront. Take care if you call this from anywhere else.
func (c *githubClient) FetchLanguages(ctx context.Context, credential, owner, repo string) (map[string]int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := c.pacer.Wait(callCtx); err != nil {
		return nil, &model.TransientError{SubFetch: model.SubFetchRepos, Err: err}
	}

	languages, resp, err := c.restClient(credential).Repositories.ListLanguages(callCtx, owner, repo)

	if resp != nil {
		c.budgets.Observe(credential, resp.Rate)
	}

	if err != nil {
		return nil, c.classifyError(model.SubFetchRepos, credential, err)
	}

	return languages, nil
}

// classifyError maps upstream failures onto the error taxonomy and keeps the
// local budget in sync when github itself reported a limit hit
func (c *githubClient) classifyError(subFetch, credential string, err error) error {
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		resetAt := rateLimitErr.Rate.Reset.Time
		c.budgets.MarkExhausted(credential, resetAt)

		log.Warning("the Github rate limit has been reached. Use a token or wait until the limit reset")
		return &model.RateLimitError{ResetAt: resetAt}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		resetAt := time.Now()
		if abuseErr.RetryAfter != nil {
			resetAt = resetAt.Add(*abuseErr.RetryAfter)
		}
		c.budgets.MarkExhausted(credential, resetAt)

		return &model.RateLimitError{ResetAt: resetAt}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &model.TransientError{SubFetch: subFetch, Err: err}
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		if errResp.Response.StatusCode >= 500 {
			return &model.TransientError{SubFetch: subFetch, Err: err}
		}

		if errResp.Response.StatusCode >= 400 {
			return &model.FatalError{SubFetch: subFetch, Err: err}
		}
	}

	// anything else is a network-level failure worth retrying next cycle
	return &model.TransientError{SubFetch: subFetch, Err: err}
}

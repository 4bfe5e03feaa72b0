package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	githubMock "github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/simstech/github-stats-service/config"
	"github.com/simstech/github-stats-service/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientUnderTest(mockedHTTPClient *http.Client, budgets *BudgetTracker, graphqlURL string) GithubClient {
	conf := config.GetDefault()
	conf.Github.GraphQLURL = graphqlURL

	return NewGithubClient(*conf, budgets, func(string) *github.Client {
		return github.NewClient(mockedHTTPClient)
	})
}

// TestClientFailsFastOnExhaustedBudget checks no network call is made once
// the budget is down to the safety margin
func TestClientFailsFastOnExhaustedBudget(t *testing.T) {
	upstreamCalls := 0

	mockedHTTPClient := githubMock.NewMockedHTTPClient(
		githubMock.WithRequestMatchHandler(
			githubMock.GetUsersByUsername,
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				upstreamCalls++
				_, _ = w.Write(githubMock.MustMarshal(github.User{Login: github.String("octocat")}))
			}),
		),
	)

	budgets := NewBudgetTracker()
	base := time.Now()
	budgets.now = func() time.Time { return base }
	budgets.ObserveValues("", 1, 60, base.Add(time.Hour))

	client := newClientUnderTest(mockedHTTPClient, budgets, "")

	_, err := client.FetchUser(context.Background(), "", "octocat")
	require.Error(t, err)

	var rateLimitErr *model.RateLimitError
	assert.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, 0, upstreamCalls, "exhausted budget must fail before the network")
}

// TestClientErrorClassification will test the error taxonomy mapping for the
// REST surface
func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		expectError func(*testing.T, error)
	}{
		{
			name:       "5xx is transient",
			statusCode: http.StatusServiceUnavailable,
			expectError: func(t *testing.T, err error) {
				var transientErr *model.TransientError
				assert.ErrorAs(t, err, &transientErr)
				assert.Equal(t, model.SubFetchProfile, transientErr.SubFetch)
			},
		},
		{
			name:       "404 is fatal",
			statusCode: http.StatusNotFound,
			expectError: func(t *testing.T, err error) {
				var fatalErr *model.FatalError
				assert.ErrorAs(t, err, &fatalErr)
			},
		},
		{
			name:       "401 is fatal",
			statusCode: http.StatusUnauthorized,
			expectError: func(t *testing.T, err error) {
				var fatalErr *model.FatalError
				assert.ErrorAs(t, err, &fatalErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockedHTTPClient := githubMock.NewMockedHTTPClient(
				githubMock.WithRequestMatchHandler(
					githubMock.GetUsersByUsername,
					http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
						githubMock.WriteError(w, tt.statusCode, "nope")
					}),
				),
			)

			client := newClientUnderTest(mockedHTTPClient, NewBudgetTracker(), "")

			_, err := client.FetchUser(context.Background(), "", "octocat")
			require.Error(t, err)
			tt.expectError(t, err)
		})
	}
}

// TestClientRepoPagination checks the Link-header paging loop
func TestClientRepoPagination(t *testing.T) {
	firstPage := make([]github.Repository, 0, 2)
	for _, name := range []string{"one", "two"} {
		firstPage = append(firstPage, github.Repository{
			Name:  github.String(name),
			Owner: &github.User{Login: github.String("octocat")},
		})
	}

	mockedHTTPClient := githubMock.NewMockedHTTPClient(
		githubMock.WithRequestMatchPages(
			githubMock.GetUsersReposByUsername,
			firstPage,
			[]github.Repository{
				{Name: github.String("three"), Owner: &github.User{Login: github.String("octocat")}},
			},
		),
	)

	client := newClientUnderTest(mockedHTTPClient, NewBudgetTracker(), "")

	repos, err := client.FetchRepos(context.Background(), "", "octocat")
	require.NoError(t, err)
	assert.Len(t, repos, 3)
}

// TestGraphQLRateLimitResponse checks a 403 with an exhausted remaining
// header maps to the rate-limit error and zeroes the local bucket
func TestGraphQLRateLimitResponse(t *testing.T) {
	resetAt := time.Now().Add(20 * time.Minute).Truncate(time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	budgets := NewBudgetTracker()
	client := newClientUnderTest(githubMock.NewMockedHTTPClient(), budgets, server.URL)

	_, err := client.FetchContributions(context.Background(), "test-token", "octocat")
	require.Error(t, err)

	var rateLimitErr *model.RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, resetAt.Unix(), rateLimitErr.ResetAt.Unix())

	// and the next call fails locally without reaching the network
	err = budgets.Reserve("test-token")
	assert.Error(t, err)
}

// TestGraphQLErrorsArrayIsFatal checks a 200 carrying a graphql errors array
// (e.g. unknown username) does not count as success
func TestGraphQLErrorsArrayIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": null, "errors": [{"message": "Could not resolve to a User"}]}`))
	}))
	defer server.Close()

	client := newClientUnderTest(githubMock.NewMockedHTTPClient(), NewBudgetTracker(), server.URL)

	_, err := client.FetchContributions(context.Background(), "test-token", "nosuchuser")
	require.Error(t, err)

	var fatalErr *model.FatalError
	assert.ErrorAs(t, err, &fatalErr)
}

// TestGraphQLRequiresCredential checks the calendar query is never attempted
// anonymously
func TestGraphQLRequiresCredential(t *testing.T) {
	client := newClientUnderTest(githubMock.NewMockedHTTPClient(), NewBudgetTracker(), "http://127.0.0.1:1")

	_, err := client.FetchContributions(context.Background(), "", "octocat")
	require.Error(t, err)

	var fatalErr *model.FatalError
	assert.ErrorAs(t, err, &fatalErr)
}

// TestContributionLevelOrdinal maps github's quartile enum onto the 0-4 scale
func TestContributionLevelOrdinal(t *testing.T) {
	assert.Equal(t, 0, contributionLevelOrdinal("NONE"))
	assert.Equal(t, 1, contributionLevelOrdinal("FIRST_QUARTILE"))
	assert.Equal(t, 2, contributionLevelOrdinal("SECOND_QUARTILE"))
	assert.Equal(t, 3, contributionLevelOrdinal("THIRD_QUARTILE"))
	assert.Equal(t, 4, contributionLevelOrdinal("FOURTH_QUARTILE"))
	assert.Equal(t, 0, contributionLevelOrdinal("SOMETHING_NEW"))
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/simstech/github-stats-service/model"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const defaultGraphQLURL = "https://api.github.com/graphql"

// trailing 12 months of day-level data
const maxCalendarDays = 365

// contributionsQuery asks for the calendar plus the per-type totals. The
// restrictedContributionsCount is the only aggregate github exposes for
// private-repo activity, never day-level detail.
const contributionsQuery = `
query($username: String!) {
    user(login: $username) {
        contributionsCollection {
            totalCommitContributions
            totalPullRequestContributions
            totalIssueContributions
            totalPullRequestReviewContributions
            restrictedContributionsCount
            contributionCalendar {
                totalContributions
                weeks {
                    contributionDays {
                        date
                        contributionCount
                        contributionLevel
                    }
                }
            }
        }
    }
}`

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type contributionDayPayload struct {
	Date              string `json:"date"`
	ContributionCount int    `json:"contributionCount"`
	ContributionLevel string `json:"contributionLevel"`
}

type contributionsPayload struct {
	Data struct {
		User *struct {
			ContributionsCollection struct {
				TotalCommitContributions            int `json:"totalCommitContributions"`
				TotalPullRequestContributions       int `json:"totalPullRequestContributions"`
				TotalIssueContributions             int `json:"totalIssueContributions"`
				TotalPullRequestReviewContributions int `json:"totalPullRequestReviewContributions"`
				RestrictedContributionsCount        int `json:"restrictedContributionsCount"`
				ContributionCalendar                struct {
					TotalContributions int `json:"totalContributions"`
					Weeks              []struct {
						ContributionDays []contributionDayPayload `json:"contributionDays"`
					} `json:"weeks"`
				} `json:"contributionCalendar"`
			} `json:"contributionsCollection"`
		} `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchContributions runs the calendar query against the graph API surface.
// The query only works authenticated, the aggregator skips it for profiles
// without a credential.
func (c *githubClient) FetchContributions(ctx context.Context, credential, username string) (*model.Contributions, error) {
	if credential == "" {
		return nil, &model.FatalError{
			SubFetch: model.SubFetchContributions,
			Err:      fmt.Errorf("the contribution calendar query requires a credential"),
		}
	}

	callCtx, cancel, err := c.prepare(ctx, credential, model.SubFetchContributions)
	if err != nil {
		return nil, err
	}
	defer cancel()

	body, err := json.Marshal(graphqlRequest{
		Query:     contributionsQuery,
		Variables: map[string]interface{}{"username": username},
	})
	if err != nil {
		return nil, &model.FatalError{SubFetch: model.SubFetchContributions, Err: err}
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, &model.FatalError{SubFetch: model.SubFetchContributions, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := oauth2.NewClient(callCtx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential}))

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &model.TransientError{SubFetch: model.SubFetchContributions, Err: err}
	}
	defer resp.Body.Close()

	c.observeGraphQLHeaders(credential, resp)

	if classified := c.classifyGraphQLStatus(credential, resp); classified != nil {
		return nil, classified
	}

	var payload contributionsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &model.TransientError{SubFetch: model.SubFetchContributions, Err: err}
	}

	if len(payload.Errors) > 0 {
		return nil, &model.FatalError{
			SubFetch: model.SubFetchContributions,
			Err:      fmt.Errorf("graphql error: %s", payload.Errors[0].Message),
		}
	}

	if payload.Data.User == nil {
		return nil, &model.FatalError{
			SubFetch: model.SubFetchContributions,
			Err:      fmt.Errorf("github user %q not found", username),
		}
	}

	collection := payload.Data.User.ContributionsCollection
	calendar := collection.ContributionCalendar

	days := make([]model.ContributionDay, 0, maxCalendarDays)
	for _, week := range calendar.Weeks {
		for _, day := range week.ContributionDays {
			days = append(days, model.ContributionDay{
				Date:  day.Date,
				Count: day.ContributionCount,
				Level: contributionLevelOrdinal(day.ContributionLevel),
			})
		}
	}

	if len(days) > maxCalendarDays {
		days = days[len(days)-maxCalendarDays:]
	}

	log.WithFields(log.Fields{
		"username":           username,
		"totalContributions": calendar.TotalContributions,
		"calendarDays":       len(days),
	}).Debug("fetched contribution calendar from github")

	return &model.Contributions{
		TotalContributions:      calendar.TotalContributions,
		TotalCommits:            collection.TotalCommitContributions,
		TotalPRs:                collection.TotalPullRequestContributions,
		TotalIssues:             collection.TotalIssueContributions,
		TotalReviews:            collection.TotalPullRequestReviewContributions,
		RestrictedContributions: collection.RestrictedContributionsCount,
		Days:                    days,
	}, nil
}

func (c *githubClient) observeGraphQLHeaders(credential string, resp *http.Response) {
	remaining, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}

	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))

	var resetAt time.Time
	if resetUnix, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		resetAt = time.Unix(resetUnix, 0)
	}

	c.budgets.ObserveValues(credential, remaining, limit, resetAt)
}

func (c *githubClient) classifyGraphQLStatus(credential string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			var resetAt time.Time
			if resetUnix, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
				resetAt = time.Unix(resetUnix, 0)
			}

			c.budgets.MarkExhausted(credential, resetAt)
			return &model.RateLimitError{ResetAt: resetAt}
		}

		return &model.FatalError{
			SubFetch: model.SubFetchContributions,
			Err:      fmt.Errorf("graphql request rejected with status %d", resp.StatusCode),
		}

	case resp.StatusCode >= 500:
		return &model.TransientError{
			SubFetch: model.SubFetchContributions,
			Err:      fmt.Errorf("graphql request failed with status %d", resp.StatusCode),
		}

	default:
		return &model.FatalError{
			SubFetch: model.SubFetchContributions,
			Err:      fmt.Errorf("graphql request rejected with status %d", resp.StatusCode),
		}
	}
}

// contributionLevelOrdinal maps github's own quartile classification onto the
// 0-4 intensity scale. The thresholds are never recomputed locally.
func contributionLevelOrdinal(level string) int {
	switch level {
	case "FIRST_QUARTILE":
		return 1
	case "SECOND_QUARTILE":
		return 2
	case "THIRD_QUARTILE":
		return 3
	case "FOURTH_QUARTILE":
		return 4
	default: // NONE or anything unrecognized
		return 0
	}
}

package model

import (
	"errors"
	"fmt"
	"time"
)

// sub-fetch identifiers recorded in Snapshot.FetchErrors
const (
	SubFetchProfile       = "profile"
	SubFetchRepos         = "repos"
	SubFetchContributions = "contributions"
)

var (
	// ErrNotFound is returned when a profile is unknown or has no snapshot yet
	ErrNotFound = errors.New("NOT_FOUND")

	// ErrRefreshInProgress is returned when a refresh is already running for the profile
	ErrRefreshInProgress = errors.New("REFRESH_IN_PROGRESS")
)

// RateLimitError means the hourly budget for a credential is exhausted
// the caller must not retry before ResetAt
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("RATE_LIMIT_REACHED: budget exhausted until %s", e.ResetAt.Format(time.RFC3339))
}

// TransientError wraps a network timeout or 5xx upstream response
// the same sub-fetch is safe to retry on the next cycle
type TransientError struct {
	SubFetch string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error on sub-fetch %q: %v", e.SubFetch, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError wraps a non-rate-limit 4xx upstream response (bad credential,
// unknown username, malformed request). Retrying is pointless until the
// profile configuration changes.
type FatalError struct {
	SubFetch string
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error on sub-fetch %q: %v", e.SubFetch, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the stable code string used in logs and API responses
func ErrorCode(err error) string {
	var rateLimitErr *RateLimitError
	var transientErr *TransientError
	var fatalErr *FatalError

	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrRefreshInProgress):
		return "REFRESH_IN_PROGRESS"
	case errors.As(err, &rateLimitErr):
		return "RATE_LIMIT_REACHED"
	case errors.As(err, &transientErr):
		return "FETCH_ERROR"
	case errors.As(err, &fatalErr):
		return "FETCH_FATAL"
	default:
		return "FETCH_ERROR"
	}
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewAPIError(errReason error) APIError {
	switch ErrorCode(errReason) {
	case "NOT_FOUND":
		return APIError{
			Code:    "NOT_FOUND",
			Message: "profile not found or no data synced yet",
		}

	case "REFRESH_IN_PROGRESS":
		return APIError{
			Code:    "REFRESH_IN_PROGRESS",
			Message: "a refresh is already running for this profile. try again once it settles",
		}

	case "RATE_LIMIT_REACHED":
		return APIError{
			Code:    "RATE_LIMIT_REACHED",
			Message: "github rate limit reached. consider using a token to increase the limit or wait few minutes and try again",
		}

	case "FETCH_FATAL":
		return APIError{
			Code:    "FETCH_FATAL",
			Message: "github rejected the request. check the configured username and credential",
		}

	default:
		return APIError{
			Code:    "FETCH_ERROR",
			Message: "internal server error. contact our support with the reason code for assistance",
		}
	}
}

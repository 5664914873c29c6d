package model

import "github.com/m-mizutani/goerr/v2"

// Error categories. Adapters and usecases wrap one of these so that
// callers can classify failures with errors.Is.
var (
	// ErrAuth means credentials were rejected. Never retried.
	ErrAuth = goerr.New("authentication failed")

	// ErrRateLimit means the remote API throttled the request and the
	// bounded retries were exhausted.
	ErrRateLimit = goerr.New("rate limited")

	// ErrQuota means the AI API budget is exhausted. Terminal for the call.
	ErrQuota = goerr.New("quota exhausted")

	// ErrNetwork covers transient transport failures after retries.
	ErrNetwork = goerr.New("network failure")

	// ErrWrite means an export destination could not be written.
	ErrWrite = goerr.New("write failed")

	// ErrFetchInProgress means another fetch for the same target is running.
	ErrFetchInProgress = goerr.New("fetch already in progress")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = goerr.New("not found")
)

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResults is returned when a page comes back with zero articles.
	ErrNoResults = errors.New("No results found")
	// ErrOffline is returned when a load is attempted without connectivity.
	ErrOffline = errors.New("no network connection")
	// ErrEmptyBody is returned when the backend answers 2xx without a body.
	ErrEmptyBody = errors.New("response body is null")
	// ErrClosed is returned by pagers and sessions after Close.
	ErrClosed = errors.New("closed")
	// ErrSessionNotFound is returned for unknown or already closed session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// FetchErrorKind classifies backend failures.
type FetchErrorKind string

const (
	FetchErrorTransport FetchErrorKind = "transport"
	FetchErrorStatus    FetchErrorKind = "status"
	FetchErrorMalformed FetchErrorKind = "malformed"
)

// FetchError is the single error value the repository and backend client report.
type FetchError struct {
	Kind       FetchErrorKind
	Query      string
	Page       PageKey
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorStatus:
		return fmt.Sprintf("fetch %q page %d: backend returned status %d", e.Query, e.Page, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %q page %d: %s error: %v", e.Query, e.Page, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError wraps err into a *FetchError of the given kind unless it already is one.
func AsFetchError(err error, kind FetchErrorKind, query string, page PageKey) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		if fe.Query == "" {
			fe.Query = query
		}
		if fe.Page == NoKey {
			fe.Page = page
		}
		return fe
	}
	return &FetchError{Kind: kind, Query: query, Page: page, Err: err}
}

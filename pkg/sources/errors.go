package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hnpf/MTCLI/pkg/utils"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated: set MTCLI_TOKEN to mark chapters read remotely")
)

type FetchKind int

const (
	// Transient failures (timeouts, connection resets, 429, 5xx) may succeed
	// on a later attempt.
	Transient FetchKind = iota
	// Permanent failures (404, region restrictions) will not.
	Permanent
)

func (k FetchKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

type FetchError struct {
	Kind   FetchKind
	PageID string
	Err    error
}

func (e *FetchError) Error() string {
	if e.PageID == "" {
		return fmt.Sprintf("%s fetch error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s fetch error for page %s: %v", e.Kind, e.PageID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Classify wraps err in a FetchError. Errors that already carry a kind are
// returned unchanged.
func Classify(pageID string, err error) error {
	if err == nil {
		return nil
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	kind := Permanent
	if utils.Retryable(err) {
		kind = Transient
	}
	var statusErr *utils.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return &FetchError{Kind: kind, PageID: pageID, Err: err}
}

func IsTransient(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Kind == Transient
}

func IsPermanent(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Kind == Permanent
}

// IsCanceled reports whether err only means the caller gave up.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

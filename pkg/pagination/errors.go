package pagination

import (
	"errors"
	"fmt"
)

// ErrNilFetcher is returned by New when no page source is given.
var ErrNilFetcher = errors.New("page fetcher is required")

// FetchError wraps a page source failure together with the cursor that was requested.
type FetchError struct {
	Cursor string
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Cursor == "" {
		return fmt.Sprintf("fetch first page: %v", e.Err)
	}
	return fmt.Sprintf("fetch page after %q: %v", e.Cursor, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

package pipeline

import (
	"errors"
	"fmt"
)

// FetchError reports that a notice document could not be retrieved. The
// crawl stops forward progress on it.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("pipeline: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err wraps a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// ClassifierError reports a failed tier prediction. It is logged and the
// remaining derived fields are still written.
type ClassifierError struct {
	Err error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("pipeline: classifier: %v", e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

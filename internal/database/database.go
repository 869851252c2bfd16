// Package database provides read access to the asset database used for
// placeholder resolution.
//
// Documents are generic JSON-like maps. Queries are filter documents whose
// keys are dotted field paths (e.g. "context.subset").
package database

import (
	"errors"

	"github.com/pypeclub/tmplbuild/api"
)

var ErrNotFound = errors.New("document not found")

// Database is the query surface the engine needs. Implementations must be
// read-consistent for the duration of a single call only.
type Database interface {
	// Find returns every document matching the filter, in storage order.
	Find(filter api.Filter) ([]api.Document, error)
	// FindOne returns the first matching document or ErrNotFound.
	FindOne(filter api.Filter) (api.Document, error)
}

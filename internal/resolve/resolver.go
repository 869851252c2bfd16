// Package resolve executes placeholder filters against the asset database and
// reduces the results to one winning representation per subset.
package resolve

import (
	"fmt"
	"iter"

	"github.com/pypeclub/tmplbuild/api"
	"github.com/pypeclub/tmplbuild/internal/database"
)

// Resolver runs filters against a Database.
type Resolver struct {
	DB database.Database
}

func New(db database.Database) *Resolver {
	return &Resolver{DB: db}
}

// Resolve returns the winning representations for a set of filters.
// Nothing is queried until the sequence is iterated. Queries run one per
// filter; a database error is yielded once and ends the sequence.
//
// Winners are chosen per subset: the strictly greater version wins, a
// missing version counts as api.NoVersion, and equal versions fall back to
// the lexicographically smaller id. Results are yielded in the order their
// subset was first seen.
func (r *Resolver) Resolve(filters []api.Filter) iter.Seq2[*api.Representation, error] {
	return func(yield func(*api.Representation, error) bool) {
		var (
			order   []string
			winners = make(map[string]*api.Representation)
		)
		for _, f := range filters {
			docs, err := r.DB.Find(f)
			if err != nil {
				yield(nil, fmt.Errorf("find representations: %w", err))
				return
			}
			for _, doc := range docs {
				rep, err := database.DecodeRepresentation(doc)
				if err != nil {
					yield(nil, err)
					return
				}
				current, seen := winners[rep.Subset]
				if !seen {
					order = append(order, rep.Subset)
					winners[rep.Subset] = rep
					continue
				}
				if Supersedes(rep, current) {
					winners[rep.Subset] = rep
				}
			}
		}
		for _, subset := range order {
			if !yield(winners[subset], nil) {
				return
			}
		}
	}
}

// Supersedes reports whether candidate should replace current for the same
// subset.
func Supersedes(candidate, current *api.Representation) bool {
	if candidate.Version != current.Version {
		return candidate.Version > current.Version
	}
	return candidate.ID < current.ID
}

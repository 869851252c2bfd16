// Package query translates a placeholder's declared scope into database
// filter documents. It performs no I/O.
package query

import (
	"github.com/pypeclub/tmplbuild/api"
	"github.com/pypeclub/tmplbuild/internal/placeholder"
)

// Filter field paths on representation documents.
const (
	FieldType           = "type"
	FieldAsset          = "context.asset"
	FieldFamily         = "context.family"
	FieldRepresentation = "context.representation"
	FieldSubset         = "context.subset"
)

// Scope returns the asset names a placeholder draws from: the current asset
// for context placeholders, the linked assets otherwise.
func Scope(p *placeholder.Placeholder, currentAsset string, linkedAssets []string) []string {
	if p.IsContext() {
		return []string{currentAsset}
	}
	return linkedAssets
}

// Filters builds one filter per asset in the placeholder's scope.
// Empty family or representation means no constraint.
func Filters(p *placeholder.Placeholder, currentAsset string, linkedAssets []string) []api.Filter {
	scope := Scope(p, currentAsset, linkedAssets)
	filters := make([]api.Filter, 0, len(scope))
	for _, asset := range scope {
		f := api.Filter{
			FieldType:  api.TypeRepresentation,
			FieldAsset: asset,
		}
		if p.Family != "" {
			f[FieldFamily] = p.Family
		}
		if p.Representation != "" {
			f[FieldRepresentation] = p.Representation
		}
		if p.Subset != "" {
			f[FieldSubset] = map[string]any{"$regex": p.Subset}
		}
		filters = append(filters, f)
	}
	return filters
}

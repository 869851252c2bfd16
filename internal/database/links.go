package database

import (
	"errors"
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/pypeclub/tmplbuild/api"
)

var inputLinks = jp.MustParseString("$.data.inputLinks[*]")

// LinkedAssetNames returns the names of assets the given asset links to
// through data.inputLinks, in link order and without duplicates.
// Links pointing at missing assets are ignored.
func LinkedAssetNames(db Database, assetName string) ([]string, error) {
	asset, err := db.FindOne(api.Filter{"type": api.TypeAsset, "name": assetName})
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", assetName, err)
	}

	var names []string
	seen := make(map[string]struct{})
	for _, link := range inputLinks.Get(asset) {
		id := linkID(link)
		if id == nil || id == "" {
			continue
		}
		linked, err := db.FindOne(api.Filter{"type": api.TypeAsset, "_id": id})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("linked asset %v: %w", id, err)
		}
		name := stringAt(linked, "name")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// linkID accepts both {"id": ...} and the older {"_id": ...} link shape.
// The id keeps its stored type so numeric ids still match.
func linkID(link any) any {
	m, ok := link.(map[string]any)
	if !ok {
		return nil
	}
	if id, ok := m["id"]; ok && id != nil {
		return id
	}
	return m["_id"]
}

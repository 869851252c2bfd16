package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/pypeclub/tmplbuild/api"
)

var errMissingID = errors.New("document has no _id")

// DecodeRepresentation builds the typed view of a representation document.
// A missing or non-integral context.version decodes as api.NoVersion.
func DecodeRepresentation(doc api.Document) (*api.Representation, error) {
	id := idOf(doc)
	if id == "" {
		return nil, errMissingID
	}
	return &api.Representation{
		ID:      id,
		Name:    stringAt(doc, "name"),
		Asset:   stringAt(doc, "context.asset"),
		Subset:  stringAt(doc, "context.subset"),
		Family:  stringAt(doc, "context.family"),
		Version: versionOf(doc),
		Path:    stringAt(doc, "data.path"),
		Doc:     doc,
	}, nil
}

func idOf(doc api.Document) string {
	v, ok := doc["_id"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func stringAt(doc api.Document, path string) string {
	for _, v := range lookup(doc, path) {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func versionOf(doc api.Document) int {
	for _, v := range lookup(doc, "context.version") {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		case float64:
			if n == math.Trunc(n) {
				return int(n)
			}
		}
	}
	return api.NoVersion
}

package database

import (
	"testing"

	"github.com/pypeclub/tmplbuild/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkedAssetNames(t *testing.T) {
	db := NewMemory(
		api.Document{
			"_id": "a1", "type": "asset", "name": "shotA",
			"data": map[string]any{"inputLinks": []any{
				map[string]any{"id": "a2", "type": "reference"},
				map[string]any{"_id": "a3"},
				map[string]any{"id": "missing"},
				map[string]any{"id": "a2"},
				"garbage",
			}},
		},
		api.Document{"_id": "a2", "type": "asset", "name": "propX"},
		api.Document{"_id": "a3", "type": "asset", "name": "charB"},
	)

	names, err := LinkedAssetNames(db, "shotA")
	require.NoError(t, err)
	assert.Equal(t, []string{"propX", "charB"}, names)
}

func TestLinkedAssetNames_NumericIDs(t *testing.T) {
	db := NewMemory(
		api.Document{
			"_id": "a1", "type": "asset", "name": "shotA",
			"data": map[string]any{"inputLinks": []any{
				map[string]any{"id": float64(2)},
				map[string]any{"_id": 3},
			}},
		},
		api.Document{"_id": 2, "type": "asset", "name": "propX"},
		api.Document{"_id": float64(3), "type": "asset", "name": "charB"},
	)

	names, err := LinkedAssetNames(db, "shotA")
	require.NoError(t, err)
	assert.Equal(t, []string{"propX", "charB"}, names)
}

func TestLinkedAssetNames_NoLinks(t *testing.T) {
	db := NewMemory(api.Document{"_id": "a1", "type": "asset", "name": "shotA"})

	names, err := LinkedAssetNames(db, "shotA")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLinkedAssetNames_UnknownAsset(t *testing.T) {
	_, err := LinkedAssetNames(NewMemory(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_InsertReplacesInPlace(t *testing.T) {
	db := NewMemory(
		api.Document{"_id": "a1", "type": "asset", "name": "one"},
		api.Document{"_id": "a2", "type": "asset", "name": "two"},
	)
	db.Insert(api.Document{"_id": "a1", "type": "asset", "name": "uno"})

	docs, err := db.Find(api.Filter{"type": "asset"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "uno", docs[0]["name"])
	assert.Equal(t, "two", docs[1]["name"])
}

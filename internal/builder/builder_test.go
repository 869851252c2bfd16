package builder

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pypeclub/tmplbuild/api"
	"github.com/pypeclub/tmplbuild/internal/config"
	"github.com/pypeclub/tmplbuild/internal/database"
	"github.com/pypeclub/tmplbuild/internal/host"
	"github.com/pypeclub/tmplbuild/internal/loader"
	"github.com/pypeclub/tmplbuild/internal/placeholder"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost records every callback. Clean does not remove markers so that
// repeated runs see the same placeholders.
type fakeHost struct {
	nodes      []api.NodeRef
	data       map[api.NodeRef]map[string]any
	containers []api.Container
	loads      []loader.Request
	parented   map[string]api.NodeRef
	cleaned    []api.NodeRef
	preloaded  []api.NodeRef
	imported   []string

	cleanErr  error
	importErr error
	nextID    int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		data:     make(map[api.NodeRef]map[string]any),
		parented: make(map[string]api.NodeRef),
	}
}

func (h *fakeHost) add(node api.NodeRef, raw map[string]any) {
	h.nodes = append(h.nodes, node)
	h.data[node] = raw
}

func (h *fakeHost) TemplateNodes() ([]api.NodeRef, error) { return h.nodes, nil }

func (h *fakeHost) PlaceholderData(node api.NodeRef) (map[string]any, error) {
	raw, ok := h.data[node]
	if !ok {
		return nil, fmt.Errorf("no node %s", node)
	}
	return raw, nil
}

func (h *fakeHost) ParentInHierarchy(node api.NodeRef, c *api.Container) error {
	h.parented[c.ID] = node
	return nil
}

func (h *fakeHost) Clean(node api.NodeRef) error {
	if h.cleanErr != nil {
		return h.cleanErr
	}
	h.cleaned = append(h.cleaned, node)
	return nil
}

func (h *fakeHost) ImportTemplate(path string) error {
	if h.importErr != nil {
		return h.importErr
	}
	if len(h.imported) > 0 {
		return host.ErrTemplateAlreadyImported
	}
	h.imported = append(h.imported, path)
	return nil
}

func (h *fakeHost) LoadedContainers() ([]api.Container, error) { return h.containers, nil }

func (h *fakeHost) Load(loaders *loader.Registry, req loader.Request) (*api.Container, error) {
	h.loads = append(h.loads, req)
	c, err := loaders.Dispatch(req)
	if err != nil {
		return nil, err
	}
	h.nextID++
	c.ID = fmt.Sprintf("c%d", h.nextID)
	h.containers = append(h.containers, *c)
	return c, nil
}

type preloadingHost struct{ *fakeHost }

func (h preloadingHost) Preload(p *placeholder.Placeholder) error {
	h.preloaded = append(h.preloaded, p.Node)
	return nil
}

func okLoader(name string) loader.Plugin {
	return loader.Func{LoaderName: name, Fn: func(req loader.Request) (*api.Container, error) {
		return &api.Container{Representation: req.Representation.ID, Loader: req.Loader}, nil
	}}
}

func testLoaders() *loader.Registry {
	return loader.NewRegistry(
		okLoader("ReferenceLoader"),
		loader.Func{LoaderName: "Broken", Fn: func(loader.Request) (*api.Container, error) {
			return nil, errors.New("unsupported file format")
		}},
		loader.Func{LoaderName: "Panicky", Fn: func(loader.Request) (*api.Container, error) {
			var m map[string]int
			m["boom"]++
			return nil, nil
		}},
	)
}

func raw(builderType, family, representation string, order int, loaderName string) map[string]any {
	return map[string]any{
		"builder_type":   builderType,
		"family":         family,
		"representation": representation,
		"order":          order,
		"loader":         loaderName,
		"loader_args":    map[string]any{},
	}
}

func rep(id, asset, subset, family, name string, version int) api.Document {
	return api.Document{
		"_id":  id,
		"type": api.TypeRepresentation,
		"name": name,
		"context": map[string]any{
			"asset":          asset,
			"subset":         subset,
			"family":         family,
			"representation": name,
			"version":        version,
		},
	}
}

// scenarioDB holds shotA linked to propX.
func scenarioDB() *database.Memory {
	return database.NewMemory(
		api.Document{"_id": "asset-shotA", "type": api.TypeAsset, "name": "shotA",
			"data": map[string]any{"inputLinks": []any{map[string]any{"id": "asset-propX"}}}},
		api.Document{"_id": "asset-propX", "type": api.TypeAsset, "name": "propX"},
		rep("r-shotA-abc", "shotA", "modelMain", "model", "abc", 3),
		rep("r-propX-rig1", "propX", "rig", "rig", "ma", 1),
		rep("r-propX-rig2", "propX", "rig", "rig", "ma", 2),
	)
}

func newBuilder(t *testing.T, h host.Host, db database.Database) (*Builder, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	b, err := New(Config{
		Host:    h,
		DB:      db,
		Loaders: testLoaders(),
		Context: config.Context{Project: "demo", Asset: "shotA", Task: "layout", TaskType: "Layout", Host: "scene"},
		Logger:  logger,
	})
	require.NoError(t, err)
	return b, hook
}

func loadedIDs(h *fakeHost) []string {
	var ids []string
	for _, l := range h.loads {
		ids = append(ids, l.Representation.ID)
	}
	return ids
}

func entriesAt(hook *test.Hook, level logrus.Level) []logrus.Entry {
	var out []logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == level {
			out = append(out, *e)
		}
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{DB: database.NewMemory()})
	assert.Error(t, err)
	_, err = New(Config{Host: newFakeHost()})
	assert.Error(t, err)
}

func TestPlaceholders_SortedAndInvalidDropped(t *testing.T) {
	h := newFakeHost()
	h.add("A", raw("context_asset", "model", "abc", 5, "ReferenceLoader"))
	h.add("B", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))
	invalid := raw("context_asset", "model", "abc", 0, "ReferenceLoader")
	delete(invalid, "loader_args")
	h.add("X", invalid)
	h.add("C", raw("context_asset", "model", "abc", 3, "ReferenceLoader"))

	b, hook := newBuilder(t, h, scenarioDB())
	ps, err := b.Placeholders()
	require.NoError(t, err)

	var got []api.NodeRef
	for _, p := range ps {
		got = append(got, p.Node)
	}
	assert.Equal(t, []api.NodeRef{"B", "C", "A"}, got)

	warns := entriesAt(hook, logrus.WarnLevel)
	require.Len(t, warns, 1)
	assert.Equal(t, api.NodeRef("X"), warns[0].Data["node"])
}

func TestPopulate_Scenario(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))
	h.add("P2", raw("linked_asset", "", "", 2, "ReferenceLoader"))

	b, _ := newBuilder(t, h, scenarioDB())
	require.NoError(t, b.Populate(nil))

	assert.Equal(t, []string{"r-shotA-abc", "r-propX-rig2"}, loadedIDs(h))
	assert.Equal(t, api.NodeRef("P1"), h.loads[0].Placeholder)
	assert.Equal(t, api.NodeRef("P2"), h.loads[1].Placeholder)
	assert.Equal(t, map[string]api.NodeRef{"c1": "P1", "c2": "P2"}, h.parented)
	assert.Equal(t, []api.NodeRef{"P1", "P2"}, h.cleaned)
}

func TestPopulate_UpdateIsIdempotent(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))
	h.add("P2", raw("linked_asset", "", "", 2, "ReferenceLoader"))

	b, hook := newBuilder(t, h, scenarioDB())
	require.NoError(t, b.Populate(nil))
	require.Len(t, h.loads, 2)

	require.NoError(t, b.UpdateMissingContainers())
	assert.Len(t, h.loads, 2, "no additional loads")
	assert.Len(t, h.cleaned, 4, "postload still runs for ignored placeholders")

	skipped := 0
	for _, e := range entriesAt(hook, logrus.DebugLevel) {
		if e.Message == "already loaded, skipping" {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)
}

func TestPopulate_UpdateLoadsNewVersion(t *testing.T) {
	h := newFakeHost()
	h.add("P2", raw("linked_asset", "", "", 2, "ReferenceLoader"))
	db := scenarioDB()

	b, _ := newBuilder(t, h, db)
	require.NoError(t, b.Populate(nil))
	db.Insert(rep("r-propX-rig3", "propX", "rig", "rig", "ma", 3))
	require.NoError(t, b.UpdateMissingContainers())

	assert.Equal(t, []string{"r-propX-rig2", "r-propX-rig3"}, loadedIDs(h))
}

func TestPopulate_PartialFailureIsolation(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))
	h.add("P2", raw("context_asset", "model", "abc", 2, "Broken"))
	h.add("P3", raw("linked_asset", "rig", "", 3, "ReferenceLoader"))

	b, hook := newBuilder(t, h, scenarioDB())
	require.NoError(t, b.Populate(nil))

	assert.Len(t, h.loads, 3, "every load attempted")
	assert.Len(t, h.containers, 2)
	assert.Equal(t, "r-propX-rig2", h.containers[1].Representation)
	assert.Equal(t, []api.NodeRef{"P1", "P2", "P3"}, h.cleaned)

	errs := entriesAt(hook, logrus.ErrorLevel)
	require.Len(t, errs, 1)
	assert.Equal(t, "load failed", errs[0].Message)
	assert.Equal(t, api.NodeRef("P2"), errs[0].Data["placeholder"])
	assert.Equal(t, "shotA", errs[0].Data["asset"])
	assert.Equal(t, "modelMain", errs[0].Data["subset"])
	assert.Equal(t, "Broken", errs[0].Data["loader"])
	assert.ErrorContains(t, errs[0].Data[logrus.ErrorKey].(error), "unsupported file format")
}

func TestPopulate_PanickingLoaderIsContained(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "Panicky"))
	h.add("P2", raw("linked_asset", "", "", 2, "ReferenceLoader"))

	b, hook := newBuilder(t, h, scenarioDB())
	require.NoError(t, b.Populate(nil))

	assert.Equal(t, []api.NodeRef{"P1", "P2"}, h.cleaned)
	require.Len(t, h.containers, 1)

	errs := entriesAt(hook, logrus.ErrorLevel)
	require.Len(t, errs, 1)
	var pe *LoadPanicError
	require.ErrorAs(t, errs[0].Data[logrus.ErrorKey].(error), &pe)
	assert.Contains(t, errs[0].Data["stack"], "runtime/debug")
}

func TestPopulate_UnknownLoaderIsALoadFailure(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "GpuCache"))

	b, hook := newBuilder(t, h, scenarioDB())
	require.NoError(t, b.Populate(nil))
	assert.Equal(t, []api.NodeRef{"P1"}, h.cleaned)
	assert.Len(t, entriesAt(hook, logrus.ErrorLevel), 1)
}

func TestPopulate_NoMatch(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "look", "ma", 1, "ReferenceLoader"))

	b, hook := newBuilder(t, h, scenarioDB())
	require.NoError(t, b.Populate(nil))

	assert.Empty(t, h.loads)
	assert.Equal(t, []api.NodeRef{"P1"}, h.cleaned)
	found := false
	for _, e := range entriesAt(hook, logrus.InfoLevel) {
		if e.Message == "no representation found for placeholder" {
			found = true
			assert.Equal(t, "look", e.Data["family"])
		}
	}
	assert.True(t, found)
}

func TestPopulate_HostErrorsAbort(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))
	h.add("P2", raw("linked_asset", "", "", 2, "ReferenceLoader"))
	h.cleanErr = errors.New("scene locked")

	b, _ := newBuilder(t, h, scenarioDB())
	err := b.Populate(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, h.cleanErr)
	assert.Len(t, h.loads, 1, "run stopped at the first placeholder")
}

type failingDB struct{ database.Database }

func (failingDB) Find(api.Filter) ([]api.Document, error) {
	return nil, errors.New("database unavailable")
}

func TestPopulate_DatabaseErrorAborts(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))

	b, _ := newBuilder(t, h, failingDB{scenarioDB()})
	err := b.Populate(nil)
	assert.ErrorContains(t, err, "database unavailable")
	assert.Empty(t, h.cleaned)
}

func TestPopulate_CurrentAssetMissing(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))
	h.add("P2", raw("linked_asset", "", "", 2, "ReferenceLoader"))
	db := database.NewMemory(rep("r-shotA-abc", "shotA", "modelMain", "model", "abc", 3))

	b, hook := newBuilder(t, h, db)
	require.NoError(t, b.Populate(nil))

	assert.Equal(t, []string{"r-shotA-abc"}, loadedIDs(h))
	assert.Len(t, entriesAt(hook, logrus.WarnLevel), 1)
}

func TestPopulate_Preloader(t *testing.T) {
	fh := newFakeHost()
	fh.add("P1", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))
	fh.add("P2", raw("context_asset", "look", "", 2, "ReferenceLoader"))
	h := preloadingHost{fh}

	b, _ := newBuilder(t, h, scenarioDB())
	require.NoError(t, b.Populate(nil))
	assert.Equal(t, []api.NodeRef{"P1"}, fh.preloaded, "preload only runs before a load attempt")
}

func TestUpdatePlaceholder(t *testing.T) {
	h := newFakeHost()
	h.add("P1", raw("context_asset", "model", "abc", 1, "ReferenceLoader"))
	h.add("P2", raw("linked_asset", "", "", 2, "ReferenceLoader"))

	b, _ := newBuilder(t, h, scenarioDB())
	require.NoError(t, b.UpdatePlaceholder("P2"))
	assert.Equal(t, []string{"r-propX-rig2"}, loadedIDs(h))
	assert.Equal(t, []api.NodeRef{"P2"}, h.cleaned)

	require.NoError(t, b.UpdatePlaceholder("P2"))
	assert.Len(t, h.loads, 1)

	assert.ErrorIs(t, b.UpdatePlaceholder("P9"), ErrPlaceholderNotFound)
}

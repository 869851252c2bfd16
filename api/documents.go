package api

// NodeRef is an opaque handle to a node in a host scene.
// Only the host that produced it can interpret it.
type NodeRef string

// Document is a raw record from the asset database.
type Document = map[string]any

// Filter is a query document: dotted field paths mapped to expected values.
// A plain value means equality (or membership for array fields).
// A map value may use the operators "$eq", "$in" and "$regex".
type Filter map[string]any

// Document types stored in the asset database.
const (
	TypeAsset          = "asset"
	TypeRepresentation = "representation"
)

// NoVersion is the version assigned to representations without one.
const NoVersion = -1

// Representation is a published, versioned unit of content.
// Only ID, Subset and Version take part in resolution; the rest is carried
// through to the loader.
type Representation struct {
	ID      string
	Name    string
	Asset   string
	Subset  string
	Family  string
	Version int
	Path    string
	// Doc is the full database document.
	Doc Document
}

// Container is the host-side record of a successfully loaded representation.
type Container struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Representation string `json:"representation"`
	Loader         string `json:"loader"`
	Namespace      string `json:"namespace,omitempty"`
	Path           string `json:"path,omitempty"`
}

// LoaderArgs are the structured arguments a placeholder passes to its loader.
type LoaderArgs struct {
	// Namespace to load the content into (host-defined meaning).
	Namespace string `json:"namespace,omitempty"`
	// Name overrides the container name.
	Name string `json:"name,omitempty"`
	// Options are loader-specific scalar settings.
	Options map[string]any `json:"options,omitempty"`
}

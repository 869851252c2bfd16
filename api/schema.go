package api

// Workfile is the on-disk form of a scene or template.
// It maps a flat list of nodes into a parent/child hierarchy.
type Workfile struct {
	// Version of the workfile format.
	Version int `yaml:"version" json:"version"`
	// Nodes of the workfile, parents listed before their children.
	Nodes []SceneNode `yaml:"nodes,omitempty" json:"nodes,omitempty"`
}

// SceneNode represents one object in a workfile.
type SceneNode struct {
	// ID is unique within the workfile.
	ID string `yaml:"id" json:"id"`
	// Name is the display name. Defaults to ID when empty.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Parent is the ID of the parent node, empty for roots.
	Parent string `yaml:"parent,omitempty" json:"parent,omitempty"`
	// Attributes holds arbitrary key/value data.
	// Placeholders carry their declared load request here.
	Attributes map[string]any `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// Marker attributes recognized on scene nodes.
const (
	MarkerPlaceholder = "is_placeholder"
	MarkerContainer   = "is_container"
)

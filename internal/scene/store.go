// Package scene is a file-backed reference scene host. It keeps a workfile's
// node hierarchy in memory, indexes marker attributes for fast discovery and
// implements the host callbacks the population engine needs.
package scene

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/pypeclub/tmplbuild/api"
)

var (
	ErrNotFound  = errors.New("node not found")
	ErrDuplicate = errors.New("node already exists")
)

// AttrHidden is set on markers that are kept after clean-up.
const AttrHidden = "hidden"

type node struct {
	id         string
	name       string
	parent     string
	children   []string
	attributes map[string]any
}

// Store is the in-memory node hierarchy of one scene.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*node
	roots []string

	// Marker index: marker attribute → bitmap of internal node IDs.
	// Internal IDs are assigned monotonically, so iterating a bitmap yields
	// nodes in creation order.
	markers     map[string]*roaring.Bitmap
	nodeIntID   map[string]uint32
	intToNodeID []string
	nextIntID   uint32
}

func NewStore() *Store {
	return &Store{
		nodes:     make(map[string]*node),
		markers:   make(map[string]*roaring.Bitmap),
		nodeIntID: make(map[string]uint32),
	}
}

// Add inserts a node. Its parent, if any, must already exist.
func (s *Store) Add(n api.SceneNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(n)
}

func (s *Store) add(n api.SceneNode) error {
	if n.ID == "" {
		return errors.New("node id must not be empty")
	}
	if _, ok := s.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, n.ID)
	}
	if n.Parent != "" {
		p, ok := s.nodes[n.Parent]
		if !ok {
			return fmt.Errorf("parent of %s: %w: %s", n.ID, ErrNotFound, n.Parent)
		}
		p.children = append(p.children, n.ID)
	} else {
		s.roots = append(s.roots, n.ID)
	}

	name := n.Name
	if name == "" {
		name = n.ID
	}
	nd := &node{
		id:         n.ID,
		name:       name,
		parent:     n.Parent,
		attributes: maps.Clone(n.Attributes),
	}
	if nd.attributes == nil {
		nd.attributes = make(map[string]any)
	}
	s.nodes[n.ID] = nd

	intID := s.nextIntID
	s.nextIntID++
	s.nodeIntID[n.ID] = intID
	s.intToNodeID = append(s.intToNodeID, n.ID)
	s.reindex(nd)
	return nil
}

// reindex syncs the marker bitmaps with a node's attributes.
// Must be called with s.mu held.
func (s *Store) reindex(n *node) {
	intID := s.nodeIntID[n.id]
	for _, marker := range []string{api.MarkerPlaceholder, api.MarkerContainer} {
		on, _ := n.attributes[marker].(bool)
		bm, ok := s.markers[marker]
		switch {
		case on && !ok:
			bm = roaring.New()
			s.markers[marker] = bm
			bm.Add(intID)
		case on:
			bm.Add(intID)
		case ok:
			bm.Remove(intID)
		}
	}
}

// Get returns a copy of the node.
func (s *Store) Get(id string) (api.SceneNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return api.SceneNode{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n.export(), nil
}

func (n *node) export() api.SceneNode {
	return api.SceneNode{
		ID:         n.id,
		Name:       n.name,
		Parent:     n.parent,
		Attributes: maps.Clone(n.attributes),
	}
}

// Children returns the ids of a node's direct children in order.
func (s *Store) Children(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return slices.Clone(n.children), nil
}

// Roots returns the ids of top-level nodes in order.
func (s *Store) Roots() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.roots)
}

// SetAttribute writes one attribute and updates the marker index.
func (s *Store) SetAttribute(id, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n.attributes[key] = value
	s.reindex(n)
	return nil
}

// Marked returns the ids of nodes carrying the given boolean marker, in
// creation order.
func (s *Store) Marked(marker string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bm, ok := s.markers[marker]
	if !ok {
		return nil
	}
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if id := s.intToNodeID[it.Next()]; id != "" {
			out = append(out, id)
		}
	}
	return out
}

// RootNamed reports whether a top-level node with the given name exists.
func (s *Store) RootNamed(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.roots {
		if s.nodes[id].name == name {
			return true
		}
	}
	return false
}

// Remove deletes a node and its whole subtree.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.detach(n)

	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cn := s.nodes[cur]
		stack = append(stack, cn.children...)

		intID := s.nodeIntID[cur]
		for _, bm := range s.markers {
			bm.Remove(intID)
		}
		s.intToNodeID[intID] = ""
		delete(s.nodeIntID, cur)
		delete(s.nodes, cur)
	}
	return nil
}

// detach unlinks n from its parent's children or from the roots.
// Must be called with s.mu held.
func (s *Store) detach(n *node) {
	if n.parent == "" {
		s.roots = slices.DeleteFunc(s.roots, func(r string) bool { return r == n.id })
		return
	}
	if p, ok := s.nodes[n.parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c string) bool { return c == n.id })
	}
}

// PlaceAfter moves id next to sibling: same parent, immediately after it.
func (s *Store) PlaceAfter(id, sibling string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sib, ok := s.nodes[sibling]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sibling)
	}
	for p := sibling; p != ""; p = s.nodes[p].parent {
		if p == id {
			return fmt.Errorf("cannot place %s inside its own subtree", id)
		}
	}

	s.detach(n)
	n.parent = sib.parent
	insert := func(list []string) []string {
		i := slices.Index(list, sibling)
		return slices.Insert(list, i+1, id)
	}
	if sib.parent == "" {
		s.roots = insert(s.roots)
	} else {
		p := s.nodes[sib.parent]
		p.children = insert(p.children)
	}
	return nil
}

// Nodes returns every node, parents before children, siblings in order.
func (s *Store) Nodes() []api.SceneNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.SceneNode, 0, len(s.nodes))
	var walk func(ids []string)
	walk = func(ids []string) {
		for _, id := range ids {
			n := s.nodes[id]
			out = append(out, n.export())
			walk(n.children)
		}
	}
	walk(s.roots)
	return out
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

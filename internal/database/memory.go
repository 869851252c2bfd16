package database

import (
	"sync"

	"github.com/pypeclub/tmplbuild/api"
)

// Memory is an in-process Database holding documents in insertion order.
type Memory struct {
	mu   sync.RWMutex
	docs []api.Document
}

func NewMemory(docs ...api.Document) *Memory {
	m := &Memory{}
	m.Insert(docs...)
	return m
}

// Insert appends documents. A document whose _id is already present
// replaces the stored one in place.
func (m *Memory) Insert(docs ...api.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		id := idOf(doc)
		replaced := false
		if id != "" {
			for i, existing := range m.docs {
				if idOf(existing) == id {
					m.docs[i] = doc
					replaced = true
					break
				}
			}
		}
		if !replaced {
			m.docs = append(m.docs, doc)
		}
	}
}

// Find implements Database.
func (m *Memory) Find(filter api.Filter) ([]api.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []api.Document
	for _, doc := range m.docs {
		ok, err := Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// FindOne implements Database.
func (m *Memory) FindOne(filter api.Filter) (api.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, doc := range m.docs {
		ok, err := Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			return doc, nil
		}
	}
	return nil, ErrNotFound
}

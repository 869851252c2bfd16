package scene

import (
	"bytes"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pypeclub/tmplbuild/api"
	"gopkg.in/yaml.v3"
)

// FormatVersion is the only workfile version this package reads and writes.
const FormatVersion = 1

// ReadWorkfile loads and validates a YAML workfile.
func ReadWorkfile(fs billy.Filesystem, name string) (*api.Workfile, error) {
	data, err := util.ReadFile(fs, name)
	if err != nil {
		return nil, fmt.Errorf("read workfile %s: %w", name, err)
	}
	var wf api.Workfile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("parse workfile %s: %w", name, err)
	}
	if wf.Version != FormatVersion {
		return nil, fmt.Errorf("workfile %s: unsupported version %d (want %d)", name, wf.Version, FormatVersion)
	}
	return &wf, nil
}

// WriteWorkfile stores wf atomically: the content is written to a temp file
// in the same directory, then renamed over name.
func WriteWorkfile(fs billy.Filesystem, name string, wf *api.Workfile) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(wf); err != nil {
		return fmt.Errorf("encode workfile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode workfile: %w", err)
	}

	dir := path.Dir(name)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := util.TempFile(fs, dir, ".tmplbuild-save-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := fs.Rename(tmpName, name); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", name, err)
	}
	return nil
}

// LoadStore reads a workfile into a new Store. A missing file yields an
// empty store.
func LoadStore(fs billy.Filesystem, name string) (*Store, error) {
	s := NewStore()
	if _, err := fs.Stat(name); os.IsNotExist(err) {
		return s, nil
	}
	wf, err := ReadWorkfile(fs, name)
	if err != nil {
		return nil, err
	}
	for _, n := range wf.Nodes {
		if err := s.Add(n); err != nil {
			return nil, fmt.Errorf("workfile %s: %w", name, err)
		}
	}
	return s, nil
}

// Workfile snapshots the store in workfile form.
func (s *Store) Workfile() *api.Workfile {
	return &api.Workfile{Version: FormatVersion, Nodes: s.Nodes()}
}

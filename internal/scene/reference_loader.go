package scene

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"github.com/pypeclub/tmplbuild/api"
	"github.com/pypeclub/tmplbuild/internal/loader"
)

// ReferenceLoaderName is the registry key of ReferenceLoader.
const ReferenceLoaderName = "ReferenceLoader"

// ReferenceLoader references a published file without copying it. When FS
// is set the representation's file must exist on it.
type ReferenceLoader struct {
	FS billy.Filesystem
}

func (ReferenceLoader) Name() string { return ReferenceLoaderName }

func (l ReferenceLoader) Load(req loader.Request) (*api.Container, error) {
	rep := req.Representation
	if rep == nil {
		return nil, errors.New("no representation")
	}
	if l.FS != nil && rep.Path != "" {
		if _, err := l.FS.Stat(rep.Path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("representation %s: file %s does not exist", rep.ID, rep.Path)
			}
			return nil, err
		}
	}

	name := req.Args.Name
	if name == "" {
		name = rep.Subset
	}
	if name == "" {
		name = rep.Name
	}
	if req.Args.Namespace != "" {
		name = req.Args.Namespace + ":" + name
	}
	return &api.Container{
		ID:             uuid.NewString(),
		Name:           name,
		Representation: rep.ID,
		Loader:         ReferenceLoaderName,
		Namespace:      req.Args.Namespace,
		Path:           rep.Path,
	}, nil
}

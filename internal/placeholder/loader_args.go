package placeholder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pypeclub/tmplbuild/api"
)

// ParseLoaderArgs decodes loader arguments from a mapping or from a JSON
// object string. Unknown keys are rejected and option values must be
// scalars (string, number, bool). An empty string or nil yields zero args.
func ParseLoaderArgs(v any) (api.LoaderArgs, error) {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return api.LoaderArgs{}, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return api.LoaderArgs{}, nil
		}
		raw = []byte(val)
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return api.LoaderArgs{}, err
		}
		raw = b
	default:
		return api.LoaderArgs{}, fmt.Errorf("expected mapping or JSON object, got %T", v)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var args api.LoaderArgs
	if err := dec.Decode(&args); err != nil {
		return api.LoaderArgs{}, fmt.Errorf("decode loader args: %w", err)
	}
	for k, opt := range args.Options {
		switch opt.(type) {
		case string, float64, bool:
		default:
			return api.LoaderArgs{}, fmt.Errorf("option %s: expected scalar, got %T", k, opt)
		}
	}
	return args, nil
}

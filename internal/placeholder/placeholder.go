// Package placeholder turns the raw key/value data found on a scene marker
// into a validated load request.
package placeholder

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pypeclub/tmplbuild/api"
)

// BuilderType selects which assets a placeholder draws from.
type BuilderType string

const (
	ContextAsset BuilderType = "context_asset"
	LinkedAsset  BuilderType = "linked_asset"
)

// Raw data keys.
const (
	KeyBuilderType     = "builder_type"
	KeyFamily          = "family"
	KeyRepresentation  = "representation"
	KeyOrder           = "order"
	KeyLoader          = "loader"
	KeyLoaderArgs      = "loader_args"
	KeySubset          = "subset"
	KeyKeepPlaceholder = "keep_placeholder"
)

// MandatoryKeys must all be present for a placeholder to be valid.
var MandatoryKeys = []string{
	KeyBuilderType,
	KeyFamily,
	KeyRepresentation,
	KeyOrder,
	KeyLoader,
	KeyLoaderArgs,
}

var ErrInvalid = errors.New("invalid placeholder")

// FieldError reports a raw value that could not be normalized.
type FieldError struct {
	Key string
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("placeholder field %s: %v", e.Key, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == ErrInvalid }

// Placeholder is one declarative "load this here" request.
type Placeholder struct {
	Node           api.NodeRef
	BuilderType    BuilderType
	Family         string
	Representation string
	Loader         string
	LoaderArgs     api.LoaderArgs
	Order          int
	// Subset is an optional regular expression on the subset name.
	Subset string
	Keep   bool
	// Data is the raw mapping the placeholder was parsed from.
	Data map[string]any
}

// IsValid reports whether every mandatory key is present in raw.
// Values are not inspected.
func IsValid(raw map[string]any) bool {
	for _, k := range MandatoryKeys {
		if _, ok := raw[k]; !ok {
			return false
		}
	}
	return true
}

// Parse validates raw and builds a Placeholder for node.
// The returned error matches ErrInvalid.
func Parse(node api.NodeRef, raw map[string]any) (*Placeholder, error) {
	if !IsValid(raw) {
		var missing []string
		for _, k := range MandatoryKeys {
			if _, ok := raw[k]; !ok {
				missing = append(missing, k)
			}
		}
		return nil, fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}

	p := &Placeholder{Node: node, Data: raw}
	var err error

	bt, err := requiredString(raw, KeyBuilderType)
	if err != nil {
		return nil, err
	}
	p.BuilderType = BuilderType(bt)

	if p.Family, err = optionalString(raw, KeyFamily); err != nil {
		return nil, err
	}
	if p.Representation, err = optionalString(raw, KeyRepresentation); err != nil {
		return nil, err
	}
	if p.Loader, err = requiredString(raw, KeyLoader); err != nil {
		return nil, err
	}
	if p.Order, err = parseOrder(raw[KeyOrder]); err != nil {
		return nil, &FieldError{Key: KeyOrder, Err: err}
	}
	if p.LoaderArgs, err = ParseLoaderArgs(raw[KeyLoaderArgs]); err != nil {
		return nil, &FieldError{Key: KeyLoaderArgs, Err: err}
	}
	if p.Keep, err = ParseKeep(raw[KeyKeepPlaceholder]); err != nil {
		return nil, &FieldError{Key: KeyKeepPlaceholder, Err: err}
	}
	if p.Subset, err = optionalString(raw, KeySubset); err != nil {
		return nil, err
	}
	if p.Subset != "" {
		if _, err := regexp.Compile(p.Subset); err != nil {
			return nil, &FieldError{Key: KeySubset, Err: err}
		}
	}
	return p, nil
}

// IsContext reports whether the placeholder targets the current asset.
func (p *Placeholder) IsContext() bool {
	return p.BuilderType == ContextAsset
}

// KeepMarker reports whether the marker should survive clean-up.
func (p *Placeholder) KeepMarker() bool {
	return p.Keep
}

// ParseKeep normalizes a keep_placeholder value. Absent means false; strings
// are read with strconv.ParseBool.
func ParseKeep(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	default:
		return false, fmt.Errorf("expected bool, got %T", v)
	}
}

func (p *Placeholder) String() string {
	return fmt.Sprintf("%s[%s %s/%s order=%d]", p.Node, p.BuilderType, p.Family, p.Representation, p.Order)
}

// Sort orders placeholders ascending by Order. Equal orders keep their
// discovery order.
func Sort(ps []*Placeholder) {
	slices.SortStableFunc(ps, func(a, b *Placeholder) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

func requiredString(raw map[string]any, key string) (string, error) {
	s, err := optionalString(raw, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", &FieldError{Key: key, Err: errors.New("must not be empty")}
	}
	return s, nil
}

func optionalString(raw map[string]any, key string) (string, error) {
	switch v := raw[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", &FieldError{Key: key, Err: fmt.Errorf("expected string, got %T", v)}
	}
}

func parseOrder(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

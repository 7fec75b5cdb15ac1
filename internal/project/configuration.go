package project

import (
	"encoding/json"
	"fmt"
	"sort"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// Config is the flat option-key → scalar value mapping driving generation.
type Config map[string]any

// Validate rejects keys that are empty and values that are not string, bool or number.
func (c Config) Validate() error {
	for k, v := range c {
		if k == "" {
			return perrors.Validation("configuration keys must be non-empty")
		}
		switch v.(type) {
		case string, bool, float64, float32, int, int32, int64, json.Number:
		default:
			return perrors.Validation("configuration %q must be a string, bool or number, got %T", k, v)
		}
	}
	return nil
}

// Clone returns a copy of c. Values are scalars so a shallow map copy is a value copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Keys returns the option keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lines renders "- key: value" lines in key order.
func (c Config) Lines() []string {
	lines := make([]string, 0, len(c))
	for _, k := range c.Keys() {
		lines = append(lines, fmt.Sprintf("- %s: %v", k, c[k]))
	}
	return lines
}

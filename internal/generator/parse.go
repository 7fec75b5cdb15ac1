package generator

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/samber/lo"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

var (
	leadingFence  = regexp.MustCompile("^```\\w*\\n?")
	trailingFence = regexp.MustCompile("\\n?```$")
)

// CleanCode strips a leading ```lang fence and a trailing ``` fence that
// models add despite being told not to.
func CleanCode(raw string) string {
	code := strings.TrimSpace(raw)
	code = leadingFence.ReplaceAllString(code, "")
	code = trailingFence.ReplaceAllString(code, "")
	return strings.TrimSpace(code)
}

// stripJSONFences removes every markdown fence marker around a JSON payload.
func stripJSONFences(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ParsePlan validates provider output as a JSON array of relative file paths.
// Order and duplicates are preserved.
func ParsePlan(raw string) ([]string, error) {
	cleaned := stripJSONFences(raw)
	if !strings.HasPrefix(cleaned, "[") {
		return nil, fmt.Errorf("%w: expected a JSON array of strings", perrors.ErrMalformedPlan)
	}

	var paths []string
	if err := json.Unmarshal([]byte(cleaned), &paths); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of strings: %v", perrors.ErrMalformedPlan, err)
	}

	for i, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w: entry %d is empty", perrors.ErrMalformedPlan, i)
		}
		if strings.HasPrefix(p, "/") || lo.Contains(strings.Split(path.Clean(p), "/"), "..") {
			return nil, fmt.Errorf("%w: entry %d %q escapes the project root", perrors.ErrMalformedPlan, i, p)
		}
		paths[i] = p
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

// ParseModules decodes a configuration wizard schema, dropping modules without
// an id and fields of an unknown type. Unparseable input yields an empty list.
func ParseModules(raw string) []Module {
	var modules []Module
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &modules); err != nil {
		return []Module{}
	}

	modules = lo.Filter(modules, func(m Module, _ int) bool {
		return strings.TrimSpace(m.ID) != ""
	})
	for i := range modules {
		modules[i].Config = lo.Filter(modules[i].Config, func(f Field, _ int) bool {
			if f.Key == "" {
				return false
			}
			switch f.Type {
			case FieldSelect:
				return len(f.Options) > 0
			case FieldToggle, FieldInput, FieldColor:
				return true
			}
			return false
		})
		if modules[i].Config == nil {
			modules[i].Config = []Field{}
		}
	}
	if modules == nil {
		return []Module{}
	}
	return modules
}

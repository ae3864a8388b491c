// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultBuildTimeout bounds a factory Build call when the configuration
// does not set its own "timeout" parameter.
const DefaultBuildTimeout = 30 * time.Second

// Hint is the lightweight descriptor used for capability matching, usually
// the name of the configuration's choice group.
type Hint string

// ConfigTree is the declarative configuration of one provider: a named
// tree of parameter groups with exactly one top-level choice group that
// carries the backend-specific parameters.
type ConfigTree struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Choice *Group         `yaml:"choice" json:"choice"`
}

// Group is a named set of parameters, possibly with nested groups.
type Group struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Groups []*Group       `yaml:"groups,omitempty" json:"groups,omitempty"`
}

// Hint returns the discriminant of the choice group.
func (c *ConfigTree) Hint() Hint {
	if c == nil || c.Choice == nil {
		return ""
	}
	return Hint(c.Choice.Name)
}

// Check reports structural problems that make a tree unusable regardless
// of the backend kind.
func (c *ConfigTree) Check() error {
	if c == nil {
		return errors.New("configuration is required")
	}
	if c.Choice == nil || strings.TrimSpace(c.Choice.Name) == "" {
		return errors.New("configuration has no choice group")
	}
	if _, err := c.buildTimeout(); err != nil {
		return err
	}
	return nil
}

// BuildTimeout returns the construction deadline for this configuration.
func (c *ConfigTree) BuildTimeout(fallback time.Duration) time.Duration {
	d, err := c.buildTimeout()
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c *ConfigTree) buildTimeout() (time.Duration, error) {
	if c == nil {
		return 0, nil
	}
	switch v := c.Params["timeout"].(type) {
	case nil:
		return 0, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("invalid timeout type %T", v)
	}
}

// Clone returns a deep copy so callers cannot mutate a retained tree.
func (c *ConfigTree) Clone() *ConfigTree {
	if c == nil {
		return nil
	}
	return &ConfigTree{
		Name:   c.Name,
		Params: cloneParams(c.Params),
		Choice: c.Choice.Clone(),
	}
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	out := &Group{Name: g.Name, Params: cloneParams(g.Params)}
	for _, sub := range g.Groups {
		out.Groups = append(out.Groups, sub.Clone())
	}
	return out
}

// Group returns the nested group with the given name.
func (g *Group) Group(name string) (*Group, bool) {
	if g == nil {
		return nil, false
	}
	for _, sub := range g.Groups {
		if sub.Name == name {
			return sub, true
		}
	}
	return nil, false
}

// Decode copies the group parameters into v, which is usually a backend's
// parameter struct. Unknown parameters are rejected.
func (g *Group) Decode(v any) error {
	var params map[string]any
	if g != nil {
		params = g.Params
	}
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return nil
}

func cloneParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const sampleTree = `
name: roads
params:
  timeout: 5s
choice:
  name: postgis
  params:
    dsn: postgres://gis@localhost/osm
    schema: public
  groups:
    - name: pool
      params:
        max_conns: 4
`

func TestConfigTree_YAML(t *testing.T) {
	var cfg ConfigTree
	if err := yaml.Unmarshal([]byte(sampleTree), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := cfg.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	if cfg.Hint() != "postgis" {
		t.Errorf("Hint() = %q", cfg.Hint())
	}
	if d := cfg.BuildTimeout(time.Minute); d != 5*time.Second {
		t.Errorf("BuildTimeout() = %v", d)
	}
	pool, ok := cfg.Choice.Group("pool")
	if !ok || pool.Params["max_conns"] != 4 {
		t.Errorf("pool group = %+v", pool)
	}

	var params struct {
		DSN    string `json:"dsn"`
		Schema string `json:"schema"`
	}
	if err := cfg.Choice.Decode(&params); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if params.Schema != "public" {
		t.Errorf("schema = %q", params.Schema)
	}
}

func TestConfigTree_Check(t *testing.T) {
	cases := map[string]*ConfigTree{
		"nil":       nil,
		"no choice": {Name: "x"},
		"blank":     {Name: "x", Choice: &Group{Name: "  "}},
		"timeout":   {Name: "x", Params: map[string]any{"timeout": "soon"}, Choice: &Group{Name: "memory"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if err := cfg.Check(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfigTree_BuildTimeoutFallback(t *testing.T) {
	cfg := &ConfigTree{Choice: &Group{Name: "memory"}}
	if d := cfg.BuildTimeout(DefaultBuildTimeout); d != DefaultBuildTimeout {
		t.Errorf("BuildTimeout() = %v", d)
	}
	cfg.Params = map[string]any{"timeout": 2}
	if d := cfg.BuildTimeout(DefaultBuildTimeout); d != 2*time.Second {
		t.Errorf("BuildTimeout() = %v", d)
	}
}

func TestConfigTree_CloneIsDeep(t *testing.T) {
	orig := &ConfigTree{
		Name: "a",
		Choice: &Group{
			Name:   "file",
			Params: map[string]any{"paths": []any{"x"}, "opts": map[string]any{"k": "v"}},
			Groups: []*Group{{Name: "sub", Params: map[string]any{"n": 1}}},
		},
	}
	c := orig.Clone()
	c.Choice.Params["paths"].([]any)[0] = "y"
	c.Choice.Params["opts"].(map[string]any)["k"] = "w"
	c.Choice.Groups[0].Params["n"] = 2

	if orig.Choice.Params["paths"].([]any)[0] != "x" ||
		orig.Choice.Params["opts"].(map[string]any)["k"] != "v" ||
		orig.Choice.Groups[0].Params["n"] != 1 {
		t.Errorf("clone shares state with original: %+v", orig.Choice)
	}
}

func TestGroup_DecodeRejectsUnknown(t *testing.T) {
	g := &Group{Name: "memory", Params: map[string]any{"bogus": true}}
	var v struct {
		Keys []string `json:"keys"`
	}
	if err := g.Decode(&v); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

// instrument.go
package models

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed instruments.yaml
var defaultInstruments []byte

// Stage is one survey measurement point.
type Stage struct {
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
}

// Subscale is a named subset of an instrument's items.
type Subscale struct {
	Name  string   `yaml:"name"`
	Items []string `yaml:"items"`
}

// Instrument struct to match the YAML structure
type Instrument struct {
	Code      string         `yaml:"code"`
	Items     []string       `yaml:"items"`
	Responses map[string]int `yaml:"responses"`
	Recode    string         `yaml:"recode,omitempty"`
	Pairs     [][]string     `yaml:"pairs,omitempty"`
	Subscales []Subscale     `yaml:"subscales,omitempty"`
	MaxPoints float64        `yaml:"max_points,omitempty"`
}

// Registry maps (stage, instrument) to explicit column lists. It is built once
// and read-only afterwards.
type Registry struct {
	Stages      []Stage      `yaml:"stages"`
	Instruments []Instrument `yaml:"instruments"`

	byCode map[string]int
}

// LoadRegistry reads and parses an instruments file. A missing file falls
// back to the built-in registry.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultRegistry()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read instruments file: %w", err)
	}
	return ParseRegistry(data)
}

// DefaultRegistry returns the built-in study instruments.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultInstruments)
}

// ParseRegistry decodes and validates registry YAML.
func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instruments YAML: %w", err)
	}
	if err := reg.index(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) index() error {
	r.byCode = make(map[string]int, len(r.Instruments))
	for i, inst := range r.Instruments {
		if inst.Code == "" || len(inst.Items) == 0 {
			return fmt.Errorf("instrument %d: code and items are required", i)
		}
		if _, dup := r.byCode[inst.Code]; dup {
			return fmt.Errorf("instrument %s defined twice", inst.Code)
		}
		known := make(map[string]bool, len(inst.Items))
		for _, it := range inst.Items {
			known[it] = true
		}
		for _, sub := range inst.Subscales {
			for _, it := range sub.Items {
				if !known[it] {
					return fmt.Errorf("instrument %s subscale %s: unknown item %s", inst.Code, sub.Name, it)
				}
			}
		}
		for _, p := range inst.Pairs {
			if len(p) != 2 || !known[p[0]] || !known[p[1]] {
				return fmt.Errorf("instrument %s: unknown pair %v", inst.Code, p)
			}
		}
		r.byCode[inst.Code] = i
	}
	return nil
}

// Instrument looks up an instrument by code.
func (r *Registry) Instrument(code string) (Instrument, bool) {
	i, ok := r.byCode[code]
	if !ok {
		return Instrument{}, false
	}
	return r.Instruments[i], true
}

// Stage looks up a stage by name.
func (r *Registry) Stage(name string) (Stage, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Columns returns the ordered item columns of an instrument within a stage.
func (r *Registry) Columns(stage, code string) []string {
	inst, ok := r.Instrument(code)
	if !ok {
		return nil
	}
	return inst.StageColumns(stage)
}

// StageColumns prefixes the instrument items with the stage name.
func (i Instrument) StageColumns(stage string) []string {
	return StageColumns(stage, i.Items)
}

// StageColumns prefixes item names with the stage name.
func StageColumns(stage string, items []string) []string {
	out := make([]string, len(items))
	for k, it := range items {
		out[k] = stage + "_" + it
	}
	return out
}

// TotalColumn names an instrument total, e.g. B_WEMWBS_Total.
func TotalColumn(prefix, code string) string {
	return prefix + "_" + code + "_Total"
}

// SubscaleColumn names a subscale score, e.g. B_BIS_Non-Planning.
func SubscaleColumn(prefix, code, subscale string) string {
	return prefix + "_" + code + "_" + subscale
}

// ChangeColumn names a baseline to exit change score.
func ChangeColumn(code string) string {
	return "Change_" + code
}

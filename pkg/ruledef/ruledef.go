// Package ruledef defines the wire-level rule shape described by the
// engine's external JSON rule-file format, plus RuleSource implementations
// that read that shape from JSON and YAML.
package ruledef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rulelattice/engine/internal/storage"
)

// Condition is a single field/operator/value triple as it appears in a rule
// file, prior to dictionary encoding or any compiler transformation.
type Condition struct {
	Field    string      `json:"field" yaml:"field"`
	Operator string      `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// RuleDefinition is one rule as read from a RuleSource: a conjunction of
// Conditions, at most one of which may be IS_ANY_OF (enforced by the
// compiler's validation stage, not here).
type RuleDefinition struct {
	RuleCode    string      `json:"rule_code" yaml:"rule_code"`
	Priority    int         `json:"priority,omitempty" yaml:"priority,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     *bool       `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
}

// IsEnabled reports whether the rule is enabled, defaulting to true when the
// source omitted the field.
func (r RuleDefinition) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Source yields the rule definitions that the compiler will parse, validate,
// and compile into an EngineModel. Implementations must be safe to call
// once per compilation; they need not be safe for concurrent reuse.
type Source interface {
	Rules() ([]RuleDefinition, error)
}

// ruleFile mirrors the top-level JSON/YAML document shape: {"rules": [...]}.
type ruleFile struct {
	Rules []RuleDefinition `json:"rules" yaml:"rules"`
}

// JSONSource reads rule definitions from a JSON document of the shape
// {"rules": [...]}.
type JSONSource struct {
	r io.Reader
}

// NewJSONSource wraps r as a Source.
func NewJSONSource(r io.Reader) *JSONSource {
	return &JSONSource{r: r}
}

// Rules implements Source.
func (s *JSONSource) Rules() ([]RuleDefinition, error) {
	var doc ruleFile
	dec := json.NewDecoder(s.r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ruledef: decoding JSON rule source: %w", err)
	}
	return doc.Rules, nil
}

// YAMLSource reads rule definitions from a YAML document of the same shape
// as JSONSource, for hand-authored rulesets.
type YAMLSource struct {
	r io.Reader
}

// NewYAMLSource wraps r as a Source.
func NewYAMLSource(r io.Reader) *YAMLSource {
	return &YAMLSource{r: r}
}

// Rules implements Source.
func (s *YAMLSource) Rules() ([]RuleDefinition, error) {
	var doc ruleFile
	dec := yaml.NewDecoder(s.r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ruledef: decoding YAML rule source: %w", err)
	}
	return doc.Rules, nil
}

// StaticSource is a Source backed by an in-memory slice, used by tests and
// by callers that already have RuleDefinitions (e.g. from ruleql.Parse).
type StaticSource struct {
	Defs []RuleDefinition
}

// Rules implements Source.
func (s StaticSource) Rules() ([]RuleDefinition, error) {
	return s.Defs, nil
}

// MultiSource concatenates the rules yielded by several sources, in order.
// DuplicateRuleCode detection across sources is the compiler's job, not
// MultiSource's.
type MultiSource struct {
	Sources []Source
}

// Rules implements Source.
func (m MultiSource) Rules() ([]RuleDefinition, error) {
	var all []RuleDefinition
	for i, s := range m.Sources {
		rs, err := s.Rules()
		if err != nil {
			return nil, fmt.Errorf("ruledef: source %d: %w", i, err)
		}
		all = append(all, rs...)
	}
	return all, nil
}

// FileSource reads rule definitions from a file on an injected
// storage.FileSystem, dispatching to JSONSource or YAMLSource by the file's
// extension. Tests substitute storage.NewMockFileSystem to exercise rule
// loading without disk I/O.
type FileSource struct {
	FS   storage.FileSystem
	Path string
}

// NewFileSource wraps a file path, read through fs, as a Source.
func NewFileSource(fs storage.FileSystem, path string) *FileSource {
	return &FileSource{FS: fs, Path: path}
}

// Rules implements Source.
func (s *FileSource) Rules() ([]RuleDefinition, error) {
	data, err := s.FS.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ruledef: reading rule file %s: %w", s.Path, err)
	}

	switch {
	case strings.HasSuffix(s.Path, ".yaml"), strings.HasSuffix(s.Path, ".yml"):
		return NewYAMLSource(bytes.NewReader(data)).Rules()
	default:
		return NewJSONSource(bytes.NewReader(data)).Rules()
	}
}

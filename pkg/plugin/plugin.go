// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package plugin implements the effect/generator/transition
// registry. Plugins self-register at process init through the
// Register*Hook family, the same pattern the engine's addon hooks use
// for other extension points, with built-ins living in the effects,
// generators and transitions sub-packages.
package plugin

import (
	"encoding/json"
	"fmt"
	"sync"

	"lumenart/internal/frame"
)

// Kind identifies which contract a plugin implements.
type Kind string

// Plugin kinds.
const (
	KindEffect     Kind = "effect"
	KindGenerator  Kind = "generator"
	KindTransition Kind = "transition"
)

// ParamType is the tagged type of a plugin parameter value.
type ParamType string

// Parameter tags.
const (
	ParamFloat  ParamType = "float"
	ParamInt    ParamType = "int"
	ParamBool   ParamType = "bool"
	ParamSelect ParamType = "select"
	ParamColor  ParamType = "color"
)

// ParamSpec describes one parameter a plugin accepts.
type ParamSpec struct {
	Name    string      `json:"name"`
	Type    ParamType   `json:"type"`
	Default interface{} `json:"default"`
	Min     float64     `json:"min,omitempty"`
	Max     float64     `json:"max,omitempty"`
	Options []string    `json:"options,omitempty"` // valid for ParamSelect
}

// Metadata describes a registered plugin class.
type Metadata struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        Kind        `json:"kind"`
	Version     string      `json:"version"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
}

// Params is a validated set of parameter values keyed by name.
type Params map[string]interface{}

// Effect processes a frame in place, preserving its shape.
type Effect interface {
	Process(f *frame.Frame, params Params) error
}

// Generator produces a frame from first principles:
// "produce(frame_number, time, width, height, params) → frame".
type Generator interface {
	Produce(frameNumber int64, t float64, width, height int, params Params) (*frame.Frame, error)
}

// Transition blends two frames at a progress point in [0, 1].
type Transition interface {
	Blend(a, b *frame.Frame, progress float64, params Params) (*frame.Frame, error)
}

// Factory builds a new plugin instance from validated parameters.
type Factory func(params Params) (interface{}, error)

// PluginNotFound is returned when an id has no registered plugin.
type PluginNotFound struct{ ID string }

func (e *PluginNotFound) Error() string { return fmt.Sprintf("plugin not found: %s", e.ID) }

// ParameterValidationError is returned when a parameter value fails its schema.
type ParameterValidationError struct {
	PluginID string
	Param    string
	Reason   string
}

func (e *ParameterValidationError) Error() string {
	return fmt.Sprintf("plugin %s: invalid parameter %q: %s", e.PluginID, e.Param, e.Reason)
}

// PluginInstantiationError wraps a failure raised while constructing an instance.
type PluginInstantiationError struct {
	PluginID string
	Err      error
}

func (e *PluginInstantiationError) Error() string {
	return fmt.Sprintf("plugin %s: instantiation failed: %v", e.PluginID, e.Err)
}
func (e *PluginInstantiationError) Unwrap() error { return e.Err }

type registration struct {
	meta    Metadata
	factory Factory

	metaJSON   []byte
	paramsJSON []byte
}

// Registry holds every registered plugin class, grouped by kind, plus a
// cache of the serialized metadata/parameter forms.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*registration
	byKnd map[Kind][]string

	onLoadError func(id string, err error)
}

// New returns an empty Registry. onLoadError, if non-nil, is called for
// every plugin whose registration fails validation; it must not prevent
// the remaining plugins from registering.
func New(onLoadError func(id string, err error)) *Registry {
	return &Registry{
		byID:        make(map[string]*registration),
		byKnd:       make(map[Kind][]string),
		onLoadError: onLoadError,
	}
}

// Register adds a plugin class to the registry. Build calls it for each
// registration that effects/, generators/ and transitions/ queue from
// their init() functions through RegisterBuiltin.
func (r *Registry) Register(meta Metadata, factory Factory) {
	if err := validateMetadata(meta); err != nil {
		if r.onLoadError != nil {
			r.onLoadError(meta.ID, err)
		}
		return
	}

	metaJSON, _ := json.Marshal(meta)
	paramsJSON, _ := json.Marshal(meta.Params)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[meta.ID] = &registration{
		meta:       meta,
		factory:    factory,
		metaJSON:   metaJSON,
		paramsJSON: paramsJSON,
	}
	r.byKnd[meta.Kind] = append(r.byKnd[meta.Kind], meta.ID)
}

func validateMetadata(meta Metadata) error {
	if meta.ID == "" {
		return fmt.Errorf("missing id")
	}
	switch meta.Kind {
	case KindEffect, KindGenerator, KindTransition:
	default:
		return fmt.Errorf("unknown kind %q", meta.Kind)
	}
	return nil
}

// List returns metadata for every plugin of the given kind.
func (r *Registry) List(kind Kind) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byKnd[kind]
	out := make([]Metadata, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id].meta)
	}
	return out
}

// Instantiate validates params against the plugin's schema and
// constructs a new instance.
func (r *Registry) Instantiate(id string, params Params) (interface{}, error) {
	r.mu.RLock()
	reg, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &PluginNotFound{ID: id}
	}

	validated, err := validateParams(reg.meta, params)
	if err != nil {
		return nil, err
	}

	instance, err := reg.factory(validated)
	if err != nil {
		return nil, &PluginInstantiationError{PluginID: id, Err: err}
	}
	return instance, nil
}

// validateParams fills in defaults for missing parameters and checks
// every supplied value against its declared schema.
func validateParams(meta Metadata, params Params) (Params, error) {
	out := make(Params, len(meta.Params))
	for _, spec := range meta.Params {
		v, supplied := params[spec.Name]
		if !supplied {
			out[spec.Name] = spec.Default
			continue
		}
		if err := checkParam(spec, v); err != nil {
			return nil, &ParameterValidationError{
				PluginID: meta.ID,
				Param:    spec.Name,
				Reason:   err.Error(),
			}
		}
		out[spec.Name] = v
	}
	return out, nil
}

func checkParam(spec ParamSpec, v interface{}) error {
	switch spec.Type {
	case ParamFloat, ParamInt:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("expected numeric value, got %T", v)
		}
		if spec.Min != 0 || spec.Max != 0 {
			if f < spec.Min || f > spec.Max {
				return fmt.Errorf("value %v out of range [%v, %v]", f, spec.Min, spec.Max)
			}
		}
	case ParamBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
	case ParamSelect:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		valid := false
		for _, opt := range spec.Options {
			if opt == s {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("value %q not in %v", s, spec.Options)
		}
	case ParamColor:
		switch c := v.(type) {
		case [3]uint8:
		case []interface{}:
			if len(c) != 3 {
				return fmt.Errorf("color requires 3 components, got %d", len(c))
			}
		default:
			return fmt.Errorf("expected color, got %T", v)
		}
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// MetadataJSON returns the cached serialized metadata for id.
func (r *Registry) MetadataJSON(id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	if !ok {
		return nil, &PluginNotFound{ID: id}
	}
	return reg.metaJSON, nil
}

// ParametersJSON returns the cached serialized parameter schema for id.
func (r *Registry) ParametersJSON(id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	if !ok {
		return nil, &PluginNotFound{ID: id}
	}
	return reg.paramsJSON, nil
}

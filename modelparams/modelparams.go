// Package modelparams implements the §6 model-parameter access contract:
// extended_params is a tagged structured document, and the client exposes
// typed getters/setters for a fixed catalog of names, each with a section
// tag, a default, a runtime-mergeable flag, and an optional fallback name
// for read-through.
//
// Grounded on the teacher's core/meta/bck.go tagged bucket-properties
// pattern (named fields, each independently mergeable from a patch
// document) reworked for DeGirum's per-model parameter catalog.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package modelparams

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/degirum/gosdk/cmn"
)

var json = jsoniter.ConfigFastest

// Kind distinguishes the value shape of a parameter.
type Kind int

const (
	KindString Kind = iota
	KindFloat64
	KindUint64Vector
)

// spec describes one entry in the fixed parameter catalog.
type spec struct {
	section        string
	kind           Kind
	mergeable      bool
	fallback       string // name of another parameter used for read-through when unset
	defaultString  string
	defaultFloat   float64
	defaultUintVec []uint64
}

// catalog is the fixed set of named parameters the client must expose.
// DeviceType/InputShape/OutputConfThreshold are named directly by
// spec.md §6; the rest are carried over from the DeGirum model-parameter
// surface (the "(added)" names in SPEC_FULL.md's model parameter
// module) since the spec treats
// the catalog as open-ended.
var catalog = map[string]spec{
	"DeviceType":          {section: "Device", kind: KindString, mergeable: false, defaultString: ""},
	"InputShape":          {section: "InputsBase", kind: KindUint64Vector, mergeable: true},
	"OutputConfThreshold": {section: "PostProcessor", kind: KindFloat64, mergeable: true, defaultFloat: 0.1},
	"InputNumpyType":      {section: "InputsBase", kind: KindString, mergeable: true, defaultString: "DG_UINT8"},
	"InputColorSpace":     {section: "InputsBase", kind: KindString, mergeable: true, defaultString: "RGB"},
	"InputRawDataType":    {section: "InputsBase", kind: KindString, mergeable: true, fallback: "InputNumpyType"},
	"ModelInputType":      {section: "InputsBase", kind: KindString, mergeable: true, defaultString: "Image"},
}

// Params is the opaque-but-typed-accessor ModelParams document: a flat
// map of section -> field -> value, decoded from the server's modelzoo
// response and mutated only via Set (which enforces mergeability).
type Params struct {
	doc map[string]map[string]any
}

// Decode parses a ModelParams JSON document as returned verbatim inside a
// modelzoo ModelInfo entry.
func Decode(raw []byte) (*Params, error) {
	if len(raw) == 0 {
		return &Params{doc: map[string]map[string]any{}}, nil
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, cmn.WrapParseError(err, "decode ModelParams")
	}
	return &Params{doc: doc}, nil
}

func (p *Params) sectionFields(section string) map[string]any {
	f, ok := p.doc[section]
	if !ok {
		f = map[string]any{}
		if p.doc == nil {
			p.doc = map[string]map[string]any{}
		}
		p.doc[section] = f
	}
	return f
}

func (p *Params) raw(name string) (any, bool) {
	s, ok := catalog[name]
	if !ok {
		return nil, false
	}
	fields, ok := p.doc[s.section]
	if ok {
		if v, ok := fields[name]; ok {
			return v, true
		}
	}
	if s.fallback != "" {
		return p.raw(s.fallback)
	}
	return nil, false
}

// GetString returns a string-valued parameter, falling back to its
// catalog default (or its read-through fallback parameter) when unset.
func (p *Params) GetString(name string) (string, error) {
	s, ok := catalog[name]
	if !ok || s.kind != KindString {
		return "", cmn.NewBadParameter("unknown or non-string parameter %q", name)
	}
	if v, ok := p.raw(name); ok {
		if sv, ok := v.(string); ok {
			return sv, nil
		}
		return "", cmn.NewBadParameter("parameter %q has non-string value %v", name, v)
	}
	return s.defaultString, nil
}

// GetFloat64 returns a float-valued parameter.
func (p *Params) GetFloat64(name string) (float64, error) {
	s, ok := catalog[name]
	if !ok || s.kind != KindFloat64 {
		return 0, cmn.NewBadParameter("unknown or non-float parameter %q", name)
	}
	if v, ok := p.raw(name); ok {
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		}
		return 0, cmn.NewBadParameter("parameter %q has non-numeric value %v", name, v)
	}
	return s.defaultFloat, nil
}

// GetShape returns a uint64-vector-valued parameter (e.g. InputShape).
func (p *Params) GetShape(name string) ([]uint64, error) {
	s, ok := catalog[name]
	if !ok || s.kind != KindUint64Vector {
		return nil, cmn.NewBadParameter("unknown or non-shape parameter %q", name)
	}
	v, ok := p.raw(name)
	if !ok {
		out := make([]uint64, len(s.defaultUintVec))
		copy(out, s.defaultUintVec)
		return out, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, cmn.NewBadParameter("parameter %q is not a vector", name)
	}
	out := make([]uint64, 0, len(items))
	for _, it := range items {
		f, ok := it.(float64)
		if !ok || f < 0 {
			return nil, cmn.NewBadParameter("parameter %q has an invalid shape element %v", name, it)
		}
		out = append(out, uint64(f))
	}
	return out, nil
}

// Set writes a value into the parameter's section. Only runtime-mergeable
// parameters may be set; setting a non-mergeable parameter fails with
// BadParameter.
func (p *Params) Set(name string, value any) error {
	s, ok := catalog[name]
	if !ok {
		return cmn.NewBadParameter("unknown parameter %q", name)
	}
	if !s.mergeable {
		return cmn.NewBadParameter("parameter %q is not runtime-mergeable", name)
	}
	p.sectionFields(s.section)[name] = value
	return nil
}

// MergePatch overwrites only runtime-mergeable fields named in patch,
// per spec.md §6: "Merging a patch document overwrites only
// runtime-mergeable fields." Unknown or non-mergeable names accumulate
// into the returned error (one BadParameter per bad field, up to the
// cmn.Errs cap) rather than aborting the whole merge after the first bad
// field, so a caller can see everything wrong with a patch at once.
func (p *Params) MergePatch(patch map[string]any) error {
	var errs cmn.Errs
	for name, value := range patch {
		if err := p.Set(name, value); err != nil {
			errs.Add(err)
			continue
		}
	}
	return errs.JoinErr()
}

// Encode serializes the document back to JSON, e.g. to send as the merged
// model configuration in the stream-open control record (spec.md §4.4).
func (p *Params) Encode() ([]byte, error) {
	b, err := json.Marshal(p.doc)
	if err != nil {
		return nil, cmn.WrapParseError(err, "encode ModelParams")
	}
	return b, nil
}

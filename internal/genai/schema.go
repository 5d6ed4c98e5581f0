// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// DecodeOutcome reports how far a structured response had to degrade
// before it became usable.
type DecodeOutcome int

const (
	// DecodeStrict means the response matched the declared shape.
	DecodeStrict DecodeOutcome = iota

	// DecodeRelaxed means the response was salvaged by treating every
	// field as optional and merging over the caller's defaults.
	DecodeRelaxed

	// DecodeDefaults means nothing usable was parsed; the caller's
	// defaults were returned unchanged.
	DecodeDefaults
)

// GenerateSchema reflects a JSON schema for structured model outputs.
// Additional properties are disallowed and definitions are inlined so the
// schema is self-contained for the provider's response_format parameter.
func GenerateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Decode parses raw model output into T. The strict pass requires every
// declared field (recursively; fields tagged omitempty are optional). On
// strict failure the relaxed pass keeps whatever fields did parse and
// merges them over defaults; absent fields take their default. If the raw
// text is not JSON at all, defaults are returned unchanged. Decode never
// fails once defaults are supplied; the outcome tells the caller how much
// degradation occurred.
func Decode[T any](raw string, defaults T) (T, DecodeOutcome) {
	raw = stripFences(raw)

	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return defaults, DecodeDefaults
	}

	if missing := missingFields(reflect.TypeFor[T](), loose); len(missing) == 0 {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v, DecodeStrict
		}
	}

	merged, err := mergeOverDefaults(loose, defaults)
	if err != nil {
		return defaults, DecodeDefaults
	}
	return merged, DecodeRelaxed
}

// mergeOverDefaults deep-merges the parsed response over the defaults,
// response fields winning where present, then re-decodes into T.
func mergeOverDefaults[T any](loose map[string]any, defaults T) (T, error) {
	var zero T

	defData, err := json.Marshal(defaults)
	if err != nil {
		return zero, fmt.Errorf("marshaling defaults: %w", err)
	}
	var defMap map[string]any
	if err := json.Unmarshal(defData, &defMap); err != nil {
		return zero, fmt.Errorf("decoding defaults: %w", err)
	}

	merged := deepMerge(defMap, loose)

	data, err := json.Marshal(merged)
	if err != nil {
		return zero, fmt.Errorf("marshaling merged value: %w", err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, fmt.Errorf("decoding merged value: %w", err)
	}
	return v, nil
}

// deepMerge overlays src onto dst. Nested objects merge key-by-key;
// scalars and arrays in src replace the dst value. Mistyped src values
// are dropped so the default survives.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if base, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(base, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// missingFields walks the struct type and reports declared field paths
// absent from the parsed response. A field is required unless its json
// tag carries omitempty or excludes it entirely.
func missingFields(t reflect.Type, parsed map[string]any) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var missing []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, required := jsonFieldName(f)
		if name == "" {
			continue
		}
		val, present := parsed[name]
		if !present {
			if required {
				missing = append(missing, name)
			}
			continue
		}
		missing = append(missing, nestedMissing(f.Type, name, val)...)
	}
	return missing
}

// nestedMissing recurses into struct-valued and slice-of-struct fields.
func nestedMissing(t reflect.Type, path string, val any) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		sub, ok := val.(map[string]any)
		if !ok {
			return []string{path}
		}
		var out []string
		for _, m := range missingFields(t, sub) {
			out = append(out, path+"."+m)
		}
		return out

	case reflect.Slice:
		items, ok := val.([]any)
		if !ok {
			return []string{path}
		}
		elem := t.Elem()
		for elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			return nil
		}
		var out []string
		for i, item := range items {
			sub, ok := item.(map[string]any)
			if !ok {
				out = append(out, fmt.Sprintf("%s[%d]", path, i))
				continue
			}
			for _, m := range missingFields(elem, sub) {
				out = append(out, fmt.Sprintf("%s[%d].%s", path, i, m))
			}
		}
		return out
	}

	return nil
}

// jsonFieldName returns the wire name of a struct field and whether the
// field is required (no omitempty).
func jsonFieldName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name := f.Name
	required := true
	if tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		for _, p := range parts[1:] {
			if p == "omitempty" {
				required = false
			}
		}
	}
	return name, required
}

// stripFences removes a Markdown code fence wrapper some models emit
// around JSON responses.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package measure

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/ehr/measure-importer/internal/extract"
)

const (
	keyCategories = "standard_categories"
	keyCategory   = "standard_category"
)

// Description lists the categories a property draws records from, in
// declaration order, plus the matching rules for those records.
type Description struct {
	Categories []string
	Rules      extract.Rules
}

// Property is one named output of a measure definition.
type Property struct {
	Name        string
	Description Description
}

// Definition is an ordered measure definition. Property order is the order
// the properties appear in the source document.
type Definition []Property

// DecodeDefinition reads a definition from YAML or JSON, keeping the property
// order of the source.
//
//	conditions:
//	  standard_categories: [diagnosis_condition_problem]
//	  codes: {SNOMED-CT: ["44054006"]}
func DecodeDefinition(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, invalidDefinition("empty document")
	}
	var top yaml.MapSlice
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, invalidDefinition("%v", err)
	}
	return DefinitionFromMapSlice(top)
}

// DefinitionFromMapSlice converts an ordered mapping of property name to
// description into a Definition.
func DefinitionFromMapSlice(ms yaml.MapSlice) (Definition, error) {
	def := make(Definition, 0, len(ms))
	seen := make(map[string]bool, len(ms))
	for _, item := range ms {
		name := fmt.Sprint(item.Key)
		if name == "" {
			return nil, invalidDefinition("property name is empty")
		}
		if seen[name] {
			return nil, invalidDefinition("property %q is declared twice", name)
		}
		seen[name] = true

		desc, err := parseDescription(name, item.Value)
		if err != nil {
			return nil, err
		}
		def = append(def, Property{Name: name, Description: desc})
	}
	return def, nil
}

func parseDescription(property string, v interface{}) (Description, error) {
	fields, err := toStringMap(v)
	if err != nil {
		return Description{}, invalidDefinition("property %q: %v", property, err)
	}

	desc := Description{Categories: []string{}, Rules: extract.Rules{}}
	if val, ok := fields[keyCategories]; ok {
		cats, err := toStrings(val)
		if err != nil {
			return Description{}, invalidDefinition("property %q: %s: %v", property, keyCategories, err)
		}
		desc.Categories = append(desc.Categories, cats...)
	}
	if val, ok := fields[keyCategory]; ok && val != nil {
		cat, ok := val.(string)
		if !ok {
			return Description{}, invalidDefinition("property %q: %s must be a string", property, keyCategory)
		}
		desc.Categories = append(desc.Categories, cat)
	}
	for k, val := range fields {
		if k == keyCategories || k == keyCategory {
			continue
		}
		desc.Rules[k] = plainValue(val)
	}
	return desc, nil
}

func toStringMap(v interface{}) (map[string]interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case yaml.MapSlice:
		out := make(map[string]interface{}, len(m))
		for _, item := range m {
			out[fmt.Sprint(item.Key)] = item.Value
		}
		return out, nil
	default:
		return nil, fmt.Errorf("description must be a mapping, got %T", v)
	}
}

// plainValue turns ordered YAML mappings nested in rule values into plain maps
// so rules encode to JSON objects.
func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case yaml.MapSlice:
		m := make(map[string]interface{}, len(t))
		for _, item := range t {
			m[fmt.Sprint(item.Key)] = plainValue(item.Value)
		}
		return m
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = plainValue(val)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = plainValue(val)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = plainValue(val)
		}
		return out
	default:
		return v
	}
}

func toStrings(v interface{}) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{s}, nil
	case []string:
		return s, nil
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings, found %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

// Names returns the property names in definition order.
func (d Definition) Names() []string {
	names := make([]string, len(d))
	for i, p := range d {
		names[i] = p.Name
	}
	return names
}

// Lookup returns the description of the named property.
func (d Definition) Lookup(name string) (Description, bool) {
	for _, p := range d {
		if p.Name == name {
			return p.Description, true
		}
	}
	return Description{}, false
}

func (desc Description) fields() map[string]interface{} {
	out := make(map[string]interface{}, len(desc.Rules)+1)
	for k, v := range desc.Rules {
		out[k] = v
	}
	cats := desc.Categories
	if cats == nil {
		cats = []string{}
	}
	out[keyCategories] = cats
	return out
}

// MarshalJSON encodes the definition as a JSON object in property order.
func (d Definition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.Description.fields())
		if err != nil {
			return nil, fmt.Errorf("measure: encode property %q: %w", p.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object with DecodeDefinition so property order
// survives.
func (d *Definition) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	def, err := DecodeDefinition(data)
	if err != nil {
		return err
	}
	*d = def
	return nil
}

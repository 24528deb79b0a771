package prompt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-context/internal/model"
)

// Variable declares a template variable. Type is one of string, integer,
// float, boolean, list, dict, date or enum; other names are passed through
// unchecked.
type Variable struct {
	Name        string `yaml:"-" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Default     any    `yaml:"default" json:"default,omitempty"`
	Required    *bool  `yaml:"required" json:"required,omitempty"`
	Values      []any  `yaml:"values" json:"values,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// IsRequired reports whether a value must be supplied. Variables are
// required unless declared otherwise.
func (v Variable) IsRequired() bool { return v.Required == nil || *v.Required }

// VariableError reports a missing or unconvertible variable.
type VariableError struct {
	Name   string
	Type   string
	Value  any
	Values []any
	Err    error
}

func (e *VariableError) Error() string {
	msg := fmt.Sprintf("variable %q (%s)", e.Name, e.Type)
	if e.Value == nil {
		msg += ": required"
	} else {
		msg += fmt.Sprintf(": invalid value %v", e.Value)
	}
	if len(e.Values) > 0 {
		msg += fmt.Sprintf(" (allowed: %v)", e.Values)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VariableError) Unwrap() error { return e.Err }

// parseVariables reads the variables mapping. A scalar value is shorthand
// for the type name.
func parseVariables(n *yaml.Node) ([]Variable, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("variables must be a mapping")
	}
	vars := make([]Variable, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name, def := n.Content[i].Value, n.Content[i+1]
		v := Variable{Name: name}
		if def.Kind == yaml.ScalarNode {
			v.Type = def.Value
		} else if err := def.Decode(&v); err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		v.Name = name
		if v.Type == "" {
			v.Type = "string"
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// Validate checks input against defs and returns the template data: every
// declared variable converted to its type, plus any undeclared input passed
// through. A missing optional variable without a default gets its type's
// zero value.
func Validate(defs []Variable, input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(defs)+len(input))
	for _, def := range defs {
		val, ok := input[def.Name]
		if !ok || val == nil {
			switch {
			case def.Default != nil:
				val = def.Default
			case def.IsRequired():
				return nil, &VariableError{Name: def.Name, Type: def.Type, Values: def.Values}
			default:
				out[def.Name] = zeroValue(def.Type)
				continue
			}
		}
		conv, err := convert(def, val)
		if err != nil {
			return nil, err
		}
		out[def.Name] = conv
	}
	for k, v := range input {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out, nil
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", "2006/01/02", time.RFC3339}

func convert(def Variable, val any) (any, error) {
	fail := func(err error) error {
		return &VariableError{Name: def.Name, Type: def.Type, Value: val, Values: def.Values, Err: err}
	}
	switch def.Type {
	case "string":
		if s, ok := val.(string); ok {
			return s, nil
		}
		return fmt.Sprint(val), nil
	case "integer", "int":
		if f, ok := model.Numeric(val); ok {
			return int(math.Trunc(f)), nil
		}
		if s, ok := val.(string); ok {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return nil, fail(err)
			}
			return n, nil
		}
	case "float", "number":
		if f, ok := model.Numeric(val); ok {
			return f, nil
		}
		if s, ok := val.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fail(err)
			}
			return f, nil
		}
	case "boolean", "bool":
		switch v := val.(type) {
		case bool:
			return v, nil
		case string:
			return v == "true" || v == "True" || v == "1", nil
		}
		if f, ok := model.Numeric(val); ok {
			return f == 1, nil
		}
		return false, nil
	case "list":
		switch v := val.(type) {
		case []any:
			return v, nil
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		case string:
			parts := strings.Split(v, ",")
			out := make([]any, len(parts))
			for i, s := range parts {
				out[i] = strings.TrimSpace(s)
			}
			return out, nil
		}
		return []any{val}, nil
	case "dict", "map":
		switch v := val.(type) {
		case map[string]any:
			return v, nil
		case string:
			var m map[string]any
			if err := json.Unmarshal([]byte(v), &m); err != nil {
				return nil, fail(err)
			}
			return m, nil
		}
	case "date":
		switch v := val.(type) {
		case time.Time:
			return v, nil
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t, nil
				}
			}
			return nil, fail(fmt.Errorf("unrecognized date format"))
		}
	case "enum":
		if len(def.Values) == 0 {
			return val, nil
		}
		for _, allowed := range def.Values {
			if model.ScalarEqual(val, allowed) {
				return val, nil
			}
		}
		return nil, fail(nil)
	default:
		return val, nil
	}
	return nil, fail(fmt.Errorf("cannot convert %T", val))
}

func zeroValue(typ string) any {
	switch typ {
	case "integer", "int":
		return 0
	case "float", "number":
		return 0.0
	case "boolean", "bool":
		return false
	case "list":
		return []any{}
	case "dict", "map":
		return map[string]any{}
	}
	return ""
}

package router

import (
	"fmt"
	"math"
	"strings"

	"capstan/internal/manifest"
)

// buildArguments validates args against the descriptor's parameter
// schema and returns the effective argument map with defaults applied.
// It runs before any network activity; a failure here means no side
// effect can have occurred.
func buildArguments(d *manifest.Descriptor, args map[string]interface{}) (map[string]interface{}, error) {
	var problems []string

	for name := range args {
		if _, ok := d.Parameter(name); !ok {
			problems = append(problems, fmt.Sprintf("unknown argument %q", name))
		}
	}

	effective := make(map[string]interface{}, len(d.Parameters))
	for _, p := range d.Parameters {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				problems = append(problems, fmt.Sprintf("missing required argument %q", p.Name))
			} else if p.Default != nil {
				effective[p.Name] = p.Default
			}
			continue
		}
		if !argumentMatchesType(v, p.Type) {
			problems = append(problems, fmt.Sprintf("argument %q must be of type %s", p.Name, p.Type))
			continue
		}
		if len(p.Enum) > 0 && !enumAllows(p.Enum, v) {
			problems = append(problems, fmt.Sprintf("argument %q must be one of %v", p.Name, p.Enum))
			continue
		}
		effective[p.Name] = v
	}

	if len(problems) > 0 {
		return nil, &InvokeError{
			Kind:       KindValidation,
			Capability: d.ID,
			Message:    strings.Join(problems, "; "),
		}
	}
	return effective, nil
}

// argumentMatchesType checks a JSON-decoded argument against the
// declared parameter type. JSON numbers arrive as float64; an integer
// parameter accepts one only when it has no fractional part.
func argumentMatchesType(v interface{}, t manifest.ParameterType) bool {
	switch t {
	case manifest.TypeString:
		_, ok := v.(string)
		return ok
	case manifest.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case manifest.TypeNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case manifest.TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		}
		return false
	}
	return false
}

// enumAllows checks enum membership with numeric tolerance: the
// manifest may declare 2 where JSON delivers 2.0.
func enumAllows(enum []interface{}, v interface{}) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
		ef, eok := asFloat(e)
		vf, vok := asFloat(v)
		if eok && vok && ef == vf {
			return true
		}
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

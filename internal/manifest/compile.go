package manifest

import (
	"fmt"
	"os"
	"strings"

	"capstan/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	defaultInvokePath = "/invoke"
	defaultHealthPath = "/health"
)

// rawManifest is the on-disk manifest shape before compilation.
type rawManifest struct {
	Capabilities []rawCapability `yaml:"capabilities"`
}

type rawCapability struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Image       string            `yaml:"image"`
	Parameters  []rawParameter    `yaml:"parameters,omitempty"`
	Network     NetworkContract   `yaml:"network"`
	Resources   ResourcePolicy    `yaml:"resources,omitempty"`
	Autoscaling AutoscalingPolicy `yaml:"autoscaling,omitempty"`
	Env         []EnvVar          `yaml:"env,omitempty"`
}

// rawParameter is a manifest parameter entry. A parameter is required
// unless it declares a default or is explicitly marked optional; the
// required flag on the compiled Parameter is computed, never declared.
type rawParameter struct {
	Name        string        `yaml:"name"`
	Type        ParameterType `yaml:"type"`
	Optional    bool          `yaml:"optional,omitempty"`
	Enum        []interface{} `yaml:"enum,omitempty"`
	Default     interface{}   `yaml:"default,omitempty"`
	Description string        `yaml:"description,omitempty"`
}

// LoadFile reads and compiles the manifest at the given path.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	set, err := Compile(data)
	if err != nil {
		return nil, err
	}
	logging.Info("Manifest", "Compiled %d capabilities from %s", set.Len(), path)
	return set, nil
}

// Compile parses and validates a raw manifest. Compilation is
// all-or-nothing: any validation failure aborts the whole compile and
// every problem found is reported in the returned CompileErrors.
func Compile(data []byte) (*Set, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, CompileErrors{{Reason: fmt.Sprintf("invalid YAML: %v", err)}}
	}

	var errs CompileErrors
	descriptors := make(map[string]*Descriptor, len(raw.Capabilities))
	order := make([]string, 0, len(raw.Capabilities))

	for i, entry := range raw.Capabilities {
		if entry.ID == "" {
			errs.Add("", "id", fmt.Sprintf("entry %d is missing an id", i))
			continue
		}
		if _, exists := descriptors[entry.ID]; exists {
			errs.Add(entry.ID, "id", "duplicate capability id")
			continue
		}

		d := compileEntry(entry, &errs)
		descriptors[entry.ID] = d
		order = append(order, entry.ID)
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return &Set{descriptors: descriptors, order: order}, nil
}

func compileEntry(entry rawCapability, errs *CompileErrors) *Descriptor {
	d := &Descriptor{
		ID:          entry.ID,
		Name:        entry.Name,
		Description: entry.Description,
		Image:       entry.Image,
		Network:     entry.Network,
		Resources:   entry.Resources,
		Autoscaling: entry.Autoscaling,
		Env:         entry.Env,
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Image == "" {
		errs.Add(entry.ID, "image", "is required")
	}

	compileNetwork(entry.ID, &d.Network, errs)
	d.Parameters = compileParameters(entry.ID, entry.Parameters, errs)
	validateAutoscaling(entry.ID, d.Autoscaling, errs)
	validateEnv(entry.ID, d.Env, errs)

	return d
}

func compileNetwork(id string, n *NetworkContract, errs *CompileErrors) {
	if n.Port <= 0 || n.Port > 65535 {
		errs.Add(id, "network.port", fmt.Sprintf("must be between 1 and 65535, got %d", n.Port))
	}
	if n.InvokePath == "" {
		n.InvokePath = defaultInvokePath
	} else if !strings.HasPrefix(n.InvokePath, "/") {
		errs.Add(id, "network.invokePath", "must start with /")
	}
	if n.HealthPath == "" {
		n.HealthPath = defaultHealthPath
	} else if !strings.HasPrefix(n.HealthPath, "/") {
		errs.Add(id, "network.healthPath", "must start with /")
	}
	if n.Timeout < 0 {
		errs.Add(id, "network.timeout", "must not be negative")
	}
	if n.MaxRetries != nil && *n.MaxRetries < 0 {
		errs.Add(id, "network.maxRetries", "must not be negative")
	}
}

func compileParameters(id string, raw []rawParameter, errs *CompileErrors) []Parameter {
	params := make([]Parameter, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for i, rp := range raw {
		field := fmt.Sprintf("parameters[%d]", i)
		if rp.Name == "" {
			errs.Add(id, field+".name", "is required")
			continue
		}
		field = "parameters." + rp.Name
		if seen[rp.Name] {
			errs.Add(id, field, "duplicate parameter name")
			continue
		}
		seen[rp.Name] = true

		if !knownParameterTypes[rp.Type] {
			errs.Add(id, field+".type", fmt.Sprintf("unknown type %q", rp.Type))
			continue
		}
		for _, v := range rp.Enum {
			if !valueMatchesType(v, rp.Type) {
				errs.Add(id, field+".enum", fmt.Sprintf("value %v does not match type %s", v, rp.Type))
			}
		}
		if rp.Default != nil {
			if !valueMatchesType(rp.Default, rp.Type) {
				errs.Add(id, field+".default", fmt.Sprintf("value %v does not match type %s", rp.Default, rp.Type))
			} else if len(rp.Enum) > 0 && !enumContains(rp.Enum, rp.Default) {
				errs.Add(id, field+".default", fmt.Sprintf("value %v is not among the enum values", rp.Default))
			}
		}

		params = append(params, Parameter{
			Name:        rp.Name,
			Type:        rp.Type,
			Required:    rp.Default == nil && !rp.Optional,
			Enum:        rp.Enum,
			Default:     rp.Default,
			Description: rp.Description,
		})
	}
	return params
}

func validateAutoscaling(id string, a AutoscalingPolicy, errs *CompileErrors) {
	if !a.Enabled {
		return
	}
	if a.MinReplicas < 0 {
		errs.Add(id, "autoscaling.minReplicas", "must not be negative")
	}
	if a.MaxReplicas < a.MinReplicas {
		errs.Add(id, "autoscaling.maxReplicas", fmt.Sprintf("must not be smaller than minReplicas (%d < %d)", a.MaxReplicas, a.MinReplicas))
	}
	if a.TargetUtilization <= 0 || a.TargetUtilization > 100 {
		errs.Add(id, "autoscaling.targetUtilization", fmt.Sprintf("must be between 1 and 100, got %d", a.TargetUtilization))
	}
}

func validateEnv(id string, env []EnvVar, errs *CompileErrors) {
	for i, e := range env {
		if e.Name == "" {
			errs.Add(id, fmt.Sprintf("env[%d].name", i), "is required")
			continue
		}
		field := "env." + e.Name
		if e.Value != "" && e.SecretRef != "" {
			errs.Add(id, field, "value and secretRef are mutually exclusive")
		}
		if e.SecretRef != "" && len(strings.SplitN(e.SecretRef, "/", 2)) != 2 {
			errs.Add(id, field+".secretRef", "must have the form <secret>/<key>")
		}
	}
}

// valueMatchesType reports whether a YAML-decoded value satisfies the
// declared parameter type. YAML decodes integers as int and floats as
// float64; a number accepts either.
func valueMatchesType(v interface{}, t ParameterType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case TypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	}
	return false
}

func enumContains(enum []interface{}, v interface{}) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
	}
	return false
}

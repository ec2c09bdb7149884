package manifest

import "time"

// ParameterType defines the value type of a capability parameter.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
)

// knownParameterTypes lists the types a manifest entry may declare.
var knownParameterTypes = map[ParameterType]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeInteger: true,
	TypeBoolean: true,
}

// Parameter describes one argument of a capability's invocation
// contract. Required is computed at compile time: a parameter is
// required exactly when it has no default and is not marked optional.
type Parameter struct {
	Name        string
	Type        ParameterType
	Required    bool
	Enum        []interface{}
	Default     interface{}
	Description string
}

// NetworkContract describes how a capability is reached over the network.
// MaxRetries is a pointer so a declared zero (retries disabled, e.g.
// because a timed-out call may have executed) is distinguishable from
// an absent value, which defers to the router-wide default.
type NetworkContract struct {
	Port       int           `yaml:"port"`
	InvokePath string        `yaml:"invokePath,omitempty"`
	HealthPath string        `yaml:"healthPath,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries *int          `yaml:"maxRetries,omitempty"`
}

// ResourcePolicy carries compute quantities forwarded to the cluster.
// The values are opaque here; the cluster interprets them.
type ResourcePolicy struct {
	CPURequest    string `yaml:"cpuRequest,omitempty"`
	CPULimit      string `yaml:"cpuLimit,omitempty"`
	MemoryRequest string `yaml:"memoryRequest,omitempty"`
	MemoryLimit   string `yaml:"memoryLimit,omitempty"`
}

// AutoscalingPolicy declares replica bounds and the utilization target
// handed to the cluster's native scaler.
type AutoscalingPolicy struct {
	Enabled           bool  `yaml:"enabled,omitempty"`
	MinReplicas       int32 `yaml:"minReplicas,omitempty"`
	MaxReplicas       int32 `yaml:"maxReplicas,omitempty"`
	TargetUtilization int32 `yaml:"targetUtilization,omitempty"`
}

// EnvVar injects an environment variable into a capability workload,
// either as a literal value or as a reference to a cluster secret.
type EnvVar struct {
	Name      string `yaml:"name"`
	Value     string `yaml:"value,omitempty"`
	SecretRef string `yaml:"secretRef,omitempty"` // "<secret name>/<key>"
}

// Descriptor is the compiled, validated form of one manifest entry.
// Descriptors are immutable after compilation; a manifest reload
// produces a fresh set rather than mutating an existing one.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Image       string
	Parameters  []Parameter
	Network     NetworkContract
	Resources   ResourcePolicy
	Autoscaling AutoscalingPolicy
	Env         []EnvVar
}

// Parameter returns the named parameter, if declared.
func (d *Descriptor) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// RequiredParameters returns the names of all required parameters in
// declaration order.
func (d *Descriptor) RequiredParameters() []string {
	var required []string
	for _, p := range d.Parameters {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return required
}

// Set is an immutable mapping of capability id to Descriptor.
type Set struct {
	descriptors map[string]*Descriptor
	order       []string
}

// Get returns the descriptor for the given id.
func (s *Set) Get(id string) (*Descriptor, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.descriptors[id]
	return d, ok
}

// IDs returns all capability ids in manifest order.
func (s *Set) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// All returns all descriptors in manifest order.
func (s *Set) All() []*Descriptor {
	if s == nil {
		return nil
	}
	descriptors := make([]*Descriptor, 0, len(s.order))
	for _, id := range s.order {
		descriptors = append(descriptors, s.descriptors[id])
	}
	return descriptors
}

// Len returns the number of descriptors in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

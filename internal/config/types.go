package config

import "time"

// Topology selects how capability endpoints are resolved.
type Topology string

const (
	// TopologyStatic derives endpoints from a naming pattern without
	// talking to any cluster API.
	TopologyStatic Topology = "static"
	// TopologyKubernetes resolves endpoints from Kubernetes Endpoints
	// objects and enables the deployment reconciler.
	TopologyKubernetes Topology = "kubernetes"
)

// CapstanConfig is the top-level configuration structure for capstan.
type CapstanConfig struct {
	ManifestPath string         `yaml:"manifestPath,omitempty"` // Path to the capability manifest (default: ./capabilities.yaml)
	Server       ServerConfig   `yaml:"server,omitempty"`
	Resolver     ResolverConfig `yaml:"resolver,omitempty"`
	Router       RouterConfig   `yaml:"router,omitempty"`
	Cluster      ClusterConfig  `yaml:"cluster,omitempty"`
}

// ServerConfig defines the configuration for the HTTP front door.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"` // Host to bind to (default: localhost)
	Port int    `yaml:"port,omitempty"` // Port for the routing endpoint (default: 8090)
}

// ResolverConfig defines how capability endpoints are located.
type ResolverConfig struct {
	Topology       Topology      `yaml:"topology,omitempty"`       // "static" or "kubernetes" (default: static)
	ServicePattern string        `yaml:"servicePattern,omitempty"` // Hostname pattern for static topology, %s is the capability ID
	CacheTTL       time.Duration `yaml:"cacheTTL,omitempty"`       // How long resolved endpoints stay cached (default: 30s)
}

// RouterConfig defines invocation behavior shared by all capabilities
// unless a manifest entry overrides it.
type RouterConfig struct {
	DefaultTimeout time.Duration `yaml:"defaultTimeout,omitempty"` // Per-attempt invocation timeout (default: 30s)
	MaxRetries     int           `yaml:"maxRetries,omitempty"`     // Retry budget for retryable failures (default: 2)
	InitialBackoff time.Duration `yaml:"initialBackoff,omitempty"` // First retry delay (default: 200ms)
	MaxBackoff     time.Duration `yaml:"maxBackoff,omitempty"`     // Backoff ceiling (default: 5s)
}

// ClusterConfig defines the Kubernetes deployment target.
type ClusterConfig struct {
	Namespace  string `yaml:"namespace,omitempty"`  // Namespace capabilities are deployed into (default: capstan)
	Kubeconfig string `yaml:"kubeconfig,omitempty"` // Path to kubeconfig; empty means in-cluster config
}

package config

import "time"

// GetDefaultConfig returns the default configuration for capstan.
func GetDefaultConfig() CapstanConfig {
	return CapstanConfig{
		ManifestPath: "capabilities.yaml",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Resolver: ResolverConfig{
			Topology:       TopologyStatic,
			ServicePattern: "%s",
			CacheTTL:       30 * time.Second,
		},
		Router: RouterConfig{
			DefaultTimeout: 30 * time.Second,
			MaxRetries:     2,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Cluster: ClusterConfig{
			Namespace: "capstan",
		},
	}
}

package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the configuration for values that would only fail
// later at runtime, so that startup rejects them early.
func (c CapstanConfig) Validate() error {
	var errs ValidationErrors

	if c.ManifestPath == "" {
		errs.Add("manifestPath", "is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs.Add("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	switch c.Resolver.Topology {
	case TopologyStatic:
		if !strings.Contains(c.Resolver.ServicePattern, "%s") {
			errs.Add("resolver.servicePattern", "must contain %s as the capability placeholder", c.Resolver.ServicePattern)
		}
	case TopologyKubernetes:
		if c.Cluster.Namespace == "" {
			errs.Add("cluster.namespace", "is required for kubernetes topology")
		}
	default:
		errs.Add("resolver.topology", fmt.Sprintf("must be one of: %s, %s", TopologyStatic, TopologyKubernetes), string(c.Resolver.Topology))
	}
	if c.Resolver.CacheTTL < 0 {
		errs.Add("resolver.cacheTTL", "must not be negative", c.Resolver.CacheTTL)
	}
	if c.Router.MaxRetries < 0 {
		errs.Add("router.maxRetries", "must not be negative", c.Router.MaxRetries)
	}
	if c.Router.DefaultTimeout <= 0 {
		errs.Add("router.defaultTimeout", "must be positive", c.Router.DefaultTimeout)
	}
	if c.Router.InitialBackoff <= 0 {
		errs.Add("router.initialBackoff", "must be positive", c.Router.InitialBackoff)
	}
	if c.Router.MaxBackoff < c.Router.InitialBackoff {
		errs.Add("router.maxBackoff", "must not be smaller than router.initialBackoff", c.Router.MaxBackoff)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

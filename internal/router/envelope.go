package router

// InvokeRequest is the wire-level message posted to a capability's
// invocation path. Correlation metadata is an opaque passthrough; the
// backend and any logging layer may use it, the router does not.
type InvokeRequest struct {
	Args        map[string]interface{} `json:"args"`
	Correlation map[string]string      `json:"correlation,omitempty"`
}

// CapabilityFault is a domain-level error reported by the backend.
type CapabilityFault struct {
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// InvokeResponse is the wire-level reply from a capability. Exactly
// one of Result and Error is populated; anything else is a protocol
// violation.
type InvokeResponse struct {
	Result interface{}      `json:"result,omitempty"`
	Error  *CapabilityFault `json:"error,omitempty"`
}

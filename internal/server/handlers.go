package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"capstan/internal/manifest"
	"capstan/internal/router"
	"capstan/pkg/logging"
)

// routeRequest is the body of POST /route.
type routeRequest struct {
	Capability  string                 `json:"capability"`
	Args        map[string]interface{} `json:"args,omitempty"`
	Correlation map[string]string      `json:"correlation,omitempty"`
}

// invokeBody is the body of POST /capabilities/{id}/invoke.
type invokeBody struct {
	Args        map[string]interface{} `json:"args,omitempty"`
	Correlation map[string]string      `json:"correlation,omitempty"`
}

type resultResponse struct {
	Result   interface{} `json:"result"`
	Attempts int         `json:"attempts"`
}

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type capabilitySummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image"`
	Healthy     bool   `json:"healthy"`
}

type parameterView struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Required    bool          `json:"required"`
	Enum        []interface{} `json:"enum,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
	Description string        `json:"description,omitempty"`
}

type capabilityDetail struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image"`
	Parameters  []parameterView `json:"parameters,omitempty"`
	InvokePath  string          `json:"invokePath"`
	HealthPath  string          `json:"healthPath"`
	Port        int             `json:"port"`
	Autoscaled  bool            `json:"autoscaled"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}
	if req.Capability == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "capability is required", nil)
		return
	}
	s.invoke(w, r, req.Capability, req.Args, req.Correlation)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var body invokeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}
	s.invoke(w, r, r.PathValue("id"), body.Args, body.Correlation)
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, id string, args map[string]interface{}, correlation map[string]string) {
	result, err := s.router.Invoke(r.Context(), id, args, correlation)
	if err != nil {
		writeInvokeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: result.Value, Attempts: result.Attempts})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	set := s.store.Current()
	descriptors := set.All()

	summaries := make([]capabilitySummary, len(descriptors))
	var wg sync.WaitGroup
	for i, d := range descriptors {
		summaries[i] = capabilitySummary{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Image:       d.Image,
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			summaries[i].Healthy = s.router.CheckHealth(r.Context(), id) == nil
		}(i, d.ID)
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, map[string]interface{}{"capabilities": summaries})
}

func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	d, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown capability", nil)
		return
	}
	writeJSON(w, http.StatusOK, detailOf(d))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"capabilities": s.store.Current().Len(),
	})
}

func detailOf(d *manifest.Descriptor) capabilityDetail {
	params := make([]parameterView, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		params = append(params, parameterView{
			Name:        p.Name,
			Type:        string(p.Type),
			Required:    p.Required,
			Enum:        p.Enum,
			Default:     p.Default,
			Description: p.Description,
		})
	}
	return capabilityDetail{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Image:       d.Image,
		Parameters:  params,
		InvokePath:  d.Network.InvokePath,
		HealthPath:  d.Network.HealthPath,
		Port:        d.Network.Port,
		Autoscaled:  d.Autoscaling.Enabled,
	}
}

// writeInvokeError maps routing errors onto HTTP status codes. A fault
// reported by the capability itself passes through with status 200 and
// an error envelope, matching the downstream wire contract; routing
// failures use 4xx/5xx.
func writeInvokeError(w http.ResponseWriter, err error) {
	var invokeErr *router.InvokeError
	if !errors.As(err, &invokeErr) {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}

	switch invokeErr.Kind {
	case router.KindValidation:
		writeError(w, http.StatusBadRequest, "validation_failed", invokeErr.Message, nil)
	case router.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", invokeErr.Message, nil)
	case router.KindCapability:
		fault := invokeErr.Fault
		if fault == nil {
			fault = &router.CapabilityFault{Code: "capability_error", Message: invokeErr.Message}
		}
		writeJSON(w, http.StatusOK, errorResponse{Error: errorBody{
			Code:    fault.Code,
			Message: fault.Message,
			Details: fault.Details,
		}})
	case router.KindUnavailable:
		writeError(w, http.StatusServiceUnavailable, "unavailable", invokeErr.Message, map[string]interface{}{
			"attempts": invokeErr.Attempts,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal", invokeErr.Message, nil)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message, Details: details}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Server", err, "Failed to encode response")
	}
}

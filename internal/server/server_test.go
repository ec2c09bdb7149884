package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capstan/internal/manifest"
	"capstan/internal/resolve"
	"capstan/internal/router"
)

const serverManifest = `
capabilities:
  - id: calc
    name: Calculator
    image: registry.example.com/calc:v1
    parameters:
      - name: a
        type: number
      - name: op
        type: string
        enum: [add, sub]
        default: add
    network:
      port: 8080
      timeout: 2s
      maxRetries: 0
`

// fixedResolver returns one endpoint for every capability.
type fixedResolver struct {
	endpoint resolve.Endpoint
}

func (r *fixedResolver) Resolve(ctx context.Context, id string) (resolve.Endpoint, error) {
	return r.endpoint, nil
}

func (r *fixedResolver) Invalidate(id string) {}

func endpointFor(t *testing.T, ts *httptest.Server) resolve.Endpoint {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return resolve.Endpoint{Host: u.Hostname(), Port: port}
}

// newTestServer wires a front door against the given backend handler.
func newTestServer(t *testing.T, backend http.Handler) *httptest.Server {
	t.Helper()

	backendServer := httptest.NewServer(backend)
	t.Cleanup(backendServer.Close)

	set, err := manifest.Compile([]byte(serverManifest))
	require.NoError(t, err)
	store := manifest.NewStore(set)

	resolver := &fixedResolver{endpoint: endpointFor(t, backendServer)}
	config := router.DefaultConfig()
	config.MaxRetries = 0
	config.InitialBackoff = time.Millisecond
	rt := router.New(store, resolver, config)

	frontDoor := httptest.NewServer(New(Config{}, store, rt).Handler())
	t.Cleanup(frontDoor.Close)
	return frontDoor
}

func calcBackend() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		var req router.InvokeRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"echoed": req.Args},
		})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestInvokeByPath(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, body := postJSON(t, ts.URL+"/capabilities/calc/invoke", `{"args": {"a": 2}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]interface{})
	echoed := result["echoed"].(map[string]interface{})
	assert.Equal(t, float64(2), echoed["a"])
	assert.Equal(t, "add", echoed["op"], "default applied before dispatch")
	assert.Equal(t, float64(1), body["attempts"])
}

func TestRouteByBody(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, body := postJSON(t, ts.URL+"/route", `{"capability": "calc", "args": {"a": 1}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "result")
}

func TestRouteRequiresCapability(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, body := postJSON(t, ts.URL+"/route", `{"args": {"a": 1}}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "invalid_request", errBody["code"])
}

func TestInvokeValidationFailure(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, body := postJSON(t, ts.URL+"/capabilities/calc/invoke", `{"args": {"op": "add"}}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "validation_failed", errBody["code"])
	assert.Contains(t, errBody["message"], "a")
}

func TestInvokeUnknownCapability(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, body := postJSON(t, ts.URL+"/capabilities/nope/invoke", `{"args": {}}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "not_found", errBody["code"])
}

func TestCapabilityFaultPassesThrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"code":    "division_by_zero",
				"message": "b must not be zero",
				"details": map[string]interface{}{"parameter": "b"},
			},
		})
	})
	ts := newTestServer(t, mux)

	resp, body := postJSON(t, ts.URL+"/capabilities/calc/invoke", `{"args": {"a": 1}}`)

	// The backend executed; its fault envelope passes through unchanged.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "division_by_zero", errBody["code"])
	assert.Equal(t, "b must not be zero", errBody["message"])
	details := errBody["details"].(map[string]interface{})
	assert.Equal(t, "b", details["parameter"])
}

func TestInvokeBackendUnavailable(t *testing.T) {
	ts := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	resp, body := postJSON(t, ts.URL+"/capabilities/calc/invoke", `{"args": {"a": 1}}`)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "unavailable", errBody["code"])
	details := errBody["details"].(map[string]interface{})
	assert.Equal(t, float64(1), details["attempts"])
}

func TestListCapabilitiesReportsHealth(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, body := getJSON(t, ts.URL+"/capabilities")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	capabilities := body["capabilities"].([]interface{})
	require.Len(t, capabilities, 1)
	calc := capabilities[0].(map[string]interface{})
	assert.Equal(t, "calc", calc["id"])
	assert.Equal(t, "Calculator", calc["name"])
	assert.Equal(t, true, calc["healthy"])
}

func TestListCapabilitiesUnhealthyBackend(t *testing.T) {
	ts := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, body := getJSON(t, ts.URL+"/capabilities")

	capabilities := body["capabilities"].([]interface{})
	require.Len(t, capabilities, 1)
	assert.Equal(t, false, capabilities[0].(map[string]interface{})["healthy"])
}

func TestGetCapabilityDetail(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, body := getJSON(t, ts.URL+"/capabilities/calc")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "calc", body["id"])
	assert.Equal(t, "/invoke", body["invokePath"])
	assert.Equal(t, float64(8080), body["port"])

	params := body["parameters"].([]interface{})
	require.Len(t, params, 2)
	a := params[0].(map[string]interface{})
	assert.Equal(t, "a", a["name"])
	assert.Equal(t, true, a["required"])
	op := params[1].(map[string]interface{})
	assert.Equal(t, false, op["required"], "a parameter with a default is never required")
}

func TestGetCapabilityNotFound(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, _ := getJSON(t, ts.URL+"/capabilities/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, calcBackend())

	resp, body := getJSON(t, ts.URL+"/health")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["capabilities"])
}

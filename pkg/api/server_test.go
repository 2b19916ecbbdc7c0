package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/psantana5/nodehost/pkg/api"
	"github.com/psantana5/nodehost/pkg/host"
	"github.com/psantana5/nodehost/pkg/models"
	"github.com/psantana5/nodehost/pkg/plugin"
)

type probePlugin struct{}

func (probePlugin) Init(plugin.InitContext) error { return nil }
func (probePlugin) Stop()                         {}

func newTestHost(t *testing.T) *host.Loader {
	t.Helper()
	reg := plugin.NewRegistry()
	reg.Register("test/Probe", func() (plugin.Plugin, error) {
		return probePlugin{}, nil
	})

	cfg := host.DefaultConfig()
	cfg.WorkerThreads = 2
	cfg.Plugins = reg

	loader, err := host.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create host: %v", err)
	}
	t.Cleanup(func() { loader.Close() })
	return loader
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	handler := api.NewHandler(newTestHost(t))
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func doRequest(router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestInstanceLifecycle drives the full load-list-unload cycle over HTTP
func TestInstanceLifecycle(t *testing.T) {
	router := newTestRouter(t)

	// Load
	w := doRequest(router, "POST", "/nodelets", `{"name":"cam","type":"test/Probe"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Response: %s", w.Code, w.Body.String())
	}
	var loadResp models.LoadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &loadResp); err != nil {
		t.Fatalf("Failed to parse load response: %v", err)
	}
	if !loadResp.Success {
		t.Errorf("Expected success, got error %q", loadResp.Error)
	}

	// List shows the instance
	w = doRequest(router, "GET", "/nodelets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var listResp models.ListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("Failed to parse list response: %v", err)
	}
	if listResp.Count != 1 || len(listResp.Names) != 1 || listResp.Names[0] != "cam" {
		t.Errorf("List = %+v, want [cam]", listResp)
	}

	// Unload succeeds
	w = doRequest(router, "DELETE", "/nodelets/cam", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response: %s", w.Code, w.Body.String())
	}
	var unloadResp models.UnloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &unloadResp); err != nil {
		t.Fatalf("Failed to parse unload response: %v", err)
	}
	if !unloadResp.Success {
		t.Errorf("Expected unload success, got %+v", unloadResp)
	}

	// List is empty again
	w = doRequest(router, "GET", "/nodelets", "")
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Count != 0 {
		t.Errorf("List after unload = %+v, want empty", listResp)
	}

	// Second unload reports failure
	w = doRequest(router, "DELETE", "/nodelets/cam", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &unloadResp)
	if unloadResp.Success {
		t.Error("Expected unload of missing instance to report failure")
	}
}

func TestLoadValidation(t *testing.T) {
	router := newTestRouter(t)

	t.Run("InvalidBody", func(t *testing.T) {
		w := doRequest(router, "POST", "/nodelets", `{not json`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		w := doRequest(router, "POST", "/nodelets", `{"name":"cam"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		w := doRequest(router, "POST", "/nodelets", `{"name":"cam","type":"test/Missing"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
		var resp models.LoadResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Success || resp.Error == "" {
			t.Errorf("Expected failure with error message, got %+v", resp)
		}
	})

	t.Run("DuplicateName", func(t *testing.T) {
		w := doRequest(router, "POST", "/nodelets", `{"name":"dup","type":"test/Probe"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("Setup load failed with status %d", w.Code)
		}
		w = doRequest(router, "POST", "/nodelets", `{"name":"dup","type":"test/Probe"}`)
		if w.Code != http.StatusConflict {
			t.Errorf("Expected status 409, got %d", w.Code)
		}
	})
}

// TestRemapMismatchProceeds verifies mismatched remap arrays degrade to
// an empty remap table instead of failing the load
func TestRemapMismatchProceeds(t *testing.T) {
	router := newTestRouter(t)

	body := `{"name":"cam","type":"test/Probe","remap_source":["a","b"],"remap_target":["x"]}`
	w := doRequest(router, "POST", "/nodelets", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Response: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/nodelets/cam", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var info models.InstanceInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse instance info: %v", err)
	}
	if len(info.Remappings) != 0 {
		t.Errorf("Expected empty remappings after mismatch, got %v", info.Remappings)
	}
}

// TestRemapResolution verifies relative remap names are joined under the
// configured namespace while absolute names pass through
func TestRemapResolution(t *testing.T) {
	handler := api.NewHandler(newTestHost(t))
	handler.SetNamespace("/robot")
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	body := `{"name":"cam","type":"test/Probe","remap_source":["image_raw","/abs/in"],"remap_target":["cam/image","/abs/out"]}`
	w := doRequest(router, "POST", "/nodelets", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Response: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/nodelets/cam", "")
	var info models.InstanceInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse instance info: %v", err)
	}

	want := map[string]string{
		"/robot/image_raw": "/robot/cam/image",
		"/abs/in":          "/abs/out",
	}
	for k, v := range want {
		if info.Remappings[k] != v {
			t.Errorf("Remappings[%q] = %q, want %q", k, info.Remappings[k], v)
		}
	}
}

// TestSlashNames verifies instance names containing slashes route
// correctly on the parameterized endpoints
func TestSlashNames(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, "POST", "/nodelets", `{"name":"sensors/cam","type":"test/Probe"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	w = doRequest(router, "GET", "/nodelets/sensors/cam", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response: %s", w.Code, w.Body.String())
	}
	var info models.InstanceInfo
	json.Unmarshal(w.Body.Bytes(), &info)
	if info.Name != "sensors/cam" {
		t.Errorf("Instance name = %s, want sensors/cam", info.Name)
	}

	w = doRequest(router, "DELETE", "/nodelets/sensors/cam", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on delete, got %d", w.Code)
	}
}

func TestBondHeartbeatEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body := `{"name":"cam","type":"test/Probe","liveness_id":"bond-1"}`
	w := doRequest(router, "POST", "/nodelets", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	w = doRequest(router, "POST", "/bonds/bond-1/heartbeat", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Response: %s", w.Code, w.Body.String())
	}
	var hb models.HeartbeatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hb); err != nil {
		t.Fatalf("Failed to parse heartbeat response: %v", err)
	}
	if !hb.OK {
		t.Error("Expected heartbeat to be acknowledged")
	}

	w = doRequest(router, "POST", "/bonds/unknown/heartbeat", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown bond, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &hb)
	if hb.OK {
		t.Error("Expected unknown bond heartbeat to be rejected")
	}
}

func TestEventsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	doRequest(router, "POST", "/nodelets", `{"name":"cam","type":"test/Probe"}`)
	doRequest(router, "DELETE", "/nodelets/cam", "")

	w := doRequest(router, "GET", "/events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp models.EventsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse events response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("Expected 2 events, got %d", resp.Count)
	}
	if resp.Events[0].Type != models.EventUnloaded {
		t.Errorf("Expected newest event first, got %s", resp.Events[0].Type)
	}

	w = doRequest(router, "GET", "/events?limit=1", "")
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 1 {
		t.Errorf("Expected limit=1 to return 1 event, got %d", resp.Count)
	}

	w = doRequest(router, "GET", "/events?limit=abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad limit, got %d", w.Code)
	}
	w = doRequest(router, "GET", "/events?limit=0", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for zero limit, got %d", w.Code)
	}
}

func TestStatusAndHealth(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, "GET", "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var status models.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse status response: %v", err)
	}
	if status.State != "running" {
		t.Errorf("State = %s, want running", status.State)
	}
	if status.WorkerThreads != 2 {
		t.Errorf("WorkerThreads = %d, want 2", status.WorkerThreads)
	}

	w = doRequest(router, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var health map[string]string
	json.Unmarshal(w.Body.Bytes(), &health)
	if health["status"] != "healthy" {
		t.Errorf("Health = %v, want status healthy", health)
	}
}

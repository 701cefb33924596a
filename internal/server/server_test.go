package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/svetly-todorov/rasctl/internal/config"
	"github.com/svetly-todorov/rasctl/internal/testbench"
	"github.com/svetly-todorov/rasctl/internal/testutil/testlog"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.RASF.Enabled = true
	cfg.Devices = []config.DeviceConfig{
		{
			ID: "mem0", Vendor: 0x8086, Device: 0x0d93, Class: 0x050210,
			Bus: 0x0c, Role: "endpoint-memory", Serial: 0x55, DVSECBody: 20,
		},
	}
	bench, err := testbench.New(cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("testbench.New: %v", err)
	}
	t.Cleanup(func() { bench.Close() })

	s := Appear(cfg.Server.Name, cfg.Server.Addr, nil, bench)
	s.RegisterRoutes()
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ready status = %d", w.Code)
	}
	var ready struct {
		Ready bool `json:"ready"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if !ready.Ready {
		t.Fatal("server not ready after boot link")
	}
}

func TestInjectAndInspect(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodPost, "/inject/memory", memoryInjectRequest{Source: 0, Address: 0x1000})
	if w.Code != http.StatusOK {
		t.Fatalf("inject status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/region/slots/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("slot status = %d", w.Code)
	}
	var slot struct {
		BlockStatus uint32 `json:"block_status"`
		DataLength  uint32 `json:"data_length"`
		SectionType string `json:"section_type"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &slot); err != nil {
		t.Fatalf("decode slot: %v", err)
	}
	if slot.BlockStatus != 1 || slot.DataLength != 152 {
		t.Fatalf("slot = %+v", slot)
	}
	if slot.SectionType != "a5bc1114-6f64-4ede-b863-3e83ed7c83b1" {
		t.Fatalf("section type = %s", slot.SectionType)
	}

	// The source is now unacknowledged; a second inject conflicts.
	w = doJSON(t, s, http.MethodPost, "/inject/memory", memoryInjectRequest{Source: 0, Address: 0x2000})
	if w.Code != http.StatusConflict {
		t.Fatalf("second inject status = %d", w.Code)
	}

	// Acknowledge and retry.
	w = doJSON(t, s, http.MethodPost, "/region/ack/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ack status = %d", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/inject/memory", memoryInjectRequest{Source: 0, Address: 0x2000})
	if w.Code != http.StatusOK {
		t.Fatalf("inject after ack status = %d", w.Code)
	}
}

func TestInjectDeviceErrors(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodPost, "/inject/aer", deviceInjectRequest{Device: "mem0"})
	if w.Code != http.StatusOK {
		t.Fatalf("aer inject status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodPost, "/inject/aer", deviceInjectRequest{Device: "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown device status = %d", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/region/slots/zzz", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad source status = %d", w.Code)
	}
}

func TestInjectCXL(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodPost, "/inject/cxl/protocol",
		deviceInjectRequest{Device: "mem0", HeaderLog: []uint32{0xcafebabe}})
	if w.Code != http.StatusOK {
		t.Fatalf("protocol inject status = %d: %s", w.Code, w.Body.String())
	}
	doJSON(t, s, http.MethodPost, "/region/ack/1", nil)

	w = doJSON(t, s, http.MethodPost, "/inject/cxl/media",
		mediaInjectRequest{Device: "mem0", DPA: 0x2000, Type: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("media inject status = %d: %s", w.Code, w.Body.String())
	}
}

func TestScrubRoute(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodGet, "/scrub", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("scrub status = %d", w.Code)
	}
	var scrub struct {
		Running bool   `json:"running"`
		Size    uint64 `json:"size"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &scrub); err != nil {
		t.Fatalf("decode scrub: %v", err)
	}
	if scrub.Size == 0 {
		t.Fatal("scrub window empty")
	}
}

func TestDevicesRoute(t *testing.T) {
	s := testServer(t)

	w := doJSON(t, s, http.MethodGet, "/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("devices status = %d", w.Code)
	}
	var resp struct {
		Devices map[string]struct {
			Role string `json:"role"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if resp.Devices["mem0"].Role != "endpoint-memory" {
		t.Fatalf("devices = %+v", resp.Devices)
	}
}

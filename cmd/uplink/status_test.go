package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeUplink(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusHealth{Status: "ok", Uptime: 42})
	})
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusInfo{
			Name:             "agentdeck-uplink",
			Version:          "test",
			Actions:          []string{"echo", "systemInfo"},
			ClientsConnected: 2,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusHumanReadable(t *testing.T) {
	srv := newFakeUplink(t)
	addr := strings.TrimPrefix(srv.URL, "http://")

	var stdout, stderr bytes.Buffer
	code := runStatus([]string{"--addr", addr}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"agentdeck-uplink", "ok", "Clients:  2", "echo, systemInfo"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	srv := newFakeUplink(t)
	addr := strings.TrimPrefix(srv.URL, "http://")

	var stdout, stderr bytes.Buffer
	code := runStatus([]string{"--addr", addr, "--json"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}

	var parsed struct {
		Health statusHealth `json:"health"`
		Info   statusInfo   `json:"info"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, stdout.String())
	}
	if parsed.Health.Status != "ok" {
		t.Errorf("health status = %q, want ok", parsed.Health.Status)
	}
	if parsed.Info.ClientsConnected != 2 {
		t.Errorf("clientsConnected = %d, want 2", parsed.Info.ClientsConnected)
	}
}

func TestStatusUnreachableServer(t *testing.T) {
	var stdout, stderr bytes.Buffer
	// Port 1 is never listening.
	code := runStatus([]string{"--addr", "127.0.0.1:1"}, &stdout, &stderr)

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "not reachable") {
		t.Errorf("expected reachability error, got: %s", stderr.String())
	}
}

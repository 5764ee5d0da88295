package querydeckctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRunHealthPrintsPrettyJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/health" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", server.URL, "health"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if code != 0 {
		t.Fatalf("exit code = %d stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "\"status\": \"ok\"") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunQuerySendsSQLBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/query" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload["text"] != "SELECT 1" {
			t.Fatalf("payload = %v", payload)
		}
		_, _ = w.Write([]byte(`{"row_count":1}`))
	}))
	defer server.Close()

	code := Run(context.Background(), []string{"-base-url", server.URL, "-sql", "SELECT 1", "query"}, Options{
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunImportDirPostsPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		if payload["source"] != "dir" || payload["path"] != "/data/lake" {
			t.Fatalf("payload = %v", payload)
		}
		_, _ = w.Write([]byte(`{"file_count":3}`))
	}))
	defer server.Close()

	code := Run(context.Background(), []string{"-base-url", server.URL, "import-dir", "/data/lake"}, Options{
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunReturnsOneOnHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error_code":"DEPENDENCY_UNAVAILABLE"}`))
	}))
	defer server.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", server.URL, "ready"}, Options{
		Stdout: io.Discard,
		Stderr: &stderr,
	})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "http 503") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunReturnsOneWhenServerUnreachable(t *testing.T) {
	code := Run(context.Background(), []string{"-base-url", "http://127.0.0.1:1", "-timeout", "200ms", "health"}, Options{
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunReturnsTwoOnUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"frobnicate"}, Options{
		Stdout: io.Discard,
		Stderr: &stderr,
	})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: querydeckctl") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunReturnsTwoWhenQueryMissingSQL(t *testing.T) {
	code := Run(context.Background(), []string{"query"}, Options{
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunReturnsTwoWithoutCommand(t *testing.T) {
	code := Run(context.Background(), nil, Options{Stdout: io.Discard, Stderr: io.Discard})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

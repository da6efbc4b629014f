package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"doorman/internal/config"
)

func setTestConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	config.Set(cfg)
	t.Cleanup(func() { config.Set(nil) })
}

func TestEntryHandlerRedirects(t *testing.T) {
	setTestConfig(t, &config.Config{
		Entry: config.EntryConfig{Target: "index.html"},
	})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"GET root", http.MethodGet, "/", ""},
		{"GET arbitrary path", http.MethodGet, "/anything", ""},
		{"GET nested path", http.MethodGet, "/a/b/c", ""},
		{"GET with query", http.MethodGet, "/anything?foo=bar&baz=1", ""},
		{"POST with body", http.MethodPost, "/anything", "payload that must be ignored"},
		{"PUT", http.MethodPut, "/put/target", "{}"},
		{"DELETE", http.MethodDelete, "/resource/42", ""},
		{"HEAD", http.MethodHead, "/", ""},
		{"OPTIONS", http.MethodOptions, "/", ""},
		{"PATCH", http.MethodPatch, "/x", "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("X-Whatever", "also ignored")
			rr := httptest.NewRecorder()

			EntryHandler(rr, req)

			if rr.Code != http.StatusFound {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusFound)
			}
			if loc := rr.Header().Get("Location"); loc != "index.html" {
				t.Errorf("Location = %q, want %q", loc, "index.html")
			}
		})
	}
}

func TestEntryHandlerLocationIsVerbatim(t *testing.T) {
	// The relative target must not be resolved against the request path;
	// a request deep in the path space gets the exact same header.
	setTestConfig(t, &config.Config{
		Entry: config.EntryConfig{Target: "index.html"},
	})

	req := httptest.NewRequest(http.MethodGet, "/deeply/nested/dir/", nil)
	rr := httptest.NewRecorder()
	EntryHandler(rr, req)

	if loc := rr.Header().Get("Location"); loc != "index.html" {
		t.Errorf("Location = %q, want verbatim %q", loc, "index.html")
	}
}

func TestEntryHandlerConfiguredTarget(t *testing.T) {
	setTestConfig(t, &config.Config{
		Entry: config.EntryConfig{Target: "welcome/start.html"},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	EntryHandler(rr, req)

	if loc := rr.Header().Get("Location"); loc != "welcome/start.html" {
		t.Errorf("Location = %q, want %q", loc, "welcome/start.html")
	}
}

func TestEntryHandlerIdempotent(t *testing.T) {
	setTestConfig(t, &config.Config{
		Entry: config.EntryConfig{Target: "index.html"},
	})

	var first *httptest.ResponseRecorder
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/anything", nil)
		rr := httptest.NewRecorder()
		EntryHandler(rr, req)

		if first == nil {
			first = rr
			continue
		}
		if rr.Code != first.Code {
			t.Fatalf("invocation %d: status %d differs from first %d", i, rr.Code, first.Code)
		}
		if rr.Header().Get("Location") != first.Header().Get("Location") {
			t.Fatalf("invocation %d: Location differs from first", i)
		}
	}
}

func TestEntryHandlerConcurrent(t *testing.T) {
	setTestConfig(t, &config.Config{
		Entry: config.EntryConfig{Target: "index.html"},
	})

	const concurrency = 100

	var wg sync.WaitGroup
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/concurrent", nil)
			rr := httptest.NewRecorder()
			EntryHandler(rr, req)

			if rr.Code != http.StatusFound {
				errs <- fmt.Errorf("status = %d, want 302", rr.Code)
				return
			}
			if loc := rr.Header().Get("Location"); loc != "index.html" {
				errs <- fmt.Errorf("Location = %q, want index.html", loc)
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

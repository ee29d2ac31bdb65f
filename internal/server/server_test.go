package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/fingerglow/internal/app"
	"github.com/ayusman/fingerglow/internal/source"
)

func getHealth(t *testing.T, s *Server) map[string]json.RawMessage {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	var response map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestServer_HealthReportsSource(t *testing.T) {
	t.Run("viewer without a controller omits the source", func(t *testing.T) {
		response := getHealth(t, New(Config{}))
		if _, ok := response["source"]; ok {
			t.Error("expected no source field without a controller")
		}
		if string(response["status"]) != `"ok"` {
			t.Errorf("expected status ok, got %s", response["status"])
		}
	})

	t.Run("remote source awaiting a sender", func(t *testing.T) {
		url := "http://192.168.1.2:8080/?mode=sender&target=0b6a7c1e-4f7e-4c65-9a7e-3f1f7c2d9b10"
		c := newFakeController(app.Status{
			Source:        "remote",
			Pairing:       "awaiting-call",
			PairingStatus: "Connecting",
			PairingURL:    url,
		})
		response := getHealth(t, New(Config{Controller: c}))

		var st app.Status
		if err := json.Unmarshal(response["source"], &st); err != nil {
			t.Fatalf("failed to decode source: %v", err)
		}
		if st.Source != "remote" || st.Ready {
			t.Errorf("expected a remote source that is not ready, got %+v", st)
		}
		if st.PairingURL != url {
			t.Errorf("expected pairing url %q, got %q", url, st.PairingURL)
		}
	})

	t.Run("a switch shows up in the next health check", func(t *testing.T) {
		c := newFakeController(app.Status{Source: "local", Ready: true})
		s := New(Config{Controller: c})

		req := httptest.NewRequest(http.MethodPost, "/api/source", strings.NewReader(`{"kind":"remote"}`))
		s.ServeHTTP(httptest.NewRecorder(), req)

		var st app.Status
		if err := json.Unmarshal(getHealth(t, s)["source"], &st); err != nil {
			t.Fatalf("failed to decode source: %v", err)
		}
		if st.Source != "remote" {
			t.Errorf("expected source remote after switching, got %q", st.Source)
		}
	})

	t.Run("health is read-only", func(t *testing.T) {
		s := New(Config{Controller: newFakeController(app.Status{Source: "local"})})
		req := httptest.NewRequest(http.MethodPost, "/api/health", strings.NewReader(`{"kind":"remote"}`))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestServer_Viewer(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "viewer at root", path: "/", want: []string{"/api/stream", "/api/events"}},
		{name: "sender page from a pairing url", path: "/?mode=sender&target=0b6a7c1e-4f7e-4c65-9a7e-3f1f7c2d9b10", want: []string{"startSender"}},
	}

	s := New(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
			}
			for _, w := range tt.want {
				if !strings.Contains(rec.Body.String(), w) {
					t.Errorf("expected embedded page to reference %q", w)
				}
			}
		})
	}

	t.Run("unknown api route is not the viewer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_StaticDirReplacesViewer(t *testing.T) {
	dir := t.TempDir()
	page := "<html><body>custom viewer</body></html>"
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0644); err != nil {
		t.Fatalf("failed to write page: %v", err)
	}

	c := newFakeController(app.Status{Source: "local", Ready: true})
	s := New(Config{StaticDir: dir, Controller: c})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Body.String() != page {
		t.Errorf("expected the static dir page, got %q", rec.Body.String())
	}

	// API routes still win over the static dir.
	req = httptest.NewRequest(http.MethodGet, "/api/source", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"source":"local"`) {
		t.Errorf("expected source status from the api, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestServer_SourceRoute(t *testing.T) {
	c := newFakeController(app.Status{Source: "local", Ready: true})
	s := New(Config{Controller: c})

	req := httptest.NewRequest(http.MethodPost, "/api/source", strings.NewReader(`{"kind":"remote"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if got := c.switched(); len(got) != 1 || got[0] != source.KindRemote {
		t.Errorf("expected one switch to remote, got %v", got)
	}
}

func TestServer_RoutesNeedDependencies(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/source", "/api/pairing/qr.png", "/api/stream", "/api/sessions", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fingerglow_ticks_total 1\n"))
	})
	s := New(Config{Metrics: metrics})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "fingerglow_ticks_total") {
		t.Errorf("expected metrics body, got %q", rec.Body.String())
	}
}

func TestServer_SignalPath(t *testing.T) {
	called := false
	signal := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	s := New(Config{Signal: signal})

	req := httptest.NewRequest(http.MethodGet, "/signal", nil)
	s.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("expected signal handler at /signal")
	}
}

func TestServer_ListenAndServeShutsDown(t *testing.T) {
	s := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, "127.0.0.1:0", time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

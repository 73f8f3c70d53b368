package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, labels []string, scores []Score) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/labels", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"labels": labels})
	})
	mux.HandleFunc("POST /v1/classify", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		f.Close()
		_ = json.NewEncoder(w).Encode(map[string]any{"scores": scores})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProvider_ReadyCachesLabels(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, []string{"Speech", "Music"}, nil)
	p, err := NewHTTP(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if p.Labels() != nil {
		t.Error("labels should be nil before Ready")
	}
	if err := p.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	got := p.Labels()
	if len(got) != 2 || got[0] != "Speech" {
		t.Errorf("Labels = %v, want [Speech Music]", got)
	}
}

func TestHTTPProvider_ReadyServerLoading(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p, err := NewHTTP(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Ready(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Ready = %v, want ErrNotReady", err)
	}
}

func TestHTTPProvider_Classify(t *testing.T) {
	t.Parallel()

	want := []Score{{Label: "Speech", Score: 0.8}, {Label: "Music", Score: 0.1}}
	srv := newTestServer(t, []string{"Speech", "Music"}, want)

	p, err := NewHTTP(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Classify(context.Background(), make([]float32, 15600))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Classify = %v, want %v", got, want)
	}
}

func TestHTTPProvider_ClassifyServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, err := NewHTTP(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Classify(context.Background(), make([]float32, 15600)); err == nil {
		t.Error("expected error from failing server")
	}
}

func TestNewHTTP_EmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTP(""); err == nil {
		t.Error("expected error for empty server URL")
	}
}

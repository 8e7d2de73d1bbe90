package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/attendance-tracker/internal/facematch"
)

func newTestServer(t *testing.T, dim int, vectorLen int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "model": "openface", "dim": dim})
	})
	mux.HandleFunc("/embed/aligned", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			http.Error(w, "content type "+ct, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dim":       vectorLen,
			"embedding": make([]float32, vectorLen),
			"model":     "openface",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_LoadAndEmbed(t *testing.T) {
	srv := newTestServer(t, 128, 128)
	c := NewClient(srv.URL+"/", 128, 0, nil)
	ctx := context.Background()

	if c.IsLoaded() {
		t.Fatal("client must start unloaded")
	}
	if _, err := c.Embed(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4))); !errors.Is(err, facematch.ErrBackendNotLoaded) {
		t.Fatalf("got %v, want ErrBackendNotLoaded", err)
	}

	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Model() != "openface" {
		t.Errorf("model = %q, want openface", c.Model())
	}

	vec, err := c.Embed(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 128 {
		t.Errorf("len = %d, want 128", len(vec))
	}

	c.Unload()
	if c.IsLoaded() {
		t.Error("expected unloaded after Unload")
	}
}

func TestClient_LoadRejectsWrongDim(t *testing.T) {
	srv := newTestServer(t, 512, 512)
	c := NewClient(srv.URL, 128, 0, nil)

	err := c.Load(context.Background())
	if !errors.Is(err, facematch.ErrDimensionMismatch) {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
	if c.IsLoaded() {
		t.Error("client must stay unloaded")
	}
}

func TestClient_EmbedRejectsWrongLength(t *testing.T) {
	srv := newTestServer(t, 0, 64)
	c := NewClient(srv.URL, 128, 0, nil)
	ctx := context.Background()
	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err := c.Embed(ctx, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	if !errors.Is(err, facematch.ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestClient_LoadServerDown(t *testing.T) {
	srv := newTestServer(t, 128, 128)
	srv.Close()
	c := NewClient(srv.URL, 128, 0, nil)

	if err := c.Load(context.Background()); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

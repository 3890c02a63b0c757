package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRenderCode_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/render" {
			t.Fatalf("path = %s, want /api/render", r.URL.Path)
		}

		var req renderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Payload != "signed-payload" {
			t.Fatalf("payload = %s, want signed-payload", req.Payload)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(renderResponse{ImageURL: "https://cdn.example/codes/abc.png"}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	url, err := client.RenderCode(ctx, "signed-payload")
	if err != nil {
		t.Fatalf("RenderCode: %v", err)
	}
	if url != "https://cdn.example/codes/abc.png" {
		t.Fatalf("url = %s", url)
	}
}

func TestRenderCode_RetriesAfterServerError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(renderResponse{ImageURL: "https://cdn.example/codes/retry.png"}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url, err := client.RenderCode(ctx, "signed-payload")
	if err != nil {
		t.Fatalf("RenderCode: %v", err)
	}
	if url != "https://cdn.example/codes/retry.png" {
		t.Fatalf("url = %s", url)
	}
	if calls.Load() < 2 {
		t.Fatalf("calls = %d, want at least 2", calls.Load())
	}
}

func TestRenderCode_EmptyImageURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.RenderCode(ctx, "signed-payload"); err == nil {
		t.Fatal("expected error on empty image_url")
	}
}

func TestRenderCode_NotConfigured(t *testing.T) {
	client := NewClient("")
	if _, err := client.RenderCode(context.Background(), "signed-payload"); err == nil {
		t.Fatal("expected error on empty base URL")
	}
}

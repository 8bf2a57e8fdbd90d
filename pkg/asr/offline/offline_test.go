package offline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", "sec", "http://x"); err == nil {
		t.Fatal("New with empty appID should fail")
	}
	if _, err := New("app", "sec", ""); err == nil {
		t.Fatal("New with empty baseURL should fail")
	}
}

func TestParseLattice(t *testing.T) {
	best1, _ := json.Marshal(map[string]any{
		"st": map[string]any{"rt": []any{map[string]any{"ws": []any{
			map[string]any{"cw": []any{map[string]any{"w": "你好"}}},
			map[string]any{"cw": []any{map[string]any{"w": "世界"}, map[string]any{"w": "世届"}}},
		}}}},
	})
	best2, _ := json.Marshal(map[string]any{
		"st": map[string]any{"rt": []any{map[string]any{"ws": []any{
			map[string]any{"cw": []any{map[string]any{"w": "再见"}}},
		}}}},
	})
	orderResult, _ := json.Marshal(map[string]any{
		"lattice": []any{
			map[string]any{"json_1best": string(best1)},
			map[string]any{"json_1best": string(best2)},
		},
	})

	got, err := ParseLattice(string(orderResult))
	if err != nil {
		t.Fatalf("ParseLattice: %v", err)
	}
	if got != "你好世界再见" {
		t.Fatalf("ParseLattice = %q, want %q", got, "你好世界再见")
	}

	if _, err := ParseLattice("{not json"); err == nil {
		t.Fatal("malformed lattice should fail")
	}
}

func TestTranscribeUploadAndPoll(t *testing.T) {
	best, _ := json.Marshal(map[string]any{
		"st": map[string]any{"rt": []any{map[string]any{"ws": []any{
			map[string]any{"cw": []any{map[string]any{"w": "我说完了"}}},
		}}}},
	})
	orderResult, _ := json.Marshal(map[string]any{
		"lattice": []any{map[string]any{"json_1best": string(best)}},
	})

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appId") != "app" || r.URL.Query().Get("signa") == "" {
			t.Errorf("missing auth params on %s", r.URL.Path)
		}
		switch r.URL.Path {
		case "/upload":
			if r.Method != http.MethodPost {
				t.Errorf("upload method = %s", r.Method)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"code": "000000", "descInfo": "success",
				"content": map[string]any{"orderId": "ord-1"},
			})
		case "/getResult":
			if got := r.URL.Query().Get("orderId"); got != "ord-1" {
				t.Errorf("orderId = %q", got)
			}
			// First poll still in progress, second done.
			status := 3
			result := ""
			if polls.Add(1) >= 2 {
				status = 4
				result = string(orderResult)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"code": "000000", "descInfo": "success",
				"content": map[string]any{
					"orderInfo":   map[string]any{"status": status, "failType": 0},
					"orderResult": result,
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New("app", "sec", srv.URL, WithPollInterval(5*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFFfake"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	got, err := c.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "我说完了" {
		t.Fatalf("Transcribe = %q, want %q", got, "我说完了")
	}
	if polls.Load() < 2 {
		t.Fatalf("expected at least 2 polls, got %d", polls.Load())
	}
}

func TestTranscribeOrderFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload":
			json.NewEncoder(w).Encode(map[string]any{
				"code": "000000", "content": map[string]any{"orderId": "ord-2"},
			})
		case "/getResult":
			json.NewEncoder(w).Encode(map[string]any{
				"code": "000000",
				"content": map[string]any{
					"orderInfo": map[string]any{"status": -1, "failType": 2},
				},
			})
		}
	}))
	defer srv.Close()

	c, err := New("app", "sec", srv.URL, WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	if _, err := c.Transcribe(context.Background(), path); err == nil {
		t.Fatal("failed order should surface an error")
	}
}

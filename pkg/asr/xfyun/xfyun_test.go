package xfyun

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", "key"); err == nil {
		t.Fatal("New with empty appID should fail")
	}
	if _, err := New("app", ""); err == nil {
		t.Fatal("New with empty apiKey should fail")
	}
	if _, err := New("app", "key"); err != nil {
		t.Fatalf("New returned unexpected error: %v", err)
	}
}

func TestSignedURL(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	c, err := New("myapp", "mykey", WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := c.signedURL(c.now())
	if err != nil {
		t.Fatalf("signedURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}

	q := u.Query()
	if got := q.Get("appid"); got != "myapp" {
		t.Errorf("appid = %q, want %q", got, "myapp")
	}
	if got := q.Get("ts"); got != "1700000000" {
		t.Errorf("ts = %q, want %q", got, "1700000000")
	}

	sig, err := base64.StdEncoding.DecodeString(q.Get("signa"))
	if err != nil {
		t.Fatalf("signa is not valid base64: %v", err)
	}
	if len(sig) != 20 {
		t.Errorf("signature length = %d, want 20 (SHA-1)", len(sig))
	}

	// Signing is deterministic for a fixed clock.
	again, err := c.signedURL(c.now())
	if err != nil {
		t.Fatalf("signedURL: %v", err)
	}
	if raw != again {
		t.Errorf("signed URL not deterministic:\n%s\n%s", raw, again)
	}
}

func TestParseFrame(t *testing.T) {
	result := `{"action":"result","data":"{\"cn\":{\"st\":{\"rt\":[{\"ws\":[{\"cw\":[{\"w\":\"你好\"}]},{\"cw\":[{\"w\":\"世界\"},{\"w\":\"世届\"}]}]}]}}}"}`

	t.Run("result extracts first candidates", func(t *testing.T) {
		ev, ok := ParseFrame([]byte(result))
		if !ok {
			t.Fatal("ParseFrame returned ok=false")
		}
		if ev.Err != nil {
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
		if ev.Text != "你好世界" {
			t.Fatalf("Text = %q, want %q", ev.Text, "你好世界")
		}
	})

	t.Run("error frame", func(t *testing.T) {
		ev, ok := ParseFrame([]byte(`{"action":"error","code":"10800","desc":"over max connect limit"}`))
		if !ok {
			t.Fatal("ParseFrame returned ok=false")
		}
		if ev.Err == nil {
			t.Fatal("error frame should carry Err")
		}
	})

	t.Run("started frame ignored", func(t *testing.T) {
		if _, ok := ParseFrame([]byte(`{"action":"started","sid":"rta0001"}`)); ok {
			t.Fatal("handshake ack should be ignored")
		}
	})

	t.Run("non-chinese result ignored", func(t *testing.T) {
		frame := `{"action":"result","data":"{\"cn\":{\"st\":{\"rt\":[{\"ws\":[{\"cw\":[{\"w\":\" \"}]}]}]}}}"}`
		if _, ok := ParseFrame([]byte(frame)); ok {
			t.Fatal("whitespace-only result should be ignored")
		}
	})

	t.Run("malformed json ignored", func(t *testing.T) {
		if _, ok := ParseFrame([]byte(`{not json`)); ok {
			t.Fatal("malformed frame should be ignored")
		}
	})
}

// silentServer accepts the websocket handshake and then never sends a frame,
// holding the connection open until the client drops it.
func silentServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamCloseReturnsPromptly(t *testing.T) {
	srv := silentServer(t)
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")

	c, err := New("app", "key", WithEndpoint(endpoint))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := c.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	// Close must not hang waiting for a vendor frame that never comes.
	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return with the read loop parked on a silent peer")
	}

	// Both loops are gone: the events channel is closed and a second Close is
	// a no-op.
	for range s.Events() {
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.SendAudio([]byte{4}); err == nil {
		t.Fatal("SendAudio after Close should fail")
	}
}

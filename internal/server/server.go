package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mianlab/koushi/internal/orchestrator"
)

// writeTimeout bounds one outbound frame write.
const writeTimeout = 10 * time.Second

// Server upgrades websocket requests and runs one orchestrator session per
// connection. It implements [http.Handler] and is mounted at /ws.
type Server struct {
	hub  *Hub
	deps orchestrator.Deps
	cfg  orchestrator.Config
	log  *slog.Logger
}

// New creates the websocket server. The hub is created here and injected into
// every session's dependencies.
func New(deps orchestrator.Deps, cfg orchestrator.Config) *Server {
	hub := NewHub()
	deps.Hub = hub
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{hub: hub, deps: deps, cfg: cfg, log: log}
}

// Hub returns the stream-group hub, shared across all sessions.
func (s *Server) Hub() *Hub { return s.hub }

// ServeHTTP accepts the websocket and drives the session until it ends. The
// candidate identifies via the user_id query parameter; bearer-token
// authentication happens in the HTTP middleware in front of this handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "missing or invalid user_id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sessionID := uuid.NewString()
	sender := &wsSender{conn: conn}
	sess := orchestrator.New(sessionID, userID, sender, s.deps, s.cfg)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readLoop(ctx, conn, sess)
	}()

	runErr := sess.Run(ctx)
	cancel()
	if runErr != nil {
		s.log.Warn("session ended with error", "session_id", sessionID, "error", runErr)
		conn.Close(websocket.StatusPolicyViolation, "session closed")
	} else {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	wg.Wait()
}

// readLoop pumps inbound frames into the session until the socket closes.
func readLoop(ctx context.Context, conn *websocket.Conn, sess *orchestrator.Session) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			sess.Deliver(orchestrator.Disconnected{Err: err})
			return
		}
		sess.Deliver(orchestrator.InboundFrame{Data: data})
	}
}

// wsSender marshals server frames onto the socket. The session's run loop and
// hub relays from other sessions write concurrently, so writes are serialised
// here.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ orchestrator.Sender = (*wsSender)(nil)

func (s *wsSender) Send(ctx context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("server: marshal frame: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("server: write frame: %w", err)
	}
	return nil
}

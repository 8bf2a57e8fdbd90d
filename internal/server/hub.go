// Package server exposes the websocket message channel and the stream-group
// hub behind it.
//
// Each accepted socket runs one orchestrator session; the hub groups peers of
// the same interview stream for WebRTC signalling relay and observer video
// fan-out. Relayed payloads are opaque: the server never parses SDP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mianlab/koushi/internal/orchestrator"
)

// ErrNoStream is returned by Join when the stream group does not exist.
var ErrNoStream = errors.New("server: stream not found")

// Hub is the concurrent stream-group registry. It implements
// [orchestrator.Hub].
type Hub struct {
	mu     sync.Mutex
	groups map[string]*group
	log    *slog.Logger
}

type group struct {
	title       string
	description string
	members     map[string]orchestrator.Sender // peerID → sender
}

var _ orchestrator.Hub = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{groups: make(map[string]*group), log: slog.Default()}
}

// Create allocates a new stream group owned by peer and returns the group and
// peer IDs.
func (h *Hub) Create(peer orchestrator.Sender, title, description string) (streamID, peerID string) {
	streamID, peerID = uuid.NewString(), uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groups[streamID] = &group{
		title:       title,
		description: description,
		members:     map[string]orchestrator.Sender{peerID: peer},
	}
	return streamID, peerID
}

// Join adds peer to an existing group. Returns [ErrNoStream] when the group
// does not exist.
func (h *Hub) Join(streamID string, peer orchestrator.Sender) (title, peerID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[streamID]
	if !ok {
		return "", "", ErrNoStream
	}
	peerID = uuid.NewString()
	g.members[peerID] = peer
	return g.title, peerID, nil
}

// Relay forwards frame to targetPeer, or to every member except fromPeer when
// targetPeer is empty. Delivery is best-effort: a member whose socket is gone
// is skipped.
func (h *Hub) Relay(streamID, fromPeer, targetPeer string, frame any) {
	for _, member := range h.recipients(streamID, fromPeer, targetPeer) {
		if err := member.Send(context.Background(), frame); err != nil {
			h.log.Debug("relay delivery failed", "stream_id", streamID, "error", err)
		}
	}
}

// recipients snapshots the delivery set under the lock so sends happen
// without holding it.
func (h *Hub) recipients(streamID, fromPeer, targetPeer string) []orchestrator.Sender {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[streamID]
	if !ok {
		return nil
	}
	if targetPeer != "" {
		if member, ok := g.members[targetPeer]; ok {
			return []orchestrator.Sender{member}
		}
		return nil
	}
	out := make([]orchestrator.Sender, 0, len(g.members))
	for id, member := range g.members {
		if id == fromPeer {
			continue
		}
		out = append(out, member)
	}
	return out
}

// Leave removes the peer from its group, notifies remaining members with a
// peer_left frame, and deletes the group when it is empty.
func (h *Hub) Leave(streamID, peerID string) {
	h.mu.Lock()
	g, ok := h.groups[streamID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(g.members, peerID)
	if len(g.members) == 0 {
		delete(h.groups, streamID)
		h.mu.Unlock()
		return
	}
	remaining := make([]orchestrator.Sender, 0, len(g.members))
	for _, member := range g.members {
		remaining = append(remaining, member)
	}
	h.mu.Unlock()

	for _, member := range remaining {
		if err := member.Send(context.Background(), orchestrator.PeerLeftFrame{Type: "peer_left", PeerID: peerID}); err != nil {
			h.log.Debug("peer_left delivery failed", "stream_id", streamID, "error", err)
		}
	}
}

// Len reports the number of live stream groups.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups)
}

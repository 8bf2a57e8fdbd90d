package server

import (
	"context"
	"sync"
	"testing"

	"github.com/mianlab/koushi/internal/orchestrator"
)

// memberSender records relayed frames for one fake peer.
type memberSender struct {
	mu     sync.Mutex
	frames []any
}

func (m *memberSender) Send(ctx context.Context, frame any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
	return nil
}

func (m *memberSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func (m *memberSender) last(t *testing.T) any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		t.Fatal("no frames received")
	}
	return m.frames[len(m.frames)-1]
}

func TestHubCreateAndJoin(t *testing.T) {
	hub := NewHub()
	owner := &memberSender{}

	streamID, ownerPeer := hub.Create(owner, "模拟面试", "后端岗位")
	if streamID == "" || ownerPeer == "" {
		t.Fatal("create returned empty IDs")
	}
	if hub.Len() != 1 {
		t.Fatalf("hub has %d groups, want 1", hub.Len())
	}

	viewer := &memberSender{}
	title, viewerPeer, err := hub.Join(streamID, viewer)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if title != "模拟面试" {
		t.Fatalf("title = %q", title)
	}
	if viewerPeer == ownerPeer {
		t.Fatal("peer IDs collide")
	}

	if _, _, err := hub.Join("no-such-stream", viewer); err != ErrNoStream {
		t.Fatalf("join unknown stream: err = %v, want ErrNoStream", err)
	}
}

func TestHubTargetedRelay(t *testing.T) {
	hub := NewHub()
	owner := &memberSender{}
	viewerA := &memberSender{}
	viewerB := &memberSender{}

	streamID, ownerPeer := hub.Create(owner, "t", "")
	_, peerA, _ := hub.Join(streamID, viewerA)
	_, _, _ = hub.Join(streamID, viewerB)

	frame := orchestrator.AnswerFrame{Type: "answer", PeerID: ownerPeer}
	hub.Relay(streamID, ownerPeer, peerA, frame)

	if viewerA.count() != 1 {
		t.Fatalf("target received %d frames, want 1", viewerA.count())
	}
	if viewerB.count() != 0 || owner.count() != 0 {
		t.Fatal("targeted relay leaked to other members")
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	owner := &memberSender{}
	viewerA := &memberSender{}
	viewerB := &memberSender{}

	streamID, ownerPeer := hub.Create(owner, "t", "")
	hub.Join(streamID, viewerA)
	hub.Join(streamID, viewerB)

	frame := orchestrator.VideoFrameFrame{Type: "video_frame", FrameData: "ZGF0YQ==", PeerID: ownerPeer}
	hub.Relay(streamID, ownerPeer, "", frame)

	if owner.count() != 0 {
		t.Fatal("broadcast echoed back to the sender")
	}
	if viewerA.count() != 1 || viewerB.count() != 1 {
		t.Fatalf("viewers received %d/%d frames, want 1/1", viewerA.count(), viewerB.count())
	}
	got, ok := viewerA.last(t).(orchestrator.VideoFrameFrame)
	if !ok || got.PeerID != ownerPeer {
		t.Fatalf("relayed frame = %+v", viewerA.last(t))
	}
}

func TestHubLeaveNotifiesAndDeletesEmptyGroup(t *testing.T) {
	hub := NewHub()
	owner := &memberSender{}
	viewer := &memberSender{}

	streamID, ownerPeer := hub.Create(owner, "t", "")
	_, viewerPeer, _ := hub.Join(streamID, viewer)

	hub.Leave(streamID, ownerPeer)
	left, ok := viewer.last(t).(orchestrator.PeerLeftFrame)
	if !ok || left.PeerID != ownerPeer {
		t.Fatalf("peer_left frame = %+v", viewer.last(t))
	}
	if hub.Len() != 1 {
		t.Fatalf("group deleted too early, hub has %d groups", hub.Len())
	}

	hub.Leave(streamID, viewerPeer)
	if hub.Len() != 0 {
		t.Fatalf("empty group not deleted, hub has %d groups", hub.Len())
	}

	// Leaving an unknown group is a no-op.
	hub.Leave("no-such-stream", "p")
}

package orchestrator

import "github.com/mianlab/koushi/pkg/asr"

// Inbox events. Every input source — the client socket, the transcription
// connector and pump, the silence timer, the scoring workers — delivers into
// the session's inbox; the run loop is the only consumer. Exported events are
// delivered by other packages (the websocket server, the scorer's registry
// notification); unexported ones originate from the session's own goroutines.

// InboundFrame is one raw frame read off the client socket. The session
// parses it so protocol errors are answered in order with everything else.
type InboundFrame struct {
	Data []byte
}

// Disconnected signals that the client transport closed. Err is the transport
// error, nil for a clean close. The session tears down; buffered but
// unflushed answer state is discarded.
type Disconnected struct {
	Err error
}

// asrConnected hands the established transcription stream from the connector
// goroutine to the run loop, which owns it from then on.
type asrConnected struct {
	stream asr.Stream
}

// asrFragment is one extracted-Chinese transcription fragment.
type asrFragment struct {
	text string
}

// asrFailed reports that transcription is gone for the rest of the session:
// either every connect attempt failed or an established stream died.
type asrFailed struct {
	reason string
}

// silenceTimeout fires when the auto silence policy saw no activity for the
// configured window. gen guards against stale timers: the session bumps its
// generation on every reset, and a timeout whose generation does not match is
// ignored.
type silenceTimeout struct {
	gen uint64
}

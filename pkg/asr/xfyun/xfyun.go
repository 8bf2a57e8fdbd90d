// Package xfyun provides the real-time transcription client for the iFLYTEK
// RTASR websocket service. It implements [asr.Client].
package xfyun

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mianlab/koushi/pkg/asr"
)

const defaultEndpoint = "wss://rtasr.xfyun.cn/v1/ws"

// endTerminator tells the vendor that no more audio follows.
const endTerminator = `{"end": true}`

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithEndpoint overrides the vendor websocket endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithClock overrides the timestamp source used for URL signing. Tests use
// this to sign against a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client dials the RTASR service. It implements [asr.Client].
type Client struct {
	appID    string
	apiKey   string
	endpoint string
	now      func() time.Time
}

var _ asr.Client = (*Client)(nil)

// New creates a Client. appID and apiKey must be non-empty.
func New(appID, apiKey string, opts ...Option) (*Client, error) {
	if appID == "" || apiKey == "" {
		return nil, errors.New("xfyun: appID and apiKey must not be empty")
	}
	c := &Client{
		appID:    appID,
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Connect dials the vendor with a freshly signed URL and starts the stream's
// read and write loops.
func (c *Client) Connect(ctx context.Context) (asr.Stream, error) {
	wsURL, err := c.signedURL(c.now())
	if err != nil {
		return nil, fmt.Errorf("xfyun: sign URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("xfyun: dial: %w", err)
	}

	s := &stream{
		conn:      conn,
		events:    make(chan asr.Event, 64),
		audio:     make(chan outFrame, 256),
		done:      make(chan struct{}),
		writeDone: make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

// signedURL builds the websocket URL with the vendor's HMAC-SHA1 signature:
// signa = base64(HMAC-SHA1(apiKey, md5(appID + ts))).
func (c *Client) signedURL(at time.Time) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}

	ts := strconv.FormatInt(at.Unix(), 10)
	digest := md5.Sum([]byte(c.appID + ts))
	mac := hmac.New(sha1.New, []byte(c.apiKey))
	fmt.Fprintf(mac, "%x", digest)
	signa := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	q := u.Query()
	q.Set("appid", c.appID)
	q.Set("ts", ts)
	q.Set("signa", signa)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- stream ----

// outFrame is one queued outbound message: binary PCM or the text terminator.
type outFrame struct {
	data []byte
	text bool
}

// closeFlushTimeout caps how long Close waits for the write loop to drain
// the queue before it drops the socket.
const closeFlushTimeout = 2 * time.Second

// stream is a live RTASR session. It implements [asr.Stream].
type stream struct {
	conn   *websocket.Conn
	events chan asr.Event
	audio  chan outFrame

	done      chan struct{}
	writeDone chan struct{}
	once      sync.Once
	wg        sync.WaitGroup
}

// SendAudio queues one binary PCM chunk. Chunks are forwarded in queue order.
func (s *stream) SendAudio(chunk []byte) error {
	return s.enqueue(outFrame{data: chunk})
}

// SendEnd queues the end terminator, flushing pending recognition.
func (s *stream) SendEnd() error {
	return s.enqueue(outFrame{data: []byte(endTerminator), text: true})
}

func (s *stream) enqueue(f outFrame) error {
	select {
	case <-s.done:
		return errors.New("xfyun: stream is closed")
	default:
	}
	select {
	case s.audio <- f:
		return nil
	case <-s.done:
		return errors.New("xfyun: stream is closed")
	}
}

// Events returns the channel of transcription events.
func (s *stream) Events() <-chan asr.Event { return s.events }

// Close terminates the stream. It queues the end terminator when there is
// room, lets the write loop drain briefly, then drops the socket so a parked
// read returns. Safe to call more than once.
func (s *stream) Close() error {
	s.once.Do(func() {
		select {
		case s.audio <- outFrame{data: []byte(endTerminator), text: true}:
		default:
		}
		close(s.done)

		// The read loop may be parked in conn.Read; the socket must go down
		// before waiting on it.
		select {
		case <-s.writeDone:
		case <-time.After(closeFlushTimeout):
		}
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop forwards queued frames to the vendor socket.
func (s *stream) writeLoop() {
	defer s.wg.Done()
	defer close(s.writeDone)
	ctx := context.Background()
	for {
		select {
		case f := <-s.audio:
			kind := websocket.MessageBinary
			if f.text {
				kind = websocket.MessageText
			}
			if err := s.conn.Write(ctx, kind, f.data); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is already queued before exiting.
			for {
				select {
				case f := <-s.audio:
					kind := websocket.MessageBinary
					if f.text {
						kind = websocket.MessageText
					}
					_ = s.conn.Write(ctx, kind, f.data)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives vendor frames and dispatches extracted fragments. A
// vendor error frame emits one terminal error event and ends the loop.
func (s *stream) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	ctx := context.Background()
	for {
		select {
		case <-s.done:
			return
		default:
		}
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		ev, ok := ParseFrame(msg)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
		if ev.Err != nil {
			return
		}
	}
}

// ---- frame parsing ----

// vendorFrame is the ingress JSON envelope. For action "result" the data
// field is itself a JSON document carrying the candidate transcriptions.
type vendorFrame struct {
	Action string `json:"action"`
	Code   string `json:"code"`
	Desc   string `json:"desc"`
	Data   string `json:"data"`
}

// resultData is the nested transcription structure: segments (rt), candidate
// words (ws), candidates (cw) with the recognised text (w).
type resultData struct {
	Cn struct {
		St struct {
			Rt []struct {
				Ws []struct {
					Cw []struct {
						W string `json:"w"`
					} `json:"cw"`
				} `json:"ws"`
			} `json:"rt"`
		} `json:"st"`
	} `json:"cn"`
}

// ParseFrame parses a raw vendor message into an event. Returns (zero, false)
// for frames that carry nothing to deliver: handshake acks, heartbeats,
// results whose extracted Chinese text is empty.
func ParseFrame(data []byte) (asr.Event, bool) {
	var f vendorFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return asr.Event{}, false
	}
	switch f.Action {
	case "result":
		text := asr.ExtractChinese(extractWords(f.Data))
		if text == "" {
			return asr.Event{}, false
		}
		return asr.Event{Text: text}, true
	case "error":
		return asr.Event{Err: fmt.Errorf("xfyun: vendor error %s: %s", f.Code, f.Desc)}, true
	default:
		return asr.Event{}, false
	}
}

// extractWords walks the nested result structure and concatenates the first
// candidate of every word slot, in order.
func extractWords(data string) string {
	var rd resultData
	if err := json.Unmarshal([]byte(data), &rd); err != nil {
		return ""
	}
	var out []byte
	for _, rt := range rd.Cn.St.Rt {
		for _, ws := range rt.Ws {
			if len(ws.Cw) > 0 {
				out = append(out, ws.Cw[0].W...)
			}
		}
	}
	return string(out)
}

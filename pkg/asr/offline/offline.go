// Package offline provides the upload-then-poll transcription client used by
// the answer scorer to re-transcribe a recorded clip.
//
// The vendor flow is: upload the media file, receive an order ID, poll the
// order until it reaches a terminal status, then parse the nested best-path
// lattice into a concatenated transcript.
package offline

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mianlab/koushi/pkg/asr"
)

// Order statuses reported by the poll endpoint.
const (
	statusDone   = 4
	statusFailed = -1
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollBudget   = 5 * time.Minute
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for upload and polling.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpc = hc
	}
}

// WithPollInterval overrides the pause between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithClock overrides the timestamp source used for request signing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client talks to the offline transcription service.
type Client struct {
	appID        string
	secret       string
	baseURL      string
	httpc        *http.Client
	pollInterval time.Duration
	now          func() time.Time
}

// New creates a Client. appID, secret, and baseURL must be non-empty.
func New(appID, secret, baseURL string, opts ...Option) (*Client, error) {
	if appID == "" || secret == "" {
		return nil, errors.New("offline: appID and secret must not be empty")
	}
	if baseURL == "" {
		return nil, errors.New("offline: baseURL must not be empty")
	}
	c := &Client{
		appID:        appID,
		secret:       secret,
		baseURL:      baseURL,
		httpc:        http.DefaultClient,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe uploads the media file at path and polls until the order
// completes, returning the concatenated Chinese transcript.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	orderID, err := c.upload(ctx, path)
	if err != nil {
		return "", err
	}
	return c.poll(ctx, orderID)
}

// envelope is the common vendor response wrapper.
type envelope struct {
	Code     string          `json:"code"`
	DescInfo string          `json:"descInfo"`
	Content  json.RawMessage `json:"content"`
}

// upload posts the file as multipart form data and returns the order ID.
func (c *Client) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("offline: open media: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signedURL("/upload", nil), pr)
	if err != nil {
		return "", fmt.Errorf("offline: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	env, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("offline: upload: %w", err)
	}

	var content struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(env.Content, &content); err != nil {
		return "", fmt.Errorf("offline: parse upload response: %w", err)
	}
	if content.OrderID == "" {
		return "", errors.New("offline: upload response carried no order ID")
	}
	return content.OrderID, nil
}

// poll queries the order status until it is terminal or the budget runs out.
func (c *Client) poll(ctx context.Context, orderID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultPollBudget)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		text, done, err := c.pollOnce(ctx, orderID)
		if err != nil {
			return "", err
		}
		if done {
			return text, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("offline: poll order %s: %w", orderID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, orderID string) (text string, done bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.signedURL("/getResult", url.Values{"orderId": {orderID}}), nil)
	if err != nil {
		return "", false, fmt.Errorf("offline: build poll request: %w", err)
	}

	env, err := c.do(req)
	if err != nil {
		return "", false, fmt.Errorf("offline: poll: %w", err)
	}

	var content struct {
		OrderInfo struct {
			Status   int `json:"status"`
			FailType int `json:"failType"`
		} `json:"orderInfo"`
		OrderResult string `json:"orderResult"`
	}
	if err := json.Unmarshal(env.Content, &content); err != nil {
		return "", false, fmt.Errorf("offline: parse poll response: %w", err)
	}

	switch content.OrderInfo.Status {
	case statusDone:
		out, err := ParseLattice(content.OrderResult)
		if err != nil {
			return "", false, err
		}
		return out, true, nil
	case statusFailed:
		return "", false, fmt.Errorf("offline: order %s failed (failType %d)", orderID, content.OrderInfo.FailType)
	default:
		return "", false, nil
	}
}

// do executes the request and unwraps the vendor envelope, treating any
// non-success vendor code as an error.
func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Code != "000000" {
		return nil, fmt.Errorf("vendor code %s: %s", env.Code, env.DescInfo)
	}
	return &env, nil
}

// signedURL appends the signed auth parameters to the endpoint path:
// signa = base64(HMAC-SHA1(secret, md5(appID + ts))).
func (c *Client) signedURL(path string, extra url.Values) string {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	digest := md5.Sum([]byte(c.appID + ts))
	mac := hmac.New(sha1.New, []byte(c.secret))
	fmt.Fprintf(mac, "%x", digest)
	signa := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	q := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("appId", c.appID)
	q.Set("ts", ts)
	q.Set("signa", signa)
	return c.baseURL + path + "?" + q.Encode()
}

// ---- lattice parsing ----

// lattice is the order result: one entry per audio segment, each carrying a
// JSON-encoded best path.
type lattice struct {
	Lattice []struct {
		JSONBest string `json:"json_1best"`
	} `json:"lattice"`
}

// bestPath mirrors the per-segment best-path structure.
type bestPath struct {
	St struct {
		Rt []struct {
			Ws []struct {
				Cw []struct {
					W string `json:"w"`
				} `json:"cw"`
			} `json:"ws"`
		} `json:"rt"`
	} `json:"st"`
}

// ParseLattice concatenates the best-path words of every lattice segment and
// filters the result to Chinese text.
func ParseLattice(orderResult string) (string, error) {
	var lat lattice
	if err := json.Unmarshal([]byte(orderResult), &lat); err != nil {
		return "", fmt.Errorf("offline: parse lattice: %w", err)
	}
	var raw []byte
	for _, seg := range lat.Lattice {
		var bp bestPath
		if err := json.Unmarshal([]byte(seg.JSONBest), &bp); err != nil {
			continue
		}
		for _, rt := range bp.St.Rt {
			for _, ws := range rt.Ws {
				if len(ws.Cw) > 0 {
					raw = append(raw, ws.Cw[0].W...)
				}
			}
		}
	}
	return asr.ExtractChinese(string(raw)), nil
}

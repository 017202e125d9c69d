package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
)

const closeTimeout = 2 * time.Second

// Subprotocols offered during the websocket upgrade, newest first.
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

var (
	// ErrHandshake is returned when the broker rejects or mangles CONNECT.
	ErrHandshake = errors.New("stomp handshake failed")
	// ErrMalformedFrame marks a message that could not be decoded as a STOMP frame.
	// The connection itself is still usable.
	ErrMalformedFrame = errors.New("malformed stomp frame")
	// ErrHeartbeatTimeout is returned by Read when the broker stayed silent
	// past the negotiated heart-beat window. The connection is closed.
	ErrHeartbeatTimeout = errors.New("stomp heart-beat timeout")
)

// DialOptions controls the websocket upgrade and the STOMP CONNECT frame.
type DialOptions struct {
	Host             string // virtual host, defaults to the URL host
	Login            string
	Passcode         string
	HTTPHeader       http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	HeartBeatSend    time.Duration // offered outgoing interval, 0 for none
	HeartBeatReceive time.Duration // desired incoming interval, 0 for none
}

// Conn is a STOMP session carried over a websocket, one frame per message.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration

	// Version and Server are taken from the CONNECTED frame.
	Version string
	Server  string
	// SendInterval is the negotiated outgoing heart-beat interval; 0 means
	// the broker does not want heart-beats.
	SendInterval time.Duration
}

// Dial upgrades to a websocket and performs the CONNECT/CONNECTED exchange.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.HandshakeTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: Subprotocols,
		HTTPHeader:   opts.HTTPHeader,
	})
	if err != nil {
		return nil, err
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}
	c := &Conn{ws: ws, writeTimeout: opts.WriteTimeout}

	host := opts.Host
	if host == "" {
		host = u.Hostname()
	}
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.0,1.1,1.2",
		frame.Host, host,
		frame.HeartBeat, millis(opts.HeartBeatSend)+","+millis(opts.HeartBeatReceive),
	)
	if opts.Login != "" {
		connect.Header.Set(frame.Login, opts.Login)
		connect.Header.Set(frame.Passcode, opts.Passcode)
	}
	if err := c.Send(ctx, connect); err != nil {
		_ = ws.CloseNow()
		return nil, err
	}

	reply, err := c.Read(ctx)
	if err != nil {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	switch reply.Command {
	case frame.CONNECTED:
		c.Version = reply.Header.Get(frame.Version)
		c.Server = reply.Header.Get(frame.Server)
		sx, sy := parseHeartBeat(reply.Header.Get(frame.HeartBeat))
		c.SendInterval = negotiate(opts.HeartBeatSend, sy)
		if in := negotiate(opts.HeartBeatReceive, sx); in > 0 {
			c.readTimeout = 2 * in
		}
		return c, nil
	case frame.ERROR:
		_ = ws.CloseNow()
		return nil, fmt.Errorf("%w: %s", ErrHandshake, reply.Header.Get(frame.Message))
	default:
		_ = ws.CloseNow()
		return nil, fmt.Errorf("%w: unexpected %s frame", ErrHandshake, reply.Command)
	}
}

// Read returns the next frame, skipping heart-beats. Once heart-beats are
// negotiated every message must arrive within the read window.
func (c *Conn) Read(ctx context.Context) (*frame.Frame, error) {
	for {
		data, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		f, err := frame.NewReader(bytes.NewReader(data)).Read()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		if f == nil {
			continue
		}
		return f, nil
	}
}

func (c *Conn) next(ctx context.Context) ([]byte, error) {
	if c.readTimeout <= 0 {
		_, data, err := c.ws.Read(ctx)
		return data, err
	}
	rctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()
	_, data, err := c.ws.Read(rctx)
	if err != nil && ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: nothing received for %s", ErrHeartbeatTimeout, c.readTimeout)
	}
	return data, err
}

// Heartbeat writes a single EOL.
func (c *Conn) Heartbeat(ctx context.Context) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return c.ws.Write(ctx, websocket.MessageText, []byte("\n"))
}

// Send writes a single frame. Safe for concurrent use.
func (c *Conn) Send(ctx context.Context, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return c.ws.Write(ctx, websocket.MessageText, buf.Bytes())
}

// Close sends DISCONNECT on a best-effort basis and closes the websocket.
func (c *Conn) Close(reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = c.Send(ctx, frame.New(frame.DISCONNECT))
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}

// CloseNow drops the connection without a closing handshake.
func (c *Conn) CloseNow() error {
	return c.ws.CloseNow()
}

func millis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// parseHeartBeat reads a "cx,cy" header; anything unparsable counts as 0.
func parseHeartBeat(v string) (x, y time.Duration) {
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0
	}
	return parseMillis(a), parseMillis(b)
}

func parseMillis(v string) time.Duration {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

// negotiate applies the STOMP rule: no heart-beats unless both sides want
// them, otherwise the slower of the two intervals.
func negotiate(ours, theirs time.Duration) time.Duration {
	if ours <= 0 || theirs <= 0 {
		return 0
	}
	return max(ours, theirs)
}

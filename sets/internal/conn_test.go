package internal

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
)

// stompServer answers CONNECT with reply and then echoes every SEND back as
// a MESSAGE. Raw payloads queued in extra are written right after the reply.
func stompServer(t *testing.T, reply *frame.Frame, extra ...string) (url string, connects chan *frame.Frame) {
	t.Helper()
	connects = make(chan *frame.Frame, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: Subprotocols})
		if err != nil {
			return
		}
		defer ws.CloseNow()
		ctx := context.Background()

		f, err := readFrame(ctx, ws)
		if err != nil {
			return
		}
		connects <- f
		if err := writeFrame(ctx, ws, reply); err != nil {
			return
		}
		for _, raw := range extra {
			if err := ws.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
				return
			}
		}
		for {
			f, err := readFrame(ctx, ws)
			if err != nil {
				return
			}
			if f.Command != frame.SEND {
				continue
			}
			msg := frame.New(frame.MESSAGE,
				frame.Destination, f.Header.Get(frame.Destination),
				frame.Subscription, "echo",
				frame.MessageId, "1",
			)
			msg.Body = f.Body
			if err := writeFrame(ctx, ws, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), connects
}

func readFrame(ctx context.Context, ws *websocket.Conn) (*frame.Frame, error) {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	return frame.NewReader(bytes.NewReader(data)).Read()
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, buf.Bytes())
}

func testDial(t *testing.T, url string) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, DialOptions{Login: "guest", Passcode: "secret", WriteTimeout: time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func TestDialHandshake(t *testing.T) {
	url, connects := stompServer(t, frame.New(frame.CONNECTED, frame.Version, "1.2", frame.Server, "test/1"))
	c := testDial(t, url)

	if c.Version != "1.2" || c.Server != "test/1" {
		t.Fatalf("unexpected CONNECTED headers: %q %q", c.Version, c.Server)
	}
	connect := <-connects
	if connect.Command != frame.CONNECT {
		t.Fatalf("expected CONNECT, got %s", connect.Command)
	}
	if got := connect.Header.Get(frame.AcceptVersion); got != "1.0,1.1,1.2" {
		t.Fatalf("unexpected accept-version %q", got)
	}
	if got := connect.Header.Get(frame.Host); got != "127.0.0.1" {
		t.Fatalf("unexpected host %q", got)
	}
	if connect.Header.Get(frame.Login) != "guest" || connect.Header.Get(frame.Passcode) != "secret" {
		t.Fatalf("credentials not sent")
	}
}

func TestDialRejected(t *testing.T) {
	url, _ := stompServer(t, frame.New(frame.ERROR, frame.Message, "bad credentials"))
	_, err := Dial(context.Background(), url, DialOptions{HandshakeTimeout: 3 * time.Second})
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad credentials") {
		t.Fatalf("broker message lost: %v", err)
	}
}

func TestSendAndReadRoundTrip(t *testing.T) {
	url, _ := stompServer(t, frame.New(frame.CONNECTED, frame.Version, "1.2"))
	c := testDial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	send := frame.New(frame.SEND, frame.Destination, "/app/create-room", frame.ContentType, "application/json")
	send.Body = []byte(`{"maxPlayers":4}`)
	if err := c.Send(ctx, send); err != nil {
		t.Fatalf("send: %v", err)
	}

	f, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Command != frame.MESSAGE || f.Header.Get(frame.Destination) != "/app/create-room" {
		t.Fatalf("unexpected frame %s %v", f.Command, f.Header)
	}
	if string(f.Body) != `{"maxPlayers":4}` {
		t.Fatalf("unexpected body %q", f.Body)
	}
}

func TestReadSkipsHeartbeatsAndFlagsGarbage(t *testing.T) {
	url, _ := stompServer(t, frame.New(frame.CONNECTED, frame.Version, "1.2"), "\n", "NOT-A-COMMAND\x00")
	c := testDial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := c.Read(ctx)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame after heart-beat, got %v", err)
	}
}

func TestDialNegotiatesHeartBeats(t *testing.T) {
	url, connects := stompServer(t, frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "100,20"))
	c, err := Dial(context.Background(), url, DialOptions{
		HandshakeTimeout: 3 * time.Second,
		HeartBeatSend:    50 * time.Millisecond,
		HeartBeatReceive: 40 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	if got := (<-connects).Header.Get(frame.HeartBeat); got != "50,40" {
		t.Fatalf("unexpected heart-beat header %q", got)
	}
	if c.SendInterval != 50*time.Millisecond {
		t.Fatalf("expected 50ms send interval, got %s", c.SendInterval)
	}

	// The broker promised a beat every 100ms and then says nothing.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	_, err = c.Read(ctx)
	if !errors.Is(err, ErrHeartbeatTimeout) {
		t.Fatalf("expected ErrHeartbeatTimeout, got %v", err)
	}
	if waited := time.Since(start); waited < 200*time.Millisecond {
		t.Fatalf("read gave up after %s, before the grace window", waited)
	}
}

func TestHeartBeatsOffWhenBrokerDeclines(t *testing.T) {
	url, _ := stompServer(t, frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0"))
	c, err := Dial(context.Background(), url, DialOptions{
		HandshakeTimeout: 3 * time.Second,
		HeartBeatSend:    10 * time.Millisecond,
		HeartBeatReceive: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()
	if c.SendInterval != 0 {
		t.Fatalf("heart-beats sent although the broker declined: %s", c.SendInterval)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := c.Read(ctx); errors.Is(err, ErrHeartbeatTimeout) {
		t.Fatalf("read window applied without negotiated heart-beats")
	}
}

func TestParseHeartBeat(t *testing.T) {
	cases := []struct {
		in   string
		x, y time.Duration
	}{
		{"10000,5000", 10 * time.Second, 5 * time.Second},
		{"0,0", 0, 0},
		{" 20 , 30 ", 20 * time.Millisecond, 30 * time.Millisecond},
		{"", 0, 0},
		{"abc,-1", 0, 0},
	}
	for _, tc := range cases {
		x, y := parseHeartBeat(tc.in)
		if x != tc.x || y != tc.y {
			t.Errorf("parseHeartBeat(%q) = %s,%s want %s,%s", tc.in, x, y, tc.x, tc.y)
		}
	}
}

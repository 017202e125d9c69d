package sets

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
)

// fakeBroker is a minimal STOMP-over-websocket server: it accepts CONNECT,
// records every client frame and fans out published messages to matching
// subscriptions.
type fakeBroker struct {
	srv *httptest.Server

	mu        sync.Mutex
	conns     []*brokerConn
	connects  int
	frames    []*frame.Frame
	nextMsg   int
	heartBeat string // heart-beat header of CONNECTED, empty for none
}

type brokerConn struct {
	ws   *websocket.Conn
	subs map[string]string // subscription id -> destination
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(func() {
		b.dropAll()
		b.srv.Close()
	})
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *fakeBroker) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"v12.stomp"}})
	if err != nil {
		return
	}
	ctx := context.Background()

	connect, err := readTestFrame(ctx, ws)
	if err != nil || connect.Command != frame.CONNECT {
		_ = ws.CloseNow()
		return
	}
	connected := frame.New(frame.CONNECTED, frame.Version, "1.2", frame.Server, "fake/1.0")
	b.mu.Lock()
	b.frames = append(b.frames, connect)
	if b.heartBeat != "" {
		connected.Header.Set(frame.HeartBeat, b.heartBeat)
	}
	b.mu.Unlock()
	if err := writeTestFrame(ctx, ws, connected); err != nil {
		return
	}

	bc := &brokerConn{ws: ws, subs: make(map[string]string)}
	b.mu.Lock()
	b.conns = append(b.conns, bc)
	b.connects++
	b.mu.Unlock()

	for {
		f, err := readTestFrame(ctx, ws)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.frames = append(b.frames, f)
		switch f.Command {
		case frame.SUBSCRIBE:
			bc.subs[f.Header.Get(frame.Id)] = f.Header.Get(frame.Destination)
		case frame.UNSUBSCRIBE:
			delete(bc.subs, f.Header.Get(frame.Id))
		}
		b.mu.Unlock()
	}
}

func (b *fakeBroker) setHeartBeat(v string) {
	b.mu.Lock()
	b.heartBeat = v
	b.mu.Unlock()
}

func (b *fakeBroker) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// received returns the client frames seen so far with the given command.
func (b *fakeBroker) received(command string) []*frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*frame.Frame
	for _, f := range b.frames {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

// subscribers counts live subscriptions on destination across connections.
func (b *fakeBroker) subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.conns {
		for _, d := range c.subs {
			if d == destination {
				n++
			}
		}
	}
	return n
}

// publish delivers body to every subscription on destination.
func (b *fakeBroker) publish(t *testing.T, destination, body string) {
	t.Helper()
	b.mu.Lock()
	type target struct {
		ws *websocket.Conn
		id string
	}
	var targets []target
	for _, c := range b.conns {
		for id, d := range c.subs {
			if d == destination {
				targets = append(targets, target{c.ws, id})
			}
		}
	}
	b.mu.Unlock()

	for _, tg := range targets {
		b.mu.Lock()
		b.nextMsg++
		msgID := strconv.Itoa(b.nextMsg)
		b.mu.Unlock()
		f := frame.New(frame.MESSAGE,
			frame.Destination, destination,
			frame.Subscription, tg.id,
			frame.MessageId, msgID,
			frame.ContentType, "application/json",
		)
		f.Body = []byte(body)
		if err := writeTestFrame(context.Background(), tg.ws, f); err != nil {
			t.Logf("publish: %v", err)
		}
	}
}

// sendAll writes f to every open connection.
func (b *fakeBroker) sendAll(t *testing.T, f *frame.Frame) {
	t.Helper()
	b.mu.Lock()
	conns := append([]*brokerConn(nil), b.conns...)
	b.mu.Unlock()
	for _, c := range conns {
		if err := writeTestFrame(context.Background(), c.ws, f); err != nil {
			t.Logf("send: %v", err)
		}
	}
}

// dropAll kills every connection without a closing handshake.
func (b *fakeBroker) dropAll() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.CloseNow()
	}
}

func readTestFrame(ctx context.Context, ws *websocket.Conn) (*frame.Frame, error) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		f, err := frame.NewReader(bytes.NewReader(data)).Read()
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

func writeTestFrame(ctx context.Context, ws *websocket.Conn, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, buf.Bytes())
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

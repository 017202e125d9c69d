package sets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/jpillora/backoff"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/internal"
)

// Session owns the single broker connection of an authenticated user and
// multiplexes it into topic subscriptions. The zero value is not usable;
// construct it with NewSession.
//
// Handlers of one connection run sequentially on that connection's read
// goroutine, in the order the broker sent the frames.
type Session struct {
	cfg    Config
	logger atomic.Pointer[Logger]
	clock  clockwork.Clock
	reader atomic.Uint64 // goroutine running the read loop, 0 when none

	mu       sync.Mutex
	conn     *internal.Conn
	cancel   context.CancelFunc // non-nil while the supervisor runs
	state    ConnectionState
	subs     map[string]*Subscription
	watchers []stateWatcher
	nextID   uint64
	onError  func(error)
}

type stateWatcher struct {
	id uint64
	fn func(StateEvent)
}

// NewSession constructs a session with provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewSession(cfg Config) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Session{
		cfg:   cfg,
		clock: clock,
		subs:  make(map[string]*Subscription),
	}
	s.SetLogger(noopLogger{})
	return s
}

// SetLogger overrides logger (optional). It may be called at any time.
func (s *Session) SetLogger(l Logger) {
	if l == nil {
		return
	}
	s.logger.Store(&l)
}

func (s *Session) log() Logger {
	return *s.logger.Load()
}

// OnError registers callback for broker ERROR frames.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the STOMP handshake completed on a live connection.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Watch registers fn for every state transition and returns a func that
// removes it. Subscriptions do not survive a reconnection, so this is how
// callers learn they must subscribe again.
func (s *Session) Watch(fn func(StateEvent)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers = append(s.watchers, stateWatcher{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, w := range s.watchers {
				if w.id == id {
					s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

// Connect starts the connection supervisor. It returns immediately; progress
// is observable through IsConnected and Watch. Calling Connect while a
// supervisor is already running does nothing.
//
// Connection failures are never returned: the supervisor keeps retrying
// after ReconnectDelay until Disconnect is called.
func (s *Session) Connect() {
	if err := s.cfg.validate(); err != nil {
		s.log().Error("cannot connect", map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, cancel)
}

// Disconnect tears down the connection, cancels any pending reconnection and
// drops every subscription. It is safe to call any number of times, including
// from inside a Handler.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	if cancel != nil {
		cancel()
	}
	conn := s.conn
	s.conn = nil
	subs := s.subs
	s.subs = make(map[string]*Subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.drop()
	}
	if conn != nil {
		if err := conn.Close("client disconnect"); err != nil && !isExpectedDisconnect(nil, err) {
			s.log().Debug("close failed", map[string]any{"error": err.Error()})
		}
	}
	if cancel == nil && conn == nil {
		return
	}
	s.log().Info("disconnected", map[string]any{"subscriptions": len(subs)})
	s.transition(nil, StateClosed, nil)
}

// WaitConnected blocks until the session is connected or ctx is done.
func (s *Session) WaitConnected(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	stop := s.Watch(func(ev StateEvent) {
		if ev.NewState == StateConnected {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer stop()

	if s.IsConnected() {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return WrapError(ErrorTimeout, "waiting for connection", ctx.Err())
	}
}

// Subscribe registers handler for every message delivered on topic.
// It fails with ErrNotConnected while offline; nothing is remembered for later.
func (s *Session) Subscribe(ctx context.Context, topic string, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, NewError(ErrorInvalidConfig, "nil handler")
	}

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		s.log().Debug("subscribe while offline", map[string]any{"topic": topic})
		return nil, ErrNotConnected
	}
	sub := &Subscription{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
		session: s,
	}
	// Registered before SUBSCRIBE goes out so the first MESSAGE finds it.
	s.subs[sub.id] = sub
	s.mu.Unlock()

	f := frame.New(frame.SUBSCRIBE,
		frame.Id, sub.id,
		frame.Destination, topic,
		frame.Ack, "auto",
	)
	if err := conn.Send(ctx, f); err != nil {
		s.mu.Lock()
		delete(s.subs, sub.id)
		s.mu.Unlock()
		sub.drop()
		return nil, WrapError(ErrorConnection, "subscribe failed", err)
	}
	s.log().Debug("subscribed", map[string]any{"topic": topic, "id": sub.id})
	return sub, nil
}

// Send JSON-encodes payload and publishes it to destination under the
// application prefix. Sends are fire-and-forget: while offline the payload
// is dropped, the failure logged and ErrNotConnected returned.
func (s *Session) Send(ctx context.Context, destination string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.log().Error("cannot send message, not connected", map[string]any{"destination": destination})
		return ErrNotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return WrapError(ErrorSerialization, "failed to marshal payload", err)
	}
	f := frame.New(frame.SEND,
		frame.Destination, s.route(destination),
		frame.ContentType, "application/json",
	)
	f.Header.Set(frame.ContentLength, strconv.Itoa(len(body)))
	f.Body = body

	if err := conn.Send(ctx, f); err != nil {
		s.log().Warn("send failed", map[string]any{"destination": destination, "error": err.Error()})
		return WrapError(ErrorConnection, "send failed", err)
	}
	return nil
}

func (s *Session) route(destination string) string {
	prefix := strings.TrimSuffix(s.cfg.AppPrefix, "/")
	return prefix + "/" + strings.TrimPrefix(destination, "/")
}

func (s *Session) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	if s.subs[sub.id] == sub {
		delete(s.subs, sub.id)
	}
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Send(context.Background(), frame.New(frame.UNSUBSCRIBE, frame.Id, sub.id)); err != nil {
		s.log().Debug("unsubscribe frame not sent", map[string]any{"topic": sub.topic, "error": err.Error()})
	}
}

// run is the connection supervisor: dial, serve until the connection drops,
// wait, repeat. It exits once ctx is cancelled.
func (s *Session) run(ctx context.Context, cancel context.CancelFunc) {
	delays := &backoff.Backoff{
		Min:    s.cfg.ReconnectDelay,
		Max:    s.cfg.MaxReconnectDelay,
		Factor: s.cfg.ReconnectFactor,
	}
	attempts := 0

	for {
		if attempts == 0 {
			s.transition(ctx, StateConnecting, nil)
		} else {
			s.transition(ctx, StateReconnecting, nil)
		}

		conn, err := internal.Dial(ctx, s.cfg.URL, internal.DialOptions{
			Host:             s.cfg.Host,
			Login:            s.cfg.Login,
			Passcode:         s.cfg.Passcode,
			HandshakeTimeout: s.cfg.HandshakeTimeout,
			WriteTimeout:     s.cfg.WriteTimeout,
			ReadLimit:        s.cfg.ReadLimit,
			HeartBeatSend:    s.cfg.HeartBeatSend,
			HeartBeatReceive: s.cfg.HeartBeatReceive,
		})
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.CloseNow()
			}
			return
		}
		if err != nil {
			s.log().Warn("connect failed", map[string]any{"url": s.cfg.URL, "attempt": attempts + 1, "error": err.Error()})
			s.transition(ctx, StateDisconnected, WrapError(ErrorConnection, "connect failed", err))
		} else {
			delays.Reset()
			attempts = 0
			s.serve(ctx, conn)
			if ctx.Err() != nil {
				return
			}
		}

		attempts++
		if limit := s.cfg.MaxReconnectAttempts; limit > 0 && attempts > limit {
			s.log().Error("giving up reconnecting", map[string]any{"attempts": limit})
			s.transition(ctx, StateDisconnected, NewError(ErrorConnection, "reconnect attempts exhausted"))
			s.mu.Lock()
			if ctx.Err() == nil {
				s.cancel = nil
				cancel()
			}
			s.mu.Unlock()
			return
		}

		delay := delays.Duration()
		s.log().Info("reconnecting", map[string]any{"delay": delay.String(), "attempt": attempts})
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}
	}
}

// serve publishes conn as the live connection and blocks until it drops.
func (s *Session) serve(ctx context.Context, conn *internal.Conn) {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close("client disconnect")
		return
	}
	s.conn = conn
	s.mu.Unlock()

	s.log().Info("connected", map[string]any{"url": s.cfg.URL, "version": conn.Version})
	s.transition(ctx, StateConnected, nil)

	// Reads are not bound to ctx: Disconnect closes the connection itself so
	// the broker gets a DISCONNECT frame. A broker that stops heart-beating
	// fails the read instead.
	stopBeats := s.heartbeat(conn)
	err := s.readLoop(conn)
	stopBeats()

	s.mu.Lock()
	var dropped map[string]*Subscription
	if s.conn == conn {
		s.conn = nil
		dropped = s.subs
		s.subs = make(map[string]*Subscription)
	}
	s.mu.Unlock()
	for _, sub := range dropped {
		sub.drop()
	}

	if ctx.Err() != nil {
		return
	}
	_ = conn.CloseNow()
	if isExpectedDisconnect(ctx, err) {
		s.log().Info("connection closed by server", nil)
	} else {
		s.log().Warn("connection lost", map[string]any{"error": err.Error()})
	}
	s.transition(ctx, StateDisconnected, WrapError(ErrorDisconnected, "connection lost", err))
}

// heartbeat sends an EOL every negotiated interval until stop is called.
func (s *Session) heartbeat(conn *internal.Conn) (stop func()) {
	if conn.SendInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	ticker := s.clock.NewTicker(conn.SendInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				if err := conn.Heartbeat(context.Background()); err != nil {
					s.log().Debug("heart-beat not sent", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
	return func() { close(done) }
}

func (s *Session) onReadGoroutine() bool {
	id := s.reader.Load()
	return id != 0 && id == internal.GoroutineID()
}

func (s *Session) readLoop(conn *internal.Conn) error {
	s.reader.Store(internal.GoroutineID())
	defer s.reader.Store(0)
	for {
		f, err := conn.Read(context.Background())
		if err != nil {
			if errors.Is(err, internal.ErrMalformedFrame) {
				s.log().Warn("dropping malformed frame", map[string]any{"error": err.Error()})
				continue
			}
			return err
		}

		switch f.Command {
		case frame.MESSAGE:
			s.dispatch(f)
		case frame.ERROR:
			serr := NewError(ErrorServer, f.Header.Get(frame.Message))
			s.log().Error("broker error", map[string]any{"message": serr.Message, "body": string(f.Body)})
			s.fireError(serr)
			return serr
		case frame.RECEIPT:
			s.log().Debug("receipt", map[string]any{"id": f.Header.Get(frame.ReceiptId)})
		default:
			s.log().Debug("ignoring frame", map[string]any{"command": f.Command})
		}
	}
}

func (s *Session) dispatch(f *frame.Frame) {
	id := f.Header.Get(frame.Subscription)
	s.mu.Lock()
	sub := s.subs[id]
	s.mu.Unlock()
	if sub == nil {
		s.log().Debug("message for unknown subscription", map[string]any{"subscription": id})
		return
	}
	if !json.Valid(f.Body) {
		s.log().Warn("dropping non-JSON message", map[string]any{"topic": sub.topic})
		return
	}
	sub.deliver(Message{
		Topic:        f.Header.Get(frame.Destination),
		Subscription: id,
		MessageID:    f.Header.Get(frame.MessageId),
		Body:         json.RawMessage(f.Body),
	})
}

// transition records a state change and notifies watchers. A transition
// requested by a supervisor whose ctx was cancelled is discarded.
func (s *Session) transition(ctx context.Context, to ConnectionState, cause error) {
	s.mu.Lock()
	if ctx != nil && ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	from := s.state
	if from == to && cause == nil {
		s.mu.Unlock()
		return
	}
	s.state = to
	watchers := make([]stateWatcher, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	ev := StateEvent{OldState: from, NewState: to, Error: cause}
	for _, w := range watchers {
		w.fn(ev)
	}
}

func (s *Session) fireError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil && err != nil {
		fn(err)
	}
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}

// reconnectDelay reports the wait the supervisor applies after the given
// number of consecutive failures. Exposed for tests and diagnostics.
func (c Config) reconnectDelay(attempt int) time.Duration {
	b := &backoff.Backoff{Min: c.ReconnectDelay, Max: c.MaxReconnectDelay, Factor: c.ReconnectFactor}
	return b.ForAttempt(float64(attempt))
}

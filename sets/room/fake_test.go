package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
)

// fakeSession stands in for *sets.Session. Pushes are delivered
// synchronously on the caller's goroutine, like frames on a read loop.
type fakeSession struct {
	mu         sync.Mutex
	connected  bool
	watchers   map[int]func(sets.StateEvent)
	nextWatch  int
	subs       []*fakeSub
	subscribes int
	sent       []sentMove
	sendErr    error
	onSend     func(destination string, payload any)
}

type fakeSub struct {
	s      *fakeSession
	topic  string
	h      sets.Handler
	closed bool
}

type sentMove struct {
	destination string
	payload     any
}

func newFakeSession(connected bool) *fakeSession {
	return &fakeSession{connected: connected, watchers: make(map[int]func(sets.StateEvent))}
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) Watch(fn func(sets.StateEvent)) func() {
	f.mu.Lock()
	f.nextWatch++
	id := f.nextWatch
	f.watchers[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.watchers, id)
		f.mu.Unlock()
	}
}

func (f *fakeSession) Subscribe(_ context.Context, topic string, h sets.Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, sets.ErrNotConnected
	}
	sub := &fakeSub{s: f, topic: topic, h: h}
	f.subs = append(f.subs, sub)
	f.subscribes++
	return sub, nil
}

func (f *fakeSession) Send(_ context.Context, destination string, payload any) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return sets.ErrNotConnected
	}
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, sentMove{destination, payload})
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(destination, payload)
	}
	return nil
}

func (s *fakeSub) Unsubscribe() {
	s.s.mu.Lock()
	s.closed = true
	s.s.mu.Unlock()
}

// setConnected flips the connection and notifies watchers. Going offline
// drops every subscription, as the real session does.
func (f *fakeSession) setConnected(on bool) {
	f.mu.Lock()
	old := sets.StateConnected
	next := sets.StateConnected
	if on {
		old = sets.StateReconnecting
	} else {
		next = sets.StateDisconnected
		for _, s := range f.subs {
			s.closed = true
		}
	}
	f.connected = on
	var ws []func(sets.StateEvent)
	for _, w := range f.watchers {
		ws = append(ws, w)
	}
	f.mu.Unlock()

	for _, w := range ws {
		w(sets.StateEvent{OldState: old, NewState: next})
	}
}

func (f *fakeSession) push(topic string, body []byte) {
	f.mu.Lock()
	var hs []sets.Handler
	for _, s := range f.subs {
		if !s.closed && s.topic == topic {
			hs = append(hs, s.h)
		}
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(sets.Message{Topic: topic, Body: body})
	}
}

func (f *fakeSession) pushJSON(t *testing.T, topic string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	f.push(topic, raw)
}

func (f *fakeSession) activeSubs(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.closed && s.topic == topic {
			n++
		}
	}
	return n
}

func (f *fakeSession) sentTo(destination string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, m := range f.sent {
		if m.destination == destination {
			out = append(out, m.payload)
		}
	}
	return out
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func (r *recorder) dump() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return spew.Sdump(r.events)
}

func player(id, name string, host bool, cards ...string) model.PlayerInfo {
	return model.PlayerInfo{UserID: id, DisplayName: name, IsHost: host, Cards: cards}
}

func roomState(status model.Status, last *model.ActionRecord, players ...model.PlayerInfo) model.RoomSnapshot {
	return model.RoomSnapshot{
		RoomID:             "r1",
		RoomCode:           "ABCD",
		HostUserID:         "u1",
		HostName:           "Ann",
		Players:            players,
		Status:             status,
		CurrentPlayerCount: len(players),
		MaxPlayers:         3,
		LastAction:         last,
	}
}

func pass(from, fromName, to, toName, card string) *model.ActionRecord {
	return &model.ActionRecord{
		Type:         model.ActionPass,
		SenderID:     from,
		SenderName:   fromName,
		ReceiverID:   to,
		ReceiverName: toName,
		CardValue:    card,
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

package sets

import "sync"

// AuthState is the externally owned authentication snapshot the Binder reacts to.
type AuthState struct {
	Authenticated bool
	UserID        string
}

func (a AuthState) active() bool {
	return a.Authenticated && a.UserID != ""
}

// Connector is the part of Session the Binder drives.
type Connector interface {
	Connect()
	Disconnect()
}

// Binder starts and stops a Session as authentication changes. It holds no
// state besides the last AuthState it saw and should be the only thing in a
// program that calls Connect or Disconnect.
type Binder struct {
	conn Connector

	mu     sync.Mutex
	last   AuthState
	closed bool
}

// NewBinder returns a Binder driving conn.
func NewBinder(conn Connector) *Binder {
	return &Binder{conn: conn}
}

// Update applies a new authentication snapshot. Signing in connects, signing
// out disconnects and switching identity reconnects as the new user.
func (b *Binder) Update(st AuthState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	prev := b.last
	b.last = st

	switch {
	case st.active() && prev.active() && prev.UserID != st.UserID:
		b.conn.Disconnect()
		b.conn.Connect()
	case st.active():
		b.conn.Connect()
	default:
		b.conn.Disconnect()
	}
}

// Close disconnects and stops reacting to further updates.
func (b *Binder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.conn.Disconnect()
}

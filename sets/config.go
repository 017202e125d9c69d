package sets

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Config controls how the Session connects to the broker.
type Config struct {
	URL       string // websocket endpoint, e.g. ws://localhost:8080/ws-game
	AppPrefix string // prepended to every Send destination

	Host     string // STOMP virtual host, defaults to the URL host
	Login    string
	Passcode string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64

	// HeartBeatSend and HeartBeatReceive are offered to the broker in
	// CONNECT; zero turns that direction off. When the broker agrees to
	// heart-beat, a connection silent for twice the negotiated interval is
	// treated as dropped.
	HeartBeatSend    time.Duration
	HeartBeatReceive time.Duration

	// ReconnectDelay is the wait before every reconnection attempt.
	// With the defaults the delay never grows; raise MaxReconnectDelay
	// and ReconnectFactor to get exponential backoff instead.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ReconnectFactor   float64
	// MaxReconnectAttempts caps consecutive attempts; 0 retries forever.
	MaxReconnectAttempts int

	// Clock drives reconnect timers. Nil means the wall clock.
	Clock clockwork.Clock
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AppPrefix:         "/app",
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadLimit:         1 << 20,
		HeartBeatSend:     10 * time.Second,
		HeartBeatReceive:  10 * time.Second,
		ReconnectDelay:    5 * time.Second,
		MaxReconnectDelay: 5 * time.Second,
		ReconnectFactor:   1,
	}
}

func (c Config) validate() error {
	if c.URL == "" {
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	if c.ReconnectDelay <= 0 {
		return NewError(ErrorInvalidConfig, "reconnect delay must be positive")
	}
	if c.HeartBeatSend < 0 || c.HeartBeatReceive < 0 {
		return NewError(ErrorInvalidConfig, "heart-beat intervals must not be negative")
	}
	if c.MaxReconnectDelay > 0 && c.MaxReconnectDelay < c.ReconnectDelay {
		return NewError(ErrorInvalidConfig, "max reconnect delay is below reconnect delay")
	}
	return nil
}

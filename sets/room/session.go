package room

import (
	"context"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
)

// Subscription is a disposable topic registration.
type Subscription interface {
	Unsubscribe()
}

// Session is the part of *sets.Session this package needs.
type Session interface {
	IsConnected() bool
	Watch(fn func(sets.StateEvent)) (cancel func())
	Subscribe(ctx context.Context, topic string, h sets.Handler) (Subscription, error)
	Send(ctx context.Context, destination string, payload any) error
}

// Bind adapts a *sets.Session to Session.
func Bind(s *sets.Session) Session {
	return boundSession{s}
}

type boundSession struct {
	*sets.Session
}

func (b boundSession) Subscribe(ctx context.Context, topic string, h sets.Handler) (Subscription, error) {
	sub, err := b.Session.Subscribe(ctx, topic, h)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

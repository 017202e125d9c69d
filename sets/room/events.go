package room

import (
	"fmt"
	"time"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
)

// NotificationKind tells whether the current user gave or got the card.
type NotificationKind int

const (
	CardReceived NotificationKind = iota
	CardSent
)

// Notification is a short-lived message about the latest PASS involving the
// current user.
type Notification struct {
	Kind NotificationKind
	Peer string // the other player's display name
	Card string
	At   time.Time
}

// Text renders the notification for display.
func (n Notification) Text() string {
	if n.Kind == CardReceived {
		return fmt.Sprintf("Card received from %s", n.Peer)
	}
	return fmt.Sprintf("Card sent to %s", n.Peer)
}

// EventKind enumerates what the Interpreter reports.
type EventKind int

const (
	EventSnapshot EventKind = iota
	EventNotification
	EventNotificationCleared
	EventPhaseChanged
	EventGameWon
	EventSetDeclared
)

func (k EventKind) String() string {
	switch k {
	case EventSnapshot:
		return "snapshot"
	case EventNotification:
		return "notification"
	case EventNotificationCleared:
		return "notification_cleared"
	case EventPhaseChanged:
		return "phase_changed"
	case EventGameWon:
		return "game_won"
	case EventSetDeclared:
		return "set_declared"
	default:
		return "unknown"
	}
}

// Event is delivered to the OnEvent callback. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind         EventKind
	Snapshot     *model.RoomSnapshot
	Notification *Notification
	Phase        Phase
	Winner       string
	Auto         bool // EventSetDeclared: sent without user action
}

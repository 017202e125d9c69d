package room

import (
	"context"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
)

// Lobby publishes the moves made before a room page exists: creating and
// joining rooms.
type Lobby struct {
	session Session
	userID  string
	logger  sets.Logger
}

// NewLobby returns a Lobby acting as userID.
func NewLobby(s Session, userID string, logger sets.Logger) *Lobby {
	if logger == nil {
		logger = sets.NopLogger()
	}
	return &Lobby{session: s, userID: userID, logger: logger}
}

// CreateRoom asks the server for a new room and waits until the global room
// feed announces one hosted by the current user.
func (l *Lobby) CreateRoom(ctx context.Context, maxPlayers int, isPrivate bool) (*model.RoomSnapshot, error) {
	req := model.CreateRoomRequest{
		HostUserID: l.userID,
		MaxPlayers: maxPlayers,
		IsPrivate:  isPrivate,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	created := make(chan model.RoomSnapshot, 1)
	sub, err := l.session.Subscribe(ctx, model.TopicRooms, func(m sets.Message) {
		var room model.RoomSnapshot
		if err := m.Decode(&room); err != nil {
			l.logger.Warn("ignoring malformed room announcement", map[string]any{"error": err.Error()})
			return
		}
		if room.HostUserID != l.userID {
			return
		}
		select {
		case created <- room:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := l.session.Send(ctx, model.DestCreateRoom, req); err != nil {
		return nil, err
	}

	select {
	case room := <-created:
		if code, err := model.NormalizeRoomCode(room.RoomCode); err == nil {
			room.RoomCode = code
		}
		l.logger.Info("room created", map[string]any{"room": room.RoomCode, "maxPlayers": room.MaxPlayers})
		return &room, nil
	case <-ctx.Done():
		return nil, sets.WrapError(sets.ErrorTimeout, "waiting for room creation", ctx.Err())
	}
}

// JoinRoom publishes a join request and returns the canonical room code.
// The server answers on the room topic, which the caller follows with an
// Interpreter.
func (l *Lobby) JoinRoom(ctx context.Context, code string) (string, error) {
	code, err := model.NormalizeRoomCode(code)
	if err != nil {
		return "", err
	}
	if err := l.session.Send(ctx, model.JoinRoomDest(code), model.UserRequest{UserID: l.userID}); err != nil {
		return "", err
	}
	return code, nil
}

package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
)

func TestCreateRoom(t *testing.T) {
	fs := newFakeSession(true)
	fs.onSend = func(dest string, _ any) {
		if dest != model.DestCreateRoom {
			return
		}
		// Someone else's room is announced first.
		fs.pushJSON(t, model.TopicRooms, model.RoomSnapshot{RoomCode: "QQQQ", HostUserID: "u9"})
		fs.push(model.TopicRooms, []byte(`{"roomCode": 5}`))
		fs.pushJSON(t, model.TopicRooms, model.RoomSnapshot{RoomCode: "wxyz", HostUserID: "u1", MaxPlayers: 4, IsPrivate: true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	room, err := NewLobby(fs, "u1", nil).CreateRoom(ctx, 4, true)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.RoomCode != "WXYZ" || room.HostUserID != "u1" {
		t.Fatalf("unexpected room %+v", room)
	}

	sent := fs.sentTo(model.DestCreateRoom)
	want := model.CreateRoomRequest{HostUserID: "u1", MaxPlayers: 4, IsPrivate: true}
	if len(sent) != 1 || sent[0] != want {
		t.Fatalf("unexpected create payload %+v", sent)
	}
	if fs.activeSubs(model.TopicRooms) != 0 {
		t.Fatalf("room feed subscription not disposed")
	}
}

func TestCreateRoomValidation(t *testing.T) {
	fs := newFakeSession(true)
	_, err := NewLobby(fs, "u1", nil).CreateRoom(context.Background(), 9, false)
	if !errors.Is(err, sets.ErrInvalidMaxPlayers) {
		t.Fatalf("expected ErrInvalidMaxPlayers, got %v", err)
	}
	if fs.subscribes != 0 || len(fs.sent) != 0 {
		t.Fatalf("invalid request reached the session")
	}
}

func TestCreateRoomTimeout(t *testing.T) {
	fs := newFakeSession(true)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewLobby(fs, "u1", nil).CreateRoom(ctx, 3, false)
	if sets.CodeOf(err) != sets.ErrorTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if fs.activeSubs(model.TopicRooms) != 0 {
		t.Fatalf("room feed subscription not disposed")
	}
}

func TestCreateRoomOffline(t *testing.T) {
	fs := newFakeSession(false)
	_, err := NewLobby(fs, "u1", nil).CreateRoom(context.Background(), 3, false)
	if !errors.Is(err, sets.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestJoinRoom(t *testing.T) {
	fs := newFakeSession(true)
	lobby := NewLobby(fs, "u2", nil)

	code, err := lobby.JoinRoom(context.Background(), " abcd ")
	if err != nil || code != "ABCD" {
		t.Fatalf("join = %q, %v", code, err)
	}
	sent := fs.sentTo("/join-room/ABCD")
	if len(sent) != 1 || sent[0] != (model.UserRequest{UserID: "u2"}) {
		t.Fatalf("unexpected join payload %+v", sent)
	}

	if _, err := lobby.JoinRoom(context.Background(), "abc"); !errors.Is(err, sets.ErrInvalidRoomCode) {
		t.Fatalf("expected ErrInvalidRoomCode, got %v", err)
	}
}

func TestBindOfflineSessionReturnsNilSubscription(t *testing.T) {
	cfg := sets.DefaultConfig()
	cfg.URL = "ws://127.0.0.1:1/ws"
	s := Bind(sets.NewSession(cfg))

	sub, err := s.Subscribe(context.Background(), model.TopicRooms, func(sets.Message) {})
	if !errors.Is(err, sets.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if sub != nil {
		t.Fatalf("expected a nil Subscription interface, got %#v", sub)
	}
}

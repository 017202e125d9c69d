package model

import (
	"strings"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
)

const (
	RoomCodeLength = 4

	MinPlayers        = 3
	MaxPlayers        = 8
	MinPlayersToStart = 3
	// SetSize is the hand size of a winning set and the hand every
	// non-host player holds while waiting for a card.
	SetSize = 4
)

// Inbound topics.
const TopicRooms = "/topic/rooms"

// RoomTopic is the snapshot feed of one room.
func RoomTopic(code string) string { return "/topic/room/" + code }

// Outbound destinations, relative to the application prefix.
const DestCreateRoom = "/create-room"

func JoinRoomDest(code string) string   { return "/join-room/" + code }
func StartGameDest(code string) string  { return "/start-game/" + code }
func PassCardDest(code string) string   { return "/pass-card/" + code }
func DeclareSetDest(code string) string { return "/declare-set/" + code }

// NormalizeRoomCode canonicalizes user input to the 4-character upper-case
// form used in every topic and destination.
func NormalizeRoomCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != RoomCodeLength {
		return "", sets.ErrInvalidRoomCode
	}
	for _, r := range c {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", sets.ErrInvalidRoomCode
		}
	}
	return c, nil
}

// CreateRoomRequest is published to DestCreateRoom.
type CreateRoomRequest struct {
	HostUserID string `json:"hostUserId"`
	MaxPlayers int    `json:"maxPlayers"`
	IsPrivate  bool   `json:"isPrivate"`
}

// Validate checks the bounds the server enforces.
func (r CreateRoomRequest) Validate() error {
	if r.MaxPlayers < MinPlayers || r.MaxPlayers > MaxPlayers {
		return sets.ErrInvalidMaxPlayers
	}
	if r.HostUserID == "" {
		return sets.NewError(sets.ErrorInvalidConfig, "empty host user id")
	}
	return nil
}

// UserRequest is the payload of join-room and start-game.
type UserRequest struct {
	UserID string `json:"userId"`
}

// PassCardRequest is published to PassCardDest.
type PassCardRequest struct {
	UserID    string `json:"userId"`
	CardValue string `json:"cardValue"`
}

// Package model holds the payloads exchanged with the Sets server over the
// broker and the REST API.
package model

import "strings"

// Status is the lifecycle phase of a room as reported by the server.
type Status string

const (
	StatusLobby    Status = "LOBBY"
	StatusPlaying  Status = "PLAYING"
	StatusFinished Status = "FINISHED"
)

// ActionType identifies the move carried by ActionRecord.
type ActionType string

const (
	ActionPass ActionType = "PASS"
	ActionDraw ActionType = "DRAW"
	ActionPlay ActionType = "PLAY"
)

// PushTypeGameWon marks a win announcement on a room topic.
const PushTypeGameWon = "GAME_WON"

// RoomSnapshot is a full-replacement view of a room. Every push replaces the
// previous one; fields the server omits decode to their zero value.
type RoomSnapshot struct {
	RoomID             string        `json:"roomId"`
	RoomCode           string        `json:"roomCode"`
	HostUserID         string        `json:"hostUserId"`
	HostName           string        `json:"hostName,omitempty"`
	Players            []PlayerInfo  `json:"players"`
	Status             Status        `json:"status"`
	CurrentPlayerCount int           `json:"currentPlayerCount"`
	MaxPlayers         int           `json:"maxPlayers"`
	IsPrivate          bool          `json:"isPrivate"`
	LastAction         *ActionRecord `json:"lastAction,omitempty"`
}

// Player returns the player with the given id.
func (r *RoomSnapshot) Player(userID string) (PlayerInfo, bool) {
	if r == nil || userID == "" {
		return PlayerInfo{}, false
	}
	for _, p := range r.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return PlayerInfo{}, false
}

// Clone returns a deep copy that shares no slices or pointers with r.
func (r RoomSnapshot) Clone() RoomSnapshot {
	out := r
	if r.Players != nil {
		out.Players = make([]PlayerInfo, len(r.Players))
		for i, p := range r.Players {
			p.Cards = append([]string(nil), p.Cards...)
			out.Players[i] = p
		}
	}
	if r.LastAction != nil {
		a := *r.LastAction
		out.LastAction = &a
	}
	return out
}

// IsHost reports whether userID hosts the room.
func (r *RoomSnapshot) IsHost(userID string) bool {
	return r != nil && userID != "" && r.HostUserID == userID
}

// ActionRecord describes the move that produced a snapshot. It is only
// meaningful for the push that carries it.
type ActionRecord struct {
	Type         ActionType `json:"type"`
	SenderID     string     `json:"senderId"`
	SenderName   string     `json:"senderName"`
	ReceiverID   string     `json:"receiverId,omitempty"`
	ReceiverName string     `json:"receiverName,omitempty"`
	CardValue    string     `json:"cardValue,omitempty"`
}

// PlayerInfo is a seat in the room. Cards are authoritative as pushed and
// are never changed locally.
type PlayerInfo struct {
	UserID      string   `json:"userId"`
	DisplayName string   `json:"displayName"`
	Cards       []string `json:"cards"`
	IsHost      bool     `json:"isHost"`
}

// HandKey identifies the exact content of the hand.
func (p PlayerInfo) HandKey() string {
	return strings.Join(p.Cards, "\x00")
}

// GameWon is the win announcement interleaved with snapshots on a room topic.
type GameWon struct {
	Type   string `json:"type"`
	Winner string `json:"winner"`
}

// User is the authenticated identity returned by registration.
type User struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	GamesPlayed int    `json:"gamesPlayed"`
	GamesWon    int    `json:"gamesWon"`
}

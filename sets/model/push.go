package model

import (
	"encoding/json"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
)

// DecodePush classifies a frame received on a room topic. Exactly one of the
// returned pointers is non-nil when err is nil.
func DecodePush(raw []byte) (*RoomSnapshot, *GameWon, error) {
	var probe struct {
		Type string `json:"type"`
	}
	// Snapshots carry no top-level "type"; anything that is not an object
	// fails here and is reported as malformed.
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, nil, sets.WrapError(sets.ErrorSerialization, "malformed room push", err)
	}
	if probe.Type == PushTypeGameWon {
		var won GameWon
		if err := json.Unmarshal(raw, &won); err != nil {
			return nil, nil, sets.WrapError(sets.ErrorSerialization, "malformed win announcement", err)
		}
		return nil, &won, nil
	}

	var snap RoomSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, nil, sets.WrapError(sets.ErrorSerialization, "malformed room snapshot", err)
	}
	return &snap, nil, nil
}

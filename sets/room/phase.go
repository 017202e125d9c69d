package room

// Phase is the client's view of the room lifecycle. It only moves forward:
// Lobby, then Playing, then Finished.
type Phase int

const (
	PhaseLobby Phase = iota
	PhasePlaying
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "LOBBY"
	case PhasePlaying:
		return "PLAYING"
	case PhaseFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

type trigger int

const (
	// a snapshot with status PLAYING was applied
	triggerSnapshotPlaying trigger = iota
	// the start-game move was published by this client
	triggerStartSent
	// a GAME_WON push arrived
	triggerGameWon
)

// advance returns the phase after t. Anything not listed keeps the phase.
func (p Phase) advance(t trigger) Phase {
	switch p {
	case PhaseLobby:
		switch t {
		case triggerSnapshotPlaying, triggerStartSent:
			return PhasePlaying
		case triggerGameWon:
			return PhaseFinished
		}
	case PhasePlaying:
		switch t {
		case triggerGameWon:
			return PhaseFinished
		case triggerSnapshotPlaying, triggerStartSent:
		}
	case PhaseFinished:
	}
	return p
}

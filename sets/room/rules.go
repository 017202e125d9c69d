package room

import "github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"

// CanAct reports whether player may pass a card. The host seeds play with an
// extra card, so it can always move; everyone else has to wait until a pass
// has pushed them above SetSize cards.
func CanAct(player model.PlayerInfo, isHost bool) bool {
	return isHost || len(player.Cards) > model.SetSize
}

// DetectSet reports whether the hand is exactly SetSize identical cards.
func DetectSet(player model.PlayerInfo) bool {
	if len(player.Cards) != model.SetSize {
		return false
	}
	for _, c := range player.Cards[1:] {
		if c != player.Cards[0] {
			return false
		}
	}
	return true
}

func holds(player model.PlayerInfo, card string) bool {
	for _, c := range player.Cards {
		if c == card {
			return true
		}
	}
	return false
}

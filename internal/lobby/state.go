package lobby

import "clanforge/backend/internal/models"

// State is the lifecycle state of a lobby.
type State string

const (
	StateOpen      State = "open"
	StateFull      State = "full"
	StateDisbanded State = "disbanded"
)

// StateOf derives the live state of a stored lobby from its membership.
func StateOf(l *models.Lobby) State {
	if l == nil {
		return StateDisbanded
	}
	if len(l.Players) >= l.MaxPlayers {
		return StateFull
	}
	return StateOpen
}

// settle is the success check. It marks l as having reached capacity and
// reports true only on the first transition into StateFull; later refills of
// the same lobby are never counted again.
func settle(l *models.Lobby) bool {
	if StateOf(l) != StateFull || l.HasReachedMax {
		return false
	}
	l.HasReachedMax = true
	return true
}

func playerIndex(l *models.Lobby, uid string) int {
	for i, p := range l.Players {
		if p.UID == uid {
			return i
		}
	}
	return -1
}

func requestIndex(l *models.Lobby, uid string) int {
	for i, r := range l.Requests {
		if r.UID == uid {
			return i
		}
	}
	return -1
}

func removePlayer(l *models.Lobby, uid string) bool {
	i := playerIndex(l, uid)
	if i < 0 {
		return false
	}
	l.Players = append(l.Players[:i], l.Players[i+1:]...)
	return true
}

func removeRequest(l *models.Lobby, uid string) bool {
	i := requestIndex(l, uid)
	if i < 0 {
		return false
	}
	l.Requests = append(l.Requests[:i], l.Requests[i+1:]...)
	return true
}

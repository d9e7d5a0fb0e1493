package lobby

import (
	"context"
	"time"

	"clanforge/backend/internal/apperr"
	"clanforge/backend/internal/models"
)

// ErrLobbyNotFound is returned by stores when no lobby has the requested id.
var ErrLobbyNotFound = apperr.NotFound("Lobby not found")

// Change tells Store.Mutate what to persist once the callback returns.
type Change int

const (
	// Keep leaves the stored lobby untouched.
	Keep Change = iota
	// Save writes the lobby fields, players and requests.
	Save
	// Remove deletes the lobby with its players and requests.
	Remove
)

// Mutation is the outcome of a Mutate callback.
type Mutation struct {
	Change Change
	// CountSuccess increments the global success counter in the same
	// transaction as the write.
	CountSuccess bool
}

// Store persists lobbies. Every method is atomic on its own.
type Store interface {
	// Create inserts l and assigns its id. When countSuccess is set the global
	// counter is incremented in the same transaction.
	Create(ctx context.Context, l *models.Lobby, countSuccess bool) error
	Get(ctx context.Context, id uint) (*models.Lobby, error)
	// List returns all lobbies, newest first.
	List(ctx context.Context) ([]models.Lobby, error)
	// Mutate loads the lobby, hands it to fn while holding exclusive access to
	// it, and applies the returned Mutation. An error from fn aborts without
	// writing. The returned lobby is nil when the lobby was removed.
	Mutate(ctx context.Context, id uint, fn func(l *models.Lobby) (Mutation, error)) (*models.Lobby, error)
	// PurgeUser deletes lobbies hosted by uid and removes uid from the players
	// and requests of every other lobby. It reports how many lobbies changed.
	PurgeUser(ctx context.Context, uid string) (int64, error)
	// DeleteEventsBefore deletes lobbies whose event date is before cutoff.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Counter is the singleton success counter.
type Counter interface {
	// SuccessfulSquads returns the counter, creating the record if absent.
	SuccessfulSquads(ctx context.Context) (int64, error)
}

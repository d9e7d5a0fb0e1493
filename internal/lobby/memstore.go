package lobby

import (
	"context"
	"sort"
	"sync"
	"time"

	"clanforge/backend/internal/models"
)

// MemoryStore is a process-local Store and Counter. It serializes every
// operation behind one mutex, which gives Mutate the same isolation the
// database store gets from row locks.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  uint
	lobbies map[uint]*models.Lobby
	success int64
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lobbies: make(map[uint]*models.Lobby),
		now:     time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, l *models.Lobby, countSuccess bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := m.now()
	l.ID = m.nextID
	l.CreatedAt = now
	l.UpdatedAt = now
	m.linkChildren(l)
	m.lobbies[l.ID] = cloneLobby(l)
	if countSuccess {
		m.success++
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uint) (*models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lobbies[id]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return cloneLobby(l), nil
}

func (m *MemoryStore) List(_ context.Context) ([]models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Lobby, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		out = append(out, *cloneLobby(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Mutate(_ context.Context, id uint, fn func(l *models.Lobby) (Mutation, error)) (*models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.lobbies[id]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	working := cloneLobby(stored)
	mut, err := fn(working)
	if err != nil {
		return nil, err
	}

	switch mut.Change {
	case Remove:
		delete(m.lobbies, id)
		if mut.CountSuccess {
			m.success++
		}
		return nil, nil
	case Save:
		working.UpdatedAt = m.now()
		m.linkChildren(working)
		m.lobbies[id] = cloneLobby(working)
		if mut.CountSuccess {
			m.success++
		}
		return working, nil
	default:
		return working, nil
	}
}

func (m *MemoryStore) PurgeUser(_ context.Context, uid string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for id, l := range m.lobbies {
		if l.HostID == uid {
			delete(m.lobbies, id)
			changed++
			continue
		}
		p := removePlayer(l, uid)
		r := removeRequest(l, uid)
		if p || r {
			changed++
		}
	}
	return changed, nil
}

func (m *MemoryStore) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, l := range m.lobbies {
		if l.EventDate != nil && l.EventDate.Before(cutoff) {
			delete(m.lobbies, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SuccessfulSquads(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.success, nil
}

func (m *MemoryStore) linkChildren(l *models.Lobby) {
	for i := range l.Players {
		l.Players[i].LobbyID = l.ID
	}
	for i := range l.Requests {
		l.Requests[i].LobbyID = l.ID
	}
}

func cloneLobby(l *models.Lobby) *models.Lobby {
	c := *l
	c.Players = append([]models.LobbyPlayer(nil), l.Players...)
	c.Requests = append([]models.LobbyRequest(nil), l.Requests...)
	if l.EventDate != nil {
		d := *l.EventDate
		c.EventDate = &d
	}
	return &c
}

package user

import (
	"context"
	"sync"
	"time"

	"clanforge/backend/internal/models"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint
	byUID  map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUID: make(map[string]*models.User)}
}

func (m *MemoryStore) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byUID {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.byUID[u.UID] = cloneUser(u)
	return nil
}

func (m *MemoryStore) ByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.byUID {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) ByUID(_ context.Context, uid string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byUID[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) Update(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUID[u.UID]; !ok {
		return ErrUserNotFound
	}
	u.UpdatedAt = time.Now()
	m.byUID[u.UID] = cloneUser(u)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUID[uid]; !ok {
		return ErrUserNotFound
	}
	delete(m.byUID, uid)
	return nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.CustomLinks = append([]models.CustomLink(nil), u.CustomLinks...)
	return &c
}

// MemoryOTPStore keeps codes in process memory.
type MemoryOTPStore struct {
	mu    sync.Mutex
	codes map[string]memoryCode
	now   func() time.Time
}

type memoryCode struct {
	code    string
	expires time.Time
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{codes: make(map[string]memoryCode), now: time.Now}
}

func (m *MemoryOTPStore) Save(_ context.Context, email, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = memoryCode{code: code, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryOTPStore) Verify(_ context.Context, email, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[email]
	if !ok || m.now().After(c.expires) {
		return false, nil
	}
	return code != "" && c.code == code, nil
}

func (m *MemoryOTPStore) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, email)
	return nil
}

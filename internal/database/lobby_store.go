package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clanforge/backend/internal/lobby"
	"clanforge/backend/internal/models"
)

// LobbyStore persists lobbies with their players and requests in Postgres.
// Every Mutate runs in one transaction holding a row lock on the lobby.
type LobbyStore struct {
	db *gorm.DB
}

func NewLobbyStore(db *gorm.DB) *LobbyStore {
	return &LobbyStore{db: db}
}

func byID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func (s *LobbyStore) Create(ctx context.Context, l *models.Lobby, countSuccess bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(l).Error; err != nil {
			return err
		}
		if countSuccess {
			return incrementSuccess(tx)
		}
		return nil
	})
}

func (s *LobbyStore) Get(ctx context.Context, id uint) (*models.Lobby, error) {
	var l models.Lobby
	err := s.db.WithContext(ctx).
		Preload("Players", byID).
		Preload("Requests", byID).
		First(&l, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, lobby.ErrLobbyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *LobbyStore) List(ctx context.Context) ([]models.Lobby, error) {
	var lobbies []models.Lobby
	err := s.db.WithContext(ctx).
		Preload("Players", byID).
		Preload("Requests", byID).
		Order("created_at DESC, id DESC").
		Find(&lobbies).Error
	return lobbies, err
}

func (s *LobbyStore) Mutate(ctx context.Context, id uint, fn func(l *models.Lobby) (lobby.Mutation, error)) (*models.Lobby, error) {
	var out *models.Lobby
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l models.Lobby
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&l, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lobby.ErrLobbyNotFound
		}
		if err != nil {
			return err
		}
		if err := byID(tx.Where("lobby_id = ?", l.ID)).Find(&l.Players).Error; err != nil {
			return err
		}
		if err := byID(tx.Where("lobby_id = ?", l.ID)).Find(&l.Requests).Error; err != nil {
			return err
		}

		mut, err := fn(&l)
		if err != nil {
			return err
		}

		switch mut.Change {
		case lobby.Remove:
			if err := tx.Unscoped().Delete(&models.Lobby{}, l.ID).Error; err != nil {
				return err
			}
		case lobby.Save:
			if err := saveLobby(tx, &l); err != nil {
				return err
			}
			out = &l
		default:
			out = &l
			return nil
		}

		if mut.CountSuccess {
			return incrementSuccess(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// saveLobby writes the lobby row and reconciles its child rows: rows whose uid
// is gone are deleted, rows without an ID are inserted.
func saveLobby(tx *gorm.DB, l *models.Lobby) error {
	if err := tx.Omit(clause.Associations).Save(l).Error; err != nil {
		return err
	}

	playerUIDs := make([]string, 0, len(l.Players))
	for _, p := range l.Players {
		playerUIDs = append(playerUIDs, p.UID)
	}
	if err := deleteMissing(tx, &models.LobbyPlayer{}, l.ID, playerUIDs); err != nil {
		return err
	}
	for i := range l.Players {
		if l.Players[i].ID != 0 {
			continue
		}
		l.Players[i].LobbyID = l.ID
		if err := tx.Create(&l.Players[i]).Error; err != nil {
			return err
		}
	}

	requestUIDs := make([]string, 0, len(l.Requests))
	for _, r := range l.Requests {
		requestUIDs = append(requestUIDs, r.UID)
	}
	if err := deleteMissing(tx, &models.LobbyRequest{}, l.ID, requestUIDs); err != nil {
		return err
	}
	for i := range l.Requests {
		if l.Requests[i].ID != 0 {
			continue
		}
		l.Requests[i].LobbyID = l.ID
		if err := tx.Create(&l.Requests[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func deleteMissing(tx *gorm.DB, model interface{}, lobbyID uint, keep []string) error {
	q := tx.Where("lobby_id = ?", lobbyID)
	if len(keep) > 0 {
		q = q.Where("uid NOT IN ?", keep)
	}
	return q.Delete(model).Error
}

// PurgeUser deletes the lobbies hosted by uid and drops uid from every other
// lobby. It returns the number of lobbies touched.
func (s *LobbyStore) PurgeUser(ctx context.Context, uid string) (int64, error) {
	var touched int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().Where("host_id = ?", uid).Delete(&models.Lobby{})
		if res.Error != nil {
			return res.Error
		}
		touched = res.RowsAffected

		var playerLobbies, requestLobbies []uint
		if err := tx.Model(&models.LobbyPlayer{}).Where("uid = ?", uid).Pluck("lobby_id", &playerLobbies).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.LobbyRequest{}).Where("uid = ?", uid).Pluck("lobby_id", &requestLobbies).Error; err != nil {
			return err
		}
		seen := make(map[uint]struct{}, len(playerLobbies)+len(requestLobbies))
		for _, id := range append(playerLobbies, requestLobbies...) {
			seen[id] = struct{}{}
		}
		touched += int64(len(seen))

		if err := tx.Where("uid = ?", uid).Delete(&models.LobbyPlayer{}).Error; err != nil {
			return err
		}
		return tx.Where("uid = ?", uid).Delete(&models.LobbyRequest{}).Error
	})
	return touched, err
}

func (s *LobbyStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Unscoped().
		Where("event_date IS NOT NULL AND event_date < ?", cutoff).
		Delete(&models.Lobby{})
	return res.RowsAffected, res.Error
}

// SuccessfulSquads reads the global counter, creating the row on first use.
func (s *LobbyStore) SuccessfulSquads(ctx context.Context) (int64, error) {
	stat := models.GlobalStat{ID: models.GlobalStatID}
	err := s.db.WithContext(ctx).
		Where(models.GlobalStat{ID: models.GlobalStatID}).
		FirstOrCreate(&stat).Error
	return stat.SuccessfulSquads, err
}

func incrementSuccess(tx *gorm.DB) error {
	stat := models.GlobalStat{ID: models.GlobalStatID, SuccessfulSquads: 1}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"successful_squads": gorm.Expr("global_stats.successful_squads + 1"),
			"updated_at":        time.Now(),
		}),
	}).Create(&stat).Error
}

var (
	_ lobby.Store   = (*LobbyStore)(nil)
	_ lobby.Counter = (*LobbyStore)(nil)
)

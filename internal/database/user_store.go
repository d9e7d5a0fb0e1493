package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"clanforge/backend/internal/models"
	"clanforge/backend/internal/user"
)

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func linksByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return user.ErrEmailTaken
	}
	return err
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *UserStore) ByUID(ctx context.Context, uid string) (*models.User, error) {
	return s.first(ctx, "uid = ?", uid)
}

func (s *UserStore) first(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Preload("CustomLinks", linksByPosition).
		Where(query, arg).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Update saves the profile columns and replaces the custom links.
func (s *UserStore) Update(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("uid = ?", u.UID).Updates(map[string]interface{}{
			"name":         u.Name,
			"bio":          u.Bio,
			"phone":        u.Phone,
			"avatar_id":    u.AvatarID,
			"show_contact": u.ShowContact,
			"portfolio":    u.Portfolio,
			"linkedin":     u.LinkedIn,
			"github":       u.GitHub,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return user.ErrUserNotFound
		}

		if err := tx.Where("user_id = ?", u.ID).Delete(&models.CustomLink{}).Error; err != nil {
			return err
		}
		for i := range u.CustomLinks {
			u.CustomLinks[i].ID = 0
			u.CustomLinks[i].UserID = u.ID
		}
		if len(u.CustomLinks) > 0 {
			return tx.Create(&u.CustomLinks).Error
		}
		return nil
	})
}

func (s *UserStore) Delete(ctx context.Context, uid string) error {
	res := s.db.WithContext(ctx).Unscoped().Where("uid = ?", uid).Delete(&models.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

var _ user.Store = (*UserStore)(nil)

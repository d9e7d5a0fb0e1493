package models

import "gorm.io/gorm"

// User represents a registered student.
type User struct {
	gorm.Model
	UID   string `gorm:"size:64;uniqueIndex;not null"`
	Name  string `gorm:"size:255;not null"`
	Email string `gorm:"size:255;uniqueIndex;not null"`

	// PasswordHash is empty for accounts created through Google sign-in.
	PasswordHash string `gorm:"size:255"`

	AvatarID    int    `gorm:"not null;default:0"`
	Bio         string `gorm:"type:text"`
	Phone       string `gorm:"size:64"`
	ShowContact bool   `gorm:"not null;default:false"`
	Portfolio   string `gorm:"size:512"`
	LinkedIn    string `gorm:"column:linkedin;size:512"`
	GitHub      string `gorm:"column:github;size:512"`

	CustomLinks []CustomLink `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// CustomLink is a labelled link shown on a profile, ordered by Position.
type CustomLink struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   uint   `gorm:"not null;index"`
	Position int    `gorm:"not null"`
	Label    string `gorm:"size:100;not null"`
	URL      string `gorm:"size:512;not null"`
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// Category is the kind of event a lobby is formed for.
type Category string

const (
	CategoryHackathon Category = "hackathon"
	CategoryGaming    Category = "gaming"
	CategorySports    Category = "sports"
	CategoryJamming   Category = "jamming"
	CategoryProject   Category = "project"
	CategoryStudy     Category = "study"
	CategoryCreative  Category = "creative"
)

// SkillLevel is the expected experience of the members.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "Beginner"
	SkillIntermediate SkillLevel = "Intermediate"
	SkillAdvanced     SkillLevel = "Advanced"
	SkillPro          SkillLevel = "Pro"
)

// HostMeta is the contact snapshot of the host. Both fields stay empty unless
// the host had contact visibility enabled when the lobby was created or updated.
type HostMeta struct {
	Phone string `gorm:"size:64"`
	Email string `gorm:"size:255"`
}

// Lobby represents a squad gathering members for one event.
// The host is always also one of the Players.
type Lobby struct {
	gorm.Model
	Title       string     `gorm:"size:255;not null"`
	Description string     `gorm:"type:text"`
	Category    Category   `gorm:"size:50;not null;index"`
	Location    string     `gorm:"size:255"`
	Skill       SkillLevel `gorm:"size:50;not null"`
	EventDate   *time.Time `gorm:"type:date;index"`
	MaxPlayers  int        `gorm:"not null;default:5"`

	HostID   string   `gorm:"size:64;not null;index"`
	HostName string   `gorm:"size:255;not null"`
	HostMeta HostMeta `gorm:"embedded;embeddedPrefix:host_"`

	// HasReachedMax flips to true the first time the lobby fills up and never resets.
	HasReachedMax bool `gorm:"not null;default:false"`

	Players  []LobbyPlayer  `gorm:"foreignKey:LobbyID;constraint:OnDelete:CASCADE"`
	Requests []LobbyRequest `gorm:"foreignKey:LobbyID;constraint:OnDelete:CASCADE"`
}

// LobbyPlayer is a member of a lobby. Name and avatar are captured when the
// player joins and are not refreshed from the user profile afterwards.
type LobbyPlayer struct {
	ID       uint   `gorm:"primaryKey"`
	LobbyID  uint   `gorm:"not null;uniqueIndex:idx_lobby_player"`
	UID      string `gorm:"size:64;not null;uniqueIndex:idx_lobby_player;index"`
	Name     string `gorm:"size:255;not null"`
	AvatarID int    `gorm:"not null;default:0"`
}

// LobbyRequest is a pending application to join a lobby.
type LobbyRequest struct {
	ID       uint   `gorm:"primaryKey"`
	LobbyID  uint   `gorm:"not null;uniqueIndex:idx_lobby_request"`
	UID      string `gorm:"size:64;not null;uniqueIndex:idx_lobby_request;index"`
	Name     string `gorm:"size:255;not null"`
	AvatarID int    `gorm:"not null;default:0"`
	Message  string `gorm:"type:text"`
}

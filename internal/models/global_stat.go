package models

import "time"

// GlobalStatID is the fixed key of the single statistics row.
const GlobalStatID = "main_stats"

// GlobalStat holds counters that are shared across all lobbies.
type GlobalStat struct {
	ID               string `gorm:"primaryKey;size:32"`
	SuccessfulSquads int64  `gorm:"not null;default:0"`
	UpdatedAt        time.Time
}

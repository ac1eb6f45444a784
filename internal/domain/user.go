package domain

import "time"

const (
	LifeScoreMin     int64 = 0
	LifeScoreMax     int64 = 100
	DefaultLifeScore int64 = 50

	// XPPerLevel is the flat XP step between levels.
	XPPerLevel int64 = 100
)

// User is a player's balances. Balances only change through the ledger.
type User struct {
	ID        string    `json:"id"`
	Coins     int64     `json:"coins"`
	LifeScore int64     `json:"lifescore"`
	XP        int64     `json:"xp"`
	Level     int64     `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LevelForXP derives the level reached with the given XP.
func LevelForXP(xp int64) int64 {
	if xp < 0 {
		xp = 0
	}
	return 1 + xp/XPPerLevel
}

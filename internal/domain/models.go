package domain

import (
	"time"
)

// OverallSeasonID is the pseudo-season under which ratings across all
// seasons are tracked.
const OverallSeasonID = 0

type Team string

const (
	TeamT    Team = "T"
	TeamCT   Team = "CT"
	TeamDraw Team = "draw"
)

type Player struct {
	PlayerID    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Season struct {
	SeasonID int64
	StartAt  time.Time
	EndAt    *time.Time // nil = open/current season
}

// Contains reports whether ts falls inside the season window.
func (s Season) Contains(ts time.Time) bool {
	if ts.Before(s.StartAt) {
		return false
	}
	return s.EndAt == nil || ts.Before(*s.EndAt)
}

type Round struct {
	RoundID     string
	SessionID   string
	RoundIndex  int
	SeasonID    int64
	StartedAt   time.Time
	EndedAt     time.Time
	WinTeam     Team
	MVPPlayerID string // empty when no MVP could be attributed
	CreatedAt   time.Time
}

type RoundStat struct {
	RoundID     string
	PlayerID    string
	Team        Team
	Kills       int
	Deaths      int
	Assists     int
	MVPs        int
	DamageDealt int
	Survived    bool
}

type SkillRating struct {
	PlayerID  string
	SeasonID  int64
	Mean      float64
	Stdev     float64
	MMR       int
	Impact    float64
	UpdatedAt time.Time
}

type SkillHistoryPoint struct {
	HistoryID string
	PlayerID  string
	SeasonID  int64
	RoundID   string
	Mean      float64
	Stdev     float64
	CreatedAt time.Time
}

// LeaderboardRow is the read-surface projection of a rated player.
type LeaderboardRow struct {
	PlayerID    string
	DisplayName string
	MMR         int
	Mean        float64
	Stdev       float64
	SkillGroup  string
	Percentile  float64
	Impact      float64
	RoundsWon   int
	RoundsLost  int
}

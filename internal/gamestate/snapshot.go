// Package gamestate parses raw game-client snapshots and diffs successive
// snapshots into discrete round events.
package gamestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedSnapshot marks a snapshot missing required fields. The
// consumer logs it and skips the snapshot; it never crashes the pipeline.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Phases of a round as reported by the client.
const (
	PhaseFreezetime = "freezetime"
	PhaseLive       = "live"
	PhaseOver       = "over"
)

// MapPhaseGameOver is the terminal map phase; the session is finished
// after it.
const MapPhaseGameOver = "gameover"

// Snapshot is one raw state payload pushed by the game client. Fields the
// protocol only sometimes sends are pointers; absence is visible, never
// guessed at.
type Snapshot struct {
	Provider   *Provider              `json:"provider"`
	Map        *MapState              `json:"map"`
	Round      *RoundState            `json:"round"`
	AllPlayers map[string]PlayerState `json:"allplayers"`
	Previously *Previously            `json:"previously"`
}

type Provider struct {
	AppID     int    `json:"appid"`
	SteamID   string `json:"steamid"`
	Timestamp int64  `json:"timestamp"`
	Version   int    `json:"version"`
}

type MapState struct {
	Name      string `json:"name"`
	Phase     string `json:"phase"`
	Round     int    `json:"round"`
	SessionID string `json:"session_id"`
}

type RoundState struct {
	Phase   string `json:"phase"`
	WinTeam string `json:"win_team"`
}

type PlayerState struct {
	Name       string      `json:"name"`
	Team       string      `json:"team"`
	State      *LiveState  `json:"state"`
	MatchStats *MatchStats `json:"match_stats"`
}

// LiveState carries per-round counters that reset every round.
type LiveState struct {
	Health      int `json:"health"`
	RoundKills  int `json:"round_kills"`
	RoundDamage int `json:"round_totaldmg"`
}

// MatchStats carries cumulative per-match counters; round values are
// recovered as deltas between consecutive snapshots.
type MatchStats struct {
	Kills   int `json:"kills"`
	Assists int `json:"assists"`
	Deaths  int `json:"deaths"`
	MVPs    int `json:"mvps"`
	Score   int `json:"score"`
}

// Previously carries the client's diff hints: the prior values of fields
// that changed in this snapshot.
type Previously struct {
	AllPlayers map[string]PlayerState `json:"allplayers"`
}

// ReceivedAt returns the provider clock as a time.
func (s *Snapshot) ReceivedAt() time.Time {
	return time.Unix(s.Provider.Timestamp, 0).UTC()
}

// Parse decodes and validates a raw snapshot payload.
func Parse(payload []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if snap.Provider == nil || snap.Provider.Timestamp == 0 {
		return nil, fmt.Errorf("%w: missing provider", ErrMalformedSnapshot)
	}
	if snap.Map == nil || snap.Map.Name == "" || snap.Map.SessionID == "" {
		return nil, fmt.Errorf("%w: missing map state", ErrMalformedSnapshot)
	}
	if snap.Map.Round < 0 {
		return nil, fmt.Errorf("%w: negative round index", ErrMalformedSnapshot)
	}
	if snap.Round == nil || snap.Round.Phase == "" {
		return nil, fmt.Errorf("%w: missing round state", ErrMalformedSnapshot)
	}
	return &snap, nil
}

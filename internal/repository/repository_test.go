package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"csgo-tracker/internal/config"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *database.SkillDB {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewSkillDB(&config.Config{
		GameDBPath:  filepath.Join(dir, "games.db"),
		SkillDBPath: filepath.Join(dir, "skill.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPlayers(t *testing.T, db *database.SkillDB, ids ...string) {
	t.Helper()
	repo := NewPlayerRepository(db, zerolog.Nop())
	players := make([]domain.Player, len(ids))
	for i, id := range ids {
		players[i] = domain.Player{PlayerID: id, DisplayName: "name-" + id}
	}
	require.NoError(t, repo.UpsertBatch(context.Background(), players))
}

func testRound(sessionID string, index int, seasonID int64, winTeam domain.Team, at time.Time) *domain.Round {
	return &domain.Round{
		RoundID:    fmt.Sprintf("%s:r%03d", sessionID, index),
		SessionID:  sessionID,
		RoundIndex: index,
		SeasonID:   seasonID,
		StartedAt:  at,
		EndedAt:    at.Add(90 * time.Second),
		WinTeam:    winTeam,
	}
}

func testStats(roundID string, winners, losers []string, winTeam domain.Team) []domain.RoundStat {
	loseTeam := domain.TeamCT
	if winTeam == domain.TeamCT {
		loseTeam = domain.TeamT
	}
	var stats []domain.RoundStat
	for _, id := range winners {
		stats = append(stats, domain.RoundStat{
			RoundID: roundID, PlayerID: id, Team: winTeam,
			Kills: 1, DamageDealt: 100, Survived: true,
		})
	}
	for _, id := range losers {
		stats = append(stats, domain.RoundStat{
			RoundID: roundID, PlayerID: id, Team: loseTeam,
			Deaths: 1, DamageDealt: 40,
		})
	}
	return stats
}

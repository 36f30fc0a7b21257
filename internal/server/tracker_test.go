package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"csgo-tracker/internal/config"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/eventlog"
	"csgo-tracker/internal/gamestate"
	"csgo-tracker/internal/queue"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	mux       *http.ServeMux
	log       *eventlog.Log
	queue     *queue.Queue[int64]
	processor *service.ProcessorService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		GameDBPath:  filepath.Join(dir, "games.db"),
		SkillDBPath: filepath.Join(dir, "skill.db"),
	}
	nop := zerolog.Nop()

	gameDB, err := database.NewGameDB(cfg, nop)
	require.NoError(t, err)
	t.Cleanup(func() { gameDB.Close() })
	skillDB, err := database.NewSkillDB(cfg, nop)
	require.NoError(t, err)
	t.Cleanup(func() { skillDB.Close() })

	log := eventlog.New(gameDB, nop)
	players := repository.NewPlayerRepository(skillDB, nop)
	seasons := repository.NewSeasonRepository(skillDB, nop)
	rounds := repository.NewRoundRepository(skillDB, nop)
	ratings := repository.NewRatingRepository(skillDB, nop)
	progress := repository.NewProgressRepository(skillDB, nop)
	lock := service.NewProcessingLock()

	processor := service.NewProcessorService(log, players, seasons, rounds, ratings, progress, lock, nop)
	q := queue.New[int64](16, processor.HandleSequence, nop)
	ingestSvc := service.NewIngestService(log, q, nop)
	ratingSvc := service.NewRatingService(players, seasons, ratings, nop)

	mux := http.NewServeMux()
	NewTrackerServer(ingestSvc, ratingSvc, nop).Register(mux)

	return &testServer{mux: mux, log: log, queue: q, processor: processor}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func snapshotBody(t *testing.T, round int, phase, winTeam string, ts int64) []byte {
	t.Helper()
	snap := &gamestate.Snapshot{
		Provider: &gamestate.Provider{AppID: 730, Timestamp: ts},
		Map:      &gamestate.MapState{Name: "de_dust2", Phase: "live", Round: round, SessionID: "sess-a"},
		Round:    &gamestate.RoundState{Phase: phase, WinTeam: winTeam},
		AllPlayers: map[string]gamestate.PlayerState{
			"7001": {Name: "alice", Team: "T", State: &gamestate.LiveState{Health: 80, RoundKills: 1, RoundDamage: 100}, MatchStats: &gamestate.MatchStats{Kills: round}},
			"7002": {Name: "bob", Team: "CT", State: &gamestate.LiveState{}, MatchStats: &gamestate.MatchStats{Deaths: round}},
		},
	}
	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	return payload
}

// playRounds ingests via the HTTP handler and drains synchronously.
func (ts *testServer) playRounds(t *testing.T, rounds int) {
	t.Helper()
	base := int64(1_683_745_200)
	for i := 1; i <= rounds; i++ {
		rec := ts.do(t, http.MethodPost, "/api/game_state", snapshotBody(t, i, gamestate.PhaseLive, "", base+int64(i)*120))
		require.Equal(t, http.StatusOK, rec.Code)
		rec = ts.do(t, http.MethodPost, "/api/game_state", snapshotBody(t, i, gamestate.PhaseOver, "T", base+int64(i)*120+60))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	head, err := ts.log.LastSequence(context.Background())
	require.NoError(t, err)
	require.NoError(t, ts.processor.HandleSequence(context.Background(), head))
}

func TestPostGameStateAcknowledgesDurableAppend(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/game_state", snapshotBody(t, 1, gamestate.PhaseLive, "", 1_683_745_200))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp["sequence_id"])
}

func TestPostGameStateRejectsEmptyBody(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/game_state", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostGameStateAcceptsUnvalidatedPayloads(t *testing.T) {
	// Validation happens in the consumer; ingestion only persists.
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/game_state", []byte(`{"not": "a snapshot"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostGameStateBackpressure(t *testing.T) {
	srv := newTestServer(t)

	// Fill the queue with no consumer running.
	for i := 0; i < 16; i++ {
		rec := srv.do(t, http.MethodPost, "/api/game_state", snapshotBody(t, 1, gamestate.PhaseLive, "", 1_683_745_200))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := srv.do(t, http.MethodPost, "/api/game_state", snapshotBody(t, 1, gamestate.PhaseLive, "", 1_683_745_200))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetSeasons(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/seasons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"season_id":1`)
}

func TestGetLeaderboard(t *testing.T) {
	srv := newTestServer(t)
	srv.playRounds(t, 3)

	rec := srv.do(t, http.MethodGet, "/api/leaderboard/overall", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SeasonID    int64                 `json:"season_id"`
		Leaderboard []leaderboardRowJSON  `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Leaderboard, 2)
	assert.Equal(t, "7001", resp.Leaderboard[0].PlayerID)
	assert.NotEmpty(t, resp.Leaderboard[0].SkillGroup)

	rec = srv.do(t, http.MethodGet, "/api/leaderboard/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/leaderboard/nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProfile(t *testing.T) {
	srv := newTestServer(t)
	srv.playRounds(t, 2)

	rec := srv.do(t, http.MethodGet, "/api/profile/7001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display_name":"alice"`)

	rec = srv.do(t, http.MethodGet, "/api/profile/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHistory(t *testing.T) {
	srv := newTestServer(t)
	srv.playRounds(t, 3)

	rec := srv.do(t, http.MethodGet, "/api/history/7001?season=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		History []json.RawMessage `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.History, 3)

	rec = srv.do(t, http.MethodGet, "/api/history/7001?season=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMatchmaking(t *testing.T) {
	srv := newTestServer(t)
	srv.playRounds(t, 3)

	body := `{"player_ids": ["7001", "7002"], "season_id": 0}`
	rec := srv.do(t, http.MethodPost, "/api/matchmaking", []byte(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Matches []matchJSON `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Matches, 1)
	assert.GreaterOrEqual(t, resp.Matches[0].Team1WinProbability, resp.Matches[0].Team2WinProbability)
}

func TestPostMatchmakingRejectsUnsplittablePool(t *testing.T) {
	srv := newTestServer(t)
	srv.playRounds(t, 1)

	body := `{"player_ids": ["7001"], "season_id": 0}`
	rec := srv.do(t, http.MethodPost, "/api/matchmaking", []byte(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "error"))
}

func TestPostMatchmakingMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/matchmaking", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

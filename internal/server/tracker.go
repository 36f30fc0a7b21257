package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/domain"
	"csgo-tracker/internal/eventlog"
	"csgo-tracker/internal/matchmaking"
	"csgo-tracker/internal/queue"
	"csgo-tracker/internal/service"

	"github.com/rs/zerolog"
)

// maxSnapshotBytes bounds a single game state payload. CS:GO snapshots
// with full player lists run a few tens of KB.
const maxSnapshotBytes = 1 << 20

// TrackerServer exposes the JSON API: snapshot ingestion plus the
// leaderboard, profile, history, and matchmaking read surface.
type TrackerServer struct {
	ingestSvc *service.IngestService
	ratingSvc *service.RatingService
	logger    zerolog.Logger
}

func NewTrackerServer(ingestSvc *service.IngestService, ratingSvc *service.RatingService, logger zerolog.Logger) *TrackerServer {
	return &TrackerServer{ingestSvc: ingestSvc, ratingSvc: ratingSvc, logger: logger}
}

// Register wires every route onto the mux.
func (s *TrackerServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/game_state", s.PostGameState)
	mux.HandleFunc("GET /api/seasons", s.GetSeasons)
	mux.HandleFunc("GET /api/leaderboard/{season}", s.GetLeaderboard)
	mux.HandleFunc("GET /api/profile/{player_id}", s.GetProfile)
	mux.HandleFunc("GET /api/history/{player_id}", s.GetHistory)
	mux.HandleFunc("POST /api/matchmaking", s.PostMatchmaking)
}

// PostGameState ingests one raw snapshot. Success means the payload is
// durably logged; processing is asynchronous.
func (s *TrackerServer) PostGameState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, constants.IngestTimeout)
	defer cancel()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(payload) == 0 {
		writeError(w, r, http.StatusBadRequest, "empty request body")
		return
	}
	if len(payload) > maxSnapshotBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "snapshot too large")
		return
	}

	seq, err := s.ingestSvc.Ingest(ctx, payload)
	if err != nil {
		switch {
		case errors.Is(err, eventlog.ErrLogWrite):
			writeError(w, r, http.StatusInternalServerError, "failed to persist snapshot")
		case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrStopped):
			// Durable but not yet scheduled; the client may retry, the
			// duplicate round is discarded downstream.
			writeError(w, r, http.StatusServiceUnavailable, "processing backlog full, retry later")
		default:
			writeError(w, r, http.StatusInternalServerError, "ingestion failed")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"sequence_id": seq})
}

func (s *TrackerServer) GetSeasons(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, constants.RequestTimeout)
	defer cancel()

	seasons, err := s.ratingSvc.Seasons(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list seasons")
		return
	}

	type seasonJSON struct {
		SeasonID int64      `json:"season_id"`
		StartAt  time.Time  `json:"start_at"`
		EndAt    *time.Time `json:"end_at,omitempty"`
	}
	out := make([]seasonJSON, 0, len(seasons))
	for _, season := range seasons {
		out = append(out, seasonJSON{SeasonID: season.SeasonID, StartAt: season.StartAt, EndAt: season.EndAt})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"seasons": out})
}

type leaderboardRowJSON struct {
	PlayerID    string  `json:"player_id"`
	DisplayName string  `json:"display_name"`
	MMR         int     `json:"mmr"`
	SkillGroup  string  `json:"skill_group"`
	Percentile  float64 `json:"percentile"`
	Impact      float64 `json:"impact"`
	RoundsWon   int     `json:"rounds_won"`
	RoundsLost  int     `json:"rounds_lost"`
}

// GetLeaderboard serves a season's ranked players. The season path
// segment is a season id or "overall".
func (s *TrackerServer) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, constants.RequestTimeout)
	defer cancel()

	seasonID, err := parseSeason(r.PathValue("season"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid season")
		return
	}

	rows, err := s.ratingSvc.Leaderboard(ctx, seasonID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	out := make([]leaderboardRowJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, leaderboardRowJSON{
			PlayerID:    row.PlayerID,
			DisplayName: row.DisplayName,
			MMR:         row.MMR,
			SkillGroup:  row.SkillGroup,
			Percentile:  row.Percentile,
			Impact:      row.Impact,
			RoundsWon:   row.RoundsWon,
			RoundsLost:  row.RoundsLost,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"season_id": seasonID, "leaderboard": out})
}

func (s *TrackerServer) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, constants.RequestTimeout)
	defer cancel()

	profile, err := s.ratingSvc.Profile(ctx, r.PathValue("player_id"))
	if err != nil {
		if errors.Is(err, service.ErrPlayerNotFound) {
			writeError(w, r, http.StatusNotFound, "player not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to load profile")
		return
	}

	type ratingJSON struct {
		SeasonID   int64   `json:"season_id"`
		Mean       float64 `json:"mean"`
		Stdev      float64 `json:"stdev"`
		MMR        int     `json:"mmr"`
		SkillGroup string  `json:"skill_group"`
		Percentile float64 `json:"percentile"`
		Impact     float64 `json:"impact"`
	}
	ratings := make([]ratingJSON, 0, len(profile.Ratings))
	for _, pr := range profile.Ratings {
		ratings = append(ratings, ratingJSON{
			SeasonID:   pr.SeasonID,
			Mean:       pr.Mean,
			Stdev:      pr.Stdev,
			MMR:        pr.MMR,
			SkillGroup: pr.SkillGroup,
			Percentile: pr.Percentile,
			Impact:     pr.Impact,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"player_id":    profile.Player.PlayerID,
		"display_name": profile.Player.DisplayName,
		"ratings":      ratings,
	})
}

// GetHistory serves a player's rating trajectory. Season comes from the
// ?season= query parameter and defaults to overall.
func (s *TrackerServer) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, constants.RequestTimeout)
	defer cancel()

	seasonID := int64(domain.OverallSeasonID)
	if raw := r.URL.Query().Get("season"); raw != "" {
		var err error
		seasonID, err = parseSeason(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid season")
			return
		}
	}

	points, err := s.ratingSvc.History(ctx, r.PathValue("player_id"), seasonID)
	if err != nil {
		if errors.Is(err, service.ErrPlayerNotFound) {
			writeError(w, r, http.StatusNotFound, "player not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to load history")
		return
	}

	type pointJSON struct {
		RoundID   string    `json:"round_id"`
		Mean      float64   `json:"mean"`
		Stdev     float64   `json:"stdev"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]pointJSON, 0, len(points))
	for _, p := range points {
		out = append(out, pointJSON{RoundID: p.RoundID, Mean: p.Mean, Stdev: p.Stdev, CreatedAt: p.CreatedAt})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"player_id": r.PathValue("player_id"),
		"season_id": seasonID,
		"history":   out,
	})
}

type matchmakingRequest struct {
	PlayerIDs []string `json:"player_ids"`
	SeasonID  int64    `json:"season_id"`
	Limit     int      `json:"limit"`
	Seed      int64    `json:"seed"`
}

type teamMemberJSON struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	MMR         int    `json:"mmr"`
}

type matchJSON struct {
	Team1               []teamMemberJSON `json:"team1"`
	Team2               []teamMemberJSON `json:"team2"`
	Quality             float64          `json:"quality"`
	Team1WinProbability float64          `json:"team1_win_probability"`
	Team2WinProbability float64          `json:"team2_win_probability"`
	Exact               bool             `json:"exact"`
}

// PostMatchmaking suggests balanced team splits for the named players.
func (s *TrackerServer) PostMatchmaking(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, constants.RequestTimeout)
	defer cancel()

	var req matchmakingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSnapshotBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	matches, err := s.ratingSvc.SuggestTeams(ctx, req.PlayerIDs, req.SeasonID, matchmaking.Options{
		Limit: req.Limit,
		Seed:  req.Seed,
	})
	if err != nil {
		switch {
		case errors.Is(err, matchmaking.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPlayerNotFound):
			writeError(w, r, http.StatusNotFound, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "matchmaking failed")
		}
		return
	}

	out := make([]matchJSON, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchJSON{
			Team1:               toTeamJSON(m.Team1),
			Team2:               toTeamJSON(m.Team2),
			Quality:             m.Quality,
			Team1WinProbability: m.Team1WinProbability,
			Team2WinProbability: m.Team2WinProbability,
			Exact:               m.Exact,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"matches": out})
}

func toTeamJSON(team []matchmaking.Candidate) []teamMemberJSON {
	out := make([]teamMemberJSON, 0, len(team))
	for _, c := range team {
		out = append(out, teamMemberJSON{
			PlayerID:    c.PlayerID,
			DisplayName: c.DisplayName,
			MMR:         c.Rating.MMR(),
		})
	}
	return out
}

func parseSeason(raw string) (int64, error) {
	if raw == "overall" {
		return domain.OverallSeasonID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, errors.New("invalid season")
	}
	return id, nil
}


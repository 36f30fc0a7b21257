package gamestate

import (
	"fmt"
	"sort"
	"time"

	"csgo-tracker/internal/domain"

	"github.com/rs/zerolog"
)

// unconnectedName marks slot placeholders in the roster; they are not
// real players.
const unconnectedName = "unconnected"

// RoundEvent is the discrete outcome synthesized from a live-to-over phase
// transition. The season is resolved later, by the processor.
type RoundEvent struct {
	RoundID     string
	SessionID   string
	RoundIndex  int
	MapName     string
	StartedAt   time.Time
	EndedAt     time.Time
	WinTeam     domain.Team
	MVPPlayerID string
	Stats       []domain.RoundStat
}

// RoundIDFor derives the idempotent round id: two snapshots claiming the
// same (session, round index) with a terminal phase are the same physical
// round.
func RoundIDFor(sessionID string, roundIndex int) string {
	return fmt.Sprintf("%s:r%03d", sessionID, roundIndex)
}

type sessionState struct {
	last          *Snapshot
	lastRound     int
	lastFinalized int
	liveAt        time.Time
}

// Differ folds a stream of overlapping snapshots into discrete round
// events and player observations. It keeps the last seen snapshot per map
// session; a new session id never diffs against a stale prior session.
// It is confined to the single consumer goroutine and needs no locking.
type Differ struct {
	sessions map[string]*sessionState
	logger   zerolog.Logger
}

func NewDiffer(logger zerolog.Logger) *Differ {
	return &Differ{
		sessions: make(map[string]*sessionState),
		logger:   logger,
	}
}

// Observe consumes one parsed snapshot. It returns the players observed in
// the roster and, when this snapshot completes a not-yet-finalized round,
// exactly one RoundEvent.
func (d *Differ) Observe(snap *Snapshot) ([]domain.Player, *RoundEvent) {
	players := observedPlayers(snap)

	st := d.sessions[snap.Map.SessionID]
	if st == nil {
		st = &sessionState{lastRound: -1, lastFinalized: -1}
		d.sessions[snap.Map.SessionID] = st
	}

	if snap.Map.Round < st.lastRound {
		// Client reconnects can restate older state; never a new round.
		d.logger.Debug().
			Str("session_id", snap.Map.SessionID).
			Int("round_index", snap.Map.Round).
			Int("last_round", st.lastRound).
			Msg("ignoring regressed round index")
		return players, nil
	}

	if snap.Round.Phase == PhaseLive && snap.Map.Round > st.lastRound {
		st.liveAt = snap.ReceivedAt()
	}

	var event *RoundEvent
	if snap.Round.Phase == PhaseOver && snap.Map.Round > st.lastFinalized {
		event = d.finalizeRound(snap, st)
		if event != nil {
			st.lastFinalized = snap.Map.Round
		}
	}

	st.last = snap
	st.lastRound = snap.Map.Round

	if snap.Map.Phase == MapPhaseGameOver {
		delete(d.sessions, snap.Map.SessionID)
	}

	return players, event
}

func (d *Differ) finalizeRound(snap *Snapshot, st *sessionState) *RoundEvent {
	winTeam := parseWinTeam(snap.Round.WinTeam)
	if winTeam == "" {
		d.logger.Warn().
			Str("session_id", snap.Map.SessionID).
			Int("round_index", snap.Map.Round).
			Str("win_team", snap.Round.WinTeam).
			Msg("round over without a usable outcome, skipping")
		return nil
	}

	baseline := d.baselineRoster(snap, st)
	teams := make(map[domain.Team]int)
	var stats []domain.RoundStat
	mvpPlayerID := ""
	roundID := RoundIDFor(snap.Map.SessionID, snap.Map.Round)

	for steamID, player := range snap.AllPlayers {
		if player.Name == unconnectedName {
			continue
		}
		if player.State == nil || player.MatchStats == nil {
			d.logger.Warn().
				Str("session_id", snap.Map.SessionID).
				Str("player_id", steamID).
				Msg("roster entry missing stat blocks, skipping round")
			return nil
		}
		team := domain.Team(player.Team)
		if team != domain.TeamT && team != domain.TeamCT {
			continue
		}
		teams[team]++

		survived := player.State.Health > 0
		deaths := 1
		if survived {
			deaths = 0
		}
		prevMVPs, mvpsKnown := baselineMVPs(baseline, steamID)
		mvps := counterDelta(player.MatchStats.MVPs, prevMVPs, mvpsKnown)

		prevAssists, assistsKnown := baselineAssists(baseline, steamID)
		stats = append(stats, domain.RoundStat{
			RoundID:     roundID,
			PlayerID:    steamID,
			Team:        team,
			Kills:       player.State.RoundKills,
			Deaths:      deaths,
			Assists:     counterDelta(player.MatchStats.Assists, prevAssists, assistsKnown),
			MVPs:        mvps,
			DamageDealt: player.State.RoundDamage,
			Survived:    survived,
		})
	}

	if len(teams) != 2 {
		d.logger.Warn().
			Str("session_id", snap.Map.SessionID).
			Int("round_index", snap.Map.Round).
			Int("teams", len(teams)).
			Msg("round without exactly two teams, skipping")
		return nil
	}

	// Deterministic order regardless of roster map iteration.
	sort.Slice(stats, func(i, j int) bool { return stats[i].PlayerID < stats[j].PlayerID })

	for _, stat := range stats {
		if stat.MVPs > 0 {
			mvpPlayerID = stat.PlayerID
			break
		}
	}

	endedAt := snap.ReceivedAt()
	startedAt := st.liveAt
	if startedAt.IsZero() {
		startedAt = endedAt
	}

	return &RoundEvent{
		RoundID:     roundID,
		SessionID:   snap.Map.SessionID,
		RoundIndex:  snap.Map.Round,
		MapName:     snap.Map.Name,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
		WinTeam:     winTeam,
		MVPPlayerID: mvpPlayerID,
		Stats:       stats,
	}
}

// baselineRoster picks the reference for cumulative counter deltas: the
// previously seen snapshot of this session, or the client's own diff hints
// when we joined the session mid-match.
func (d *Differ) baselineRoster(snap *Snapshot, st *sessionState) map[string]PlayerState {
	if st.last != nil {
		return st.last.AllPlayers
	}
	if snap.Previously != nil {
		return snap.Previously.AllPlayers
	}
	return nil
}

func baselineAssists(roster map[string]PlayerState, steamID string) (int, bool) {
	if roster == nil {
		return 0, false
	}
	p, ok := roster[steamID]
	if !ok || p.MatchStats == nil {
		return 0, false
	}
	return p.MatchStats.Assists, true
}

func baselineMVPs(roster map[string]PlayerState, steamID string) (int, bool) {
	if roster == nil {
		return 0, false
	}
	p, ok := roster[steamID]
	if !ok || p.MatchStats == nil {
		return 0, false
	}
	return p.MatchStats.MVPs, true
}

// counterDelta computes the per-round value of a cumulative counter. An
// unknown baseline yields zero rather than crediting the whole match.
func counterDelta(current int, baseline int, known bool) int {
	if !known {
		return 0
	}
	delta := current - baseline
	if delta < 0 {
		return 0
	}
	return delta
}

func parseWinTeam(raw string) domain.Team {
	switch raw {
	case "T":
		return domain.TeamT
	case "CT":
		return domain.TeamCT
	case "draw":
		return domain.TeamDraw
	default:
		return ""
	}
}

func observedPlayers(snap *Snapshot) []domain.Player {
	var players []domain.Player
	for steamID, player := range snap.AllPlayers {
		if player.Name == "" || player.Name == unconnectedName {
			continue
		}
		players = append(players, domain.Player{
			PlayerID:    steamID,
			DisplayName: player.Name,
		})
	}
	return players
}

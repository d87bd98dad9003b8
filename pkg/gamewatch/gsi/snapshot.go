package gsi

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Snapshot is one game state integration packet.
//
// Previous holds the prior tick's values for the fields that changed since
// then. A field absent from Previous is unchanged, not empty; numeric fields
// that are diffed are pointers for that reason.
type Snapshot struct {
	Provider *Provider `json:"provider,omitempty"`
	Map      *Map      `json:"map,omitempty"`
	Round    *Round    `json:"round,omitempty"`
	Player   *Player   `json:"player,omitempty"`
	Auth     *Auth     `json:"auth,omitempty"`
	Previous *Snapshot `json:"previously,omitempty"`
}

// Provider identifies the game client that sent the snapshot.
type Provider struct {
	Name      string `json:"name,omitempty"`
	AppID     int    `json:"appid,omitempty"`
	Version   int    `json:"version,omitempty"`
	SteamID   string `json:"steamid,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Map is the map section. Phase tracks the match as a whole.
type Map struct {
	Name  string `json:"name,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Phase string `json:"phase,omitempty"`
	// Round is the number of rounds already played, which is also the
	// 0-based index of the current round.
	Round *int `json:"round,omitempty"`
	// RoundWins maps a 1-based round number to a win method such as
	// "ct_win_elimination".
	RoundWins map[string]string `json:"round_wins,omitempty"`
	TeamCT    *Team             `json:"team_ct,omitempty"`
	TeamT     *Team             `json:"team_t,omitempty"`
}

// Team is one side's score on the current map.
type Team struct {
	Score int    `json:"score"`
	Name  string `json:"name,omitempty"`
}

// Round is the round section. Phase is "freezetime", "live" or "over".
type Round struct {
	Phase   string `json:"phase,omitempty"`
	Bomb    string `json:"bomb,omitempty"`
	WinTeam string `json:"win_team,omitempty"`
}

// Player is the player section. It describes the local player, or the
// player being spectated while the local player is dead.
type Player struct {
	SteamID    string            `json:"steamid,omitempty"`
	Name       string            `json:"name,omitempty"`
	Team       string            `json:"team,omitempty"`
	Activity   string            `json:"activity,omitempty"`
	MatchStats *MatchStats       `json:"match_stats,omitempty"`
	State      *PlayerState      `json:"state,omitempty"`
	Weapons    map[string]Weapon `json:"weapons,omitempty"`
}

// MatchStats holds a player's cumulative scoreboard counters.
type MatchStats struct {
	Kills   *int `json:"kills,omitempty"`
	Assists *int `json:"assists,omitempty"`
	Deaths  *int `json:"deaths,omitempty"`
	MVPs    *int `json:"mvps,omitempty"`
	Score   *int `json:"score,omitempty"`
}

// PlayerState is the player's in-round state.
type PlayerState struct {
	Health      int  `json:"health"`
	Armor       int  `json:"armor"`
	Helmet      bool `json:"helmet"`
	Flashed     int  `json:"flashed"`
	Smoked      int  `json:"smoked"`
	Money       int  `json:"money"`
	RoundKills  *int `json:"round_kills,omitempty"`
	RoundKillHS *int `json:"round_killhs,omitempty"`
	EquipValue  int  `json:"equip_value"`
}

// Weapon is one entry of player.weapons, keyed by slot ("weapon_0").
type Weapon struct {
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	State    string `json:"state,omitempty"`
	AmmoClip *int   `json:"ammo_clip,omitempty"`
}

// Auth carries the token configured in the game's cfg file.
type Auth struct {
	Token string `json:"token"`
}

// Activity values reported for the player.
const (
	ActivityPlaying = "playing"
	ActivityMenu    = "menu"
)

// Phase values of map.phase and round.phase.
const (
	PhaseWarmup     = "warmup"
	PhaseLive       = "live"
	PhaseGameOver   = "gameover"
	PhaseFreezeTime = "freezetime"
	PhaseOver       = "over"
	BombPlanted     = "planted"
	BombDefused     = "defused"
	BombExploded    = "exploded"
)

// ErrNotObject is returned by DecodeSnapshot when the body is not a JSON object.
var ErrNotObject = errors.New("snapshot is not a JSON object")

// SectionError names a snapshot section that could not be decoded.
type SectionError struct {
	Section string
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("section %s: %v", e.Section, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

type rawSnapshot struct {
	Provider   json.RawMessage `json:"provider"`
	Map        json.RawMessage `json:"map"`
	Round      json.RawMessage `json:"round"`
	Player     json.RawMessage `json:"player"`
	Auth       json.RawMessage `json:"auth"`
	Previously json.RawMessage `json:"previously"`
}

// DecodeSnapshot decodes a packet. Sections that are not objects of the
// expected shape are left nil and reported as *SectionError values in
// skipped. The game sends "previously": {"map": true} on map changes, which is
// skipped this way. err is non-nil only when the body as a whole is unusable.
func DecodeSnapshot(data []byte) (s *Snapshot, skipped []error, err error) {
	return decodeSnapshot(data, "", true)
}

func decodeSnapshot(data []byte, prefix string, nested bool) (*Snapshot, []error, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if trimmed := strings.TrimSpace(string(data)); !strings.HasPrefix(trimmed, "{") {
		return nil, nil, ErrNotObject
	}

	s := &Snapshot{}
	var skipped []error
	section := func(name string, msg json.RawMessage, dst any) bool {
		if len(msg) == 0 || string(msg) == "null" {
			return false
		}
		if err := json.Unmarshal(msg, dst); err != nil || msg[0] != '{' {
			if err == nil {
				err = ErrNotObject
			}
			skipped = append(skipped, &SectionError{Section: prefix + name, Err: err})
			return false
		}
		return true
	}

	var (
		provider Provider
		mp       Map
		round    Round
		player   Player
		auth     Auth
	)
	if section("provider", raw.Provider, &provider) {
		s.Provider = &provider
	}
	if section("map", raw.Map, &mp) {
		s.Map = &mp
	}
	if section("round", raw.Round, &round) {
		s.Round = &round
	}
	if section("player", raw.Player, &player) {
		s.Player = &player
	}
	if section("auth", raw.Auth, &auth) {
		s.Auth = &auth
	}

	if nested && len(raw.Previously) > 0 && string(raw.Previously) != "null" {
		prev, prevSkipped, err := decodeSnapshot(raw.Previously, "previously.", false)
		if err != nil {
			skipped = append(skipped, &SectionError{Section: "previously", Err: err})
		} else {
			s.Previous = prev
			skipped = append(skipped, prevSkipped...)
		}
	}
	return s, skipped, nil
}

// LocalPlayerID returns provider.steamid, the id of the player running the game.
func (s *Snapshot) LocalPlayerID() string {
	if s == nil || s.Provider == nil {
		return ""
	}
	return s.Provider.SteamID
}

func (s *Snapshot) prevRound() *Round {
	if s.Previous == nil {
		return nil
	}
	return s.Previous.Round
}

func (s *Snapshot) prevPlayer() *Player {
	if s.Previous == nil {
		return nil
	}
	return s.Previous.Player
}

// sortedWeapons returns the weapons ordered by slot (weapon_0, weapon_1, ...).
func sortedWeapons(weapons map[string]Weapon) []string {
	keys := make([]string, 0, len(weapons))
	for k := range weapons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		si, sj := slotNumber(keys[i]), slotNumber(keys[j])
		if si != sj {
			return si < sj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func slotNumber(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "weapon_"))
	if err != nil {
		return 1 << 30
	}
	return n
}

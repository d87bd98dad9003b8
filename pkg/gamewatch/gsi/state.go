package gsi

import (
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// DefaultSupportedModes are the map modes a match is tracked for.
var DefaultSupportedModes = []string{"competitive", "scrimcomp2v2", "casual"}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// MatchState is what the manager knows about the active match.
type MatchState struct {
	Map       string
	Mode      string
	Phase     string
	WarmupAt  time.Time
	StartedAt time.Time
	EndedAt   time.Time
	Started   bool

	Rounds map[int]*RoundState
	// LatestRound is the highest opened round index, -1 before the first.
	LatestRound int

	Players map[string]*MatchPlayer
}

// MatchPlayer holds a player's running totals, copied from match_stats.
type MatchPlayer struct {
	Name   string
	Totals event.PlayerTotals
}

// RoundState is one round of the active match.
type RoundState struct {
	Index      int
	BuyAt      time.Time
	LiveAt     time.Time
	PlantedAt  time.Time
	ResolvedAt time.Time
	EndedAt    time.Time
	WinTeam    string
	WinMethod  string

	// Players holds each player's loadout as the round went live.
	Players map[string]*PlayerRoundState
	Kills   []KillEvent
}

// PlayerRoundState is a player's per-round snapshot.
type PlayerRoundState struct {
	Loadout event.Loadout
}

// KillEvent is a kill, death or assist synthesized from counter diffs.
type KillEvent struct {
	Time time.Time
	Kind event.Kind
	event.Kill
}

func newMatch(name, mode string) *MatchState {
	return &MatchState{
		Map:         name,
		Mode:        mode,
		Rounds:      make(map[int]*RoundState),
		LatestRound: -1,
		Players:     make(map[string]*MatchPlayer),
	}
}

func (m *MatchState) latest() *RoundState {
	return m.Rounds[m.LatestRound]
}

func (m *MatchState) clone() *MatchState {
	c := *m
	c.Rounds = make(map[int]*RoundState, len(m.Rounds))
	for i, r := range m.Rounds {
		rc := *r
		rc.Players = make(map[string]*PlayerRoundState, len(r.Players))
		for id, p := range r.Players {
			pc := *p
			pc.Loadout.Weapons = append([]event.Weapon(nil), p.Loadout.Weapons...)
			rc.Players[id] = &pc
		}
		rc.Kills = append([]KillEvent(nil), r.Kills...)
		c.Rounds[i] = &rc
	}
	c.Players = make(map[string]*MatchPlayer, len(m.Players))
	for id, p := range m.Players {
		pc := *p
		c.Players[id] = &pc
	}
	return &c
}

// StateManager reconstructs match, round and kill events from successive
// snapshots of one game session and publishes them on a bus.
//
// HandleSnapshot serializes calls; snapshots of a session are sequential.
// Events are published after the state lock is released, so handlers may call
// Match and LocalPlayer. A handler must not call HandleSnapshot.
type StateManager struct {
	bus   *gamewatch.EventBus
	modes map[string]struct{}
	log   *slog.Logger
	now   func() time.Time

	// handleMu serializes HandleSnapshot including publishing; mu guards
	// the state below and is never held while handlers run.
	handleMu    sync.Mutex
	mu          sync.Mutex
	localPlayer string
	match       *MatchState
	rejected    string
	pending     []event.Event
}

// StateOption configures a StateManager.
type StateOption func(*StateManager)

// WithSupportedModes replaces DefaultSupportedModes.
func WithSupportedModes(modes ...string) StateOption {
	return func(m *StateManager) {
		m.modes = make(map[string]struct{}, len(modes))
		for _, mode := range modes {
			m.modes[mode] = struct{}{}
		}
	}
}

// WithStateLogger sets the logger. Default discards.
func WithStateLogger(l *slog.Logger) StateOption {
	return func(m *StateManager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithStateClock sets the clock used to stamp events. Default time.Now.
func WithStateClock(now func() time.Time) StateOption {
	return func(m *StateManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewStateManager returns a manager publishing on bus.
func NewStateManager(bus *gamewatch.EventBus, opts ...StateOption) *StateManager {
	m := &StateManager{
		bus: bus,
		log: discardLogger,
		now: time.Now,
	}
	WithSupportedModes(DefaultSupportedModes...)(m)
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// HandleSnapshot implements Delegate.
func (m *StateManager) HandleSnapshot(s *Snapshot) {
	if s == nil {
		return
	}
	m.handleMu.Lock()
	defer m.handleMu.Unlock()

	for _, e := range m.apply(s) {
		m.bus.Publish(e)
	}
}

// apply diffs s against the current state and returns the events to publish.
func (m *StateManager) apply(s *Snapshot) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.learnLocalPlayer(s)
	m.acquireMatch(s, now)
	if m.match != nil {
		m.diffRound(s, now)
		m.trackBomb(s, now)
		m.diffPlayer(s, now)
		m.diffMapPhase(s, now)
		m.checkMenu(s, now)
	}

	out := m.pending
	m.pending = nil
	return out
}

// emit queues an event for publishing once the state lock is released.
func (m *StateManager) emit(kind event.Kind, t time.Time, payload event.Payload) {
	m.pending = append(m.pending, event.Event{Kind: kind, Time: t, Payload: payload})
}

// Match returns a copy of the active match, or nil.
func (m *StateManager) Match() *MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.match == nil {
		return nil
	}
	return m.match.clone()
}

// LocalPlayer returns the cached local player id.
func (m *StateManager) LocalPlayer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localPlayer
}

func (m *StateManager) learnLocalPlayer(s *Snapshot) {
	id := s.LocalPlayerID()
	switch {
	case id == "" || id == m.localPlayer:
	case m.localPlayer == "" || m.match == nil:
		m.localPlayer = id
		m.log.Debug("local player identified", "id", id)
	default:
		m.log.Warn("provider changed during a match, keeping local player", "local", m.localPlayer, "provider", id)
	}
}

func (m *StateManager) acquireMatch(s *Snapshot, now time.Time) {
	if m.match != nil || s.Map == nil {
		return
	}
	if s.Map.Phase == PhaseGameOver {
		// The scoreboard of a finished match stays up until the map changes.
		return
	}
	if _, ok := m.modes[s.Map.Mode]; !ok {
		key := s.Map.Name + "/" + s.Map.Mode
		if key != m.rejected {
			m.rejected = key
			m.log.Warn("ignoring match in unsupported mode", "map", s.Map.Name, "mode", s.Map.Mode)
		}
		return
	}
	m.rejected = ""
	m.match = newMatch(s.Map.Name, s.Map.Mode)
	m.log.Info("match acquired", "map", s.Map.Name, "mode", s.Map.Mode)
	if s.Map.Phase != "" {
		m.handlePhase(s.Map.Phase, now)
	}
}

func (m *StateManager) diffMapPhase(s *Snapshot, now time.Time) {
	if m.match == nil || s.Map == nil || s.Map.Phase == "" || s.Map.Phase == m.match.Phase {
		return
	}
	m.handlePhase(s.Map.Phase, now)
}

func (m *StateManager) handlePhase(phase string, now time.Time) {
	match := m.match
	match.Phase = phase
	switch phase {
	case PhaseWarmup:
		if match.WarmupAt.IsZero() {
			match.WarmupAt = now
		}
	case PhaseLive:
		if match.Started {
			return
		}
		match.Started = true
		match.StartedAt = now
		m.emit(event.KindMatchStart, now, event.MatchStart{
			Map:         match.Map,
			Mode:        match.Mode,
			WarmupAt:    match.WarmupAt,
			LocalPlayer: m.localPlayer,
		})
	case PhaseGameOver:
		m.endMatch(event.EndGameOver, now)
	}
}

func (m *StateManager) checkMenu(s *Snapshot, now time.Time) {
	if m.match == nil || s.Player == nil || s.Player.Activity != ActivityMenu {
		return
	}
	m.endMatch(event.EndMenu, now)
}

// endMatch publishes MatchEnd if the match started, then forgets it.
func (m *StateManager) endMatch(reason event.EndReason, now time.Time) {
	match := m.match
	m.match = nil
	if !match.Started {
		m.log.Debug("match discarded before it started", "map", match.Map, "reason", reason)
		return
	}
	match.EndedAt = now
	var totals event.PlayerTotals
	if p, ok := match.Players[m.localPlayer]; ok {
		totals = p.Totals
	}
	m.emit(event.KindMatchEnd, now, event.MatchEnd{
		Map:    match.Map,
		Mode:   match.Mode,
		Reason: reason,
		Rounds: len(match.Rounds),
		Totals: totals,
	})
	m.log.Info("match ended", "map", match.Map, "reason", reason, "rounds", len(match.Rounds))
}

func (m *StateManager) diffRound(s *Snapshot, now time.Time) {
	prev := s.prevRound()
	cur := s.Round
	if prev == nil || cur == nil {
		return
	}
	match := m.match

	if cur.Phase == PhaseOver {
		if cur.WinTeam == "" {
			return
		}
		r := match.latest()
		if r == nil {
			m.log.Warn("round win without an open round", "team", cur.WinTeam)
			return
		}
		if r.WinTeam != "" {
			return
		}
		r.WinTeam = cur.WinTeam
		if s.Map != nil {
			r.WinMethod = s.Map.RoundWins[strconv.Itoa(r.Index+1)]
		}
		r.EndedAt = now
		m.emit(event.KindRoundEnd, now, event.Round{Index: r.Index, WinTeam: r.WinTeam, WinMethod: r.WinMethod})
		return
	}

	// The remaining rules act on phase transitions only; previously.round
	// is also present when just the bomb state changed.
	if prev.Phase == "" || prev.Phase == cur.Phase {
		return
	}
	switch cur.Phase {
	case PhaseFreezeTime:
		m.openRound(s, now)

	case PhaseLive:
		r := match.latest()
		if r == nil || !r.LiveAt.IsZero() {
			if prev.Phase != PhaseFreezeTime {
				m.log.Warn("round went live without an open round", "latest", match.LatestRound)
				return
			}
			if r = m.openRound(s, now); r == nil {
				return
			}
		}
		r.LiveAt = now
		var loadout *event.Loadout
		if lo, ok := m.localLoadout(s); ok {
			r.Players[m.localPlayer] = &PlayerRoundState{Loadout: lo}
			loadout = &lo
		}
		m.emit(event.KindRoundLive, now, event.Round{Index: r.Index, Loadout: loadout})
	}
}

// openRound opens round max(latest+1, map.round). It returns nil when that
// index would not be greater than the latest round.
func (m *StateManager) openRound(s *Snapshot, now time.Time) *RoundState {
	match := m.match
	idx := match.LatestRound + 1
	if s.Map != nil && s.Map.Round != nil && *s.Map.Round > idx {
		idx = *s.Map.Round
	}
	if idx <= match.LatestRound {
		m.log.Warn("rejecting non-monotonic round", "index", idx, "latest", match.LatestRound)
		return nil
	}
	r := &RoundState{
		Index:   idx,
		BuyAt:   now,
		Players: make(map[string]*PlayerRoundState),
	}
	match.Rounds[idx] = r
	match.LatestRound = idx
	m.emit(event.KindRoundStart, now, event.Round{Index: idx})
	return r
}

func (m *StateManager) localLoadout(s *Snapshot) (event.Loadout, bool) {
	p := s.Player
	if p == nil || m.localPlayer == "" || p.SteamID != m.localPlayer {
		return event.Loadout{}, false
	}
	var lo event.Loadout
	for _, key := range sortedWeapons(p.Weapons) {
		w := p.Weapons[key]
		ew := event.Weapon{Name: w.Name, Type: w.Type}
		if w.AmmoClip != nil {
			ew.AmmoClip = *w.AmmoClip
		}
		lo.Weapons = append(lo.Weapons, ew)
	}
	if st := p.State; st != nil {
		lo.Money = st.Money
		lo.Armor = st.Armor
		lo.Helmet = st.Helmet
		lo.EquipValue = st.EquipValue
	}
	return lo, true
}

func (m *StateManager) trackBomb(s *Snapshot, now time.Time) {
	if s.Round == nil {
		return
	}
	r := m.match.latest()
	if r == nil {
		return
	}
	switch s.Round.Bomb {
	case BombPlanted:
		if !r.PlantedAt.IsZero() {
			return
		}
		r.PlantedAt = now
		m.emit(event.KindBombPlanted, now, event.BombPlanted{Round: r.Index})
	case BombDefused, BombExploded:
		if !r.PlantedAt.IsZero() && r.ResolvedAt.IsZero() {
			r.ResolvedAt = now
		}
	}
}

func (m *StateManager) diffPlayer(s *Snapshot, now time.Time) {
	cur := s.Player
	if cur == nil || m.localPlayer == "" || cur.SteamID != m.localPlayer {
		return
	}
	match := m.match
	m.copyTotals(cur)

	prev := s.prevPlayer()
	if prev == nil || prev.MatchStats == nil || cur.MatchStats == nil {
		return
	}
	if prev.SteamID != "" && prev.SteamID != cur.SteamID {
		// Spectator switch: previously holds another player's counters.
		m.log.Debug("player changed between snapshots, skipping stat diff", "previous", prev.SteamID, "current", cur.SteamID)
		return
	}
	kills := delta(prev.MatchStats.Kills, cur.MatchStats.Kills)
	deaths := delta(prev.MatchStats.Deaths, cur.MatchStats.Deaths)
	assists := delta(prev.MatchStats.Assists, cur.MatchStats.Assists)
	if kills+deaths+assists == 0 {
		return
	}

	r := match.latest()
	if r == nil {
		m.log.Warn("player stats changed without an open round", "kills", kills, "deaths", deaths, "assists", assists)
		return
	}

	var headshots int
	if prev.State != nil && cur.State != nil {
		headshots = delta(prev.State.RoundKillHS, cur.State.RoundKillHS)
	}
	var flashed, smoked bool
	if cur.State != nil {
		flashed = cur.State.Flashed > 0
		smoked = cur.State.Smoked > 0
	}

	weapon := killWeapon(prev.Weapons, cur.Weapons)
	first := len(r.Kills)
	for i := 0; i < kills; i++ {
		r.Kills = append(r.Kills, KillEvent{Time: now, Kind: event.KindKill, Kill: event.Kill{
			Round:      r.Index,
			Killer:     m.localPlayer,
			Weapon:     weapon,
			Flashed:    flashed,
			Smoked:     smoked,
			BestEffort: true,
		}})
	}
	for i := len(r.Kills) - 1; i >= first && headshots > 0; i-- {
		r.Kills[i].Headshot = true
		headshots--
	}
	for i := 0; i < deaths; i++ {
		r.Kills = append(r.Kills, KillEvent{Time: now, Kind: event.KindDeath, Kill: event.Kill{
			Round: r.Index, Victim: m.localPlayer, BestEffort: true,
		}})
	}
	for i := 0; i < assists; i++ {
		r.Kills = append(r.Kills, KillEvent{Time: now, Kind: event.KindAssist, Kill: event.Kill{
			Round: r.Index, Assister: m.localPlayer, BestEffort: true,
		}})
	}

	for _, k := range r.Kills[first:] {
		m.emit(k.Kind, k.Time, k.Kill)
	}
}

func (m *StateManager) copyTotals(p *Player) {
	mp, ok := m.match.Players[p.SteamID]
	if !ok {
		mp = &MatchPlayer{}
		m.match.Players[p.SteamID] = mp
	}
	if p.Name != "" {
		mp.Name = p.Name
	}
	st := p.MatchStats
	if st == nil {
		return
	}
	copyInt(&mp.Totals.Kills, st.Kills)
	copyInt(&mp.Totals.Deaths, st.Deaths)
	copyInt(&mp.Totals.Assists, st.Assists)
	copyInt(&mp.Totals.Score, st.Score)
	copyInt(&mp.Totals.MVPs, st.MVPs)
}

// killWeapon guesses the weapon of a kill: the first weapon in the previous
// tick with ammo in the clip, then the current active weapon, then the first
// current weapon with ammo. Previous weapon entries may lack a name.
func killWeapon(prev, cur map[string]Weapon) string {
	for _, key := range sortedWeapons(prev) {
		w := prev[key]
		if w.AmmoClip == nil || *w.AmmoClip <= 0 {
			continue
		}
		if w.Name == "" {
			w.Name = cur[key].Name
		}
		if w.Name != "" {
			return w.Name
		}
	}
	keys := sortedWeapons(cur)
	for _, key := range keys {
		if cur[key].State == "active" {
			return cur[key].Name
		}
	}
	for _, key := range keys {
		if w := cur[key]; w.AmmoClip != nil && *w.AmmoClip > 0 {
			return w.Name
		}
	}
	return ""
}

// delta is the positive change from prev to cur; an absent prev is unchanged.
func delta(prev, cur *int) int {
	if prev == nil || cur == nil || *cur <= *prev {
		return 0
	}
	return *cur - *prev
}

func copyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

var _ Delegate = (*StateManager)(nil)

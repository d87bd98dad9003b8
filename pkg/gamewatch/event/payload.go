package event

import "time"

// Payload is implemented only by the payload types in this package.
type Payload interface {
	payload()
}

// EndReason tells how a match ended.
type EndReason string

const (
	EndGameOver EndReason = "gameover"
	EndMenu     EndReason = "menu"
	EndWipe     EndReason = "wipe"
)

// Task outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
)

// MatchStart is the payload of KindMatchStart.
type MatchStart struct {
	Map         string    `json:"map"`
	Mode        string    `json:"mode"`
	WarmupAt    time.Time `json:"warmup_at,omitzero"`
	LocalPlayer string    `json:"local_player,omitempty"`
}

// PlayerTotals are the local player's running match counters.
type PlayerTotals struct {
	Kills   int `json:"kills"`
	Deaths  int `json:"deaths"`
	Assists int `json:"assists"`
	Score   int `json:"score"`
	MVPs    int `json:"mvps"`
}

// MatchEnd is the payload of KindMatchEnd.
type MatchEnd struct {
	Map    string       `json:"map"`
	Mode   string       `json:"mode"`
	Reason EndReason    `json:"reason"`
	Rounds int          `json:"rounds"`
	Totals PlayerTotals `json:"totals"`
}

// Weapon is one item of a loadout.
type Weapon struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	AmmoClip int    `json:"ammo_clip,omitempty"`
}

// Loadout is the local player's equipment when a round went live.
type Loadout struct {
	Weapons    []Weapon `json:"weapons,omitempty"`
	Money      int      `json:"money"`
	Armor      int      `json:"armor"`
	Helmet     bool     `json:"helmet"`
	EquipValue int      `json:"equip_value"`
}

// Round is the payload of KindRoundStart, KindRoundLive and KindRoundEnd.
type Round struct {
	Index     int      `json:"index"`
	WinTeam   string   `json:"win_team,omitempty"`
	WinMethod string   `json:"win_method,omitempty"`
	Loadout   *Loadout `json:"loadout,omitempty"`
}

// BombPlanted is the payload of KindBombPlanted.
type BombPlanted struct {
	Round int `json:"round"`
}

// Kill is the payload of KindKill, KindDeath and KindAssist.
//
// Events synthesized from counter diffs set BestEffort: Weapon and Headshot
// are then guesses, not facts reported by the game.
type Kill struct {
	Round      int    `json:"round"`
	Killer     string `json:"killer,omitempty"`
	Victim     string `json:"victim,omitempty"`
	Assister   string `json:"assister,omitempty"`
	Weapon     string `json:"weapon,omitempty"`
	Headshot   bool   `json:"headshot,omitempty"`
	Flashed    bool   `json:"flashed,omitempty"`
	Smoked     bool   `json:"smoked,omitempty"`
	BestEffort bool   `json:"best_effort,omitempty"`
}

// PlayerLogin is the payload of KindPlayerLogin.
type PlayerLogin struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// Connection is the payload of KindConnect and KindDisconnect.
type Connection struct {
	Server string `json:"server,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Task is the payload of KindTaskStart and KindTaskFinish.
type Task struct {
	Name     string        `json:"name"`
	ID       string        `json:"id,omitempty"`
	Outcome  string        `json:"outcome,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Custom is the payload of KindCustom.
type Custom struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data,omitempty"`
}

func (MatchStart) payload()  {}
func (MatchEnd) payload()    {}
func (Round) payload()       {}
func (BombPlanted) payload() {}
func (Kill) payload()        {}
func (PlayerLogin) payload() {}
func (Connection) payload()  {}
func (Task) payload()        {}
func (Custom) payload()      {}

// Accepts reports whether p is the payload type defined for k.
// A nil payload is accepted for every known kind.
func Accepts(k Kind, p Payload) bool {
	if p == nil {
		_, known := kindByName[string(k)]
		return known
	}
	switch p.(type) {
	case MatchStart:
		return k == KindMatchStart
	case MatchEnd:
		return k == KindMatchEnd
	case Round:
		return k == KindRoundStart || k == KindRoundLive || k == KindRoundEnd
	case BombPlanted:
		return k == KindBombPlanted
	case Kill:
		return k == KindKill || k == KindDeath || k == KindAssist
	case PlayerLogin:
		return k == KindPlayerLogin
	case Connection:
		return k == KindConnect || k == KindDisconnect
	case Task:
		return k == KindTaskStart || k == KindTaskFinish
	case Custom:
		return k == KindCustom
	}
	return false
}

package skill

import (
	"github.com/tta-solo/engine/internal/engine/dice"
)

// Outcome is a PbtA-style outcome tier.
type Outcome string

const (
	StrongHit Outcome = "strong_hit" // full success plus extra benefit
	WeakHit   Outcome = "weak_hit"   // success with cost or complication
	Miss      Outcome = "miss"       // failure, the GM makes a move
)

// Absolute thresholds used when no DC applies: total >= 15 is a strong
// hit, >= 10 a weak hit, below that a miss.
const (
	noDCStrongHit = 15
	noDCWeakHit   = 10
)

// Classify maps a d20 result to a PbtA outcome tier. Criticals always
// strong-hit and fumbles always miss. With a DC the margin decides:
// >= 5 strong hit, >= 0 weak hit, below miss.
func Classify(total int, dc *int, critical, fumble bool) Outcome {
	if critical {
		return StrongHit
	}
	if fumble {
		return Miss
	}
	if dc != nil {
		margin := total - *dc
		switch {
		case margin >= 5:
			return StrongHit
		case margin >= 0:
			return WeakHit
		default:
			return Miss
		}
	}
	switch {
	case total >= noDCStrongHit:
		return StrongHit
	case total >= noDCWeakHit:
		return WeakHit
	default:
		return Miss
	}
}

// GMMoveType is a move the GM makes on a player miss.
type GMMoveType string

const (
	// Soft moves telegraph danger.
	ShowDanger           GMMoveType = "show_danger"
	OfferOpportunity     GMMoveType = "offer_opportunity"
	RevealUnwelcomeTruth GMMoveType = "reveal_unwelcome_truth"

	// Hard moves land consequences.
	DealDamage     GMMoveType = "deal_damage"
	UseMonsterMove GMMoveType = "use_monster_move"
	SeparateThem   GMMoveType = "separate_them"
	TakeAway       GMMoveType = "take_away"
	Capture        GMMoveType = "capture"

	// Always available.
	AdvanceTime       GMMoveType = "advance_time"
	IntroduceNPC      GMMoveType = "introduce_npc"
	ChangeEnvironment GMMoveType = "change_environment"
)

// Move selection pools, ordered so selection is deterministic per roller.
var (
	softMoves       = []GMMoveType{ShowDanger, OfferOpportunity, RevealUnwelcomeTruth}
	hardMoves       = []GMMoveType{DealDamage, UseMonsterMove, SeparateThem, TakeAway, Capture}
	hardCombatMoves = []GMMoveType{DealDamage, UseMonsterMove, TakeAway}
)

var hardMoveSet = map[GMMoveType]bool{
	DealDamage: true, UseMonsterMove: true, SeparateThem: true,
	TakeAway: true, Capture: true,
}

// IsHard reports whether the move is a hard (consequential) move.
func (m GMMoveType) IsHard() bool {
	return hardMoveSet[m]
}

// GMMove is a selected GM move ready for the executor.
type GMMove struct {
	Type        GMMoveType
	Hard        bool
	Description string
	Damage      int    // rolled damage for deal_damage
	Condition   string // condition applied, if any
}

// SelectGMMove picks a GM move for a miss. Soft moves are preferred at low
// danger; hard moves land when danger is high, the player has already been
// warned twice, or a combat coin-flip comes up. Deterministic given the
// roller.
func SelectGMMove(danger int, inCombat bool, recentSoftMoves int, roller dice.Roller) (GMMove, error) {
	hard := danger >= 10 || recentSoftMoves >= 2
	if !hard && inCombat {
		flip, err := roller.Roll(1, 2)
		if err != nil {
			return GMMove{}, err
		}
		hard = flip[0] == 1
	}

	pool := softMoves
	if hard {
		pool = hardMoves
		if inCombat {
			pool = hardCombatMoves
		}
	}

	pick, err := roller.Roll(1, len(pool))
	if err != nil {
		return GMMove{}, err
	}
	moveType := pool[pick[0]-1]

	move := GMMove{
		Type:        moveType,
		Hard:        moveType.IsHard(),
		Description: moveDescriptions[moveType],
	}
	if moveType == DealDamage {
		dmg, err := roller.Roll(1, damageDieForDanger(danger))
		if err != nil {
			return GMMove{}, err
		}
		move.Damage = dmg[0]
	}
	if moveType == Capture {
		move.Condition = "restrained"
	}
	return move, nil
}

// damageDieForDanger scales GM damage with location danger.
func damageDieForDanger(danger int) int {
	switch {
	case danger <= 5:
		return 4
	case danger <= 10:
		return 6
	case danger <= 15:
		return 8
	default:
		return 10
	}
}

var moveDescriptions = map[GMMoveType]string{
	ShowDanger:           "Something dangerous reveals itself...",
	OfferOpportunity:     "An opportunity presents itself, but at a cost...",
	RevealUnwelcomeTruth: "You realize something troubling...",
	DealDamage:           "The enemy strikes back!",
	UseMonsterMove:       "The creature uses its special ability!",
	SeparateThem:         "You're driven apart from your allies!",
	TakeAway:             "Something important is lost or broken!",
	Capture:              "You find yourself trapped!",
	AdvanceTime:          "Time passes, and the situation changes...",
	IntroduceNPC:         "Someone new arrives on the scene...",
	ChangeEnvironment:    "The environment shifts around you...",
}

// StrongHitBonus describes the extra benefit a strong hit earns, keyed by
// intent type.
func StrongHitBonus(intentType string) string {
	if bonus, ok := strongHitBonuses[intentType]; ok {
		return bonus
	}
	return "You succeed with style."
}

var strongHitBonuses = map[string]string{
	"attack":     "You find an opening for a follow-up attack.",
	"persuade":   "They're genuinely convinced and may help further.",
	"intimidate": "They're completely cowed and won't oppose you.",
	"deceive":    "They believe you completely and share useful information.",
	"search":     "You find exactly what you're looking for, and something else useful.",
	"move":       "You move swiftly and gain a tactical advantage.",
	"rest":       "You feel especially refreshed and ready for action.",
}

// WeakHitComplication describes the cost a weak hit carries, keyed by
// intent type.
func WeakHitComplication(intentType string) string {
	if c, ok := weakHitComplications[intentType]; ok {
		return c
	}
	return "You succeed, but barely."
}

var weakHitComplications = map[string]string{
	"attack":     "You hit, but leave yourself exposed.",
	"persuade":   "They agree, but want something in return.",
	"intimidate": "They comply, but will resent you for it.",
	"deceive":    "They believe you, but remain suspicious.",
	"search":     "You find something, but it takes longer than expected.",
	"move":       "You get there, but the journey was harder than expected.",
	"rest":       "You rest, but something interrupts your peace.",
}

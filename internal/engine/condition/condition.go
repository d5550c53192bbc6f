// Package condition models conditions, active effects, and the per-entity
// combat state they live on, plus the SRD rule deltas they impose on
// attack rolls.
package condition

import (
	"fmt"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/dice"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Type names a condition from the reference set.
type Type string

const (
	Blinded       Type = "blinded"
	Charmed       Type = "charmed"
	Deafened      Type = "deafened"
	Frightened    Type = "frightened"
	Grappled      Type = "grappled"
	Incapacitated Type = "incapacitated"
	Invisible     Type = "invisible"
	Paralyzed     Type = "paralyzed"
	Petrified     Type = "petrified"
	Poisoned      Type = "poisoned"
	Prone         Type = "prone"
	Restrained    Type = "restrained"
	Stunned       Type = "stunned"
	Unconscious   Type = "unconscious"
	Exhaustion    Type = "exhaustion"
)

var validTypes = map[Type]bool{
	Blinded: true, Charmed: true, Deafened: true, Frightened: true,
	Grappled: true, Incapacitated: true, Invisible: true, Paralyzed: true,
	Petrified: true, Poisoned: true, Prone: true, Restrained: true,
	Stunned: true, Unconscious: true, Exhaustion: true,
}

// ParseType validates a condition name.
func ParseType(name string) (Type, error) {
	t := Type(name)
	if !validTypes[t] {
		return "", apperrors.New(apperrors.CodeConditionUnknown,
			fmt.Sprintf("unknown condition %q", name))
	}
	return t, nil
}

// Instance is a condition applied to an entity.
type Instance struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`

	Duration  ability.DurationType `json:"duration"`
	Remaining int                  `json:"remaining"` // rounds/minutes left; unused for until_* and permanent

	AppliedAtRound int `json:"applied_at_round"`

	SaveAbility string `json:"save_ability,omitempty"` // end-of-turn save for until_save
	SaveDC      int    `json:"save_dc,omitempty"`

	SourceEntityID  string `json:"source_entity_id,omitempty"`
	SourceAbilityID string `json:"source_ability_id,omitempty"`

	DotDice string `json:"dot_dice,omitempty"` // damage rolled each tick
	DotType string `json:"dot_type,omitempty"`
}

// Effect is an active stat modifier on an entity.
type Effect struct {
	ID string `json:"id"`

	Stat     string               `json:"stat"`
	Modifier int                  `json:"modifier"`
	Type     ability.ModifierType `json:"type"`
	Dice     string               `json:"dice,omitempty"` // rolled riders like bless's +1d4

	Duration  ability.DurationType `json:"duration"`
	Remaining int                  `json:"remaining"`

	AppliedAtRound int `json:"applied_at_round"`

	SourceEntityID  string `json:"source_entity_id,omitempty"`
	SourceAbilityID string `json:"source_ability_id,omitempty"`
	Concentration   bool   `json:"concentration"`
}

// CombatState is everything the effect pipeline tracks per entity. It is
// persisted in the repository, not held in process memory.
type CombatState struct {
	UniverseID string `json:"universe_id"`
	EntityID   string `json:"entity_id"`

	Round         int `json:"round"`
	LastTickRound int `json:"last_tick_round"`

	Conditions []*Instance `json:"conditions"`
	Effects    []*Effect   `json:"effects"`

	ConcentratingOn string `json:"concentrating_on,omitempty"` // ability id
	DamageThisRound int    `json:"damage_this_round"`
}

// Has reports whether the entity currently has the condition.
func (s *CombatState) Has(t Type) bool {
	for _, c := range s.Conditions {
		if c.Type == t {
			return true
		}
	}
	return false
}

// Add appends a condition instance.
func (s *CombatState) Add(c *Instance) {
	s.Conditions = append(s.Conditions, c)
}

// Remove drops all instances of the condition and reports whether any
// were present.
func (s *CombatState) Remove(t Type) bool {
	kept := s.Conditions[:0]
	removed := false
	for _, c := range s.Conditions {
		if c.Type == t {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	s.Conditions = kept
	return removed
}

// RemoveEffectsFrom drops every effect originating from the given caster
// and ability, returning the removed effects.
func (s *CombatState) RemoveEffectsFrom(casterID, abilityID string) []*Effect {
	kept := s.Effects[:0]
	var removed []*Effect
	for _, e := range s.Effects {
		if e.SourceEntityID == casterID && e.SourceAbilityID == abilityID {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	s.Effects = kept
	return removed
}

// StatModifier sums the active modifiers on a stat. A "set" modifier
// overrides the sum with the highest set value.
func (s *CombatState) StatModifier(stat string) int {
	total := 0
	set := false
	setValue := 0
	for _, e := range s.Effects {
		if e.Stat != stat {
			continue
		}
		switch e.Type {
		case ability.ModifierSet:
			if !set || e.Modifier > setValue {
				set = true
				setValue = e.Modifier
			}
		case ability.ModifierPenalty:
			total -= e.Modifier
		default:
			total += e.Modifier
		}
	}
	if set {
		return setValue
	}
	return total
}

// BonusDice collects the rolled riders attached to a stat, like bless's
// +1d4 on attack rolls.
func (s *CombatState) BonusDice(stat string) []string {
	var out []string
	for _, e := range s.Effects {
		if e.Stat == stat && e.Dice != "" {
			out = append(out, e.Dice)
		}
	}
	return out
}

// CanAct reports whether the entity can take actions at all.
func (s *CombatState) CanAct() bool {
	return !(s.Has(Incapacitated) || s.Has(Paralyzed) || s.Has(Petrified) ||
		s.Has(Stunned) || s.Has(Unconscious))
}

// AttackInteraction resolves the advantage state of an attack from the
// attacker's and target's conditions, and whether a hit auto-crits.
// A nil state means no conditions.
func AttackInteraction(attacker, target *CombatState, melee bool) (dice.Mode, bool) {
	adv := false
	dis := false

	if attacker != nil {
		if attacker.Has(Blinded) || attacker.Has(Frightened) || attacker.Has(Poisoned) ||
			attacker.Has(Prone) || attacker.Has(Restrained) {
			dis = true
		}
		if attacker.Has(Invisible) {
			adv = true
		}
	}
	autoCrit := false
	if target != nil {
		if target.Has(Blinded) || target.Has(Paralyzed) || target.Has(Petrified) ||
			target.Has(Restrained) || target.Has(Stunned) || target.Has(Unconscious) {
			adv = true
		}
		if target.Has(Invisible) {
			dis = true
		}
		if target.Has(Prone) {
			if melee {
				adv = true
			} else {
				dis = true
			}
		}
		if melee && (target.Has(Paralyzed) || target.Has(Unconscious)) {
			autoCrit = true
		}
	}

	switch {
	case adv && dis:
		return dice.Normal, autoCrit
	case adv:
		return dice.WithAdvantage, autoCrit
	case dis:
		return dice.WithDisadvantage, autoCrit
	}
	return dice.Normal, autoCrit
}

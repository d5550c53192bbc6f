// Package effect applies ability effects to targets in a fixed order:
// damage, then conditions, then stat modifiers, then the concentration
// swap. It also owns round ticks (damage over time, saves, expiry) and
// concentration checks. Combat state lives in a store, not in process
// memory, so every operation loads, mutates, and saves.
package effect

import (
	"context"
	"fmt"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/condition"
	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/physics"
	"github.com/tta-solo/engine/internal/engine/skill"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/platform/id"
)

// StateStore persists per-entity combat state. CombatState returns a
// fresh zero state (with the ids filled in) when none is stored yet.
type StateStore interface {
	CombatState(ctx context.Context, universeID, entityID string) (*condition.CombatState, error)
	SaveCombatState(ctx context.Context, state *condition.CombatState) error
	ListCombatStates(ctx context.Context, universeID string) ([]*condition.CombatState, error)
}

// Pipeline resolves ability effects against stored combat state.
type Pipeline struct {
	store StateStore
	newID func() (string, error)
}

// NewPipeline returns a pipeline over the given store.
func NewPipeline(store StateStore) *Pipeline {
	return &Pipeline{store: store, newID: id.NewID}
}

// TargetOutcome is what one application did to one target.
type TargetOutcome struct {
	TargetID string

	Saved     bool
	SaveTotal int

	DamageTaken int
	Healed      int
	Died        bool

	Condition        condition.Type
	ConditionApplied bool

	ModifierApplied bool

	ConcentrationBroken bool
}

// ApplyResult reports one full ability application.
type ApplyResult struct {
	AbilityID   string
	SaveDC      int
	DamageRoll  int // raw dice before saves, shared across targets
	Targets     []TargetOutcome
	SwappedFrom string // ability whose concentration was dropped, if any
}

// Apply runs the effect pipeline for one ability use. The caster and all
// targets must be characters. The physics overlay of the caster's
// universe may forbid the source, add damage dice, or shift the save DC.
func (p *Pipeline) Apply(ctx context.Context, caster *entity.Entity, targets []*entity.Entity, ab *ability.Ability, overlay *physics.Overlay, round int, roller dice.Roller) (*ApplyResult, error) {
	if err := overlay.Allows(ab.Source); err != nil {
		return nil, err
	}
	if !caster.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter,
			fmt.Sprintf("caster %s is not a character", caster.ID))
	}
	for _, t := range targets {
		if !t.IsCharacter() {
			return nil, apperrors.WithMetadata(apperrors.CodeTargetInvalid,
				fmt.Sprintf("target %s is not a character", t.ID),
				map[string]string{"target_id": t.ID})
		}
	}

	result := &ApplyResult{AbilityID: ab.ID}
	if needsSave(ab) {
		dc, err := ab.SaveDC(caster.Character)
		if err != nil {
			return nil, err
		}
		result.SaveDC = dc + overlay.SaveShift(ab.Source)
	}

	// Damage dice are rolled once and shared; saves halve per target.
	var damage int
	if ab.Damage != nil {
		expr, err := dice.Parse(ab.Damage.Dice)
		if err != nil {
			return nil, err
		}
		if extra := overlay.ExtraDamageDice(ab.Source); extra > 0 && len(expr.Terms) > 0 {
			expr.Terms[0].Count += extra
		}
		rolled, err := expr.Roll(roller)
		if err != nil {
			return nil, err
		}
		damage = rolled.Total
		result.DamageRoll = damage
	}

	touched := map[string]*condition.CombatState{}
	state := func(e *entity.Entity) (*condition.CombatState, error) {
		if s, ok := touched[e.ID]; ok {
			return s, nil
		}
		s, err := p.store.CombatState(ctx, e.UniverseID, e.ID)
		if err != nil {
			return nil, err
		}
		touched[e.ID] = s
		return s, nil
	}

	for _, target := range targets {
		outcome := TargetOutcome{TargetID: target.ID}
		ts, err := state(target)
		if err != nil {
			return nil, err
		}

		if ab.Damage != nil {
			dmg := damage
			if ab.Damage.SaveAbility != "" {
				save, err := skill.Save(target.Character, ab.Damage.SaveAbility, result.SaveDC, dice.Normal, 0, roller)
				if err != nil {
					return nil, err
				}
				outcome.Saved = save.Success
				outcome.SaveTotal = save.Total
				if save.Success {
					if ab.Damage.SaveForHalf {
						dmg /= 2
					} else {
						dmg = 0
					}
				}
			}
			if dmg > 0 {
				taken, broken, err := p.damage(ctx, target, ts, dmg, roller)
				if err != nil {
					return nil, err
				}
				outcome.DamageTaken = taken
				outcome.Died = target.Character.Down()
				outcome.ConcentrationBroken = broken
			}
		}

		if ab.Healing != nil {
			heal := ab.Healing.Flat
			if ab.Healing.Dice != "" {
				rolled, err := dice.Roll(ab.Healing.Dice, roller)
				if err != nil {
					return nil, err
				}
				heal += rolled.Total
			}
			outcome.Healed = target.Character.Heal(heal)
		}

		if ab.Condition != nil {
			applied, err := p.applyCondition(target, ts, ab, result.SaveDC, round, &outcome, roller)
			if err != nil {
				return nil, err
			}
			outcome.ConditionApplied = applied
		}

		if ab.StatModifier != nil {
			if err := p.applyModifier(caster.ID, ts, ab, round); err != nil {
				return nil, err
			}
			outcome.ModifierApplied = true
		}

		result.Targets = append(result.Targets, outcome)
	}

	if ab.Concentration {
		cs, err := state(caster)
		if err != nil {
			return nil, err
		}
		if cs.ConcentratingOn != "" && cs.ConcentratingOn != ab.ID {
			result.SwappedFrom = cs.ConcentratingOn
			if _, err := p.dropConcentration(ctx, caster.UniverseID, caster.ID, cs.ConcentratingOn, touched); err != nil {
				return nil, err
			}
		}
		cs.ConcentratingOn = ab.ID
	}

	for _, s := range touched {
		if err := p.store.SaveCombatState(ctx, s); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func needsSave(ab *ability.Ability) bool {
	if ab.Damage != nil && ab.Damage.SaveAbility != "" {
		return true
	}
	return ab.Condition != nil && ab.Condition.SaveAbility != ""
}

// damage applies real damage to a character: temp HP first, momentum
// reset, the running damage-this-round counter, and a concentration
// check when the target is concentrating.
func (p *Pipeline) damage(ctx context.Context, target *entity.Entity, ts *condition.CombatState, amount int, roller dice.Roller) (taken int, broken bool, err error) {
	taken = target.Character.ApplyDamage(amount)
	ts.DamageThisRound += taken
	if pool := target.Character.Resources; pool != nil {
		pool.Meter.ResetMomentum()
	}
	if taken > 0 && ts.ConcentratingOn != "" {
		check, err := p.CheckConcentration(ctx, target, ts, taken, roller)
		if err != nil {
			return 0, false, err
		}
		broken = check.Broken
	}
	return taken, broken, nil
}

// applyCondition adds the ability's condition unless the target's save
// negates it. Durations in minutes are tracked as ten rounds each.
func (p *Pipeline) applyCondition(target *entity.Entity, ts *condition.CombatState, ab *ability.Ability, saveDC, round int, outcome *TargetOutcome, roller dice.Roller) (bool, error) {
	ct, err := condition.ParseType(ab.Condition.Condition)
	if err != nil {
		return false, err
	}
	outcome.Condition = ct

	if ab.Condition.SaveAbility != "" {
		save, err := skill.Save(target.Character, ab.Condition.SaveAbility, saveDC, dice.Normal, 0, roller)
		if err != nil {
			return false, err
		}
		outcome.Saved = save.Success
		outcome.SaveTotal = save.Total
		if save.Success {
			return false, nil
		}
	}

	instanceID, err := p.newID()
	if err != nil {
		return false, err
	}
	remaining := ab.Condition.Rounds
	if ab.Condition.Duration == ability.DurationMinutes {
		remaining *= 10
	}
	ts.Add(&condition.Instance{
		ID:              instanceID,
		Type:            ct,
		Duration:        ab.Condition.Duration,
		Remaining:       remaining,
		AppliedAtRound:  round,
		SaveAbility:     ab.Condition.SaveAbility,
		SaveDC:          saveDC,
		SourceAbilityID: ab.ID,
		DotDice:         ab.Condition.DotDice,
		DotType:         ab.Condition.DotType,
	})
	return true, nil
}

func (p *Pipeline) applyModifier(casterID string, ts *condition.CombatState, ab *ability.Ability, round int) error {
	effectID, err := p.newID()
	if err != nil {
		return err
	}
	mod := ab.StatModifier
	remaining := mod.Rounds
	if mod.Duration == ability.DurationMinutes {
		remaining *= 10
	}
	ts.Effects = append(ts.Effects, &condition.Effect{
		ID:              effectID,
		Stat:            mod.Stat,
		Modifier:        mod.Modifier,
		Type:            mod.Type,
		Dice:            mod.Dice,
		Duration:        mod.Duration,
		Remaining:       remaining,
		AppliedAtRound:  round,
		SourceEntityID:  casterID,
		SourceAbilityID: ab.ID,
		Concentration:   ab.Concentration,
	})
	return nil
}

// ConcentrationResult is one concentration check.
type ConcentrationResult struct {
	AbilityID      string
	DC             int
	SaveTotal      int
	Broken         bool
	EffectsDropped int
}

// CheckConcentration rolls the CON save a concentrating character owes
// after taking damage: DC is the greater of 10 and half the damage. On a
// failure every effect of the concentrated ability is removed across the
// universe and concentration ends.
func (p *Pipeline) CheckConcentration(ctx context.Context, target *entity.Entity, ts *condition.CombatState, damage int, roller dice.Roller) (*ConcentrationResult, error) {
	if ts.ConcentratingOn == "" {
		return nil, apperrors.New(apperrors.CodeConcentrationMissing,
			fmt.Sprintf("%s is not concentrating", target.ID))
	}
	dc := damage / 2
	if dc < 10 {
		dc = 10
	}
	save, err := skill.Save(target.Character, "con", dc, dice.Normal, 0, roller)
	if err != nil {
		return nil, err
	}
	result := &ConcentrationResult{
		AbilityID: ts.ConcentratingOn,
		DC:        dc,
		SaveTotal: save.Total,
	}
	if save.Success {
		return result, nil
	}

	result.Broken = true
	dropped, err := p.dropConcentration(ctx, target.UniverseID, target.ID, ts.ConcentratingOn, map[string]*condition.CombatState{ts.EntityID: ts})
	if err != nil {
		return nil, err
	}
	result.EffectsDropped = dropped
	ts.ConcentratingOn = ""
	return result, nil
}

// BreakConcentration force-ends concentration without a save, as when
// the caster is incapacitated or chooses to stop.
func (p *Pipeline) BreakConcentration(ctx context.Context, universeID, casterID, abilityID string) (int, error) {
	dropped, err := p.dropConcentration(ctx, universeID, casterID, abilityID, nil)
	if err != nil {
		return 0, err
	}
	cs, err := p.store.CombatState(ctx, universeID, casterID)
	if err != nil {
		return 0, err
	}
	if cs.ConcentratingOn == abilityID {
		cs.ConcentratingOn = ""
		if err := p.store.SaveCombatState(ctx, cs); err != nil {
			return 0, err
		}
	}
	return dropped, nil
}

// dropConcentration removes the ability's effects from every combat
// state in the universe. States already loaded by the caller are reused
// so staged changes are not overwritten; the rest are saved here.
func (p *Pipeline) dropConcentration(ctx context.Context, universeID, casterID, abilityID string, loaded map[string]*condition.CombatState) (int, error) {
	states, err := p.store.ListCombatStates(ctx, universeID)
	if err != nil {
		return 0, err
	}
	dropped := 0
	for _, s := range states {
		target := s
		if held, ok := loaded[s.EntityID]; ok {
			target = held
		}
		removed := target.RemoveEffectsFrom(casterID, abilityID)
		if len(removed) == 0 {
			continue
		}
		dropped += len(removed)
		if _, ok := loaded[s.EntityID]; !ok {
			if err := p.store.SaveCombatState(ctx, target); err != nil {
				return 0, err
			}
		}
	}
	return dropped, nil
}

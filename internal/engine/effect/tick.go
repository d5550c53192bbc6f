package effect

import (
	"context"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/condition"
	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/skill"
)

// DotTick is one damage-over-time application during a round tick.
type DotTick struct {
	Condition  condition.Type
	Damage     int
	DamageType string
}

// TickResult reports what one round tick did to one entity.
type TickResult struct {
	Round   int
	Skipped bool // tick already ran for this round

	Dots      []DotTick
	DotDamage int

	SavedOff          []condition.Type
	ExpiredConditions []condition.Type
	ExpiredEffects    []string // stats of effects that ran out

	ConcentrationBroken bool
	Died                bool
}

// TickRound advances one entity's combat state by a round: damage over
// time lands first, then until_save conditions get their save, then
// timed conditions and effects count down and expire. Ticking the same
// round twice is a no-op, so retried turns cannot double-apply.
func (p *Pipeline) TickRound(ctx context.Context, target *entity.Entity, round int, roller dice.Roller) (*TickResult, error) {
	ts, err := p.store.CombatState(ctx, target.UniverseID, target.ID)
	if err != nil {
		return nil, err
	}
	if ts.LastTickRound >= round {
		return &TickResult{Round: round, Skipped: true}, nil
	}
	ts.Round = round
	ts.DamageThisRound = 0

	result := &TickResult{Round: round}

	for _, c := range ts.Conditions {
		if c.DotDice == "" {
			continue
		}
		rolled, err := dice.Roll(c.DotDice, roller)
		if err != nil {
			return nil, err
		}
		taken := target.Character.ApplyDamage(rolled.Total)
		ts.DamageThisRound += taken
		if pool := target.Character.Resources; pool != nil && taken > 0 {
			pool.Meter.ResetMomentum()
		}
		result.Dots = append(result.Dots, DotTick{
			Condition: c.Type, Damage: taken, DamageType: c.DotType,
		})
		result.DotDamage += taken
	}
	result.Died = target.Character.Down()

	kept := ts.Conditions[:0]
	for _, c := range ts.Conditions {
		switch c.Duration {
		case ability.DurationUntilSave:
			if c.SaveAbility == "" {
				kept = append(kept, c)
				continue
			}
			save, err := skill.Save(target.Character, c.SaveAbility, c.SaveDC, dice.Normal, 0, roller)
			if err != nil {
				return nil, err
			}
			if save.Success {
				result.SavedOff = append(result.SavedOff, c.Type)
				continue
			}
			kept = append(kept, c)
		case ability.DurationRounds, ability.DurationMinutes:
			c.Remaining--
			if c.Remaining <= 0 {
				result.ExpiredConditions = append(result.ExpiredConditions, c.Type)
				continue
			}
			kept = append(kept, c)
		default:
			kept = append(kept, c)
		}
	}
	ts.Conditions = kept

	keptEffects := ts.Effects[:0]
	for _, e := range ts.Effects {
		switch e.Duration {
		case ability.DurationRounds, ability.DurationMinutes:
			e.Remaining--
			if e.Remaining <= 0 {
				result.ExpiredEffects = append(result.ExpiredEffects, e.Stat)
				continue
			}
		}
		keptEffects = append(keptEffects, e)
	}
	ts.Effects = keptEffects

	if result.DotDamage > 0 && ts.ConcentratingOn != "" {
		check, err := p.CheckConcentration(ctx, target, ts, result.DotDamage, roller)
		if err != nil {
			return nil, err
		}
		result.ConcentrationBroken = check.Broken
	}

	ts.LastTickRound = round
	if err := p.store.SaveCombatState(ctx, ts); err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireOnRest drops until_rest conditions and effects after a rest.
func (p *Pipeline) ExpireOnRest(ctx context.Context, target *entity.Entity) error {
	ts, err := p.store.CombatState(ctx, target.UniverseID, target.ID)
	if err != nil {
		return err
	}
	kept := ts.Conditions[:0]
	for _, c := range ts.Conditions {
		if c.Duration == ability.DurationUntilRest {
			continue
		}
		kept = append(kept, c)
	}
	ts.Conditions = kept

	keptEffects := ts.Effects[:0]
	for _, e := range ts.Effects {
		if e.Duration == ability.DurationUntilRest {
			continue
		}
		keptEffects = append(keptEffects, e)
	}
	ts.Effects = keptEffects
	return p.store.SaveCombatState(ctx, ts)
}

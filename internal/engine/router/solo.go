package router

import (
	"context"

	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/solo"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

// hitDiceCount is a sheet's HD total, read from its dice string; a
// sheet without one counts its level.
func hitDiceCount(c *entity.CharacterStats) int {
	if c.HitDice != "" {
		if expr, err := dice.Parse(c.HitDice); err == nil {
			n := 0
			for _, t := range expr.Terms {
				n += t.Count
			}
			if n > 0 {
				return n
			}
		}
	}
	return c.Level
}

// StartCombatRound runs solo upkeep at the top of a combat round:
// momentum gain, the fray die against the mooks on scene, cooldown
// recharge rolls, and a fresh action economy. Fray casualties record
// combat and death events like any other kill.
func (r *Router) StartCombatRound(ctx context.Context, universeID, actorID string) (*solo.RoundStart, error) {
	if err := r.multi.RequireActive(ctx, universeID); err != nil {
		return nil, err
	}
	tc, err := r.loadContext(ctx, universeID, actorID)
	if err != nil {
		return nil, err
	}
	if !tc.Actor.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter, "only characters fight rounds")
	}

	var enemies []*solo.Enemy
	byID := map[string]*entity.Entity{}
	for _, n := range tc.Present {
		if n.Label != storage.LabelCharacter || n.CanonicalID == tc.Actor.ID {
			continue
		}
		e, err := r.truth.Entity(ctx, tc.Universe.ID, n.CanonicalID)
		if err != nil {
			return nil, err
		}
		e.UniverseID = tc.Universe.ID
		if !e.IsCharacter() || e.Character.Down() {
			continue
		}
		byID[e.ID] = e
		enemies = append(enemies, &solo.Enemy{
			ID:      e.ID,
			Name:    e.Name,
			HitDice: hitDiceCount(e.Character),
			HP:      e.Character.HP,
		})
	}

	start, err := solo.StartRound(tc.Actor.Character, enemies, r.cfg, r.roller)
	if err != nil {
		return nil, err
	}

	aState, err := r.states.CombatState(ctx, tc.Universe.ID, tc.Actor.ID)
	if err != nil {
		return nil, err
	}
	aState.Round = tc.Actor.Character.Resources.Solo.Round
	aState.DamageThisRound = 0

	tx, err := r.truth.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if start.Fray != nil {
		for _, hit := range start.Fray.Hits {
			target := byID[hit.EnemyID]
			taken := target.Character.ApplyDamage(hit.Damage)
			died := target.Character.Down()

			ev, err := r.newEvent(tc, event.TypeCombatRound)
			if err != nil {
				return nil, err
			}
			ev.TargetID = target.ID
			ev.Outcome = event.OutcomeHit
			roll := start.Fray.Roll
			ev.Roll = &roll
			if err := ev.SetPayload(event.DamagePayload{
				Amount:      taken,
				TargetDeath: died,
				Source:      "fray",
			}); err != nil {
				return nil, err
			}
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return nil, err
			}
			if died {
				dev, err := r.newEvent(tc, event.TypeDeath)
				if err != nil {
					return nil, err
				}
				dev.TargetID = target.ID
				dev.CausedBy = ev.ID
				if err := dev.SetPayload(event.DeathPayload{Cause: "fray"}); err != nil {
					return nil, err
				}
				if err := tx.AppendEvent(ctx, dev); err != nil {
					return nil, err
				}
				if _, err := r.advanceQuests(ctx, tx, tc, ev.ID, target.ID); err != nil {
					return nil, err
				}
			}

			target.Version++
			if err := r.saveDiverging(ctx, tx, tc, target); err != nil {
				return nil, err
			}
		}
	}

	tc.Actor.Version++
	if err := r.saveDiverging(ctx, tx, tc, tc.Actor); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if err := r.states.SaveCombatState(ctx, aState); err != nil {
		return nil, err
	}
	return &start, nil
}

// HeroicAction buys the actor a second action this round, paying in
// momentum when the meter has it and stress dice otherwise.
func (r *Router) HeroicAction(ctx context.Context, universeID, actorID string) (*solo.HeroicResult, error) {
	if err := r.multi.RequireActive(ctx, universeID); err != nil {
		return nil, err
	}
	tc, err := r.loadContext(ctx, universeID, actorID)
	if err != nil {
		return nil, err
	}
	if !tc.Actor.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter, "only characters push past their limits")
	}
	pool := ensurePool(tc.Actor.Character)

	res, err := solo.HeroicAction(pool, r.cfg, r.roller)
	if err != nil {
		return nil, err
	}
	pool.Solo.ActionUsed = false

	tx, err := r.truth.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ev, err := r.newEvent(tc, event.TypeResourceUsed)
	if err != nil {
		return nil, err
	}
	mechanism := "momentum"
	if !res.PaidMomentum {
		mechanism = "stress"
	}
	if err := ev.SetPayload(event.ResourcePayload{
		Resource:  "heroic_action",
		Mechanism: mechanism,
		Remaining: pool.Meter.Momentum,
	}); err != nil {
		return nil, err
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	if res.BreakingPoint {
		bp, err := r.newEvent(tc, event.TypeBreakingPoint)
		if err != nil {
			return nil, err
		}
		bp.CausedBy = ev.ID
		if err := bp.SetPayload(event.BreakingPointPayload{Stress: pool.Meter.Stress}); err != nil {
			return nil, err
		}
		if err := tx.AppendEvent(ctx, bp); err != nil {
			return nil, err
		}
	}

	tc.Actor.Version++
	if err := r.saveDiverging(ctx, tx, tc, tc.Actor); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &res, nil
}

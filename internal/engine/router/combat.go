package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/condition"
	"github.com/tta-solo/engine/internal/engine/effect"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/resource"
	"github.com/tta-solo/engine/internal/engine/skill"
	"github.com/tta-solo/engine/internal/engine/solo"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

// unarmedWeapon is the fallback when nothing is wielded.
var unarmedWeapon = skill.Weapon{
	Name:       "unarmed strike",
	DamageDice: "1d4",
	DamageType: "bludgeoning",
	Proficient: true,
}

// ensurePool lazily attaches a resource pool so resource debits never
// nil-panic on bare stat blocks. The lazy pool carries no defy-death
// allowance; that belongs to deliberately built sheets.
func ensurePool(c *entity.CharacterStats) *resource.Pool {
	if c.Resources == nil {
		c.Resources = resource.NewPool()
		c.Resources.DefyDeath.MaxPerDay = 0
	}
	return c.Resources
}

// equippedWeapon builds the attack weapon from the actor's WIELDS edge,
// falling back to an unarmed strike.
func (r *Router) equippedWeapon(ctx context.Context, tc *TurnContext) skill.Weapon {
	for _, rel := range tc.Relationships {
		if rel.FromID != tc.Actor.ID || rel.Type != storage.RelWields {
			continue
		}
		item, err := r.truth.Entity(ctx, tc.Universe.ID, rel.ToID)
		if err != nil || item.Item == nil || !item.Item.Active {
			continue
		}
		return skill.Weapon{
			Name:       item.Name,
			DamageDice: item.Item.DamageDice,
			DamageType: item.Item.DamageType,
			Finesse:    item.HasTag("finesse"),
			Ranged:     item.HasTag("ranged"),
			Proficient: true,
		}
	}
	return unarmedWeapon
}

func (r *Router) resolveAttack(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	if !tc.Actor.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter, "only characters attack")
	}
	target, err := r.findTarget(ctx, tc.Universe.ID, intent.Target)
	if err != nil {
		return nil, err
	}
	if !target.IsCharacter() {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetInvalid,
			fmt.Sprintf("%s cannot be attacked", target.Name),
			map[string]string{"target_id": target.ID})
	}

	pool := ensurePool(tc.Actor.Character)
	if err := effect.UseActionSlot(&pool.Solo, ability.CostAction); err != nil {
		return nil, err
	}

	aState, err := r.states.CombatState(ctx, tc.Universe.ID, tc.Actor.ID)
	if err != nil {
		return nil, err
	}
	tState, err := r.states.CombatState(ctx, tc.Universe.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if !aState.CanAct() {
		return nil, apperrors.New(apperrors.CodeActionAlreadyUsed,
			"you cannot act in your current condition")
	}

	weapon := r.equippedWeapon(ctx, tc)
	mode, autoCrit := condition.AttackInteraction(aState, tState, !weapon.Ranged)
	opts := skill.AttackOptions{
		Mode:      mode,
		AutoCrit:  autoCrit,
		BonusDice: aState.BonusDice("attack"),
		Bonus:     pool.Meter.Penalty() + aState.StatModifier("attack"),
	}
	targetAC := target.Character.AC + tState.StatModifier("ac")

	res, err := skill.Attack(tc.Actor.Character, targetAC, weapon, opts, r.roller)
	if err != nil {
		return nil, err
	}

	result := &SkillResult{
		Success:  res.Hit,
		Roll:     res.AttackRoll,
		Total:    res.TotalAttack,
		DC:       targetAC,
		Critical: res.Critical,
		Fumble:   res.Fumble,
		Damage:   res.Damage,
	}
	switch {
	case res.Critical:
		result.Outcome = skill.StrongHit
	case res.Hit:
		result.Outcome = skill.WeakHit
	default:
		result.Outcome = skill.Miss
	}

	ev, err := r.newEvent(tc, event.TypeCombatRound)
	if err != nil {
		return nil, err
	}
	ev.TargetID = target.ID
	roll := res.AttackRoll
	ev.Roll = &roll
	switch result.Outcome {
	case skill.StrongHit:
		ev.Outcome = event.OutcomeStrongHit
	case skill.WeakHit:
		ev.Outcome = event.OutcomeHit
	default:
		ev.Outcome = event.OutcomeMiss
	}

	tx, err := r.truth.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	died := false
	var defied *solo.DefyDeathResult
	if res.Hit {
		// Only characters who brought a pool into the fight defy death;
		// a bare stat block just drops.
		defier := target.Character.Resources != nil && target.Character.Resources.DefyDeath.Available()

		taken := target.Character.ApplyDamage(res.Damage)
		tState.DamageThisRound += taken
		ensurePool(target.Character).Meter.ResetMomentum()
		if res.Critical {
			pool.Meter.GainMomentum(1)
			result.StateChanges = append(result.StateChanges, "momentum +1")
		}
		result.StateChanges = append(result.StateChanges, fmt.Sprintf("%s hp -%d", target.Name, taken))

		died = target.Character.Down()
		if died && defier {
			dd, err := solo.DefyDeath(target.Character, tState.DamageThisRound, r.cfg, r.roller)
			if err != nil {
				return nil, err
			}
			defied = &dd
			died = target.Character.Down()
			if dd.Survived {
				result.StateChanges = append(result.StateChanges,
					fmt.Sprintf("%s defies death (dc %d)", target.Name, dd.DC))
			}
		}
		if err := ev.SetPayload(event.DamagePayload{
			Amount:      taken,
			DamageType:  res.DamageType,
			Critical:    res.Critical,
			TargetDeath: died,
			Source:      "attack",
		}); err != nil {
			return nil, err
		}
		if died {
			result.StateChanges = append(result.StateChanges, fmt.Sprintf("%s down", target.Name))
		}

		if tState.ConcentratingOn != "" {
			check, err := r.pipeline.CheckConcentration(ctx, target, tState, taken, r.roller)
			if err != nil {
				return nil, err
			}
			if check.Broken {
				result.StateChanges = append(result.StateChanges,
					fmt.Sprintf("%s concentration broken", target.Name))
			}
		}

		target.Version++
		if err := r.saveDiverging(ctx, tx, tc, target); err != nil {
			return nil, err
		}
	}

	tc.Actor.Version++
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	if defied != nil {
		rev, err := r.newEvent(tc, event.TypeResourceUsed)
		if err != nil {
			return nil, err
		}
		rev.TargetID = target.ID
		rev.CausedBy = ev.ID
		if err := rev.SetPayload(event.ResourcePayload{
			Resource:  "defy_death",
			Mechanism: "per_day",
			Remaining: defied.UsesLeft,
		}); err != nil {
			return nil, err
		}
		if err := tx.AppendEvent(ctx, rev); err != nil {
			return nil, err
		}
	}
	if died {
		dev, err := r.newEvent(tc, event.TypeDeath)
		if err != nil {
			return nil, err
		}
		dev.TargetID = target.ID
		dev.CausedBy = ev.ID
		if err := dev.SetPayload(event.DeathPayload{Cause: "attack"}); err != nil {
			return nil, err
		}
		if err := tx.AppendEvent(ctx, dev); err != nil {
			return nil, err
		}
		notes, err := r.advanceQuests(ctx, tx, tc, ev.ID, target.ID)
		if err != nil {
			return nil, err
		}
		result.StateChanges = append(result.StateChanges, notes...)
	}
	if err := r.saveDiverging(ctx, tx, tc, tc.Actor); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if err := r.states.SaveCombatState(ctx, tState); err != nil {
		return nil, err
	}

	if result.Outcome == skill.Miss && !res.Fumble {
		// A plain miss just misses; a fumble hands the GM a move.
		return result, nil
	}
	if res.Fumble {
		gm, err := r.runGMMove(ctx, tc, true)
		if err != nil {
			return nil, err
		}
		result.GMMove = gm
		result.Narrative = gm.Narrative
	}
	return result, nil
}

func (r *Router) resolveAbility(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	if !tc.Actor.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter, "only characters use abilities")
	}
	ab, ok := r.abilities[intent.Ability]
	if !ok {
		ab, ok = r.abilities[strings.ToLower(intent.Ability)]
	}
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("unknown ability %q", intent.Ability),
			map[string]string{"ability": intent.Ability})
	}

	targets := []*entity.Entity{tc.Actor}
	if ab.Targeting != ability.TargetSelf {
		target, err := r.findTarget(ctx, tc.Universe.ID, intent.Target)
		if err != nil {
			return nil, err
		}
		targets = []*entity.Entity{target}
	}

	pool := ensurePool(tc.Actor.Character)
	if err := effect.UseActionSlot(&pool.Solo, ab.Cost); err != nil {
		return nil, err
	}
	cost, err := effect.SpendCost(pool, ab, r.roller)
	if err != nil {
		return nil, err
	}

	applied, err := r.pipeline.Apply(ctx, tc.Actor, targets, ab, r.overlays[tc.Universe.ID], pool.Solo.Round, r.roller)
	if err != nil {
		return nil, err
	}

	result := &SkillResult{Success: true, Outcome: skill.WeakHit, Narrative: ab.Description}
	for _, t := range applied.Targets {
		if t.DamageTaken > 0 {
			result.Damage += t.DamageTaken
			result.StateChanges = append(result.StateChanges, fmt.Sprintf("%s hp -%d", t.TargetID, t.DamageTaken))
		}
		if t.Healed > 0 {
			result.StateChanges = append(result.StateChanges, fmt.Sprintf("%s hp +%d", t.TargetID, t.Healed))
		}
		if t.ConditionApplied {
			result.StateChanges = append(result.StateChanges, fmt.Sprintf("%s %s", t.TargetID, t.Condition))
		}
		if t.Died {
			result.StateChanges = append(result.StateChanges, fmt.Sprintf("%s down", t.TargetID))
		}
	}
	if cost.BreakingPoint {
		result.StateChanges = append(result.StateChanges, "breaking point")
	}

	tx, err := r.truth.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ev, err := r.newEvent(tc, event.TypeResourceUsed)
	if err != nil {
		return nil, err
	}
	if len(targets) > 0 {
		ev.TargetID = targets[0].ID
	}
	if err := ev.SetPayload(event.ResourcePayload{
		Resource:  ab.Name,
		Mechanism: string(ab.Mechanism),
		Remaining: cost.UsesRemaining,
	}); err != nil {
		return nil, err
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	if cost.BreakingPoint {
		bp, err := r.newEvent(tc, event.TypeBreakingPoint)
		if err != nil {
			return nil, err
		}
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
	for _, t := range targets {
		if t.ID == tc.Actor.ID {
			continue
		}
		t.Version++
		if err := r.saveDiverging(ctx, tx, tc, t); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

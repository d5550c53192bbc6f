package effect

import (
	"fmt"
	"strings"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/resource"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// CostResult reports what paying for one ability use consumed.
type CostResult struct {
	Mechanism ability.Mechanism

	SlotLevel     int
	UsesRemaining int

	UsageRoll *resource.UsageRoll

	StressAdded   int
	BreakingPoint bool
	MomentumSpent int
}

// costKey identifies an ability inside a resource pool.
func costKey(ab *ability.Ability) string {
	if ab.ID != "" {
		return ab.ID
	}
	return strings.ToLower(ab.Name)
}

// SpendCost debits the ability's resource cost from the pool. Cooldowns
// and usage dice are created on first use from the ability's mechanism
// details. Insufficient-resource errors carry codes the router maps to
// failed results rather than faults.
func SpendCost(pool *resource.Pool, ab *ability.Ability, roller dice.Roller) (*CostResult, error) {
	result := &CostResult{Mechanism: ab.Mechanism}
	switch ab.Mechanism {
	case ability.MechanismFree:
		return result, nil

	case ability.MechanismSlots:
		level := ab.Details.SlotLevel
		if err := pool.Slots.Spend(level); err != nil {
			return nil, err
		}
		result.SlotLevel = level
		result.UsesRemaining = pool.Slots.Remaining(level)
		return result, nil

	case ability.MechanismCooldown:
		key := costKey(ab)
		cd, ok := pool.Cooldowns[key]
		if !ok {
			cd = &resource.Cooldown{
				MaxUses:     ab.Details.MaxUses,
				Remaining:   ab.Details.MaxUses,
				RechargeDie: ab.Details.RechargeDie,
				RechargeOn:  ab.Details.RechargeOn,
			}
			pool.Cooldowns[key] = cd
		}
		if err := cd.Spend(); err != nil {
			return nil, err
		}
		result.UsesRemaining = cd.Remaining
		return result, nil

	case ability.MechanismUsageDie:
		key := costKey(ab)
		ud, ok := pool.UsageDice[key]
		if !ok {
			ud = resource.NewUsageDie(ab.Details.UsageDie)
			pool.UsageDice[key] = ud
		}
		roll, err := ud.Roll(roller)
		if err != nil {
			return nil, err
		}
		result.UsageRoll = &roll
		return result, nil

	case ability.MechanismStress:
		result.StressAdded = ab.Details.StressCost
		result.BreakingPoint = pool.Meter.AddStress(ab.Details.StressCost)
		return result, nil

	case ability.MechanismMomentum:
		cost := ab.Details.MomentumCost
		if err := pool.Meter.SpendMomentum(cost); err != nil {
			return nil, err
		}
		result.MomentumSpent = cost
		return result, nil
	}
	return nil, apperrors.New(apperrors.CodeAbilityInvalidMechanism,
		fmt.Sprintf("unknown mechanism %q", ab.Mechanism))
}

// UseActionSlot marks the ability's action-economy slot as spent for the
// round. Free actions never conflict.
func UseActionSlot(solo *resource.SoloState, cost ability.ActionCost) error {
	switch cost {
	case ability.CostAction:
		if solo.ActionUsed {
			return apperrors.New(apperrors.CodeActionAlreadyUsed, "action already used this round")
		}
		solo.ActionUsed = true
	case ability.CostBonus:
		if solo.BonusUsed {
			return apperrors.New(apperrors.CodeActionAlreadyUsed, "bonus action already used this round")
		}
		solo.BonusUsed = true
	case ability.CostReaction:
		if solo.ReactionUsed {
			return apperrors.New(apperrors.CodeActionAlreadyUsed, "reaction already used this round")
		}
		solo.ReactionUsed = true
	}
	return nil
}

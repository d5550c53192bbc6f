package effect

import (
	"testing"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/resource"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

func TestSpendCostSlots(t *testing.T) {
	pool := resource.NewPool()
	pool.Slots.Max = map[int]int{1: 2}

	ab := &ability.Ability{ID: "cure", Mechanism: ability.MechanismSlots,
		Details: ability.MechanismDetails{SlotLevel: 1}}

	result, err := SpendCost(pool, ab, dice.NewScripted())
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if result.SlotLevel != 1 || result.UsesRemaining != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := SpendCost(pool, ab, dice.NewScripted()); err != nil {
		t.Fatalf("second spend: %v", err)
	}
	_, err = SpendCost(pool, ab, dice.NewScripted())
	if apperrors.CodeOf(err) != apperrors.CodeResourceSlotExpended {
		t.Fatalf("expected expended code, got %v", err)
	}
}

func TestSpendCostCooldownCreatesOnFirstUse(t *testing.T) {
	pool := resource.NewPool()
	ab := &ability.Ability{ID: "breath", Mechanism: ability.MechanismCooldown,
		Details: ability.MechanismDetails{MaxUses: 1, RechargeDie: resource.D6, RechargeOn: []int{5, 6}}}

	result, err := SpendCost(pool, ab, dice.NewScripted())
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if result.UsesRemaining != 0 {
		t.Fatalf("expected no uses left, got %+v", result)
	}
	if pool.Cooldowns["breath"] == nil || pool.Cooldowns["breath"].RechargeDie != resource.D6 {
		t.Fatalf("expected cooldown registered, got %+v", pool.Cooldowns)
	}

	_, err = SpendCost(pool, ab, dice.NewScripted())
	if apperrors.CodeOf(err) != apperrors.CodeResourceOnCooldown {
		t.Fatalf("expected cooldown code, got %v", err)
	}
}

func TestSpendCostUsageDie(t *testing.T) {
	pool := resource.NewPool()
	ab := &ability.Ability{Name: "Torch", Mechanism: ability.MechanismUsageDie,
		Details: ability.MechanismDetails{UsageDie: resource.D6}}

	result, err := SpendCost(pool, ab, dice.NewScripted(2))
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if result.UsageRoll == nil || !result.UsageRoll.Degraded {
		t.Fatalf("expected degrade on 2, got %+v", result.UsageRoll)
	}
	// Keyed by lowercased name when the ability has no id.
	if pool.UsageDice["torch"].Current != resource.D4 {
		t.Fatalf("expected die stepped to d4, got %+v", pool.UsageDice["torch"])
	}
}

func TestSpendCostStressBreakingPoint(t *testing.T) {
	pool := resource.NewPool()
	pool.Meter.Stress = 8
	ab := &ability.Ability{ID: "overload", Mechanism: ability.MechanismStress,
		Details: ability.MechanismDetails{StressCost: 3}}

	result, err := SpendCost(pool, ab, dice.NewScripted())
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if result.StressAdded != 3 || !result.BreakingPoint {
		t.Fatalf("expected breaking point, got %+v", result)
	}
}

func TestSpendCostMomentumInsufficient(t *testing.T) {
	pool := resource.NewPool()
	ab := &ability.Ability{ID: "surge", Mechanism: ability.MechanismMomentum,
		Details: ability.MechanismDetails{MomentumCost: 2}}

	_, err := SpendCost(pool, ab, dice.NewScripted())
	if apperrors.CodeOf(err) != apperrors.CodeResourceDepleted {
		t.Fatalf("expected depleted code, got %v", err)
	}

	pool.Meter.Momentum = 3
	result, err := SpendCost(pool, ab, dice.NewScripted())
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if result.MomentumSpent != 2 || pool.Meter.Momentum != 1 {
		t.Fatalf("unexpected result %+v momentum %d", result, pool.Meter.Momentum)
	}
}

func TestUseActionSlot(t *testing.T) {
	solo := &resource.SoloState{}
	if err := UseActionSlot(solo, ability.CostAction); err != nil {
		t.Fatalf("first action: %v", err)
	}
	err := UseActionSlot(solo, ability.CostAction)
	if apperrors.CodeOf(err) != apperrors.CodeActionAlreadyUsed {
		t.Fatalf("expected already-used code, got %v", err)
	}
	if err := UseActionSlot(solo, ability.CostBonus); err != nil {
		t.Fatalf("bonus action: %v", err)
	}
	if err := UseActionSlot(solo, ability.CostFree); err != nil {
		t.Fatalf("free action: %v", err)
	}
}

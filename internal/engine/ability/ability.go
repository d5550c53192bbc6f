// Package ability defines the unified ability object shared across magic,
// tech, and martial power sources.
package ability

import (
	"fmt"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/resource"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Source is the ability's power source.
type Source string

const (
	SourceMagic   Source = "magic"
	SourceTech    Source = "tech"
	SourceMartial Source = "martial"
)

// Mechanism is how uses of the ability are paid for.
type Mechanism string

const (
	MechanismSlots    Mechanism = "slots"
	MechanismCooldown Mechanism = "cooldown"
	MechanismUsageDie Mechanism = "usage_die"
	MechanismStress   Mechanism = "stress"
	MechanismMomentum Mechanism = "momentum"
	MechanismFree     Mechanism = "free"
)

// Targeting describes who or what the ability can hit.
type Targeting string

const (
	TargetSelf       Targeting = "self"
	TargetSingle     Targeting = "single"
	TargetMultiple   Targeting = "multiple"
	TargetAreaSphere Targeting = "area_sphere"
	TargetAreaCone   Targeting = "area_cone"
	TargetAreaLine   Targeting = "area_line"
	TargetAreaCube   Targeting = "area_cube"
)

// ActionCost is the action-economy slot the ability consumes.
type ActionCost string

const (
	CostAction   ActionCost = "action"
	CostBonus    ActionCost = "bonus"
	CostReaction ActionCost = "reaction"
	CostFree     ActionCost = "free"
)

// MechanismDetails carries the mechanism-specific parameters.
type MechanismDetails struct {
	SlotLevel    int          `json:"slot_level,omitempty"`    // slots
	MaxUses      int          `json:"max_uses,omitempty"`      // cooldown
	RechargeDie  resource.Die `json:"recharge_die,omitempty"`  // cooldown
	RechargeOn   []int        `json:"recharge_on,omitempty"`   // cooldown
	UsageDie     resource.Die `json:"usage_die,omitempty"`     // usage_die
	StressCost   int          `json:"stress_cost,omitempty"`   // stress
	MomentumCost int          `json:"momentum_cost,omitempty"` // momentum
}

// DamageEffect deals dice damage, optionally halved on a successful save.
type DamageEffect struct {
	Dice        string `json:"dice"`
	DamageType  string `json:"damage_type"`
	SaveAbility string `json:"save_ability,omitempty"`
	SaveForHalf bool   `json:"save_for_half,omitempty"`
}

// HealingEffect restores HP.
type HealingEffect struct {
	Dice string `json:"dice,omitempty"`
	Flat int    `json:"flat,omitempty"`
}

// DurationType scopes how long conditions and modifiers last.
type DurationType string

const (
	DurationRounds    DurationType = "rounds"
	DurationMinutes   DurationType = "minutes"
	DurationUntilSave DurationType = "until_save"
	DurationUntilRest DurationType = "until_rest"
	DurationPermanent DurationType = "permanent"
)

// ConditionEffect applies a condition, optionally negated by a save.
type ConditionEffect struct {
	Condition   string       `json:"condition"`
	Duration    DurationType `json:"duration"`
	Rounds      int          `json:"rounds,omitempty"`
	SaveAbility string       `json:"save_ability,omitempty"`
	DotDice     string       `json:"dot_dice,omitempty"` // damage-over-time per tick
	DotType     string       `json:"dot_type,omitempty"`
}

// ModifierType distinguishes additive bonuses, penalties, and overrides.
type ModifierType string

const (
	ModifierBonus   ModifierType = "bonus"
	ModifierPenalty ModifierType = "penalty"
	ModifierSet     ModifierType = "set"
)

// StatModifierEffect adjusts a stat for a duration.
type StatModifierEffect struct {
	Stat     string       `json:"stat"` // "ac", "attack", "save", "speed", ...
	Modifier int          `json:"modifier"`
	Type     ModifierType `json:"type"`
	Dice     string       `json:"dice,omitempty"` // rolled riders like bless's +1d4
	Duration DurationType `json:"duration"`
	Rounds   int          `json:"rounds,omitempty"`
}

// Ability is the unified ability object.
type Ability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Source    Source `json:"source"`
	Subtype   string `json:"subtype,omitempty"` // arcane, gadget, maneuver, ...

	Mechanism Mechanism        `json:"mechanism"`
	Details   MechanismDetails `json:"details"`

	Damage       *DamageEffect       `json:"damage,omitempty"`
	Healing      *HealingEffect      `json:"healing,omitempty"`
	Condition    *ConditionEffect    `json:"condition,omitempty"`
	StatModifier *StatModifierEffect `json:"stat_modifier,omitempty"`

	Targeting Targeting `json:"targeting"`
	RangeFt   int       `json:"range_ft,omitempty"`
	AreaFt    int       `json:"area_ft,omitempty"`

	Cost          ActionCost `json:"cost"`
	Concentration bool       `json:"concentration"`
	CastingStat   string     `json:"casting_stat,omitempty"` // ability used for save DCs
}

var validSources = map[Source]bool{SourceMagic: true, SourceTech: true, SourceMartial: true}

var validMechanisms = map[Mechanism]bool{
	MechanismSlots: true, MechanismCooldown: true, MechanismUsageDie: true,
	MechanismStress: true, MechanismMomentum: true, MechanismFree: true,
}

var validTargeting = map[Targeting]bool{
	TargetSelf: true, TargetSingle: true, TargetMultiple: true,
	TargetAreaSphere: true, TargetAreaCone: true, TargetAreaLine: true, TargetAreaCube: true,
}

var validCosts = map[ActionCost]bool{
	CostAction: true, CostBonus: true, CostReaction: true, CostFree: true,
}

func areaTargeting(t Targeting) bool {
	switch t {
	case TargetAreaSphere, TargetAreaCone, TargetAreaLine, TargetAreaCube:
		return true
	}
	return false
}

// Validate checks the structural invariants of the ability.
func (a *Ability) Validate() error {
	if a.Name == "" {
		return apperrors.New(apperrors.CodeAbilityEmptyName, "ability name is required")
	}
	if !validSources[a.Source] {
		return apperrors.New(apperrors.CodeAbilityInvalidSource,
			fmt.Sprintf("invalid source %q", a.Source))
	}
	if !validMechanisms[a.Mechanism] {
		return apperrors.New(apperrors.CodeAbilityInvalidMechanism,
			fmt.Sprintf("invalid mechanism %q", a.Mechanism))
	}
	if !validTargeting[a.Targeting] {
		return apperrors.New(apperrors.CodeAbilityInvalidTargeting,
			fmt.Sprintf("invalid targeting %q", a.Targeting))
	}
	if !validCosts[a.Cost] {
		return apperrors.New(apperrors.CodeAbilityInvalidCost,
			fmt.Sprintf("invalid action cost %q", a.Cost))
	}
	if areaTargeting(a.Targeting) && a.AreaFt <= 0 {
		return apperrors.New(apperrors.CodeAbilityInvalidTargeting,
			"area targeting requires an area size")
	}

	switch a.Mechanism {
	case MechanismSlots:
		if a.Details.SlotLevel < 0 {
			return apperrors.New(apperrors.CodeAbilityInvalidMechanism,
				"slot level must be non-negative")
		}
	case MechanismCooldown:
		if a.Details.MaxUses < 1 {
			return apperrors.New(apperrors.CodeAbilityInvalidMechanism,
				"cooldown requires at least one use")
		}
	case MechanismUsageDie:
		if _, err := a.Details.UsageDie.Sides(); err != nil {
			return apperrors.Wrap(apperrors.CodeAbilityInvalidMechanism,
				"usage-die mechanism requires a valid die", err)
		}
	case MechanismStress:
		if a.Details.StressCost < 0 {
			return apperrors.New(apperrors.CodeAbilityInvalidCost, "stress cost must be non-negative")
		}
	case MechanismMomentum:
		if a.Details.MomentumCost < 0 {
			return apperrors.New(apperrors.CodeAbilityInvalidCost, "momentum cost must be non-negative")
		}
	}

	if a.Damage == nil && a.Healing == nil && a.Condition == nil && a.StatModifier == nil {
		return apperrors.New(apperrors.CodeAbilityNoEffects,
			"ability must have at least one effect")
	}
	return nil
}

// SaveDC derives the ability's save DC for a caster: 8 + proficiency +
// casting-stat modifier. Abilities without a casting stat use WIS.
func (a *Ability) SaveDC(caster *entity.CharacterStats) (int, error) {
	stat := a.CastingStat
	if stat == "" {
		stat = "wis"
	}
	mod, err := caster.Abilities.Mod(stat)
	if err != nil {
		return 0, err
	}
	return 8 + caster.ProficiencyBonus() + mod, nil
}

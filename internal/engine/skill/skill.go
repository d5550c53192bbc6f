// Package skill implements 5e resolution: skill checks, saving throws, and
// attack rolls, plus the PbtA outcome overlay applied on top of them.
package skill

import (
	"fmt"
	"strings"

	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/entity"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Abilities maps each of the 18 skills to its governing ability.
var Abilities = map[string]string{
	"athletics":       "str",
	"acrobatics":      "dex",
	"sleight_of_hand": "dex",
	"stealth":         "dex",
	"arcana":          "int",
	"history":         "int",
	"investigation":   "int",
	"nature":          "int",
	"religion":        "int",
	"animal_handling": "wis",
	"insight":         "wis",
	"medicine":        "wis",
	"perception":      "wis",
	"survival":        "wis",
	"deception":       "cha",
	"intimidation":    "cha",
	"performance":     "cha",
	"persuasion":      "cha",
}

// CheckResult is the shape shared by skill checks and saving throws.
type CheckResult struct {
	Success  bool
	Roll     int // natural die
	Total    int
	DC       int
	Margin   int
	Critical bool
	Fumble   bool
}

// Check resolves a skill check: 1d20 + ability modifier + proficiency if
// proficient, plus any situational bonus, against the DC.
func Check(c *entity.CharacterStats, skillName string, dc int, mode dice.Mode, bonus int, roller dice.Roller) (CheckResult, error) {
	name := strings.ToLower(skillName)
	abilityName, ok := Abilities[name]
	if !ok {
		return CheckResult{}, apperrors.New(apperrors.CodeEntityUnknownSkill,
			fmt.Sprintf("unknown skill %q", skillName))
	}
	mod, err := c.Abilities.Mod(abilityName)
	if err != nil {
		return CheckResult{}, err
	}
	if c.ProficientSkill(name) {
		mod += c.ProficiencyBonus()
	}
	return rollCheck(mod+bonus, dc, mode, roller)
}

// Save resolves a saving throw: 1d20 + ability modifier + proficiency if
// proficient in that save.
func Save(c *entity.CharacterStats, abilityName string, dc int, mode dice.Mode, bonus int, roller dice.Roller) (CheckResult, error) {
	mod, err := c.Abilities.Mod(abilityName)
	if err != nil {
		return CheckResult{}, err
	}
	if c.ProficientSave(abilityName) {
		mod += c.ProficiencyBonus()
	}
	return rollCheck(mod+bonus, dc, mode, roller)
}

func rollCheck(modifier, dc int, mode dice.Mode, roller dice.Roller) (CheckResult, error) {
	roll, err := dice.RollD20(modifier, mode, roller)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{
		Success:  roll.Total >= dc,
		Roll:     roll.Natural,
		Total:    roll.Total,
		DC:       dc,
		Margin:   roll.Total - dc,
		Critical: roll.Critical(),
		Fumble:   roll.Fumble(),
	}, nil
}

// Cover grants AC against attacks.
type Cover int

const (
	CoverNone Cover = iota
	CoverHalf
	CoverThreeQuarters
)

// ACBonus is the cover's contribution to effective AC.
func (c Cover) ACBonus() int {
	switch c {
	case CoverHalf:
		return 2
	case CoverThreeQuarters:
		return 5
	}
	return 0
}

// Weapon is the subset of item stats an attack needs.
type Weapon struct {
	Name       string
	DamageDice string
	DamageType string
	Finesse    bool
	Ranged     bool
	Proficient bool // attacker proficiency with this weapon
	Bonus      int  // enhancement bonus, applies to attack and damage
}

// AttackOptions carry the situational state of one attack.
type AttackOptions struct {
	Cover     Cover
	Mode      dice.Mode
	AutoCrit  bool     // target condition forces crits on hit
	BonusDice []string // rolled riders on the attack roll, like bless
	Bonus     int      // flat situational modifier, like stress penalties
}

// AttackResult is the resolved attack.
type AttackResult struct {
	Hit         bool
	Critical    bool
	Fumble      bool
	AttackRoll  int // natural die
	TotalAttack int
	Damage      int
	DamageType  string
	DamageRolls []int
}

// Attack resolves one weapon attack against a target AC. Natural 20 hits
// and crits regardless of AC; natural 1 misses regardless of AC. Crits
// double the damage dice, not the modifier.
func Attack(attacker *entity.CharacterStats, targetAC int, weapon Weapon, opts AttackOptions, roller dice.Roller) (AttackResult, error) {
	abilityMod := entity.Modifier(attacker.Abilities.Strength)
	if weapon.Ranged || (weapon.Finesse && attacker.Abilities.Dexterity > attacker.Abilities.Strength) {
		abilityMod = entity.Modifier(attacker.Abilities.Dexterity)
	}

	attackMod := abilityMod + weapon.Bonus + opts.Bonus
	if weapon.Proficient {
		attackMod += attacker.ProficiencyBonus()
	}

	roll, err := dice.RollD20(attackMod, opts.Mode, roller)
	if err != nil {
		return AttackResult{}, err
	}
	total := roll.Total
	for _, rider := range opts.BonusDice {
		r, err := dice.Roll(rider, roller)
		if err != nil {
			return AttackResult{}, err
		}
		total += r.Total
	}

	result := AttackResult{
		AttackRoll:  roll.Natural,
		TotalAttack: total,
		DamageType:  weapon.DamageType,
	}
	effectiveAC := targetAC + opts.Cover.ACBonus()

	switch {
	case roll.Fumble():
		result.Fumble = true
		return result, nil
	case roll.Critical():
		result.Hit = true
		result.Critical = true
	case total >= effectiveAC:
		result.Hit = true
		result.Critical = opts.AutoCrit
	default:
		return result, nil
	}

	if weapon.DamageDice == "" {
		return result, nil
	}
	expr, err := dice.Parse(weapon.DamageDice)
	if err != nil {
		return AttackResult{}, err
	}
	if result.Critical {
		expr = expr.Doubled()
	}
	dmg, err := expr.Roll(roller)
	if err != nil {
		return AttackResult{}, err
	}
	result.Damage = dmg.Total + abilityMod + weapon.Bonus
	if result.Damage < 0 {
		result.Damage = 0
	}
	result.DamageRolls = dmg.Rolls
	return result, nil
}

// Package solo implements the solo-balance layer: the fray die, defy
// death, heroic actions, and round-start upkeep.
package solo

import (
	"sort"

	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/resource"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Config tunes the solo rules. Zero values fall back to defaults via
// DefaultConfig; YAML rules files may override.
type Config struct {
	FrayEnabled        bool   `yaml:"fray_enabled"`
	FraySplittable     bool   `yaml:"fray_splittable"`
	MaxDefyDeath       int    `yaml:"max_defy_death"`
	HeroicMomentumCost int    `yaml:"heroic_momentum_cost"`
	HeroicStressDice   string `yaml:"heroic_stress_dice"`
	RoundMomentumGain  int    `yaml:"round_momentum_gain"`
}

// DefaultConfig is the baseline solo ruleset.
func DefaultConfig() Config {
	return Config{
		FrayEnabled:        true,
		FraySplittable:     true,
		MaxDefyDeath:       3,
		HeroicMomentumCost: 1,
		HeroicStressDice:   "1d4",
		RoundMomentumGain:  1,
	}
}

// FrayDie scales the fray die with actor level: d6 at levels 1-4, d8 at
// 5-8, d10 at 9-12, d12 at 13+.
func FrayDie(level int) resource.Die {
	switch {
	case level <= 4:
		return resource.D6
	case level <= 8:
		return resource.D8
	case level <= 12:
		return resource.D10
	default:
		return resource.D12
	}
}

// Enemy is the slice of enemy state the fray die needs.
type Enemy struct {
	ID      string
	Name    string
	HitDice int
	HP      int
}

// FrayHit is fray damage landing on one enemy.
type FrayHit struct {
	EnemyID string
	Damage  int
	Killed  bool
}

// FrayResult is one fray-die roll and where its damage landed.
type FrayResult struct {
	Die  resource.Die
	Roll int
	Hits []FrayHit
}

// RollFray rolls the fray die and applies its damage to mooks only:
// enemies whose hit dice do not exceed the actor's level, lowest hit dice
// first. With splitting enabled, leftover damage spills onto the next
// mook; otherwise all damage lands on the first. Enemy HP is mutated.
func RollFray(level int, enemies []*Enemy, splittable bool, roller dice.Roller) (FrayResult, error) {
	die := FrayDie(level)
	sides, err := die.Sides()
	if err != nil {
		return FrayResult{}, err
	}
	values, err := roller.Roll(1, sides)
	if err != nil {
		return FrayResult{}, err
	}
	result := FrayResult{Die: die, Roll: values[0]}

	var eligible []*Enemy
	for _, e := range enemies {
		if e.HitDice <= level && e.HP > 0 {
			eligible = append(eligible, e)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].HitDice < eligible[j].HitDice
	})
	if len(eligible) == 0 {
		return result, nil
	}

	remaining := result.Roll
	for _, e := range eligible {
		if remaining <= 0 {
			break
		}
		dmg := remaining
		if splittable && dmg > e.HP {
			dmg = e.HP
		}
		e.HP -= dmg
		if e.HP < 0 {
			e.HP = 0
		}
		result.Hits = append(result.Hits, FrayHit{
			EnemyID: e.ID,
			Damage:  dmg,
			Killed:  e.HP == 0,
		})
		if !splittable {
			break
		}
		remaining -= dmg
	}
	return result, nil
}

// DefyDeathDC is the escalating save DC: 10 plus damage taken this round
// plus 5 per prior use today.
func DefyDeathDC(damageThisRound, usesToday int) int {
	return 10 + damageThisRound + 5*usesToday
}

// DefyDeathResult is one defy-death attempt.
type DefyDeathResult struct {
	Survived bool
	Roll     int // natural die
	Total    int
	DC       int
	UsesLeft int
}

// DefyDeath attempts the pre-check that stops a drop to zero HP: a CON
// save against the escalating DC. A natural 20 always survives and a
// natural 1 always dies. Success leaves the character at 1 HP and costs
// one exhaustion level. With no uses left it fails immediately without
// rolling.
func DefyDeath(c *entity.CharacterStats, damageThisRound int, cfg Config, roller dice.Roller) (DefyDeathResult, error) {
	if c.Resources == nil {
		c.Resources = resource.NewPool()
	}
	dd := &c.Resources.DefyDeath
	if dd.MaxPerDay == 0 {
		dd.MaxPerDay = cfg.MaxDefyDeath
	}
	if !dd.Available() {
		return DefyDeathResult{}, apperrors.New(apperrors.CodeDefyDeathExhausted,
			"no defy-death uses remaining today")
	}

	dc := DefyDeathDC(damageThisRound, dd.UsesToday)
	conMod := entity.Modifier(c.Abilities.Constitution)
	roll, err := dice.RollD20(conMod, dice.Normal, roller)
	if err != nil {
		return DefyDeathResult{}, err
	}
	dd.UsesToday++

	survived := roll.Total >= dc
	if roll.Critical() {
		survived = true
	}
	if roll.Fumble() {
		survived = false
	}
	if survived {
		c.HP = 1
		dd.Exhaustion++
	}
	return DefyDeathResult{
		Survived: survived,
		Roll:     roll.Natural,
		Total:    roll.Total,
		DC:       dc,
		UsesLeft: dd.MaxPerDay - dd.UsesToday,
	}, nil
}

// HeroicResult is the cost paid for a heroic action.
type HeroicResult struct {
	PaidMomentum  bool
	StressAdded   int
	BreakingPoint bool
}

// HeroicAction buys a second action this round: it costs momentum when
// available, otherwise rolls stress dice onto the meter.
func HeroicAction(pool *resource.Pool, cfg Config, roller dice.Roller) (HeroicResult, error) {
	cost := cfg.HeroicMomentumCost
	if cost == 0 {
		cost = 1
	}
	if pool.Meter.Momentum >= cost {
		if err := pool.Meter.SpendMomentum(cost); err != nil {
			return HeroicResult{}, err
		}
		return HeroicResult{PaidMomentum: true}, nil
	}

	notation := cfg.HeroicStressDice
	if notation == "" {
		notation = "1d4"
	}
	roll, err := dice.Roll(notation, roller)
	if err != nil {
		return HeroicResult{}, err
	}
	breaking := pool.Meter.AddStress(roll.Total)
	return HeroicResult{StressAdded: roll.Total, BreakingPoint: breaking}, nil
}

// RechargeAttempt is one cooldown recharge roll during upkeep.
type RechargeAttempt struct {
	Name      string
	Rolled    int
	Recharged bool
}

// RoundStart is the upkeep performed at the top of a solo combat round.
type RoundStart struct {
	Round          int
	MomentumGained int
	Fray           *FrayResult
	Recharges      []RechargeAttempt
}

// StartRound performs solo upkeep: gain momentum, roll the fray die,
// attempt cooldown recharges in name order, and reset the per-round
// action flags.
func StartRound(c *entity.CharacterStats, enemies []*Enemy, cfg Config, roller dice.Roller) (RoundStart, error) {
	if c.Resources == nil {
		c.Resources = resource.NewPool()
	}
	pool := c.Resources
	pool.Solo.ResetRound()

	gain := cfg.RoundMomentumGain
	if gain == 0 {
		gain = 1
	}
	pool.Meter.GainMomentum(gain)
	result := RoundStart{Round: pool.Solo.Round, MomentumGained: gain}

	if cfg.FrayEnabled && len(enemies) > 0 {
		fray, err := RollFray(c.Level, enemies, cfg.FraySplittable, roller)
		if err != nil {
			return RoundStart{}, err
		}
		result.Fray = &fray
	}

	names := make([]string, 0, len(pool.Cooldowns))
	for name := range pool.Cooldowns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rolled, recharged, err := pool.Cooldowns[name].TryRecharge(roller)
		if err != nil {
			return RoundStart{}, err
		}
		if rolled == 0 {
			continue
		}
		result.Recharges = append(result.Recharges, RechargeAttempt{
			Name: name, Rolled: rolled, Recharged: recharged,
		})
	}
	return result, nil
}

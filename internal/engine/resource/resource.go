// Package resource tracks ability resources: usage dice, cooldowns, spell
// slots, stress and momentum, defy-death uses, and per-round action state.
package resource

import (
	"fmt"

	"github.com/tta-solo/engine/internal/engine/dice"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Die names a step on the usage-die chain.
type Die string

const (
	D4  Die = "d4"
	D6  Die = "d6"
	D8  Die = "d8"
	D10 Die = "d10"
	D12 Die = "d12"
)

// chain orders the usage dice from weakest to strongest.
var chain = []Die{D4, D6, D8, D10, D12}

// Sides returns the face count for a die name, or an error for unknown dice.
func (d Die) Sides() (int, error) {
	switch d {
	case D4:
		return 4, nil
	case D6:
		return 6, nil
	case D8:
		return 8, nil
	case D10:
		return 10, nil
	case D12:
		return 12, nil
	}
	return 0, apperrors.New(apperrors.CodeResourceInvalidDie, fmt.Sprintf("unknown usage die %q", d))
}

// stepDown returns the next weaker die, or false from the bottom of the chain.
func stepDown(d Die) (Die, bool) {
	for i, c := range chain {
		if c == d {
			if i == 0 {
				return "", false
			}
			return chain[i-1], true
		}
	}
	return "", false
}

// UsageDie is a consumable tracked by a shrinking die. Rolling low degrades
// the die one step; degrading past d4 depletes the resource.
type UsageDie struct {
	Start     Die   `yaml:"start"`
	Current   Die   `yaml:"current"`
	DegradeOn []int `yaml:"degrade_on"` // nil means {1, 2}
	Depleted  bool  `yaml:"depleted"`
}

// NewUsageDie returns a fresh usage die starting at d.
func NewUsageDie(d Die) *UsageDie {
	return &UsageDie{Start: d, Current: d}
}

// UsageRoll is the outcome of consuming one use.
type UsageRoll struct {
	Value    int
	Degraded bool
	Depleted bool
	Die      Die // die that was rolled
}

// Roll consumes one use: rolls the current die and degrades on a low face.
// A depleted die returns an insufficient-resource error.
func (u *UsageDie) Roll(roller dice.Roller) (UsageRoll, error) {
	if u.Depleted {
		return UsageRoll{}, apperrors.New(apperrors.CodeResourceDepleted,
			fmt.Sprintf("usage die %s is depleted", u.Start))
	}
	sides, err := u.Current.Sides()
	if err != nil {
		return UsageRoll{}, err
	}
	values, err := roller.Roll(1, sides)
	if err != nil {
		return UsageRoll{}, err
	}

	result := UsageRoll{Value: values[0], Die: u.Current}
	degradeOn := u.DegradeOn
	if degradeOn == nil {
		degradeOn = []int{1, 2}
	}
	for _, face := range degradeOn {
		if values[0] == face {
			result.Degraded = true
			next, ok := stepDown(u.Current)
			if !ok {
				u.Depleted = true
				result.Depleted = true
			} else {
				u.Current = next
			}
			break
		}
	}
	return result, nil
}

// Restore resets the die to its starting step.
func (u *UsageDie) Restore() {
	u.Current = u.Start
	u.Depleted = false
}

// RestType distinguishes short and long rests.
type RestType string

const (
	ShortRest RestType = "short_rest"
	LongRest  RestType = "long_rest"
)

// Cooldown tracks limited uses that recharge on a die roll or a rest.
type Cooldown struct {
	MaxUses     int      `yaml:"max_uses"`
	Remaining   int      `yaml:"remaining"`
	RechargeDie Die      `yaml:"recharge_die"` // empty means no roll recharge
	RechargeOn  []int    `yaml:"recharge_on"`
	RestoreOn   RestType `yaml:"restore_on"` // rest that restores all uses
}

// NewCooldown returns a cooldown with all uses available.
func NewCooldown(maxUses int, restoreOn RestType) *Cooldown {
	return &Cooldown{MaxUses: maxUses, Remaining: maxUses, RestoreOn: restoreOn}
}

// Spend consumes one use.
func (c *Cooldown) Spend() error {
	if c.Remaining <= 0 {
		return apperrors.New(apperrors.CodeResourceOnCooldown, "no uses remaining")
	}
	c.Remaining--
	return nil
}

// TryRecharge rolls the recharge die; a face in RechargeOn restores one use.
func (c *Cooldown) TryRecharge(roller dice.Roller) (rolled int, recharged bool, err error) {
	if c.RechargeDie == "" || c.Remaining >= c.MaxUses {
		return 0, false, nil
	}
	sides, err := c.RechargeDie.Sides()
	if err != nil {
		return 0, false, err
	}
	values, err := roller.Roll(1, sides)
	if err != nil {
		return 0, false, err
	}
	for _, face := range c.RechargeOn {
		if values[0] == face {
			c.Remaining++
			return values[0], true, nil
		}
	}
	return values[0], false, nil
}

// Restore refills all uses.
func (c *Cooldown) Restore() {
	c.Remaining = c.MaxUses
}

// SpellSlots tracks slots by level.
type SpellSlots struct {
	Max  map[int]int `yaml:"max"`
	Used map[int]int `yaml:"used"`
}

// Spend expends one slot of the given level.
func (s *SpellSlots) Spend(level int) error {
	if s.Max[level] <= 0 {
		return apperrors.New(apperrors.CodeResourceUnknown,
			fmt.Sprintf("no level %d slots", level))
	}
	if s.Used == nil {
		s.Used = map[int]int{}
	}
	if s.Used[level] >= s.Max[level] {
		return apperrors.New(apperrors.CodeResourceSlotExpended,
			fmt.Sprintf("level %d slots expended", level))
	}
	s.Used[level]++
	return nil
}

// Remaining reports unexpended slots at a level.
func (s *SpellSlots) Remaining(level int) int {
	return s.Max[level] - s.Used[level]
}

// Restore refreshes all slots.
func (s *SpellSlots) Restore() {
	s.Used = map[int]int{}
}

// Meter is the stress/momentum pair. Stress accumulates from strain and
// penalizes rolls; momentum accumulates from strong hits and fuels heroics.
type Meter struct {
	Stress      int `yaml:"stress"`
	StressMax   int `yaml:"stress_max"`
	Momentum    int `yaml:"momentum"`
	MomentumMax int `yaml:"momentum_max"`
}

// NewMeter returns a meter with the default 10-stress and 5-momentum caps.
func NewMeter() Meter {
	return Meter{StressMax: 10, MomentumMax: 5}
}

// AddStress raises stress and reports whether the breaking point was hit.
func (m *Meter) AddStress(n int) (breakingPoint bool) {
	m.Stress += n
	if m.Stress >= m.StressMax {
		m.Stress = m.StressMax
		return true
	}
	return false
}

// RelieveStress lowers stress, never below zero.
func (m *Meter) RelieveStress(n int) {
	m.Stress -= n
	if m.Stress < 0 {
		m.Stress = 0
	}
}

// Penalty returns the roll penalty from accumulated stress.
func (m Meter) Penalty() int {
	switch {
	case m.Stress >= 7:
		return -2
	case m.Stress >= 4:
		return -1
	}
	return 0
}

// AtBreakingPoint reports whether stress has hit its cap.
func (m Meter) AtBreakingPoint() bool {
	return m.Stress >= m.StressMax
}

// GainMomentum raises momentum up to the cap.
func (m *Meter) GainMomentum(n int) {
	m.Momentum += n
	if m.Momentum > m.MomentumMax {
		m.Momentum = m.MomentumMax
	}
}

// SpendMomentum consumes momentum.
func (m *Meter) SpendMomentum(n int) error {
	if m.Momentum < n {
		return apperrors.New(apperrors.CodeResourceDepleted,
			fmt.Sprintf("momentum %d below cost %d", m.Momentum, n))
	}
	m.Momentum -= n
	return nil
}

// ResetMomentum zeroes momentum. Taking damage resets momentum.
func (m *Meter) ResetMomentum() {
	m.Momentum = 0
}

// DefyDeath tracks the daily defy-death allowance.
type DefyDeath struct {
	UsesToday  int `yaml:"uses_today"`
	MaxPerDay  int `yaml:"max_per_day"`
	Exhaustion int `yaml:"exhaustion"`
}

// NewDefyDeath returns the default three-per-day allowance.
func NewDefyDeath() DefyDeath {
	return DefyDeath{MaxPerDay: 3}
}

// Available reports whether another defy-death attempt is allowed today.
func (d DefyDeath) Available() bool {
	return d.UsesToday < d.MaxPerDay
}

// SoloState is per-round action economy for solo combat.
type SoloState struct {
	Round         int    `yaml:"round"`
	ActionUsed    bool   `yaml:"action_used"`
	BonusUsed     bool   `yaml:"bonus_used"`
	ReactionUsed  bool   `yaml:"reaction_used"`
	Concentrating string `yaml:"concentrating"` // ability id, empty when not concentrating
}

// ResetRound clears the per-round action flags and advances the round.
func (s *SoloState) ResetRound() {
	s.Round++
	s.ActionUsed = false
	s.BonusUsed = false
	s.ReactionUsed = false
}

// Pool aggregates every resource a character tracks.
type Pool struct {
	UsageDice map[string]*UsageDie `yaml:"usage_dice"` // keyed by ability name
	Cooldowns map[string]*Cooldown `yaml:"cooldowns"`
	Slots     SpellSlots           `yaml:"slots"`
	Meter     Meter                `yaml:"meter"`
	DefyDeath DefyDeath            `yaml:"defy_death"`
	Solo      SoloState            `yaml:"solo"`
}

// NewPool returns an empty pool with default meters.
func NewPool() *Pool {
	return &Pool{
		UsageDice: map[string]*UsageDie{},
		Cooldowns: map[string]*Cooldown{},
		Meter:     NewMeter(),
		DefyDeath: NewDefyDeath(),
	}
}

// Rest applies a rest to the pool. Short rests restore only cooldowns that
// opt in; long rests restore everything, clear stress, and shed one level
// of exhaustion.
func (p *Pool) Rest(kind RestType) {
	for _, c := range p.Cooldowns {
		if kind == LongRest || c.RestoreOn == kind {
			c.Restore()
		}
	}
	if kind != LongRest {
		return
	}
	for _, u := range p.UsageDice {
		u.Restore()
	}
	p.Slots.Restore()
	p.Meter.Stress = 0
	p.Meter.ResetMomentum()
	p.DefyDeath.UsesToday = 0
	if p.DefyDeath.Exhaustion > 0 {
		p.DefyDeath.Exhaustion--
	}
}

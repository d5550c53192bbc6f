// Package entity defines the polymorphic world entities and the 5e stat
// arithmetic derived from them.
package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/tta-solo/engine/internal/engine/resource"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Type discriminates the entity variants.
type Type string

const (
	TypeCharacter Type = "character"
	TypeLocation  Type = "location"
	TypeItem      Type = "item"
	TypeFaction   Type = "faction"
	TypeObject    Type = "object"
)

// validTypes is the closed set of entity variants.
var validTypes = map[Type]bool{
	TypeCharacter: true,
	TypeLocation:  true,
	TypeItem:      true,
	TypeFaction:   true,
	TypeObject:    true,
}

// AbilityScores are the six 5e ability scores.
type AbilityScores struct {
	Strength     int `json:"str"`
	Dexterity    int `json:"dex"`
	Constitution int `json:"con"`
	Intelligence int `json:"int"`
	Wisdom       int `json:"wis"`
	Charisma     int `json:"cha"`
}

// Modifier is the 5e ability modifier: floor((score - 10) / 2).
func Modifier(score int) int {
	diff := score - 10
	if diff < 0 {
		return -((-diff + 1) / 2)
	}
	return diff / 2
}

// ProficiencyBonus derives the proficiency bonus from level via the 5e
// table: +2 at L1, +3 at L5, +4 at L9, +5 at L13, +6 at L17.
func ProficiencyBonus(level int) int {
	if level < 1 {
		level = 1
	}
	return 2 + (level-1)/4
}

// ReputationTier labels a faction standing: Honored at 50, Friendly at
// 20, Hostile below -49, Unfriendly below -19, Neutral between.
func ReputationTier(score int) string {
	switch {
	case score >= 50:
		return "Honored"
	case score >= 20:
		return "Friendly"
	case score >= -19:
		return "Neutral"
	case score >= -49:
		return "Unfriendly"
	default:
		return "Hostile"
	}
}

// Score returns the named ability score. Both short ("str") and long
// ("strength") names are accepted.
func (a AbilityScores) Score(name string) (int, error) {
	switch strings.ToLower(name) {
	case "str", "strength":
		return a.Strength, nil
	case "dex", "dexterity":
		return a.Dexterity, nil
	case "con", "constitution":
		return a.Constitution, nil
	case "int", "intelligence":
		return a.Intelligence, nil
	case "wis", "wisdom":
		return a.Wisdom, nil
	case "cha", "charisma":
		return a.Charisma, nil
	}
	return 0, apperrors.New(apperrors.CodeEntityUnknownAbility,
		fmt.Sprintf("unknown ability %q", name))
}

// Mod returns the modifier for the named ability score.
func (a AbilityScores) Mod(name string) (int, error) {
	score, err := a.Score(name)
	if err != nil {
		return 0, err
	}
	return Modifier(score), nil
}

// DeathSaves are the accumulated death-save results while dying.
type DeathSaves struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// CharacterStats is the stats substructure for character entities.
type CharacterStats struct {
	Level      int           `json:"level"`
	Experience int           `json:"experience"`
	Gold       int           `json:"gold,omitempty"`
	HP         int           `json:"hp"`
	HPMax      int           `json:"hp_max"`
	HPTemp     int           `json:"hp_temp"`
	AC         int           `json:"ac"`
	Speed      int           `json:"speed"`
	Abilities  AbilityScores `json:"abilities"`
	HitDice    string        `json:"hit_dice"` // e.g. "5d10"

	SkillProficiencies []string `json:"skill_proficiencies"`
	SaveProficiencies  []string `json:"save_proficiencies"`

	DeathSaves DeathSaves     `json:"death_saves"`
	Reputation map[string]int `json:"reputation"` // faction id -> standing

	Resources *resource.Pool `json:"resources"`
}

// ProficiencyBonus returns the character's proficiency bonus.
func (c *CharacterStats) ProficiencyBonus() int {
	return ProficiencyBonus(c.Level)
}

// ProficientSkill reports whether the character is proficient in a skill.
func (c *CharacterStats) ProficientSkill(skill string) bool {
	for _, s := range c.SkillProficiencies {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

// ProficientSave reports whether the character is proficient in a save.
func (c *CharacterStats) ProficientSave(ability string) bool {
	for _, s := range c.SaveProficiencies {
		if strings.EqualFold(s, ability) {
			return true
		}
	}
	return false
}

// ApplyDamage reduces HP by amount, consuming temp HP first, clamping at
// zero. It returns the damage actually applied to real HP.
func (c *CharacterStats) ApplyDamage(amount int) int {
	if amount <= 0 {
		return 0
	}
	if c.HPTemp > 0 {
		if amount <= c.HPTemp {
			c.HPTemp -= amount
			return 0
		}
		amount -= c.HPTemp
		c.HPTemp = 0
	}
	taken := amount
	c.HP -= amount
	if c.HP < 0 {
		taken += c.HP
		c.HP = 0
	}
	return taken
}

// Heal raises HP by amount, clamping at HPMax. Returns HP actually gained.
func (c *CharacterStats) Heal(amount int) int {
	if amount <= 0 || c.HP >= c.HPMax {
		return 0
	}
	healed := amount
	c.HP += amount
	if c.HP > c.HPMax {
		healed -= c.HP - c.HPMax
		c.HP = c.HPMax
	}
	return healed
}

// Down reports whether the character is at zero HP.
func (c *CharacterStats) Down() bool {
	return c.HP <= 0
}

// LocationStats is the stats substructure for location entities.
type LocationStats struct {
	Kind   string            `json:"kind"`   // tavern, dungeon, market, forest, castle, ...
	Danger int               `json:"danger"` // 0-20
	Exits  map[string]string `json:"exits"`  // direction -> destination entity id
}

// ItemStats is the stats substructure for item entities.
type ItemStats struct {
	Weight     float64 `json:"weight"`
	Value      int     `json:"value"`
	DamageDice string  `json:"damage_dice"`
	DamageType string  `json:"damage_type"`
	ACBonus    int     `json:"ac_bonus"`
	Active     bool    `json:"active"` // false once lost or broken
}

// FactionStats is the stats substructure for faction entities.
type FactionStats struct {
	Alignment string `json:"alignment"`
	Influence int    `json:"influence"` // 0-100
}

// Entity is a polymorphic world record. Exactly one stats substructure is
// set, matching Type; object entities carry none.
type Entity struct {
	ID          string `json:"id"`
	UniverseID  string `json:"universe_id"`
	CanonicalID string `json:"canonical_id,omitempty"` // set on variants and travel copies
	Type        Type   `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Tags    []string `json:"tags"`
	Version int      `json:"version"`

	Character *CharacterStats `json:"character,omitempty"`
	Location  *LocationStats  `json:"location,omitempty"`
	Item      *ItemStats      `json:"item,omitempty"`
	Faction   *FactionStats   `json:"faction,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the structural invariants of the entity.
func (e *Entity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return apperrors.New(apperrors.CodeEntityEmptyName, "entity name is required")
	}
	if !validTypes[e.Type] {
		return apperrors.New(apperrors.CodeEntityInvalidType,
			fmt.Sprintf("invalid entity type %q", e.Type))
	}

	switch e.Type {
	case TypeCharacter:
		if e.Character == nil {
			return apperrors.New(apperrors.CodeEntityMissingStats, "character entity requires character stats")
		}
		return e.Character.validate()
	case TypeLocation:
		if e.Location == nil {
			return apperrors.New(apperrors.CodeEntityMissingStats, "location entity requires location stats")
		}
	case TypeItem:
		if e.Item == nil {
			return apperrors.New(apperrors.CodeEntityMissingStats, "item entity requires item stats")
		}
	case TypeFaction:
		if e.Faction == nil {
			return apperrors.New(apperrors.CodeEntityMissingStats, "faction entity requires faction stats")
		}
	}
	return nil
}

func (c *CharacterStats) validate() error {
	if c.Level < 1 {
		return apperrors.New(apperrors.CodeEntityMissingStats, "character level must be at least 1")
	}
	if c.HP < 0 || c.HP > c.HPMax {
		return apperrors.New(apperrors.CodeEntityInvalidHP,
			fmt.Sprintf("hp %d outside [0, %d]", c.HP, c.HPMax))
	}
	for _, score := range []int{
		c.Abilities.Strength, c.Abilities.Dexterity, c.Abilities.Constitution,
		c.Abilities.Intelligence, c.Abilities.Wisdom, c.Abilities.Charisma,
	} {
		if score < 1 || score > 30 {
			return apperrors.New(apperrors.CodeEntityMissingStats,
				fmt.Sprintf("ability score %d outside [1, 30]", score))
		}
	}
	return nil
}

// IsCharacter reports whether the entity is a living character.
func (e *Entity) IsCharacter() bool { return e.Type == TypeCharacter && e.Character != nil }

// IsLocation reports whether the entity is a location.
func (e *Entity) IsLocation() bool { return e.Type == TypeLocation && e.Location != nil }

// IsItem reports whether the entity is an item.
func (e *Entity) IsItem() bool { return e.Type == TypeItem && e.Item != nil }

// HasTag reports whether the entity carries the given tag.
func (e *Entity) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	clone := *e
	clone.Tags = append([]string(nil), e.Tags...)
	if e.Character != nil {
		cs := *e.Character
		cs.SkillProficiencies = append([]string(nil), e.Character.SkillProficiencies...)
		cs.SaveProficiencies = append([]string(nil), e.Character.SaveProficiencies...)
		cs.Reputation = cloneIntMap(e.Character.Reputation)
		if e.Character.Resources != nil {
			cs.Resources = cloneResources(e.Character.Resources)
		}
		clone.Character = &cs
	}
	if e.Location != nil {
		ls := *e.Location
		ls.Exits = cloneStringMap(e.Location.Exits)
		clone.Location = &ls
	}
	if e.Item != nil {
		is := *e.Item
		clone.Item = &is
	}
	if e.Faction != nil {
		fs := *e.Faction
		clone.Faction = &fs
	}
	return &clone
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneResources(p *resource.Pool) *resource.Pool {
	clone := *p
	clone.UsageDice = make(map[string]*resource.UsageDie, len(p.UsageDice))
	for k, v := range p.UsageDice {
		u := *v
		u.DegradeOn = append([]int(nil), v.DegradeOn...)
		clone.UsageDice[k] = &u
	}
	clone.Cooldowns = make(map[string]*resource.Cooldown, len(p.Cooldowns))
	for k, v := range p.Cooldowns {
		c := *v
		c.RechargeOn = append([]int(nil), v.RechargeOn...)
		clone.Cooldowns[k] = &c
	}
	clone.Slots.Max = cloneIntKeyMap(p.Slots.Max)
	clone.Slots.Used = cloneIntKeyMap(p.Slots.Used)
	return &clone
}

func cloneIntKeyMap(m map[int]int) map[int]int {
	if m == nil {
		return nil
	}
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

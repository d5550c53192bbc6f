// Package physics defines per-universe physics overlays: configuration
// records that bend how ability sources behave in a given universe.
// Overlays are modifier functions applied inside the effect pipeline, not
// a type hierarchy.
package physics

import (
	"fmt"
	"strings"

	"github.com/tta-solo/engine/internal/engine/ability"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Overlay bends ability sources for one universe. Enhanced sources roll an
// extra damage die, restricted sources shift save DCs, forbidden sources
// fail outright.
type Overlay struct {
	UniverseID string `yaml:"universe_id" json:"universe_id"`
	Name       string `yaml:"name" json:"name"`

	Enhanced   []ability.Source `yaml:"enhanced" json:"enhanced"`
	Restricted []ability.Source `yaml:"restricted" json:"restricted"`
	Forbidden  []ability.Source `yaml:"forbidden" json:"forbidden"`

	// SaveDCShift applies to restricted sources; defaults to -2 when zero
	// so restricted abilities are easier to resist.
	SaveDCShift int `yaml:"save_dc_shift" json:"save_dc_shift"`
}

func contains(sources []ability.Source, s ability.Source) bool {
	for _, src := range sources {
		if src == s {
			return true
		}
	}
	return false
}

// Allows returns an error when the source is forbidden in this universe.
// A nil overlay allows everything.
func (o *Overlay) Allows(s ability.Source) error {
	if o == nil {
		return nil
	}
	if contains(o.Forbidden, s) {
		return apperrors.WithMetadata(apperrors.CodeAbilityForbiddenSource,
			fmt.Sprintf("%s abilities do not function in this universe", s),
			map[string]string{"universe_id": o.UniverseID, "source": string(s)})
	}
	return nil
}

// ExtraDamageDice reports how many extra damage dice the source rolls.
func (o *Overlay) ExtraDamageDice(s ability.Source) int {
	if o == nil {
		return 0
	}
	if contains(o.Enhanced, s) {
		return 1
	}
	return 0
}

// SaveShift reports the save DC shift for the source.
func (o *Overlay) SaveShift(s ability.Source) int {
	if o == nil || !contains(o.Restricted, s) {
		return 0
	}
	if o.SaveDCShift != 0 {
		return o.SaveDCShift
	}
	return -2
}

// Preset returns a fresh copy of a built-in overlay by slug. Slugs are
// case-insensitive.
func Preset(name string) (*Overlay, bool) {
	switch strings.ToLower(name) {
	case "high-fantasy":
		return &Overlay{
			Name:     "High Fantasy",
			Enhanced: []ability.Source{ability.SourceMagic},
		}, true
	case "low-magic":
		return &Overlay{
			Name:       "Low Magic",
			Enhanced:   []ability.Source{ability.SourceMartial},
			Restricted: []ability.Source{ability.SourceMagic},
		}, true
	case "cyberpunk":
		return &Overlay{
			Name:      "Cyberpunk",
			Enhanced:  []ability.Source{ability.SourceTech},
			Forbidden: []ability.Source{ability.SourceMagic},
		}, true
	}
	return nil, false
}

// PresetNames lists the built-in overlay slugs in name order.
func PresetNames() []string {
	return []string{"cyberpunk", "high-fantasy", "low-magic"}
}

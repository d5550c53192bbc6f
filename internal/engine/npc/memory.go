package npc

import (
	"time"

	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/platform/id"
)

// Memory is one episodic memory an NPC keeps about an event.
type Memory struct {
	ID         string    `json:"id"`
	NPCID      string    `json:"npc_id"`
	UniverseID string    `json:"universe_id"`
	EventID    string    `json:"event_id"`
	Summary    string    `json:"summary"`
	Valence    float64   `json:"valence"`      // -1 (traumatic) .. 1 (cherished)
	Strength   float64   `json:"strength"`     // 0..1, decays over time
	CreatedAt  time.Time `json:"created_at"`
}

// memoryThreshold is the minimum significance worth remembering.
const memoryThreshold = 0.3

// significance rates how memorable an event type is.
var significance = map[event.Type]float64{
	event.TypeDeath:               1.0,
	event.TypeBreakingPoint:       0.9,
	event.TypeWorldTravel:         0.8,
	event.TypeFork:                0.7,
	event.TypeCombatRound:         0.6,
	event.TypeConditionApplied:    0.5,
	event.TypeConcentrationBroken: 0.4,
	event.TypeDialogue:            0.4,
	event.TypeQuestUpdated:        0.4,
	event.TypeItemTransfer:        0.3,
	event.TypeItemLost:            0.3,
	event.TypeTravel:              0.2,
	event.TypeRest:                0.1,
}

// FormMemory turns an event into a memory when it is significant enough
// for the NPC to keep. Mundane events are forgotten and return formed
// false. Strength starts at the event's significance.
func FormMemory(npcID, summary string, ev *event.Event, valence float64) (*Memory, bool, error) {
	sig := significance[ev.Type]
	if sig < memoryThreshold {
		return nil, false, nil
	}
	memoryID, err := id.NewID()
	if err != nil {
		return nil, false, err
	}
	return &Memory{
		ID:         memoryID,
		NPCID:      npcID,
		UniverseID: ev.UniverseID,
		EventID:    ev.ID,
		Summary:    summary,
		Valence:    valence,
		Strength:   sig,
		CreatedAt:  ev.Timestamp,
	}, true, nil
}

// Decay weakens a memory by elapsed in-game days; memories below a
// tenth of their strength fade entirely.
func (m *Memory) Decay(days int) (faded bool) {
	for i := 0; i < days; i++ {
		m.Strength *= 0.95
	}
	if m.Strength < 0.05 {
		m.Strength = 0
		return true
	}
	return false
}

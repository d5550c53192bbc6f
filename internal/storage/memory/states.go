package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tta-solo/engine/internal/engine/condition"
)

// StateStore is the in-memory combat-state store behind the effect
// pipeline. Reads return copies; an entity with no stored state gets a
// fresh zero state carrying its ids.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]map[string]*condition.CombatState
}

// NewStateStore returns an empty combat-state store.
func NewStateStore() *StateStore {
	return &StateStore{states: map[string]map[string]*condition.CombatState{}}
}

func cloneCombatState(s *condition.CombatState) *condition.CombatState {
	out := *s
	out.Conditions = make([]*condition.Instance, len(s.Conditions))
	for i, c := range s.Conditions {
		copied := *c
		out.Conditions[i] = &copied
	}
	out.Effects = make([]*condition.Effect, len(s.Effects))
	for i, e := range s.Effects {
		copied := *e
		out.Effects[i] = &copied
	}
	return &out
}

func (s *StateStore) CombatState(_ context.Context, universeID, entityID string) (*condition.CombatState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if stored, ok := s.states[universeID][entityID]; ok {
		return cloneCombatState(stored), nil
	}
	return &condition.CombatState{UniverseID: universeID, EntityID: entityID}, nil
}

func (s *StateStore) SaveCombatState(_ context.Context, state *condition.CombatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[state.UniverseID] == nil {
		s.states[state.UniverseID] = map[string]*condition.CombatState{}
	}
	s.states[state.UniverseID][state.EntityID] = cloneCombatState(state)
	return nil
}

func (s *StateStore) ListCombatStates(_ context.Context, universeID string) ([]*condition.CombatState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*condition.CombatState, 0, len(s.states[universeID]))
	for _, stored := range s.states[universeID] {
		out = append(out, cloneCombatState(stored))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// Package memory provides in-memory implementations of the truth and
// graph repositories. They back tests and the default zero-config
// setup; semantics mirror the dolt and sqlite stores, including branch
// copies and the lazy-divergence rule.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/npc"
	"github.com/tta-solo/engine/internal/engine/quest"
	"github.com/tta-solo/engine/internal/engine/universe"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

// historyEntry pins an entity version to the event sequence it was
// saved after, so snapshots can be cut at any event.
type historyEntry struct {
	seq int
	e   *entity.Entity
}

type branchData struct {
	entities map[string]*entity.Entity
	history  map[string][]historyEntry
	quests   map[string]*quest.Quest
	profiles map[string]*npc.Profile
	memories []*npc.Memory
	events   []*event.Event
	seq      int
}

func newBranchData() *branchData {
	return &branchData{
		entities: map[string]*entity.Entity{},
		history:  map[string][]historyEntry{},
		quests:   map[string]*quest.Quest{},
		profiles: map[string]*npc.Profile{},
	}
}

func (b *branchData) clone() *branchData {
	out := newBranchData()
	for id, e := range b.entities {
		out.entities[id] = e.Clone()
	}
	for id, h := range b.history {
		out.history[id] = append([]historyEntry(nil), h...)
	}
	for id, q := range b.quests {
		out.quests[id] = cloneQuest(q)
	}
	for id, p := range b.profiles {
		out.profiles[id] = cloneProfile(p)
	}
	out.memories = append([]*npc.Memory(nil), b.memories...)
	out.events = append([]*event.Event(nil), b.events...)
	out.seq = b.seq
	return out
}

func cloneQuest(q *quest.Quest) *quest.Quest {
	out := *q
	out.Objectives = append([]quest.Objective(nil), q.Objectives...)
	out.Reward.ItemIDs = append([]string(nil), q.Reward.ItemIDs...)
	return &out
}

func cloneProfile(p *npc.Profile) *npc.Profile {
	out := *p
	out.Motivations = append([]npc.Motivation(nil), p.Motivations...)
	out.Quirks = append([]string(nil), p.Quirks...)
	return &out
}

// TruthStore is the in-memory TruthRepo. A branch is a full copy of the
// store's state, created at fork time; each universe reads and writes
// through its own branch.
type TruthStore struct {
	mu        sync.RWMutex
	universes map[string]*universe.Universe
	branches  map[string]*branchData
	current   string
}

// NewTruthStore returns an empty store with a main branch checked out.
func NewTruthStore() *TruthStore {
	return &TruthStore{
		universes: map[string]*universe.Universe{},
		branches:  map[string]*branchData{universe.RootBranch: newBranchData()},
		current:   universe.RootBranch,
	}
}

// branchFor resolves a universe to its branch. Universes the store has
// not seen yet read through main.
func (s *TruthStore) branchFor(universeID string) (*branchData, error) {
	name := universe.RootBranch
	if u, ok := s.universes[universeID]; ok {
		name = u.Branch
	}
	b, ok := s.branches[name]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeBranchMissing,
			fmt.Sprintf("branch %q does not exist", name),
			map[string]string{"branch": name, "universe_id": universeID})
	}
	return b, nil
}

func (s *TruthStore) SaveUniverse(_ context.Context, u *universe.Universe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *u
	s.universes[u.ID] = &copied
	return nil
}

func (s *TruthStore) Universe(_ context.Context, id string) (*universe.Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.universes[id]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeUniverseNotFound,
			fmt.Sprintf("universe %s not found", id),
			map[string]string{"universe_id": id})
	}
	copied := *u
	return &copied, nil
}

func (s *TruthStore) ListUniverses(_ context.Context) ([]*universe.Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*universe.Universe, 0, len(s.universes))
	for _, u := range s.universes {
		copied := *u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// saveEntityLocked applies the versioned save protocol to a branch.
func saveEntityLocked(b *branchData, e *entity.Entity) error {
	stored, ok := b.entities[e.ID]
	if !ok {
		if e.Version == 0 {
			e.Version = 1
		}
		copied := e.Clone()
		b.entities[e.ID] = copied
		b.history[e.ID] = append(b.history[e.ID], historyEntry{seq: b.seq, e: copied})
		return nil
	}
	switch e.Version {
	case stored.Version:
		return nil // idempotent resave
	case stored.Version + 1:
		copied := e.Clone()
		b.entities[e.ID] = copied
		b.history[e.ID] = append(b.history[e.ID], historyEntry{seq: b.seq, e: copied})
		return nil
	default:
		return apperrors.WithMetadata(apperrors.CodeEntityVersionConflict,
			fmt.Sprintf("entity %s is at version %d, save carries %d", e.ID, stored.Version, e.Version),
			map[string]string{"entity_id": e.ID})
	}
}

func (s *TruthStore) SaveEntity(_ context.Context, e *entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.branchFor(e.UniverseID)
	if err != nil {
		return err
	}
	return saveEntityLocked(b, e)
}

func (s *TruthStore) Entity(_ context.Context, universeID, id string) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	e, ok := b.entities[id]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("entity %s not found", id),
			map[string]string{"entity_id": id, "universe_id": universeID})
	}
	return e.Clone(), nil
}

func (s *TruthStore) EntityByName(_ context.Context, universeID, name string) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	for _, e := range b.entities {
		if strings.EqualFold(e.Name, name) {
			return e.Clone(), nil
		}
	}
	return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("no entity named %q", name),
		map[string]string{"name": name, "universe_id": universeID})
}

func (s *TruthStore) ListEntities(_ context.Context, universeID string) ([]*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Entity, 0, len(b.entities))
	for _, e := range b.entities {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func appendEventLocked(b *branchData, ev *event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	b.seq++
	ev.Seq = b.seq
	copied := *ev
	b.events = append(b.events, &copied)
	return nil
}

func (s *TruthStore) AppendEvent(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.branchFor(ev.UniverseID)
	if err != nil {
		return err
	}
	return appendEventLocked(b, ev)
}

// ListEvents returns the most recent events in chronological order.
// A non-positive limit returns everything.
func (s *TruthStore) ListEvents(_ context.Context, universeID string, limit int) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	events := b.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]*event.Event, 0, len(events))
	for _, ev := range events {
		copied := *ev
		out = append(out, &copied)
	}
	return out, nil
}

func (s *TruthStore) ListEventsSince(_ context.Context, universeID string, seq int) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	var out []*event.Event
	for _, ev := range b.events {
		if ev.Seq > seq {
			copied := *ev
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *TruthStore) SaveQuest(_ context.Context, q *quest.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.branchFor(q.UniverseID)
	if err != nil {
		return err
	}
	b.quests[q.ID] = cloneQuest(q)
	return nil
}

func (s *TruthStore) Quest(_ context.Context, universeID, id string) (*quest.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	q, ok := b.quests[id]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("quest %s not found", id),
			map[string]string{"quest_id": id, "universe_id": universeID})
	}
	return cloneQuest(q), nil
}

func (s *TruthStore) ListQuests(_ context.Context, universeID string) ([]*quest.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	out := make([]*quest.Quest, 0, len(b.quests))
	for _, q := range b.quests {
		out = append(out, cloneQuest(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *TruthStore) SaveProfile(_ context.Context, universeID string, p *npc.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return err
	}
	b.profiles[p.EntityID] = cloneProfile(p)
	return nil
}

func (s *TruthStore) Profile(_ context.Context, universeID, entityID string) (*npc.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	p, ok := b.profiles[entityID]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("no profile for entity %s", entityID),
			map[string]string{"entity_id": entityID, "universe_id": universeID})
	}
	return cloneProfile(p), nil
}

func (s *TruthStore) SaveMemory(_ context.Context, m *npc.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.branchFor(m.UniverseID)
	if err != nil {
		return err
	}
	copied := *m
	b.memories = append(b.memories, &copied)
	return nil
}

// ListMemories returns an NPC's memories, newest first.
func (s *TruthStore) ListMemories(_ context.Context, universeID, npcID string, limit int) ([]*npc.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	var out []*npc.Memory
	for i := len(b.memories) - 1; i >= 0; i-- {
		if b.memories[i].NPCID != npcID {
			continue
		}
		copied := *b.memories[i]
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CreateBranch copies the source branch's full state under the new
// name. Creating a branch that already exists is a no-op so forks can
// be retried.
func (s *TruthStore) CreateBranch(_ context.Context, name, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[name]; ok {
		return nil
	}
	src, ok := s.branches[from]
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeBranchMissing,
			fmt.Sprintf("branch %q does not exist", from),
			map[string]string{"branch": from})
	}
	s.branches[name] = src.clone()
	return nil
}

func (s *TruthStore) CheckoutBranch(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[name]; !ok {
		return apperrors.WithMetadata(apperrors.CodeBranchMissing,
			fmt.Sprintf("branch %q does not exist", name),
			map[string]string{"branch": name})
	}
	s.current = name
	return nil
}

// Commit is a no-op in memory; writes are immediately visible.
func (s *TruthStore) Commit(context.Context, string) error { return nil }

// SnapshotAt reconstructs the universe's entities as of the given
// event: for each entity, the last version saved at or before it.
func (s *TruthStore) SnapshotAt(_ context.Context, universeID, eventID string) (*storage.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.branchFor(universeID)
	if err != nil {
		return nil, err
	}
	seq := -1
	for _, ev := range b.events {
		if ev.ID == eventID {
			seq = ev.Seq
			break
		}
	}
	if seq < 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("event %s not found", eventID),
			map[string]string{"event_id": eventID, "universe_id": universeID})
	}

	snapshot := &storage.Snapshot{UniverseID: universeID, EventID: eventID, Seq: seq}
	for _, history := range b.history {
		var at *entity.Entity
		for _, h := range history {
			if h.seq <= seq {
				at = h.e
			}
		}
		if at != nil {
			snapshot.Entities = append(snapshot.Entities, at.Clone())
		}
	}
	sort.Slice(snapshot.Entities, func(i, j int) bool {
		return snapshot.Entities[i].ID < snapshot.Entities[j].ID
	})
	return snapshot, nil
}

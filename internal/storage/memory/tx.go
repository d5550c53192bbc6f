package memory

import (
	"context"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/quest"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

// tx stages writes against the store and lands them all at Commit.
// Version conflicts are detected at commit time against live state, so
// nothing is applied when any staged write would fail.
type tx struct {
	store    *TruthStore
	entities []*entity.Entity
	events   []*event.Event
	quests   []*quest.Quest
	closed   bool
}

// Begin starts a staged transaction.
func (s *TruthStore) Begin(context.Context) (storage.Tx, error) {
	return &tx{store: s}, nil
}

func (t *tx) guard() error {
	if t.closed {
		return apperrors.New(apperrors.CodeTxClosed, "transaction already finished")
	}
	return nil
}

func (t *tx) SaveEntity(_ context.Context, e *entity.Entity) error {
	if err := t.guard(); err != nil {
		return err
	}
	t.entities = append(t.entities, e.Clone())
	return nil
}

func (t *tx) AppendEvent(_ context.Context, ev *event.Event) error {
	if err := t.guard(); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	copied := *ev
	t.events = append(t.events, &copied)
	return nil
}

func (t *tx) SaveQuest(_ context.Context, q *quest.Quest) error {
	if err := t.guard(); err != nil {
		return err
	}
	t.quests = append(t.quests, cloneQuest(q))
	return nil
}

func (t *tx) Commit(context.Context) error {
	if err := t.guard(); err != nil {
		return err
	}
	t.closed = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Validate every staged entity before applying anything.
	for _, e := range t.entities {
		b, err := t.store.branchFor(e.UniverseID)
		if err != nil {
			return err
		}
		stored, ok := b.entities[e.ID]
		if ok && e.Version != stored.Version && e.Version != stored.Version+1 {
			return apperrors.WithMetadata(apperrors.CodeEntityVersionConflict,
				"staged entity save conflicts with stored version",
				map[string]string{"entity_id": e.ID})
		}
	}

	for _, e := range t.entities {
		b, _ := t.store.branchFor(e.UniverseID)
		if err := saveEntityLocked(b, e); err != nil {
			return err
		}
	}
	for _, ev := range t.events {
		b, err := t.store.branchFor(ev.UniverseID)
		if err != nil {
			return err
		}
		if err := appendEventLocked(b, ev); err != nil {
			return err
		}
	}
	for _, q := range t.quests {
		b, err := t.store.branchFor(q.UniverseID)
		if err != nil {
			return err
		}
		b.quests[q.ID] = q
	}
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.entities = nil
	t.events = nil
	t.quests = nil
	return nil
}

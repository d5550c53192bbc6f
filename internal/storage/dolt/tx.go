package dolt

import (
	"context"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/quest"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

// tx stages writes and lands them at Commit. Versions are validated
// against live state before anything is applied, so a conflict leaves
// the store untouched. Writes within one branch apply inside a SQL
// transaction; a turn only ever writes to one universe.
type tx struct {
	store    *Store
	entities []*entity.Entity
	events   []*event.Event
	quests   []*quest.Quest
	closed   bool
}

// Begin starts a staged transaction.
func (s *Store) Begin(context.Context) (storage.Tx, error) {
	return &tx{store: s}, nil
}

func (t *tx) guard() error {
	if t.closed {
		return apperrors.New(apperrors.CodeTxClosed, "transaction already finished")
	}
	return nil
}

func cloneQuest(q *quest.Quest) *quest.Quest {
	out := *q
	out.Objectives = append([]quest.Objective(nil), q.Objectives...)
	out.Reward.ItemIDs = append([]string(nil), q.Reward.ItemIDs...)
	return &out
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

// branchGroup collects one branch's staged writes in arrival order.
type branchGroup struct {
	branch   string
	entities []*entity.Entity
	events   []*event.Event
	quests   []*quest.Quest
}

func (t *tx) Commit(ctx context.Context) error {
	if err := t.guard(); err != nil {
		return err
	}
	t.closed = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}

	// Group staged writes by branch, preserving arrival order.
	groups := map[string]*branchGroup{}
	var order []string
	groupFor := func(universeID string) (*branchGroup, error) {
		branch, err := s.branchForLocked(ctx, universeID)
		if err != nil {
			return nil, err
		}
		g, ok := groups[branch]
		if !ok {
			g = &branchGroup{branch: branch}
			groups[branch] = g
			order = append(order, branch)
		}
		return g, nil
	}
	for _, e := range t.entities {
		g, err := groupFor(e.UniverseID)
		if err != nil {
			return err
		}
		g.entities = append(g.entities, e)
	}
	for _, ev := range t.events {
		g, err := groupFor(ev.UniverseID)
		if err != nil {
			return err
		}
		g.events = append(g.events, ev)
	}
	for _, q := range t.quests {
		g, err := groupFor(q.UniverseID)
		if err != nil {
			return err
		}
		g.quests = append(g.quests, q)
	}

	// Validate every staged entity before applying anything.
	for _, name := range order {
		g := groups[name]
		if len(g.entities) == 0 {
			continue
		}
		if err := s.checkoutLocked(ctx, g.branch); err != nil {
			return err
		}
		for _, e := range g.entities {
			var stored int
			err := s.db.QueryRowContext(ctx,
				`SELECT version FROM entities WHERE id = ?`, e.ID).Scan(&stored)
			if err != nil {
				continue // new entity, or surfaced on apply
			}
			if e.Version != stored && e.Version != stored+1 {
				return apperrors.WithMetadata(apperrors.CodeEntityVersionConflict,
					"staged entity save conflicts with stored version",
					map[string]string{"entity_id": e.ID})
			}
		}
	}

	for _, name := range order {
		g := groups[name]
		if err := s.checkoutLocked(ctx, g.branch); err != nil {
			return err
		}
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "begin dolt transaction", err)
		}
		if err := applyGroup(ctx, s, sqlTx, g); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "commit dolt transaction", err)
		}
	}
	return nil
}

func applyGroup(ctx context.Context, s *Store, run runner, g *branchGroup) error {
	for _, e := range g.entities {
		if err := s.saveEntityOn(ctx, run, e); err != nil {
			return err
		}
	}
	for _, ev := range g.events {
		if err := s.appendEventOn(ctx, run, ev); err != nil {
			return err
		}
	}
	for _, q := range g.quests {
		if err := s.saveQuestOn(ctx, run, q); err != nil {
			return err
		}
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

package dolt

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/npc"
	"github.com/tta-solo/engine/internal/engine/quest"
	"github.com/tta-solo/engine/internal/engine/universe"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

func marshalPayload(v any, what string) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "marshal "+what, err)
	}
	return payload, nil
}

func unmarshalPayload(payload []byte, v any, what string) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "unmarshal "+what, err)
	}
	return nil
}

// SaveUniverse upserts a universe record. The registry lives on the
// main branch regardless of which branch the universe's data uses.
func (s *Store) SaveUniverse(ctx context.Context, u *universe.Universe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := marshalPayload(u, "universe")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkoutLocked(ctx, universe.RootBranch); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO universes (id, branch, status, created_at, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   branch = VALUES(branch),
		   status = VALUES(status),
		   payload = VALUES(payload)`,
		u.ID, u.Branch, string(u.Status), toMillis(u.CreatedAt), payload)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("save universe %s", u.ID), err)
	}
	return nil
}

// Universe loads a universe record from the registry.
func (s *Store) Universe(ctx context.Context, id string) (*universe.Universe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkoutLocked(ctx, universe.RootBranch); err != nil {
		return nil, err
	}
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM universes WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, apperrors.WithMetadata(apperrors.CodeUniverseNotFound,
			fmt.Sprintf("universe %s not found", id),
			map[string]string{"universe_id": id})
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "load universe", err)
	}
	var u universe.Universe
	if err := unmarshalPayload(payload, &u, "universe"); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUniverses returns every universe, oldest first.
func (s *Store) ListUniverses(ctx context.Context) ([]*universe.Universe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkoutLocked(ctx, universe.RootBranch); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM universes ORDER BY created_at, id`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "list universes", err)
	}
	defer rows.Close()
	var out []*universe.Universe
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "scan universe", err)
		}
		var u universe.Universe
		if err := unmarshalPayload(payload, &u, "universe"); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "list universes", err)
	}
	return out, nil
}

// branchSeqLocked is the highest event sequence on the current branch.
func (s *Store) branchSeqLocked(ctx context.Context, run runner) (int, error) {
	var seq int
	if err := run.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeRepoInternal, "read event sequence", err)
	}
	return seq, nil
}

// runner abstracts *sql.DB and *sql.Tx for the write helpers.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// saveEntityOn applies the versioned save protocol: first save wins,
// resaving the stored version is a no-op, version+1 applies, anything
// else conflicts. Applied saves append a history row pinned to the
// branch's current event sequence.
func (s *Store) saveEntityOn(ctx context.Context, run runner, e *entity.Entity) error {
	var stored int
	err := run.QueryRowContext(ctx,
		`SELECT version FROM entities WHERE id = ?`, e.ID).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if e.Version == 0 {
			e.Version = 1
		}
	case err != nil:
		return apperrors.Wrap(apperrors.CodeRepoInternal, "read entity version", err)
	case e.Version == stored:
		return nil // idempotent resave
	case e.Version != stored+1:
		return apperrors.WithMetadata(apperrors.CodeEntityVersionConflict,
			fmt.Sprintf("entity %s is at version %d, save carries %d", e.ID, stored, e.Version),
			map[string]string{"entity_id": e.ID})
	}

	payload, err := marshalPayload(e, "entity")
	if err != nil {
		return err
	}
	now := toMillis(time.Now())
	if _, err := run.ExecContext(ctx,
		`INSERT INTO entities (id, universe_id, name, kind, version, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   universe_id = VALUES(universe_id),
		   name = VALUES(name),
		   kind = VALUES(kind),
		   version = VALUES(version),
		   payload = VALUES(payload),
		   updated_at = VALUES(updated_at)`,
		e.ID, e.UniverseID, e.Name, string(e.Type), e.Version, payload, now); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("save entity %s", e.ID), err)
	}

	seq, err := s.branchSeqLocked(ctx, run)
	if err != nil {
		return err
	}
	if _, err := run.ExecContext(ctx,
		`INSERT INTO entity_history (entity_id, version, seq, payload)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE seq = VALUES(seq), payload = VALUES(payload)`,
		e.ID, e.Version, seq, payload); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("record entity history %s", e.ID), err)
	}
	return nil
}

func (s *Store) SaveEntity(ctx context.Context, e *entity.Entity) error {
	return s.onBranch(ctx, e.UniverseID, func(ctx context.Context) error {
		return s.saveEntityOn(ctx, s.db, e)
	})
}

func scanEntity(payload []byte) (*entity.Entity, error) {
	var e entity.Entity
	if err := unmarshalPayload(payload, &e, "entity"); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) Entity(ctx context.Context, universeID, id string) (*entity.Entity, error) {
	var out *entity.Entity
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		var payload []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT payload FROM entities WHERE id = ?`, id).Scan(&payload)
		if err == sql.ErrNoRows {
			return apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("entity %s not found", id),
				map[string]string{"entity_id": id, "universe_id": universeID})
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "load entity", err)
		}
		out, err = scanEntity(payload)
		return err
	})
	return out, err
}

func (s *Store) EntityByName(ctx context.Context, universeID, name string) (*entity.Entity, error) {
	var out *entity.Entity
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		var payload []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT payload FROM entities WHERE LOWER(name) = LOWER(?) ORDER BY id LIMIT 1`,
			name).Scan(&payload)
		if err == sql.ErrNoRows {
			return apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("no entity named %q", name),
				map[string]string{"name": name, "universe_id": universeID})
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "load entity by name", err)
		}
		out, err = scanEntity(payload)
		return err
	})
	return out, err
}

func (s *Store) ListEntities(ctx context.Context, universeID string) ([]*entity.Entity, error) {
	var out []*entity.Entity
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT payload FROM entities ORDER BY id`)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "list entities", err)
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return apperrors.Wrap(apperrors.CodeRepoInternal, "scan entity", err)
			}
			e, err := scanEntity(payload)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		if err := rows.Err(); err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "list entities", err)
		}
		return nil
	})
	return out, err
}

// appendEventOn assigns the next branch sequence and inserts the event.
func (s *Store) appendEventOn(ctx context.Context, run runner, ev *event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	seq, err := s.branchSeqLocked(ctx, run)
	if err != nil {
		return err
	}
	ev.Seq = seq + 1
	payload, err := marshalPayload(ev, "event")
	if err != nil {
		return err
	}
	if _, err := run.ExecContext(ctx,
		`INSERT INTO events (id, seq, universe_id, event_type, created_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Seq, ev.UniverseID, string(ev.Type), toMillis(ev.Timestamp), payload); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("append event %s", ev.ID), err)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, ev *event.Event) error {
	return s.onBranch(ctx, ev.UniverseID, func(ctx context.Context) error {
		return s.appendEventOn(ctx, s.db, ev)
	})
}

func scanEvents(rows *sql.Rows) ([]*event.Event, error) {
	defer rows.Close()
	var out []*event.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "scan event", err)
		}
		var ev event.Event
		if err := unmarshalPayload(payload, &ev, "event"); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "scan events", err)
	}
	return out, nil
}

// ListEvents returns the branch's most recent events in chronological
// order. The branch carries the fork lineage's history, so a child
// universe lists inherited parent events too. A non-positive limit
// returns everything.
func (s *Store) ListEvents(ctx context.Context, universeID string, limit int) ([]*event.Event, error) {
	var out []*event.Event
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		query := `SELECT payload FROM events ORDER BY seq`
		args := []any{}
		if limit > 0 {
			query = `SELECT payload FROM (
				SELECT payload, seq FROM events ORDER BY seq DESC LIMIT ?
			) recent ORDER BY seq`
			args = append(args, limit)
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "list events", err)
		}
		out, err = scanEvents(rows)
		return err
	})
	return out, err
}

func (s *Store) ListEventsSince(ctx context.Context, universeID string, seq int) ([]*event.Event, error) {
	var out []*event.Event
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT payload FROM events WHERE seq > ? ORDER BY seq`, seq)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "list events since", err)
		}
		out, err = scanEvents(rows)
		return err
	})
	return out, err
}

func (s *Store) saveQuestOn(ctx context.Context, run runner, q *quest.Quest) error {
	payload, err := marshalPayload(q, "quest")
	if err != nil {
		return err
	}
	if _, err := run.ExecContext(ctx,
		`INSERT INTO quests (id, universe_id, status, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   universe_id = VALUES(universe_id),
		   status = VALUES(status),
		   payload = VALUES(payload),
		   updated_at = VALUES(updated_at)`,
		q.ID, q.UniverseID, string(q.Status), payload, toMillis(time.Now())); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("save quest %s", q.ID), err)
	}
	return nil
}

func (s *Store) SaveQuest(ctx context.Context, q *quest.Quest) error {
	return s.onBranch(ctx, q.UniverseID, func(ctx context.Context) error {
		return s.saveQuestOn(ctx, s.db, q)
	})
}

func (s *Store) Quest(ctx context.Context, universeID, id string) (*quest.Quest, error) {
	var out *quest.Quest
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		var payload []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT payload FROM quests WHERE id = ?`, id).Scan(&payload)
		if err == sql.ErrNoRows {
			return apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("quest %s not found", id),
				map[string]string{"quest_id": id, "universe_id": universeID})
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "load quest", err)
		}
		var q quest.Quest
		if err := unmarshalPayload(payload, &q, "quest"); err != nil {
			return err
		}
		out = &q
		return nil
	})
	return out, err
}

func (s *Store) ListQuests(ctx context.Context, universeID string) ([]*quest.Quest, error) {
	var out []*quest.Quest
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT payload FROM quests ORDER BY id`)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "list quests", err)
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return apperrors.Wrap(apperrors.CodeRepoInternal, "scan quest", err)
			}
			var q quest.Quest
			if err := unmarshalPayload(payload, &q, "quest"); err != nil {
				return err
			}
			out = append(out, &q)
		}
		if err := rows.Err(); err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "list quests", err)
		}
		return nil
	})
	return out, err
}

func (s *Store) SaveProfile(ctx context.Context, universeID string, p *npc.Profile) error {
	payload, err := marshalPayload(p, "profile")
	if err != nil {
		return err
	}
	return s.onBranch(ctx, universeID, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO npc_profiles (entity_id, payload) VALUES (?, ?)
			 ON DUPLICATE KEY UPDATE payload = VALUES(payload)`,
			p.EntityID, payload)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal,
				fmt.Sprintf("save profile %s", p.EntityID), err)
		}
		return nil
	})
}

func (s *Store) Profile(ctx context.Context, universeID, entityID string) (*npc.Profile, error) {
	var out *npc.Profile
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		var payload []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT payload FROM npc_profiles WHERE entity_id = ?`, entityID).Scan(&payload)
		if err == sql.ErrNoRows {
			return apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("no profile for entity %s", entityID),
				map[string]string{"entity_id": entityID, "universe_id": universeID})
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "load profile", err)
		}
		var p npc.Profile
		if err := unmarshalPayload(payload, &p, "profile"); err != nil {
			return err
		}
		out = &p
		return nil
	})
	return out, err
}

func (s *Store) SaveMemory(ctx context.Context, m *npc.Memory) error {
	payload, err := marshalPayload(m, "memory")
	if err != nil {
		return err
	}
	return s.onBranch(ctx, m.UniverseID, func(ctx context.Context) error {
		var ord int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ord), 0) FROM npc_memories`).Scan(&ord); err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "read memory order", err)
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO npc_memories (id, npc_id, ord, payload) VALUES (?, ?, ?, ?)`,
			m.ID, m.NPCID, ord+1, payload)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal,
				fmt.Sprintf("save memory %s", m.ID), err)
		}
		return nil
	})
}

// ListMemories returns an NPC's memories, newest first.
func (s *Store) ListMemories(ctx context.Context, universeID, npcID string, limit int) ([]*npc.Memory, error) {
	var out []*npc.Memory
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		query := `SELECT payload FROM npc_memories WHERE npc_id = ? ORDER BY ord DESC`
		args := []any{npcID}
		if limit > 0 {
			query += ` LIMIT ?`
			args = append(args, limit)
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "list memories", err)
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return apperrors.Wrap(apperrors.CodeRepoInternal, "scan memory", err)
			}
			var m npc.Memory
			if err := unmarshalPayload(payload, &m, "memory"); err != nil {
				return err
			}
			out = append(out, &m)
		}
		if err := rows.Err(); err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "list memories", err)
		}
		return nil
	})
	return out, err
}

// SnapshotAt reconstructs the universe's entities as of the given
// event: for each entity, the last version recorded at or before it.
func (s *Store) SnapshotAt(ctx context.Context, universeID, eventID string) (*storage.Snapshot, error) {
	var out *storage.Snapshot
	err := s.onBranch(ctx, universeID, func(ctx context.Context) error {
		var seq int
		err := s.db.QueryRowContext(ctx,
			`SELECT seq FROM events WHERE id = ?`, eventID).Scan(&seq)
		if err == sql.ErrNoRows {
			return apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("event %s not found", eventID),
				map[string]string{"event_id": eventID, "universe_id": universeID})
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "find snapshot event", err)
		}

		// Versions are append-only per entity, so the highest version
		// recorded at or before the event is the entity's state there.
		rows, err := s.db.QueryContext(ctx,
			`SELECT h.payload
			 FROM entity_history h
			 JOIN (
			   SELECT entity_id, MAX(version) AS max_version
			   FROM entity_history WHERE seq <= ?
			   GROUP BY entity_id
			 ) latest
			   ON h.entity_id = latest.entity_id AND h.version = latest.max_version
			 ORDER BY h.entity_id`, seq)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "load snapshot entities", err)
		}
		defer rows.Close()

		snapshot := &storage.Snapshot{UniverseID: universeID, EventID: eventID, Seq: seq}
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return apperrors.Wrap(apperrors.CodeRepoInternal, "scan snapshot entity", err)
			}
			e, err := scanEntity(payload)
			if err != nil {
				return err
			}
			snapshot.Entities = append(snapshot.Entities, e)
		}
		if err := rows.Err(); err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "load snapshot entities", err)
		}
		out = snapshot
		return nil
	})
	return out, err
}

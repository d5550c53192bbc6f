// Package bbolt provides a BoltDB-backed combat-state store. Combat
// state is hot, small, and keyed by (universe, entity), which suits a
// single-file key-value store better than the relational backends.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/tta-solo/engine/internal/engine/condition"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

const stateBucket = "combat_state"

// Store is a BoltDB-backed effect.StateStore.
type Store struct {
	db *bbolt.DB
}

// Open opens the store at the provided path, creating the file and
// bucket as needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.New(apperrors.CodeRepoUnready, "storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoUnready, "open state db", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(stateBucket))
		return err
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "create state bucket", err)
	}
	return nil
}

// stateKey is universe/entity; the slash keeps universe prefixes
// scannable with a cursor.
func stateKey(universeID, entityID string) []byte {
	return []byte(universeID + "/" + entityID)
}

// CombatState loads an entity's combat state. A missing record yields a
// fresh zero state carrying the ids, matching the in-memory store.
func (s *Store) CombatState(ctx context.Context, universeID, entityID string) (*condition.CombatState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state *condition.CombatState
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(stateBucket)).Get(stateKey(universeID, entityID))
		if payload == nil {
			state = &condition.CombatState{UniverseID: universeID, EntityID: entityID}
			return nil
		}
		state = &condition.CombatState{}
		if err := json.Unmarshal(payload, state); err != nil {
			return apperrors.Wrap(apperrors.CodeRepoInternal, "unmarshal combat state", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SaveCombatState persists an entity's combat state.
func (s *Store) SaveCombatState(ctx context.Context, state *condition.CombatState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.UniverseID == "" || state.EntityID == "" {
		return apperrors.New(apperrors.CodeRepoInternal, "combat state requires universe and entity ids")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "marshal combat state", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Put(stateKey(state.UniverseID, state.EntityID), payload)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("save combat state %s/%s", state.UniverseID, state.EntityID), err)
	}
	return nil
}

// ListCombatStates returns every stored state in a universe, ordered by
// entity id.
func (s *Store) ListCombatStates(ctx context.Context, universeID string) ([]*condition.CombatState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(universeID + "/")
	var out []*condition.CombatState
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(stateBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			state := &condition.CombatState{}
			if err := json.Unmarshal(v, state); err != nil {
				return apperrors.Wrap(apperrors.CodeRepoInternal, "unmarshal combat state", err)
			}
			out = append(out, state)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

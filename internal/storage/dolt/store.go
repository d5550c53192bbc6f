// Package dolt implements the truth repository on Dolt, a
// MySQL-compatible database with git-style version control. Each
// universe maps to a Dolt branch: forking a universe branches the
// database, so the child starts with a full copy of the parent's
// entities, events, and quests and diverges from there.
//
// The store runs the embedded driver (no server required) with a
// single connection, pinned so CALL DOLT_CHECKOUT applies to every
// statement that follows it.
package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"

	"github.com/tta-solo/engine/internal/engine/universe"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Config holds Dolt database configuration.
type Config struct {
	Path           string // path to the Dolt database directory
	Database       string // database name within Dolt
	CommitterName  string // git-style committer name
	CommitterEmail string // git-style committer email
}

const (
	defaultDatabase  = "ttasolo"
	defaultCommitter = "tta-solo"
	defaultEmail     = "engine@tta-solo.local"

	openMaxElapsed = 30 * time.Second
)

// Store is the Dolt-backed TruthRepo.
type Store struct {
	// mu serializes all access: branch checkouts mutate session state
	// on the single pinned connection.
	mu sync.Mutex

	db        *sql.DB
	connector *embedded.Connector
	branch    string

	committerName  string
	committerEmail string
}

func newOpenBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh one.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openMaxElapsed
	return bo
}

// Open opens (creating if needed) an embedded Dolt database and
// initializes the schema on the main branch.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, apperrors.New(apperrors.CodeRepoUnready, "storage path is required")
	}
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoUnready, "resolve storage path", err)
	}
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.CommitterName == "" {
		cfg.CommitterName = defaultCommitter
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = defaultEmail
	}

	initDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s",
		absPath, cfg.CommitterName, cfg.CommitterEmail)
	dbDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s&database=%s",
		absPath, cfg.CommitterName, cfg.CommitterEmail, cfg.Database)

	// Ensure the database exists as its own unit of work, then reopen
	// with the database selected.
	if err := withEmbedded(ctx, initDSN, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
		return err
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoUnready, "create dolt database", err)
	}

	db, connector, err := openEmbedded(dbDSN)
	if err != nil {
		return nil, err
	}
	// The embedded driver derives its session from the first connect;
	// ping with a background context so a short-lived caller context
	// cannot poison the pinned connection.
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, apperrors.Wrap(apperrors.CodeRepoUnready, "ping dolt database", err)
	}

	store := &Store{
		db:             db,
		connector:      connector,
		branch:         universe.RootBranch,
		committerName:  cfg.CommitterName,
		committerEmail: cfg.CommitterEmail,
	}
	if err := store.initSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// withEmbedded runs one unit of work against a short-lived embedded
// connection, closing the connector to release filesystem locks.
func withEmbedded(ctx context.Context, dsn string, fn func(context.Context, *sql.DB) error) error {
	db, connector, err := openEmbedded(dsn)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
		_ = connector.Close()
	}()
	return fn(ctx, db)
}

func openEmbedded(dsn string) (*sql.DB, *embedded.Connector, error) {
	openCfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeRepoUnready, "parse dolt dsn", err)
	}
	openCfg.BackOff = newOpenBackoff()

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeRepoUnready, "create dolt connector", err)
	}
	db := sql.OpenDB(connector)

	// Embedded Dolt is single-writer; pin one connection so branch
	// checkouts apply to every subsequent statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, connector, nil
}

// Close closes the database and the embedded connector. The connector
// must be closed to release the filesystem locks it holds.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.db != nil {
		firstErr = s.db.Close()
		s.db = nil
	}
	if s.connector != nil {
		if err := s.connector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.connector = nil
	}
	return firstErr
}

func (s *Store) readyLocked() error {
	if s == nil || s.db == nil {
		return apperrors.New(apperrors.CodeRepoUnready, "truth storage is not configured")
	}
	return nil
}

// schema is the table set of one branch. Branch copies carry all of it,
// which is what gives forks their inherited history.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS universes (
		id VARCHAR(64) PRIMARY KEY,
		branch VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL,
		created_at BIGINT NOT NULL,
		payload JSON NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entities (
		id VARCHAR(64) PRIMARY KEY,
		universe_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		version INT NOT NULL,
		payload JSON NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entity_history (
		entity_id VARCHAR(64) NOT NULL,
		version INT NOT NULL,
		seq INT NOT NULL,
		payload JSON NOT NULL,
		PRIMARY KEY (entity_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id VARCHAR(64) PRIMARY KEY,
		seq INT NOT NULL,
		universe_id VARCHAR(64) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		created_at BIGINT NOT NULL,
		payload JSON NOT NULL,
		UNIQUE KEY uniq_events_seq (seq)
	)`,
	`CREATE TABLE IF NOT EXISTS quests (
		id VARCHAR(64) PRIMARY KEY,
		universe_id VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		payload JSON NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS npc_profiles (
		entity_id VARCHAR(64) PRIMARY KEY,
		payload JSON NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS npc_memories (
		id VARCHAR(64) PRIMARY KEY,
		npc_id VARCHAR(64) NOT NULL,
		ord INT NOT NULL,
		payload JSON NOT NULL
	)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(apperrors.CodeRepoUnready, "create schema", err)
		}
	}
	// Commit the empty schema so branches can be cut from main before
	// any gameplay writes land.
	if err := s.commitLocked(ctx, "init schema"); err != nil {
		return err
	}
	return nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// checkoutLocked switches the pinned connection to a branch. Redundant
// checkouts are skipped.
func (s *Store) checkoutLocked(ctx context.Context, branch string) error {
	if err := s.readyLocked(); err != nil {
		return err
	}
	if branch == s.branch {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "CALL DOLT_CHECKOUT(?)", branch); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") ||
			strings.Contains(strings.ToLower(err.Error()), "does not exist") {
			return apperrors.WithMetadata(apperrors.CodeBranchMissing,
				fmt.Sprintf("branch %q does not exist", branch),
				map[string]string{"branch": branch})
		}
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("checkout branch %s", branch), err)
	}
	s.branch = branch
	return nil
}

// branchForLocked resolves a universe to its branch. The universe
// registry lives on main; universes the store has not seen read
// through main.
func (s *Store) branchForLocked(ctx context.Context, universeID string) (string, error) {
	if err := s.checkoutLocked(ctx, universe.RootBranch); err != nil {
		return "", err
	}
	var branch string
	err := s.db.QueryRowContext(ctx,
		`SELECT branch FROM universes WHERE id = ?`, universeID).Scan(&branch)
	if err == sql.ErrNoRows {
		return universe.RootBranch, nil
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeRepoInternal, "resolve universe branch", err)
	}
	return branch, nil
}

// onBranch checks out the universe's branch and runs fn under the
// store lock.
func (s *Store) onBranch(ctx context.Context, universeID string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	branch, err := s.branchForLocked(ctx, universeID)
	if err != nil {
		return err
	}
	if err := s.checkoutLocked(ctx, branch); err != nil {
		return err
	}
	return fn(ctx)
}

func (s *Store) commitAuthorLocked() string {
	return fmt.Sprintf("%s <%s>", s.committerName, s.committerEmail)
}

// commitLocked commits the current branch's working set. A clean
// working set is not an error.
func (s *Store) commitLocked(ctx context.Context, message string) error {
	_, err := s.db.ExecContext(ctx,
		"CALL DOLT_COMMIT('-Am', ?, '--author', ?)", message, s.commitAuthorLocked())
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "nothing to commit") {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeRepoInternal, "dolt commit", err)
	}
	return nil
}

// CreateBranch commits the source branch and branches from it. The
// copy carries the source's full table state. Creating a branch that
// already exists is a no-op so forks can be retried.
func (s *Store) CreateBranch(ctx context.Context, name, from string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkoutLocked(ctx, from); err != nil {
		return err
	}
	// Branches cut from the commit HEAD; land the working set first.
	if err := s.commitLocked(ctx, fmt.Sprintf("fork point for %s", name)); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "CALL DOLT_BRANCH(?, ?)", name, from); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("create branch %s from %s", name, from), err)
	}
	return nil
}

// CheckoutBranch switches the store to a branch.
func (s *Store) CheckoutBranch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkoutLocked(ctx, name)
}

// Commit commits the current branch's working set.
func (s *Store) Commit(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}
	return s.commitLocked(ctx, message)
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/driftwoodlabs/raggate/session"
)

// sessionKeyPrefix namespaces session records inside the badger keyspace.
const sessionKeyPrefix = "session/"

// BadgerSessionStore is the durable session store. Sessions are stored as
// JSON under a prefixed key; badger handles crash safety and concurrent
// access.
type BadgerSessionStore struct {
	db *badger.DB
}

// Compile-time interface implementation check.
var _ session.Store = (*BadgerSessionStore)(nil)

// OpenSessionStore opens (or creates) the session database at path.
// Caller must Close it on shutdown.
func OpenSessionStore(path string) (*BadgerSessionStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store at %s: %w", path, err)
	}
	slog.Info("opened session store", "path", path)
	return &BadgerSessionStore{db: db}, nil
}

// OpenInMemorySessionStore opens an ephemeral store. Used by tests and by
// deployments that accept losing sessions on restart.
func OpenInMemorySessionStore() (*BadgerSessionStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory session store: %w", err)
	}
	return &BadgerSessionStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerSessionStore) Close() error {
	return s.db.Close()
}

// Read loads a session by id. Unknown ids return (nil, nil); the caller
// treats absence as a missing session.
func (s *BadgerSessionStore) Read(_ context.Context, id string) (*session.Session, error) {
	var sess *session.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sess = &session.Session{}
			return json.Unmarshal(val, sess)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	return sess, nil
}

// Write upserts a session record.
func (s *BadgerSessionStore) Write(_ context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to serialize session %s: %w", sess.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(sess.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write session %s: %w", sess.ID, err)
	}
	return nil
}

// Invalidate removes a session record. Deleting an unknown id is not an
// error.
func (s *BadgerSessionStore) Invalidate(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate session %s: %w", id, err)
	}
	slog.Info("invalidated session", "sessionId", id)
	return nil
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/sokolive/soko/internal/logging"
)

const (
	sessionKeyPrefix = "sess:"
	userIndexPrefix  = "sess_user:"
	gcInterval       = 10 * time.Minute
	gcDiscardRatio   = 0.5
	expiredRetention = time.Hour
)

// BadgerStore persists sessions in an embedded BadgerDB. Entries carry
// a TTL so badger reclaims expired sessions on its own; the TTL is
// padded by expiredRetention so a just-expired session still resolves
// to ErrExpired instead of ErrNotFound during the handshake.
type BadgerStore struct {
	db   *badger.DB
	stop chan struct{}
	done chan struct{}
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the badger database under dir and
// starts the value-log GC loop.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{}).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger session store: %w", err)
	}

	s := &BadgerStore{
		db:   db,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.gcLoop()
	return s, nil
}

func (b *BadgerStore) gcLoop() {
	defer close(b.done)
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is
			// nothing to reclaim, which is the common case.
			for b.db.RunValueLogGC(gcDiscardRatio) == nil {
			}
		}
	}
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

func userIndexKey(userID, id string) []byte {
	return []byte(userIndexPrefix + userID + ":" + id)
}

// Put stores the session and its user index entry in one transaction.
func (b *BadgerStore) Put(_ context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt) + expiredRetention
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(sessionKey(s.ID), data).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
		idx := badger.NewEntry(userIndexKey(s.UserID, s.ID), []byte(s.ID)).WithTTL(ttl)
		if err := txn.SetEntry(idx); err != nil {
			return fmt.Errorf("store session index: %w", err)
		}
		return nil
	})
}

// Get loads the session for id, translating badger's not-found into
// ErrNotFound and checking expiry explicitly.
func (b *BadgerStore) Get(_ context.Context, id string) (*Session, error) {
	var s Session
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("read session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if err != nil {
		return nil, err
	}
	if s.IsExpired() {
		return nil, ErrExpired
	}
	return &s, nil
}

// Delete removes the session and its user index entry. Deleting an
// absent session is not an error.
func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	s, err := b.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if !errors.Is(err, ErrExpired) {
			return err
		}
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(sessionKey(id)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if s != nil {
			if err := txn.Delete(userIndexKey(s.UserID, id)); err != nil {
				return fmt.Errorf("delete session index: %w", err)
			}
		}
		return nil
	})
}

// DeleteByUserID walks the user index prefix and removes every session
// belonging to userID.
func (b *BadgerStore) DeleteByUserID(_ context.Context, userID string) (int, error) {
	prefix := []byte(userIndexPrefix + userID + ":")
	removed := 0
	err := b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var idxKeys [][]byte
		var ids []string
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			idxKeys = append(idxKeys, item.KeyCopy(nil))
			id, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read session index: %w", err)
			}
			ids = append(ids, string(id))
		}
		for i, id := range ids {
			if err := txn.Delete(sessionKey(id)); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			if err := txn.Delete(idxKeys[i]); err != nil {
				return fmt.Errorf("delete session index: %w", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close stops the GC loop and closes the database.
func (b *BadgerStore) Close() error {
	close(b.stop)
	<-b.done
	return b.db.Close()
}

// badgerLogger routes badger's internal logging through the gateway
// logger, demoting its chatty info output to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

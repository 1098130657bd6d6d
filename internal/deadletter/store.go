// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package deadletter

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/logging"
	"github.com/tomtom215/whrelay/internal/metrics"
)

// Sources.
const (
	SourceUpsert   = "upsert"
	SourceDelivery = "delivery"
)

const (
	// DefaultTTL is how long entries are kept.
	DefaultTTL = 72 * time.Hour

	// DefaultListLimit bounds List when no limit is given.
	DefaultListLimit = 100

	keyPrefix    = "dl:"
	closeTimeout = 30 * time.Second
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("deadletter: store closed")

	// ErrNilPayload is returned by Archive for a nil payload.
	ErrNilPayload = errors.New("deadletter: payload cannot be nil")
)

// Entry is one archived payload.
type Entry struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Target    string          `json:"target"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is a BadgerDB-backed archive. Keys sort by creation time.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool

	now func() time.Time
}

// Open opens (or creates) the store at cfg.Path. An empty path keeps
// entries in memory.
func Open(cfg config.DeadLetterConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		db:     db,
		ttl:    ttl,
		logger: logging.WithComponent("deadletter"),
		now:    time.Now,
	}
	s.logger.Info().Str("path", cfg.Path).Dur("ttl", ttl).Msg("Dead-letter store opened")
	return s, nil
}

// Archive stores payload under a new entry.
func (s *Store) Archive(ctx context.Context, source, target, reason string, payload any) error {
	if payload == nil {
		return ErrNilPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.Put(ctx, Entry{Source: source, Target: target, Reason: reason, Payload: data})
	return err
}

// Put writes e, assigning ID and CreatedAt when unset, and returns the ID.
func (s *Store) Put(ctx context.Context, e Entry) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(entryKey(e), data).WithTTL(s.ttl))
	})
	if err != nil {
		return "", fmt.Errorf("write entry: %w", err)
	}

	metrics.DeadLetterEntries.WithLabelValues(e.Source).Inc()
	s.logger.Debug().
		Str("id", e.ID).
		Str("source", e.Source).
		Str("target", e.Target).
		Str("reason", e.Reason).
		Msg("Payload archived")
	return e.ID, nil
}

// entryKey is prefix + big-endian nanoseconds + id.
func entryKey(e Entry) []byte {
	key := make([]byte, 0, len(keyPrefix)+8+len(e.ID))
	key = append(key, keyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(e.CreatedAt.UnixNano()))
	return append(key, e.ID...)
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(keyPrefix), 0xff)
		for it.Seek(seek); it.Valid() && len(entries) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("key", fmt.Sprintf("%x", it.Item().Key())).Msg("Skipping unreadable entry")
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of live entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// RunGC reclaims value log space until there is nothing left to rewrite.
func (s *Store) RunGC(ratio float64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	for {
		err := s.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the database. It gives up after closeTimeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		s.logger.Info().Msg("Dead-letter store closed")
		return nil
	case <-time.After(closeTimeout):
		return fmt.Errorf("badgerdb close timeout after %v", closeTimeout)
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianConformity/services/conformity/cache"
)

// resultPrefix namespaces cached analyses inside the database.
const resultPrefix = "conformity/result/"

// ResultStore is the persistent tier of the result cache. Entries are
// JSON encoded under resultPrefix and expire through BadgerDB TTLs.
//
// Thread Safety: Safe for concurrent use.
type ResultStore struct {
	db *DB
}

var _ cache.Store = (*ResultStore)(nil)

// NewResultStore wraps db.
func NewResultStore(db *DB) (*ResultStore, error) {
	if db == nil {
		return nil, errors.New("badger: db must not be nil")
	}
	return &ResultStore{db: db}, nil
}

func resultKey(key string) []byte {
	return []byte(resultPrefix + key)
}

// Get loads the entry stored under key.
func (s *ResultStore) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var entry *cache.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var e cache.Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode entry %s: %w", key, err)
			}
			entry = &e
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Put writes entry with the given lifetime. A non-positive ttl never expires.
func (s *ResultStore) Put(ctx context.Context, entry *cache.Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.Key, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(resultKey(entry.Key), val)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes keys. Missing keys are ignored.
func (s *ResultStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(resultKey(k)); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return wb.Flush()
}

// Scan calls fn for every live entry until fn returns false.
func (s *ResultStore) Scan(ctx context.Context, fn func(*cache.Entry) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(resultPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e cache.Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("decode entry %s: %w", it.Item().Key(), err)
			}
			if !fn(&e) {
				return nil
			}
		}
		return nil
	})
}

// Clear drops every cached analysis.
func (s *ResultStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropPrefix([]byte(resultPrefix))
}

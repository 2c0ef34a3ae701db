// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package symbolregistry

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// BadgerIndex is an optional on-disk mirror of a Registry's symbol
// table, keyed by fully-qualified name. A run has no need to persist
// symbols across process restarts on its own - the in-memory Registry
// is authoritative for the run's lifetime - but a long-running
// decomposition that spans many invocations (one task graph built up
// incrementally across several codeforge invocations against the same
// --index-dir) needs somewhere durable to resume its known-types view
// from. Grounded on the teacher's badger-backed storage package
// (services/trace/storage/badger), which opens the same database
// either in-memory or rooted at a path.
type BadgerIndex struct {
	db *badger.DB
}

// OpenBadgerIndex opens (creating if absent) a BadgerIndex rooted at dir.
func OpenBadgerIndex(dir string) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open symbol index at %s: %w", dir, err)
	}
	return &BadgerIndex{db: db}, nil
}

// OpenInMemoryBadgerIndex opens a BadgerIndex with no on-disk
// footprint, for tests and for runs that opt in to the index's
// write-through behavior without wanting it to outlive the process.
func OpenInMemoryBadgerIndex() (*BadgerIndex, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory symbol index: %w", err)
	}
	return &BadgerIndex{db: db}, nil
}

// Close releases the underlying database.
func (idx *BadgerIndex) Close() error {
	return idx.db.Close()
}

// Put persists sym under its fully-qualified name.
func (idx *BadgerIndex) Put(sym model.Symbol) error {
	data, err := json.Marshal(sym)
	if err != nil {
		return fmt.Errorf("marshal symbol %s: %w", sym.FullyQualifiedName, err)
	}
	return idx.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sym.FullyQualifiedName), data)
	})
}

// Get returns the symbol registered under fqn, if any.
func (idx *BadgerIndex) Get(fqn string) (model.Symbol, bool, error) {
	var sym model.Symbol
	found := false
	err := idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fqn))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sym)
		})
	})
	if err != nil {
		return model.Symbol{}, false, fmt.Errorf("get symbol %s: %w", fqn, err)
	}
	return sym, found, nil
}

// All returns every symbol currently persisted, for rebuilding a
// Registry's in-memory indexes at startup.
func (idx *BadgerIndex) All() ([]model.Symbol, error) {
	var out []model.Symbol
	err := idx.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				var sym model.Symbol
				if err := json.Unmarshal(val, &sym); err != nil {
					return err
				}
				out = append(out, sym)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return out, nil
}

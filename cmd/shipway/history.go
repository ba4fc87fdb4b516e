// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Run History
// =============================================================================

// runKeyPrefix namespaces history records in the store.
const runKeyPrefix = "run/"

// StepRecord is the persisted form of one pipeline step outcome.
type StepRecord struct {
	Name       string `json:"name"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// RunRecord is the persisted summary of one deployment or cleanup run.
//
// It deliberately carries no credentials: no token, no key paths, no
// fetch URLs. Anyone with read access to the history store learns what
// ran and how it went, nothing more.
type RunRecord struct {
	ID         string       `json:"id"`
	Kind       string       `json:"kind"` // "deploy" or "cleanup"
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Server     string       `json:"server"`
	Repo       string       `json:"repo"`
	Branch     string       `json:"branch,omitempty"`
	Mode       string       `json:"mode,omitempty"`
	FinalState string       `json:"final_state"`
	ExitCode   int          `json:"exit_code"`
	Steps      []StepRecord `json:"steps,omitempty"`
}

// HistoryStore persists run records in an embedded badger database.
//
// # Thread Safety
//
// Safe for concurrent use; badger transactions provide isolation. In
// practice one process writes one record per run.
type HistoryStore struct {
	db   *badger.DB
	keep int
}

// OpenHistory opens (creating if needed) the history store at dir.
func OpenHistory(dir string, keep int) (*HistoryStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store at %s: %w", dir, err)
	}
	if keep < 1 {
		keep = 1
	}
	return &HistoryStore{db: db, keep: keep}, nil
}

// Close releases the store.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}

// runKey builds a key that sorts chronologically.
func runKey(rec *RunRecord) []byte {
	return []byte(fmt.Sprintf("%s%s_%s", runKeyPrefix,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.ID))
}

// Record persists one run and prunes beyond the retention limit.
func (h *HistoryStore) Record(rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	err = h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(rec), data)
	})
	if err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return h.prune()
}

// prune deletes the oldest records beyond the keep limit.
func (h *HistoryStore) prune() error {
	var excess [][]byte
	err := h.db.View(func(txn *badger.Txn) error {
		var keys [][]byte
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(runKeyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		if len(keys) > h.keep {
			excess = keys[:len(keys)-h.keep]
		}
		return nil
	})
	if err != nil || len(excess) == 0 {
		return err
	}
	return h.db.Update(func(txn *badger.Txn) error {
		for _, key := range excess {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (h *HistoryStore) List(limit int) ([]RunRecord, error) {
	var records []RunRecord
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.IteratorOptions{Prefix: []byte(runKeyPrefix), Reverse: true}
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek past the last prefixed key
		seek := append([]byte(runKeyPrefix), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec RunRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode run record: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

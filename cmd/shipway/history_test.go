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
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestHistory(t *testing.T, keep int) *HistoryStore {
	t.Helper()
	store, err := OpenHistory(t.TempDir(), keep)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun(started time.Time, state string) *RunRecord {
	return &RunRecord{
		ID:         uuid.NewString(),
		Kind:       "deploy",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Minute),
		Server:     "203.0.113.10",
		Repo:       "https://github.com/acme/widgets.git",
		Branch:     "main",
		Mode:       "compose",
		FinalState: state,
		Steps: []StepRecord{
			{Name: "synchronize repository", Outcome: "success", DurationMS: 4200},
			{Name: "deploy containers", Outcome: "success", DurationMS: 61000},
		},
	}
}

func TestHistoryRecordAndList(t *testing.T) {
	store := openTestHistory(t, 10)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(sampleRun(base, "done")))
	require.NoError(t, store.Record(sampleRun(base.Add(time.Hour), "failed")))

	records, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first
	assert.Equal(t, "failed", records[0].FinalState)
	assert.Equal(t, "done", records[1].FinalState)
	assert.Equal(t, "203.0.113.10", records[0].Server)
	assert.Equal(t, "compose", records[0].Mode)
	assert.Len(t, records[1].Steps, 2)
}

func TestHistoryListLimit(t *testing.T) {
	store := openTestHistory(t, 10)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(sampleRun(base.Add(time.Duration(i)*time.Hour), fmt.Sprintf("state-%d", i))))
	}

	records, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "state-4", records[0].FinalState)
	assert.Equal(t, "state-3", records[1].FinalState)
}

func TestHistoryPruneKeepsNewest(t *testing.T) {
	store := openTestHistory(t, 3)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		require.NoError(t, store.Record(sampleRun(base.Add(time.Duration(i)*time.Hour), fmt.Sprintf("state-%d", i))))
	}

	records, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "state-5", records[0].FinalState)
	assert.Equal(t, "state-3", records[2].FinalState)
}

func TestHistoryEmptyList(t *testing.T) {
	store := openTestHistory(t, 10)
	records, err := store.List(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryStore_RecordRecent(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, name := range []string{"a.csv", "b.xlsx", "c.csv"} {
		err := h.Record(ctx, HistoryEntry{
			ID:          name,
			FileName:    name,
			Kind:        KindPostgreSQL,
			Host:        "db",
			Database:    "sales",
			TableName:   "orders",
			Policy:      PolicyAppend,
			Columns:     []string{"id", "total"},
			RowsWritten: i * 10,
			Status:      StatusSucceeded,
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			Duration:    1500 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("Record(%s) error = %v", name, err)
		}
	}

	entries, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(entries))
	}
	if entries[0].FileName != "c.csv" || entries[1].FileName != "b.xlsx" {
		t.Errorf("order = %s, %s; want newest first", entries[0].FileName, entries[1].FileName)
	}

	got := entries[0]
	if got.Kind != KindPostgreSQL || got.Policy != PolicyAppend || got.RowsWritten != 20 {
		t.Errorf("entry = %+v", got)
	}
	if len(got.Columns) != 2 || got.Columns[1] != "total" {
		t.Errorf("Columns = %v", got.Columns)
	}
	if !got.StartedAt.Equal(base.Add(2*time.Hour)) || got.Duration != 1500*time.Millisecond {
		t.Errorf("timing = %v / %v", got.StartedAt, got.Duration)
	}
}

func TestHistoryStore_Prune(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{0, 48 * time.Hour, 200 * 24 * time.Hour} {
		err := h.Record(ctx, HistoryEntry{
			ID:        string(rune('a' + i)),
			Columns:   []string{},
			Status:    StatusFailed,
			StartedAt: now.Add(-age),
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := h.Prune(ctx, now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d entries, want 1", n)
	}

	entries, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("%d entries left, want 2", len(entries))
	}
}

func TestStartHistoryPruner(t *testing.T) {
	h := openTestHistory(t)
	ctx, cancel := context.WithCancel(context.Background())

	old := HistoryEntry{ID: "old", Columns: []string{}, StartedAt: time.Now().AddDate(-1, 0, 0)}
	if err := h.Record(context.Background(), old); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- StartHistoryPruner(ctx, h, PruneConfig{RetentionDays: 30, Schedule: "@hourly"})
	}()

	// The first prune runs before the schedule starts.
	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, err := h.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("old entry was not pruned on start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StartHistoryPruner() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pruner did not stop")
	}
}

func TestStartHistoryPruner_BadSchedule(t *testing.T) {
	h := openTestHistory(t)
	err := StartHistoryPruner(context.Background(), h, PruneConfig{RetentionDays: 1, Schedule: "every tuesday"})
	if err == nil {
		t.Error("StartHistoryPruner() accepted an invalid schedule")
	}
}

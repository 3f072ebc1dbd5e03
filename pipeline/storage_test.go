package pipeline

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCountStoreRoundTrip(t *testing.T) {
	store, err := NewCountStore(StorageConfig{
		DBPath:    filepath.Join(t.TempDir(), "counts.db"),
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	rows := []CountRow{
		{GroupKey: GroupKey{Year: 2016, Month: 3, District: "A1", Category: "Larceny"}, Count: 12},
		{GroupKey: GroupKey{Year: 2016, Month: 3, District: "B2", Category: "Towed"}, Count: 4},
		{GroupKey: GroupKey{Year: 2017, Month: 1, District: "A1", Category: "Vandalism"}, Count: 9},
	}

	ctx := context.Background()
	if err := store.SaveCounts(ctx, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.LoadCounts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(loaded, rows) {
		t.Errorf("LoadCounts() = %+v, want %+v", loaded, rows)
	}
}

func TestCountStoreUpsert(t *testing.T) {
	store, err := NewCountStore(StorageConfig{
		DBPath: filepath.Join(t.TempDir(), "counts.db"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	key := GroupKey{Year: 2016, Month: 3, District: "A1", Category: "Larceny"}

	if err := store.SaveCounts(ctx, []CountRow{{GroupKey: key, Count: 5}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.SaveCounts(ctx, []CountRow{{GroupKey: key, Count: 8}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.LoadCounts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(loaded))
	}
	if loaded[0].Count != 8 {
		t.Errorf("count = %d, want 8", loaded[0].Count)
	}
}

package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/speechscore/internal/catalog"
	"github.com/MrWong99/speechscore/internal/catalog/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "data", "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := s.Get(ctx, "abc"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}

	a := &catalog.Asset{ID: "abc", OriginalName: "talk.mp4", Extension: "mp4"}
	if err := s.Put(ctx, a); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if a.CreatedAt.IsZero() {
		t.Error("Put did not set CreatedAt")
	}

	got, err := s.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OriginalName != "talk.mp4" || got.Extension != "mp4" || got.HasScript {
		t.Errorf("Get = %+v", got)
	}

	a.HasScript = true
	if err := s.Put(ctx, a); err != nil {
		t.Fatalf("Put update: %v", err)
	}
	if got, _ := s.Get(ctx, "abc"); !got.HasScript {
		t.Error("update not persisted")
	}

	if err := s.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "abc"); err != nil {
		t.Errorf("Delete unknown: %v", err)
	}
	if _, err := s.Get(ctx, "abc"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "b2", "c3"} {
		if err := s.Put(ctx, &catalog.Asset{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c3" || all[2].ID != "a1" {
		t.Errorf("List = %+v", all)
	}

	two, err := s.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(two) != 2 || two[0].ID != "c3" {
		t.Errorf("List(2) = %+v", two)
	}
}

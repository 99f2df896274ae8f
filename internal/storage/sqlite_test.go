package storage

import (
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the audit indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_interactions_created_at", "idx_dispatches_created_at", "idx_dispatches_status"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

// TestSaveAndGetInteraction saves an interaction and retrieves it by ID.
func TestSaveAndGetInteraction(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	want := Interaction{
		ID:        "int-001",
		CreatedAt: now,
		Channel:   "matrix",
		Sender:    "@friend:example.org",
		Query:     "good morning 😘",
		Reply:     "morning 😘",
		Path:      "emoji",
		Score:     0.42,
	}

	if err := s.SaveInteraction(want); err != nil {
		t.Fatalf("SaveInteraction: %v", err)
	}

	got, err := s.GetInteraction("int-001")
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}

	if got.Channel != want.Channel || got.Sender != want.Sender {
		t.Errorf("channel/sender = %q/%q, want %q/%q", got.Channel, got.Sender, want.Channel, want.Sender)
	}
	if got.Query != want.Query {
		t.Errorf("Query = %q, want %q", got.Query, want.Query)
	}
	if got.Reply != want.Reply {
		t.Errorf("Reply = %q, want %q", got.Reply, want.Reply)
	}
	if got.Path != want.Path {
		t.Errorf("Path = %q, want %q", got.Path, want.Path)
	}
	if got.Score != want.Score {
		t.Errorf("Score = %v, want %v", got.Score, want.Score)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

// TestGetInteractionNotFound verifies that retrieving a non-existent ID returns ErrNotFound.
func TestGetInteractionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetInteraction("does-not-exist")
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestGetRecentInteractions saves 10 interactions and verifies limit and descending order.
func TestGetRecentInteractions(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 10; j++ {
		i := Interaction{
			ID:        fmt.Sprintf("int-%02d", j),
			CreatedAt: base.Add(time.Duration(j) * time.Millisecond),
			Query:     fmt.Sprintf("query %d", j),
			Reply:     "ok",
			Path:      "similarity",
		}
		if err := s.SaveInteraction(i); err != nil {
			t.Fatalf("SaveInteraction %d: %v", j, err)
		}
	}

	got, err := s.GetRecentInteractions(5)
	if err != nil {
		t.Fatalf("GetRecentInteractions: %v", err)
	}

	if len(got) != 5 {
		t.Fatalf("got %d interactions, want 5", len(got))
	}

	// Sub-second timestamps must still sort correctly.
	for k := 1; k < len(got); k++ {
		if got[k].CreatedAt.After(got[k-1].CreatedAt) {
			t.Errorf("not in descending order: [%d]=%v > [%d]=%v", k, got[k].CreatedAt, k-1, got[k-1].CreatedAt)
		}
	}

	if got[0].ID != "int-09" {
		t.Errorf("first result ID = %q, want %q", got[0].ID, "int-09")
	}
}

func TestSaveInteraction_DefaultCreatedAt(t *testing.T) {
	s := openTestStore(t)

	before := time.Now().Add(-time.Second)
	if err := s.SaveInteraction(Interaction{ID: "no-time", Query: "q", Reply: "r", Path: "fallback"}); err != nil {
		t.Fatalf("SaveInteraction: %v", err)
	}
	got, err := s.GetInteraction("no-time")
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if got.CreatedAt.Before(before) {
		t.Errorf("CreatedAt = %v, want a current timestamp", got.CreatedAt)
	}
}

func TestCountInteractionsByPath(t *testing.T) {
	s := openTestStore(t)

	paths := []string{"emoji", "similarity", "similarity", "fallback", "similarity"}
	for j, p := range paths {
		if err := s.SaveInteraction(Interaction{ID: fmt.Sprintf("i%d", j), Query: "q", Reply: "r", Path: p}); err != nil {
			t.Fatalf("SaveInteraction: %v", err)
		}
	}

	got, err := s.CountInteractionsByPath()
	if err != nil {
		t.Fatalf("CountInteractionsByPath: %v", err)
	}
	want := map[string]int{"emoji": 1, "similarity": 3, "fallback": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("count[%s] = %d, want %d", k, got[k], v)
		}
	}
}

func TestSaveAndGetDispatch(t *testing.T) {
	s := openTestStore(t)

	want := Dispatch{
		ID:         "d-1",
		CreatedAt:  time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC),
		Origin:     "trigger:morning",
		Recipient:  "!room:example.org",
		Text:       "Good morning ☀️💖",
		Status:     "sent",
		ExternalID: "$event1",
	}
	if err := s.SaveDispatch(want); err != nil {
		t.Fatalf("SaveDispatch: %v", err)
	}

	got, err := s.GetDispatch("d-1")
	if err != nil {
		t.Fatalf("GetDispatch: %v", err)
	}
	if got.Origin != want.Origin || got.Recipient != want.Recipient || got.Text != want.Text {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.Status != "sent" || got.ExternalID != "$event1" || got.Error != "" {
		t.Errorf("status fields = %q/%q/%q", got.Status, got.ExternalID, got.Error)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}

	if _, err := s.GetDispatch("missing"); err != ErrNotFound {
		t.Errorf("GetDispatch(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetRecentDispatches_StatusFilter(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	statuses := []string{"sent", "failed", "sent", "failed", "sent"}
	for j, st := range statuses {
		d := Dispatch{
			ID:        fmt.Sprintf("d-%d", j),
			CreatedAt: base.Add(time.Duration(j) * time.Minute),
			Origin:    "manual",
			Text:      "hi",
			Status:    st,
		}
		if st == "failed" {
			d.Error = "room not joined"
		}
		if err := s.SaveDispatch(d); err != nil {
			t.Fatalf("SaveDispatch: %v", err)
		}
	}

	all, err := s.GetRecentDispatches(10, "")
	if err != nil {
		t.Fatalf("GetRecentDispatches: %v", err)
	}
	if len(all) != 5 || all[0].ID != "d-4" {
		t.Errorf("all = %d items, first %q; want 5, d-4", len(all), all[0].ID)
	}

	failed, err := s.GetRecentDispatches(10, "failed")
	if err != nil {
		t.Fatalf("GetRecentDispatches(failed): %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("failed = %d, want 2", len(failed))
	}
	for _, d := range failed {
		if d.Status != "failed" || d.Error == "" {
			t.Errorf("unexpected dispatch %+v", d)
		}
	}

	counts, err := s.CountDispatchesByStatus()
	if err != nil {
		t.Fatalf("CountDispatchesByStatus: %v", err)
	}
	if counts["sent"] != 3 || counts["failed"] != 2 {
		t.Errorf("counts = %v", counts)
	}
}

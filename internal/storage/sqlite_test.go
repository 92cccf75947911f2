package storage

import (
	"errors"
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

// TestIndexesExist verifies that the ledger indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_runs_started_at", "idx_run_failures_run"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	started := time.Date(2025, 3, 19, 10, 0, 0, 0, time.UTC)

	if err := s.SaveRun(Run{ID: "r1", StartedAt: started, Version: "yokohama", Provider: "lmstudio", Model: "qwen", Scopes: "client,rest"}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun("r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if !got.StartedAt.Equal(started) || !got.FinishedAt.IsZero() {
		t.Errorf("times = %v / %v", got.StartedAt, got.FinishedAt)
	}
	if got.Scopes != "client,rest" || got.Provider != "lmstudio" {
		t.Errorf("got %+v", got)
	}
}

func TestFinishRun(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveRun(Run{ID: "r1", StartedAt: time.Now(), Version: "yokohama"}); err != nil {
		t.Fatal(err)
	}

	finished := time.Date(2025, 3, 19, 11, 0, 0, 500, time.UTC)
	err := s.FinishRun(Run{
		ID: "r1", FinishedAt: finished, Documents: 4, Prompts: 12, Failed: 1, Pairs: 30,
		RecordsPath: "out/docs.jsonl", FinetunePath: "out/ft.jsonl", Status: StatusCompleted,
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.GetRun("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Prompts != 12 || got.Failed != 1 || got.Pairs != 30 || got.Documents != 4 {
		t.Errorf("counters = %+v", got)
	}
	if got.Status != StatusCompleted || got.FinetunePath != "out/ft.jsonl" {
		t.Errorf("got %+v", got)
	}
	if !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}

	if err := s.FinishRun(Run{ID: "missing", Status: StatusFailed}); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun(missing) = %v, want ErrNotFound", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRun("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun = %v, want ErrNotFound", err)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		// Sub-second offsets check that ordering does not depend on fraction width.
		r := Run{ID: fmt.Sprintf("r%d", i), StartedAt: base.Add(time.Duration(i) * 100 * time.Millisecond), Version: "v"}
		if err := s.SaveRun(r); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(3)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i, want := range []string{"r4", "r3", "r2"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}
}

func TestFailures(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveRun(Run{ID: "r1", StartedAt: time.Now(), Version: "v"}); err != nil {
		t.Fatal(err)
	}
	s.RecordFailure(Failure{RunID: "r1", Stage: StageDocument, Subject: "c_A", Message: "HTTP 500"})
	s.RecordFailure(Failure{RunID: "r1", Stage: StagePrompt, Subject: "GlideRecord.get", Message: "timeout"})
	s.RecordFailure(Failure{RunID: "other", Stage: StageNavlist, Subject: "rest", Message: "x"})

	got, err := s.Failures("r1")
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d failures, want 2", len(got))
	}
	if got[0].Stage != StageDocument || got[1].Subject != "GlideRecord.get" {
		t.Errorf("got %+v", got)
	}
}

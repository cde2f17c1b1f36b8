package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mineops/walletback/internal/backup"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordRunRoundTrip(t *testing.T) {
	store := openTestStore(t)

	report := &backup.Report{
		RunID:     "run-abc12345",
		StartedAt: time.Unix(1700000000, 0),
		Duration:  1500 * time.Millisecond,
		Archive:   &backup.ArchiveInfo{Filename: "wallet_data-1700000000-deadbeef.tar", SizeBytes: 4096},
		Results: []backup.HostResult{
			{Host: "remote1", Succeeded: true, Duration: 900 * time.Millisecond},
			{Host: "remote2", Succeeded: false, Err: errors.New("connection refused"), Duration: 100 * time.Millisecond},
		},
	}

	if err := store.RecordRun(report); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	run := runs[0]
	if run.ID != "run-abc12345" {
		t.Fatalf("run id = %q", run.ID)
	}
	if run.Succeeded {
		t.Fatalf("a run with a failed host must be recorded as failed")
	}
	if run.ArchiveBytes != 4096 {
		t.Fatalf("archive bytes = %d", run.ArchiveBytes)
	}

	outcomes, err := store.RunResults(run.ID)
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Host != "remote1" || !outcomes[0].Succeeded {
		t.Fatalf("outcome 0 = %+v", outcomes[0])
	}
	if outcomes[1].Host != "remote2" || outcomes[1].Succeeded || outcomes[1].Error == "" {
		t.Fatalf("outcome 1 = %+v", outcomes[1])
	}
}

func TestRecordRunIncludesMirror(t *testing.T) {
	store := openTestStore(t)

	report := &backup.Report{
		RunID:     "run-mirror01",
		StartedAt: time.Unix(1700000100, 0),
		Results:   []backup.HostResult{{Host: "remote1", Succeeded: true}},
		Mirror:    &backup.HostResult{Host: "mirror", Succeeded: true},
	}

	if err := store.RecordRun(report); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	outcomes, err := store.RunResults("run-mirror01")
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if len(outcomes) != 2 || outcomes[1].Host != "mirror" {
		t.Fatalf("expected the mirror outcome last, got %+v", outcomes)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	for i, id := range []string{"run-old00000", "run-new00000"} {
		report := &backup.Report{
			RunID:     id,
			StartedAt: time.Unix(int64(1700000000+i*3600), 0),
			Results:   []backup.HostResult{{Host: "remote1", Succeeded: true}},
		}
		if err := store.RecordRun(report); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	runs, err := store.ListRuns(1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-new00000" {
		t.Fatalf("expected the newest run, got %+v", runs)
	}
}

func TestRecordRunDuplicateIDFails(t *testing.T) {
	store := openTestStore(t)

	report := &backup.Report{
		RunID:   "run-dup00000",
		Results: []backup.HostResult{{Host: "remote1", Succeeded: true}},
	}
	if err := store.RecordRun(report); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	if err := store.RecordRun(report); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
}

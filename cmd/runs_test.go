package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/eemfit/internal/config"
	"github.com/cwbudde/eemfit/internal/fit"
	"github.com/cwbudde/eemfit/internal/store"
)

func ids(infos []store.RunInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.RunID
	}
	return out
}

func sameIDs(got []store.RunInfo, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func testInfos(now time.Time) []store.RunInfo {
	return []store.RunInfo{
		{RunID: "run1", FinishedAt: now.AddDate(0, 0, -10)},
		{RunID: "run2", FinishedAt: now.AddDate(0, 0, -5)},
		{RunID: "run3", FinishedAt: now.AddDate(0, 0, -1)},
		{RunID: "run4", FinishedAt: now.AddDate(0, 0, -30)},
	}
}

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()

	toDelete := selectRunsForDeletion(testInfos(now), 0, 7, now)

	if !sameIDs(toDelete, "run4", "run1") {
		t.Errorf("Expected run4 and run1 (oldest first), got %v", ids(toDelete))
	}
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()

	toDelete := selectRunsForDeletion(testInfos(now), 2, 0, now)

	if !sameIDs(toDelete, "run4", "run1") {
		t.Errorf("Expected the two oldest runs, got %v", ids(toDelete))
	}
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := append(testInfos(now), store.RunInfo{RunID: "run5", FinishedAt: now.AddDate(0, 0, -2)})

	// Age selects run4 and run1; keeping 2 also selects run2
	toDelete := selectRunsForDeletion(infos, 2, 7, now)

	if !sameIDs(toDelete, "run4", "run1", "run2") {
		t.Errorf("Expected run4, run1, run2, got %v", ids(toDelete))
	}
}

func TestSelectRunsForDeletion_NothingToDo(t *testing.T) {
	now := time.Now()

	if toDelete := selectRunsForDeletion(testInfos(now), 10, 0, now); len(toDelete) != 0 {
		t.Errorf("Expected no deletions, got %v", ids(toDelete))
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	content := []byte("Hello, World!")
	if err := os.WriteFile(filepath.Join(tmpDir, "test.txt"), content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if result := formatBytes(tt.bytes); result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

// useDataDir points the command configuration at a temporary store
func useDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	original := cfg
	cfg = config.Default()
	cfg.Store.DataDir = dir
	t.Cleanup(func() { cfg = original })
	return dir
}

func saveTestRun(t *testing.T, dir, runID string, finished time.Time) {
	t.Helper()
	runs, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	rec := &store.RunRecord{
		RunID:  runID,
		Config: store.RunConfig{SDFPath: "set.sdf", AtomTypes: "Element", PopulationSize: 30},
		Parameters: store.ParameterSet{
			Kappa: 0.3,
			Types: []store.TypeParams{{Label: "H", Count: 2, Alpha: 2.4, Beta: 0.9}},
		},
		Stats:      fit.Stats{R: 0.9, R2: 0.81, RMSD: 0.05},
		Molecules:  1,
		Atoms:      3,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
	if err := runs.SaveRun(rec); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
}

func TestRunsListCommand_NoRuns(t *testing.T) {
	useDataDir(t)

	if err := runListRuns(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestRunsListCommand_WithRuns(t *testing.T) {
	dir := useDataDir(t)
	saveTestRun(t, dir, "test-run-id", time.Now())

	if err := runListRuns(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestRunsCleanCommand_NoFlags(t *testing.T) {
	useDataDir(t)
	keepLast = 0
	olderThanDays = 0

	if err := runCleanRuns(nil, nil); err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestRunsCleanCommand_WithForce(t *testing.T) {
	dir := useDataDir(t)
	saveTestRun(t, dir, "old-run", time.Now().AddDate(0, 0, -30))
	saveTestRun(t, dir, "new-run", time.Now())

	keepLast = 0
	olderThanDays = 7
	forceClean = true
	defer func() { olderThanDays, forceClean = 0, false }()

	if err := runCleanRuns(nil, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	runs, _ := store.NewFSStore(dir)
	if _, err := runs.LoadRun("old-run"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected old run to be deleted, got %v", err)
	}
	if _, err := runs.LoadRun("new-run"); err != nil {
		t.Errorf("Recent run should be kept: %v", err)
	}
}

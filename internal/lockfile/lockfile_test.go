package lockfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndReleaseJobLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireJobLock(dir, "nightly-analysis")
	if err != nil {
		t.Fatalf("AcquireJobLock failed: %v", err)
	}

	lockPath := filepath.Join(dir, "nightly-analysis.lock")
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("lock file not created: %v", err)
	}
	if !strings.HasPrefix(string(data), "pid=") {
		t.Errorf("lock file content %q does not record a pid", string(data))
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file still exists after release")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireJobLock(dir, "nightly-analysis")
	if err != nil {
		t.Fatalf("AcquireJobLock failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
}

func TestSecondAcquireFailsWhileHeld(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireJobLock(dir, "nightly-analysis")
	if err != nil {
		t.Fatalf("AcquireJobLock failed: %v", err)
	}
	defer lock.Release()

	_, err = AcquireJobLock(dir, "nightly-analysis")
	if err == nil {
		t.Fatal("expected second acquire to fail while lock is held")
	}
	lockErr, ok := err.(*LockError)
	if !ok {
		t.Fatalf("expected *LockError, got %T: %v", err, err)
	}
	if lockErr.JobName != "nightly-analysis" {
		t.Errorf("LockError.JobName = %q, want %q", lockErr.JobName, "nightly-analysis")
	}
	if lockErr.Unwrap() == nil {
		t.Error("LockError.Unwrap returned nil")
	}
}

func TestDifferentJobsDoNotConflict(t *testing.T) {
	dir := t.TempDir()

	a, err := AcquireJobLock(dir, "nightly-analysis")
	if err != nil {
		t.Fatalf("AcquireJobLock for first job failed: %v", err)
	}
	defer a.Release()

	b, err := AcquireJobLock(dir, "validation-study")
	if err != nil {
		t.Fatalf("AcquireJobLock for second job failed: %v", err)
	}
	defer b.Release()
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireJobLock(dir, "nightly-analysis")
	if err != nil {
		t.Fatalf("AcquireJobLock failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	again, err := AcquireJobLock(dir, "nightly-analysis")
	if err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
	if err := again.Release(); err != nil {
		t.Fatalf("Release of re-acquired lock failed: %v", err)
	}
}

func TestExtractPIDFromLockInfo(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"pid=12345\n", 12345},
		{"pid=1", 1},
		{"no pid here", 0},
		{"pid=", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := extractPIDFromLockInfo(tt.content); got != tt.want {
			t.Errorf("extractPIDFromLockInfo(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForChange(t *testing.T, w Watcher) ChangeSet {
	t.Helper()
	select {
	case set, ok := <-w.Changes():
		require.True(t, ok, "channel closed before a change arrived")
		return set
	case <-time.After(5 * time.Second):
		t.Fatal("no change set within timeout")
		return ChangeSet{}
	}
}

func TestPollerDetectsNewRef(t *testing.T) {
	gitDir := gitDirFixture(t)
	writeFile(t, filepath.Join(gitDir, "HEAD"), "ref: refs/heads/main\n")

	p, err := NewPoller(gitDir, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer p.Close()

	writeFile(t, filepath.Join(gitDir, "refs", "heads", "main"), "abc\n")

	set := waitForChange(t, p)
	require.Contains(t, set.Added, Entity{Kind: EntityRef, Name: "refs/heads/main"})
}

func TestPollerQuietWhenNothingChanges(t *testing.T) {
	gitDir := gitDirFixture(t)
	writeFile(t, filepath.Join(gitDir, "HEAD"), "ref: refs/heads/main\n")

	p, err := NewPoller(gitDir, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer p.Close()

	select {
	case set := <-p.Changes():
		t.Fatalf("unexpected change set: %+v", set)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollerCloseEndsStream(t *testing.T) {
	gitDir := gitDirFixture(t)
	p, err := NewPoller(gitDir, 10*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	select {
	case _, ok := <-p.Changes():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close")
	}
}

func TestFSWatcherDetectsLooseObject(t *testing.T) {
	gitDir := gitDirFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "objects", "ab"), 0o755))

	w, err := NewFSWatcher(gitDir, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, filepath.Join(gitDir, "objects", "ab", "cdef"), "data")

	set := waitForChange(t, w)
	require.Contains(t, set.Added, Entity{Kind: EntityLooseObject, Name: "abcdef"})
}

func TestFSWatcherCoalescesBursts(t *testing.T) {
	gitDir := gitDirFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "objects", "ab"), 0o755))

	w, err := NewFSWatcher(gitDir, 100*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(gitDir, "objects", "ab", string(rune('a'+i))), "x")
	}

	set := waitForChange(t, w)
	require.Len(t, set.Added, 5, "burst should collapse into a single set")
}

func TestResetDebounceDrainsExpiredTimer(t *testing.T) {
	timer := time.NewTimer(time.Millisecond)
	time.Sleep(20 * time.Millisecond) // expiry now queued on timer.C

	resetDebounce(timer, time.Hour)

	select {
	case <-timer.C:
		t.Fatal("stale expiry leaked into the new window")
	case <-time.After(100 * time.Millisecond):
	}
	timer.Stop()
}

func TestFSWatcherIgnoresLockFiles(t *testing.T) {
	gitDir := gitDirFixture(t)

	w, err := NewFSWatcher(gitDir, 30*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, filepath.Join(gitDir, "HEAD.lock"), "x")

	select {
	case set := <-w.Changes():
		t.Fatalf("unexpected change set: %+v", set)
	case <-time.After(300 * time.Millisecond):
	}
}

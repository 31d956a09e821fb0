package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher emits logical change sets for a metadata directory. Both
// implementations snapshot on start and diff against fresh snapshots;
// they differ only in what triggers the re-snapshot.
type Watcher interface {
	// Changes delivers non-empty change sets. The channel closes
	// when the watcher stops.
	Changes() <-chan ChangeSet
	Close() error
}

// Poller re-snapshots on a fixed interval.
type Poller struct {
	gitDir string
	ch     chan ChangeSet
	done   chan struct{}
	log    *slog.Logger
}

// NewPoller starts a polling watcher over gitDir.
func NewPoller(gitDir string, interval time.Duration, log *slog.Logger) (*Poller, error) {
	if log == nil {
		log = slog.Default()
	}
	initial, err := Snapshot(gitDir)
	if err != nil {
		return nil, err
	}
	p := &Poller{
		gitDir: gitDir,
		ch:     make(chan ChangeSet),
		done:   make(chan struct{}),
		log:    log,
	}
	go p.run(initial, interval)
	return p, nil
}

func (p *Poller) Changes() <-chan ChangeSet { return p.ch }

func (p *Poller) Close() error {
	close(p.done)
	return nil
}

func (p *Poller) run(prev *DirState, interval time.Duration) {
	defer close(p.ch)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		cur, err := Snapshot(p.gitDir)
		if err != nil {
			p.log.Warn("snapshot failed", "dir", p.gitDir, "err", err)
			continue
		}
		if set := Diff(prev, cur); !set.Empty() {
			select {
			case p.ch <- set:
				prev = cur
			case <-p.done:
				return
			}
		} else {
			prev = cur
		}
	}
}

// FSWatcher reacts to filesystem events. Events only trigger a
// re-snapshot after a quiet period; the emitted sets always come from
// snapshot diffs, so bursts of events collapse into one set and
// spurious events into none.
type FSWatcher struct {
	gitDir string
	fs     *fsnotify.Watcher
	ch     chan ChangeSet
	done   chan struct{}
	quiet  time.Duration
	log    *slog.Logger
}

// DefaultQuietPeriod is how long the event stream must settle before
// an FSWatcher re-snapshots.
const DefaultQuietPeriod = 200 * time.Millisecond

// NewFSWatcher starts an event-driven watcher over gitDir. quiet <= 0
// selects DefaultQuietPeriod.
func NewFSWatcher(gitDir string, quiet time.Duration, log *slog.Logger) (*FSWatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	initial, err := Snapshot(gitDir)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}

	w := &FSWatcher{
		gitDir: gitDir,
		fs:     fs,
		ch:     make(chan ChangeSet),
		done:   make(chan struct{}),
		quiet:  quiet,
		log:    log,
	}
	if err := w.addWatches(); err != nil {
		_ = fs.Close()
		return nil, err
	}
	go w.run(initial)
	return w, nil
}

func (w *FSWatcher) Changes() <-chan ChangeSet { return w.ch }

func (w *FSWatcher) Close() error {
	close(w.done)
	return w.fs.Close()
}

// addWatches registers gitDir and its interesting subdirectories.
// fsnotify does not recurse, so each level is added explicitly; new
// shard directories are picked up by watching objects/ itself.
func (w *FSWatcher) addWatches() error {
	if err := w.fs.Add(w.gitDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.gitDir, err)
	}
	for _, sub := range []string{"objects", filepath.Join("objects", "pack")} {
		dir := filepath.Join(w.gitDir, sub)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	objectsDir := filepath.Join(w.gitDir, "objects")
	if shards, err := os.ReadDir(objectsDir); err == nil {
		for _, shard := range shards {
			if shard.IsDir() && len(shard.Name()) == 2 {
				if err := w.fs.Add(filepath.Join(objectsDir, shard.Name())); err != nil {
					w.log.Warn("watch shard failed", "shard", shard.Name(), "err", err)
				}
			}
		}
	}

	refsDir := filepath.Join(w.gitDir, "refs")
	err := filepath.WalkDir(refsDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return walkErr
		}
		return w.fs.Add(path)
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("watch refs: %w", err)
	}
	return nil
}

func (w *FSWatcher) run(prev *DirState) {
	defer close(w.ch)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.ignore(event) {
				continue
			}
			// New directories (shards, refs subtrees) must join
			// the watch before their contents produce events.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fs.Add(event.Name); err != nil {
						w.log.Warn("watch new dir failed", "dir", event.Name, "err", err)
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.quiet)
				fire = timer.C
			} else {
				resetDebounce(timer, w.quiet)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "err", err)

		case <-fire:
			timer = nil
			fire = nil
			cur, err := Snapshot(w.gitDir)
			if err != nil {
				w.log.Warn("snapshot failed", "dir", w.gitDir, "err", err)
				continue
			}
			if set := Diff(prev, cur); !set.Empty() {
				select {
				case w.ch <- set:
				case <-w.done:
					return
				}
			}
			prev = cur
		}
	}
}

// resetDebounce restarts the quiet-period timer. An expiry already
// queued on the channel is drained first, so a stale fire cannot cut
// the new window short.
func resetDebounce(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

// ignore filters events that never change logical state.
func (w *FSWatcher) ignore(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	return strings.HasSuffix(name, ".lock") || event.Op == fsnotify.Chmod
}

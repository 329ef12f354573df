package hmr

import (
	"crypto/sha256"
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileChangeKind classifies a detected change.
type FileChangeKind int

const (
	FileCreated FileChangeKind = iota
	FileModified
	FileDeleted
	FileRenamed
)

// FileChange is one detected filesystem event.
type FileChange struct {
	Path      string
	Kind      FileChangeKind
	Timestamp time.Time
}

// FileWatcher detects source changes for the watched module set. It layers
// an explicit mtime table on top of fsnotify: fsnotify supplies the event
// notification primitive (this repo's own direct dependency, left unused by
// the rest of the module tree until now), while the mtime table is the
// fallback for filesystems where fsnotify's events are unreliable (network
// mounts, some container bind mounts) — Poll can always be called directly
// to re-derive changes from disk state regardless of whether fsnotify fired.
type FileWatcher struct {
	pollInterval time.Duration

	pathsMu sync.RWMutex
	paths   map[string]bool

	tsMu       sync.Mutex
	timestamps map[string]time.Time

	changesMu sync.Mutex
	changes   []FileChange

	fsw    *fsnotify.Watcher
	events chan FileChange

	stop chan struct{}
	wg   sync.WaitGroup
}

// DefaultPollInterval matches the original runtime's default HMR polling
// cadence.
const DefaultPollInterval = 500 * time.Millisecond

// NewFileWatcher creates a watcher with the given poll interval. The
// returned watcher owns an fsnotify.Watcher handle; call Close to release
// it.
func NewFileWatcher(pollInterval time.Duration) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &Error{Kind: IOError, Message: err.Error()}
	}
	return &FileWatcher{
		pollInterval: pollInterval,
		paths:        make(map[string]bool),
		timestamps:   make(map[string]time.Time),
		fsw:          fsw,
		events:       make(chan FileChange, 64),
		stop:         make(chan struct{}),
	}, nil
}

// NewDefaultFileWatcher returns a watcher using DefaultPollInterval.
func NewDefaultFileWatcher() (*FileWatcher, error) {
	return NewFileWatcher(DefaultPollInterval)
}

// Watch registers path for change detection and records its current mtime.
func (w *FileWatcher) Watch(path string) {
	w.pathsMu.Lock()
	w.paths[path] = true
	w.pathsMu.Unlock()

	if st, err := os.Stat(path); err == nil {
		w.tsMu.Lock()
		w.timestamps[path] = st.ModTime()
		w.tsMu.Unlock()
	}

	_ = w.fsw.Add(path)
}

// Unwatch stops tracking path.
func (w *FileWatcher) Unwatch(path string) {
	w.pathsMu.Lock()
	delete(w.paths, path)
	w.pathsMu.Unlock()

	w.tsMu.Lock()
	delete(w.timestamps, path)
	w.tsMu.Unlock()

	_ = w.fsw.Remove(path)
}

// Poll re-stats every watched path and returns whatever changed since the
// last call. Safe to call directly (as the original's test suite does) or
// from a background loop via Run.
func (w *FileWatcher) Poll() []FileChange {
	w.pathsMu.RLock()
	paths := make([]string, 0, len(w.paths))
	for p := range w.paths {
		paths = append(paths, p)
	}
	w.pathsMu.RUnlock()

	w.tsMu.Lock()
	defer w.tsMu.Unlock()

	var detected []FileChange
	for _, path := range paths {
		st, err := os.Stat(path)
		old, hadOld := w.timestamps[path]

		switch {
		case err == nil && hadOld && st.ModTime().After(old):
			detected = append(detected, FileChange{Path: path, Kind: FileModified, Timestamp: st.ModTime()})
			w.timestamps[path] = st.ModTime()
		case err == nil && !hadOld:
			detected = append(detected, FileChange{Path: path, Kind: FileCreated, Timestamp: st.ModTime()})
			w.timestamps[path] = st.ModTime()
		case err != nil && hadOld:
			detected = append(detected, FileChange{Path: path, Kind: FileDeleted, Timestamp: time.Now()})
			delete(w.timestamps, path)
		}
	}

	if len(detected) > 0 {
		w.changesMu.Lock()
		w.changes = append(w.changes, detected...)
		w.changesMu.Unlock()
	}
	return detected
}

// TakeChanges returns and clears the buffered changes accumulated by Poll.
func (w *FileWatcher) TakeChanges() []FileChange {
	w.changesMu.Lock()
	defer w.changesMu.Unlock()
	out := w.changes
	w.changes = nil
	return out
}

// PollInterval returns the configured polling cadence.
func (w *FileWatcher) PollInterval() time.Duration { return w.pollInterval }

// Events returns the channel background changes are published to once Run
// has been started.
func (w *FileWatcher) Events() <-chan FileChange { return w.events }

// Run starts the watcher thread: it drains fsnotify's event channel as
// changes arrive and additionally polls on pollInterval, publishing every
// detected FileChange to Events(). Run blocks until Close is called or
// fsnotify closes its event channel; callers run it in its own goroutine.
func (w *FileWatcher) Run() {
	w.wg.Add(1)
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			change := FileChange{Path: ev.Name, Timestamp: time.Now()}
			switch {
			case ev.Op&fsnotify.Remove != 0:
				change.Kind = FileDeleted
			case ev.Op&fsnotify.Create != 0:
				change.Kind = FileCreated
			case ev.Op&fsnotify.Rename != 0:
				change.Kind = FileRenamed
			default:
				change.Kind = FileModified
			}
			w.changesMu.Lock()
			w.changes = append(w.changes, change)
			w.changesMu.Unlock()
			select {
			case w.events <- change:
			default:
			}
		case <-w.fsw.Errors:
			// fsnotify surfaces watch errors (e.g. a removed directory) on
			// this channel; the polling fallback below still catches the
			// underlying filesystem change on its own cadence.
		case <-ticker.C:
			for _, change := range w.Poll() {
				select {
				case w.events <- change:
				default:
				}
			}
		}
	}
}

// Close stops the watcher thread and releases the fsnotify handle.
func (w *FileWatcher) Close() error {
	close(w.stop)
	w.wg.Wait()
	return w.fsw.Close()
}

// calculateHash fingerprints source for change detection. Grounded on the
// teacher's own internal/sync/engine.go content-hashing (sha256.Sum256 over
// file bytes for its conflict diff); this one folds the digest down to a
// uint64 to match the module version/hash fields elsewhere in this package.
func calculateHash(source string) uint64 {
	sum := sha256.Sum256([]byte(source))
	return binary.BigEndian.Uint64(sum[:8])
}

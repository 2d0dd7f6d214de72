// Package watch observes a run directory for stage marker changes.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of events an imaging job emits while
// writing its outputs into a single notification.
const debounce = 250 * time.Millisecond

// Watcher delivers a signal on Changes whenever a marker file appears
// or changes under a run directory. If the filesystem does not support
// notification the watcher falls back to polling.
type Watcher struct {
	runDir  string
	changes chan struct{}
	done    chan struct{}

	fs *fsnotify.Watcher
}

// New starts watching a run directory. The stats subdirectory is added
// as it appears, since it does not exist until prestats has run.
func New(runDir string) (*Watcher, error) {
	w := &Watcher{
		runDir:  runDir,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		// Polling fallback.
		go w.poll()
		return w, nil
	}
	w.fs = fs

	if err := fs.Add(runDir); err != nil {
		fs.Close()
		w.fs = nil
		go w.poll()
		return w, nil
	}
	// Best effort: stats may not exist yet.
	fs.Add(filepath.Join(runDir, "stats"))

	go w.watch()
	return w, nil
}

// Changes returns the notification channel.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() {
	close(w.done)
	if w.fs != nil {
		w.fs.Close()
	}
}

func (w *Watcher) watch() {
	var timer *time.Timer
	statsDir := filepath.Join(w.runDir, "stats")

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			// Once stats appears, watch inside it too.
			if event.Name == statsDir {
				w.fs.Add(statsDir)
			}
			if !interesting(event.Name) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.notify)
		case <-w.fs.Errors:
			// Keep watching.
		}
	}
}

// poll is the fallback when fsnotify is unavailable. It fires on any
// change to the run directory's modification times.
func (w *Watcher) poll() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	last := w.stamp()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if cur := w.stamp(); cur != last {
				last = cur
				w.notify()
			}
		}
	}
}

func (w *Watcher) stamp() string {
	var b strings.Builder
	for _, dir := range []string{w.runDir, filepath.Join(w.runDir, "stats")} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			b.WriteString(e.Name())
			b.WriteString(info.ModTime().String())
		}
	}
	return b.String()
}

func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// interesting reports whether a path looks like a stage marker: an
// imaging output or one of the stage directories themselves.
func interesting(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".nii.gz") {
		return true
	}
	switch base {
	case "FA", "stats", "origdata":
		return true
	}
	return false
}

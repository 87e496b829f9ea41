package sources

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Poker receives early-pass requests. Satisfied by loader.Coordinator.
type Poker interface {
	Poke()
}

// Watcher pokes the reload coordinator when a watched definition directory
// changes, so edits land before the next periodic pass. Watching is an
// optimization only: the periodic scan picks up any change a missed event
// would have delivered.
type Watcher struct {
	watcher *fsnotify.Watcher
	poker   Poker
	done    chan struct{}
}

// NewWatcher registers every watched directory source from the composite
// and starts dispatching events. Returns nil without error when no source
// requested watching.
func NewWatcher(composite *Composite, poker Poker) (*Watcher, error) {
	var dirs []string
	for _, src := range composite.Sources() {
		if dir, ok := src.(*DirectorySource); ok && dir.Watched() {
			dirs = append(dirs, dir.Path())
		}
	}
	if len(dirs) == 0 {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
		slog.Info("Watching definition directory", "path", dir)
	}

	w := &Watcher{
		watcher: fsw,
		poker:   poker,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isDefinitionEvent(event) {
				continue
			}
			slog.Debug("Definition file changed", "file", event.Name, "op", event.Op)
			w.poker.Poke()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Definition watcher error", "error", err)
		}
	}
}

// isDefinitionEvent filters events down to content-affecting operations on
// definition files. Editors produce chmod noise and temp files that should
// not trigger passes.
func isDefinitionEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return isDefinitionFile(name)
}

// Close stops the watcher and waits for the dispatch loop to exit.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

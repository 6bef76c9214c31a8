package store

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reports external changes to the credential file, so a long-lived
// process can notice when another mapgrid invocation signs in or out
// underneath it. Only the file backend is watchable; keyring and postgres
// backends have no change feed.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	done      chan struct{}
}

// WatchFile starts watching the credential file at path and invokes
// onChange for every write, create, or removal that touches it. The parent
// directory is watched rather than the file itself so that sign-in from
// another process (which creates the file) is observed too.
func WatchFile(path string, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create credential watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err = fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch credential directory %s: %w", dir, err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      filepath.Clean(path),
		done:      make(chan struct{}),
	}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func()) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				log.Debugf("credential file changed externally: %s", event.Op)
				onChange()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warnf("credential watcher error: %v", err)
		}
	}
}

// Close stops watching and waits for the event loop to drain.
func (w *Watcher) Close() error {
	err := w.fsWatcher.Close()
	<-w.done
	return err
}

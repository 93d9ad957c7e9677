package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/log"
)

// Watcher signals edits to the bootstrap file so a stopped logger can
// be rebuilt with the new configuration. The parent directory is
// watched, not the file itself, so editors that replace the file are
// seen too.
type Watcher struct {
	path    string
	log     *log.Logger
	watcher *fsnotify.Watcher
	changes chan string
	done    chan struct{}
}

// NewWatcher starts watching the bootstrap file.
func NewWatcher(path string, lg *log.Logger) (*Watcher, error) {
	if lg == nil {
		lg = log.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeBadArgument,
			"resolving %s", path).Err()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal,
			"starting file watcher").Err()
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, errors.ErrCodeBadArgument,
			"watching %s", filepath.Dir(abs)).Err()
	}

	w := &Watcher{
		path:    abs,
		log:     lg,
		watcher: fsw,
		changes: make(chan string, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Changes delivers the bootstrap path once per burst of edits. The
// channel is never closed while the watcher runs.
func (w *Watcher) Changes() <-chan string { return w.changes }

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) &&
				!ev.Op.Has(fsnotify.Rename) {
				continue
			}
			w.log.System().Debug("configuration file changed", "path", w.path)
			select {
			case w.changes <- w.path:
			default:
				// A change is already pending.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.System().Warn("file watcher error", "error", err)
		}
	}
}

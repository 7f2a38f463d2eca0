package monitor

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/flowave-io/ctlpanel/pkg/log"
	"github.com/fsnotify/fsnotify"
)

// Debounce coalesces bursts of events, such as an editor's write-then-rename.
const Debounce = 75 * time.Millisecond

// Watcher reports changes to a single file.
type Watcher struct {
	w        *fsnotify.Watcher
	path     string
	onChange func()
	done     chan struct{}
	once     sync.Once
}

// WatchFile calls onChange once per burst of writes, creates or renames of
// path. The parent directory is watched so replacing the file is noticed.
func WatchFile(path string, onChange func()) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	fw := &Watcher{w: w, path: abs, onChange: onChange, done: make(chan struct{})}
	go fw.loop()
	return fw, nil
}

func (fw *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(Debounce, fw.fire)
			} else {
				timer.Reset(Debounce)
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			log.Warnf("[watch] error: %v", err)
		case <-fw.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (fw *Watcher) fire() {
	select {
	case <-fw.done:
	default:
		fw.onChange()
	}
}

// Close stops watching.
func (fw *Watcher) Close() error {
	var err error
	fw.once.Do(func() {
		close(fw.done)
		err = fw.w.Close()
	})
	return err
}

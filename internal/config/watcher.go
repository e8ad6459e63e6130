package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hismailbulut/vimim/pkg/logger"
)

const reloadDelay = 100 * time.Millisecond

// Watcher reloads a Store when its file changes on disk.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	onReload func(Config)
	closeCh  chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// Watch starts watching the directory of the store's file. Editors often
// replace the file instead of writing it, so the directory is watched and
// events are filtered by name. onReload may be nil.
func Watch(store *Store, onReload func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(store.Path())); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		store:    store,
		watcher:  fsw,
		onReload: onReload,
		closeCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	target := filepath.Clean(w.store.Path())
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.closeCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce bursts of events into one reload
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(reloadDelay)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Log(logger.WARN, "Config watcher error:", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	if err := w.store.Reload(); err != nil {
		logger.Log(logger.ERROR, "Failed to reload config:", err)
		return
	}
	logger.Log(logger.TRACE, "Config reloaded from", w.store.Path())
	if w.onReload != nil {
		w.onReload(w.store.Current())
	}
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

package storage

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher propagates durable-tier changes made by other processes into
// the adapter's memory tier, so concurrent clients sharing a storage
// directory converge on the same session state.
//
// Only entries under the adapter's namespace prefix are reloaded; our own
// writes also generate events, but Reload is idempotent so the extra
// round trip is harmless.
type Watcher struct {
	adapter *Adapter
	tier    *FileTier
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the adapter's file tier.
func NewWatcher(adapter *Adapter, tier *FileTier, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(tier.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		adapter: adapter,
		tier:    tier,
		watcher: fsw,
		logger:  logger,
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
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug().Err(err).Msg("storage watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasSuffix(name, ".tmp") {
		return
	}

	key, ok := keyFromFilename(name)
	if !ok || !strings.HasPrefix(key, w.adapter.prefix) {
		return
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	w.logger.Debug().Str("key", key).Str("op", event.Op.String()).Msg("external storage change")
	w.adapter.Reload(key)
}

// Stop shuts the watcher down and waits for the event loop to exit.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.watcher.Close()
		<-w.done
	})
}

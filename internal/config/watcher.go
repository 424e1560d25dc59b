package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the config file when it changes on disk. Used to
// apply policy threshold and capability updates without restarting.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewWatcher watches the loader's config file and calls onChange with
// each successfully reloaded and validated config.
func NewWatcher(loader *Loader, onChange func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		loader:   loader,
		watcher:  watcher,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	// Watch the directory; editors replace files instead of writing
	// them in place, which drops watches on the file itself.
	dir := filepath.Dir(loader.GetConfigPath())
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go w.run()

	return w, nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

// run processes file system events
func (w *Watcher) run() {
	configPath := w.loader.GetConfigPath()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				log.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Config change detected")

				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.stopCh:
			return
		}
	}
}

// scheduleReload debounces bursts of write events into one reload
func (w *Watcher) scheduleReload() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		log.Error().Err(err).Msg("Config reload failed")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Reloaded config is invalid, keeping previous")
		return
	}

	log.Info().Msg("Config reloaded")
	w.onChange(cfg)
}

package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher holds the current configuration and replaces it whenever the
// backing file changes.
type Watcher struct {
	path string

	l      sync.RWMutex
	config *Config
}

func configFromFile(path string) (*Config, error) {
	config := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p := json.NewDecoder(f)
	if err := p.Decode(config); err != nil {
		return nil, err
	}
	log.Infof("Loaded configuration: %v", spew.Sdump(config))
	return config, nil
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Watcher, error) {
	config, err := configFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warnf("No configuration at %v, using defaults", path)
		config = Default()
	} else if err != nil {
		return nil, err
	}
	return &Watcher{path: path, config: config}, nil
}

func (w *Watcher) Get() *Config {
	w.l.RLock()
	defer w.l.RUnlock()
	return w.config
}

func (w *Watcher) set(c *Config) {
	w.l.Lock()
	defer w.l.Unlock()
	w.config = c
}

func waitForChange(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-watcher.Errors:
		return err
	case <-watcher.Events:
	}
	// Editors tend to produce bursts of events; let the write settle.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second / 10):
	}
	return ctx.Err()
}

// Watch reloads the configuration on file change until ctx is done. Values
// read at startup (source, model, data dir) are not re-applied; readers pick
// up the rest through Get.
func (w *Watcher) Watch(ctx context.Context) {
	if w.path == "" {
		return
	}
	go func() {
		for ctx.Err() == nil {
			if err := waitForChange(ctx, w.path); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorf("Error waiting for config change: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			config, err := configFromFile(w.path)
			if err != nil {
				log.Errorf("Failed to load new config: %v", err)
				continue
			}
			w.set(config)
		}
	}()
}

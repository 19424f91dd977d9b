package topics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads topic override files as they change, so prompt wording can
// be tuned without restarting the composer.
type Watcher struct {
	dir      string
	registry *Registry
	logger   *slog.Logger
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher over a topics directory.
func NewWatcher(dir string, registry *Registry, logger *slog.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("topics dir cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, registry: registry, logger: logger}, nil
}

// Watch watches the topics directory and reloads changed files, calling
// onChange with each successfully applied topic. Parse failures keep the
// previous record and are logged, never fatal.
func (w *Watcher) Watch(ctx context.Context, onChange func(Topic)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.logger.Info("watching topics dir for changes", slog.String("dir", w.dir))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("topics watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
					continue
				}

				w.logger.Info("topic file changed, reloading", slog.String("path", event.Name))

				topic, err := w.registry.loadFile(event.Name)
				if err != nil {
					w.logger.Error("failed to reload topic",
						slog.String("error", err.Error()),
						slog.String("path", event.Name))
					continue
				}

				if onChange != nil {
					onChange(topic)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("topics watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the topics directory.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return w.watcher.Close()
	}

	return nil
}

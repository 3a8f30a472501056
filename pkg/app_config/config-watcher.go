package app_config

import (
	"context"
	"path/filepath"

	"github.com/couchbase/cluster-ready/utils/latestonlychannel"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ConfigWatcher reloads a client properties file whenever it changes on disk.
// Only the most recent contents are kept for a slow reader, and contents which
// fail to parse are skipped.
type ConfigWatcher struct {
	logger  *zap.Logger
	path    string
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	rawCh     chan map[string]string
	updatesCh <-chan map[string]string
	doneCh    chan struct{}
}

func NewConfigWatcher(logger *zap.Logger, path string) (*ConfigWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve config path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}

	// editors and config map mounts replace the file rather than writing it,
	// so the parent directory is watched instead of the file itself
	err = watcher.Add(filepath.Dir(absPath))
	if err != nil {
		_ = watcher.Close()
		return nil, errors.Wrap(err, "failed to watch config directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rawCh := make(chan map[string]string)

	w := &ConfigWatcher{
		logger:    logger,
		path:      absPath,
		watcher:   watcher,
		cancel:    cancel,
		rawCh:     rawCh,
		updatesCh: latestonlychannel.Wrap(ctx, rawCh),
		doneCh:    make(chan struct{}),
	}

	go w.watchThread(ctx)

	return w, nil
}

// Updates yields the parsed contents of the file after each change.  The
// channel is closed by Close.
func (w *ConfigWatcher) Updates() <-chan map[string]string {
	return w.updatesCh
}

func (w *ConfigWatcher) watchThread(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.rawCh)

	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}

			props, err := LoadClientProperties(w.path)
			if err != nil {
				w.logger.Warn("ignoring unreadable client config change", zap.Error(err))
				continue
			}

			w.logger.Info("client config change detected", zap.String("path", w.path))

			select {
			case w.rawCh <- props:
			case <-ctx.Done():
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("client config watcher error", zap.Error(err))

		case <-ctx.Done():
			return
		}
	}
}

func (w *ConfigWatcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.doneCh
	return err
}

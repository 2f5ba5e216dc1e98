package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"earshot/internal/report"
)

// Watch tails a drop directory and hands each newly-completed event file to
// the handler as it appears, until the context is cancelled. A file seen
// mid-write fails to parse and is retried on its next write event; each
// file is delivered at most once.
//
// Watching is a progress view only. The authoritative record set is a final
// ScanDir pass after the build finishes.
func Watch(ctx context.Context, dir string, handler Handler, log *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating directory watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching drop directory: %w", err)
	}

	delivered := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasPrefix(filepath.Base(event.Name), "cmd.") || delivered[event.Name] {
				continue
			}
			rec, err := report.ParseFile(event.Name)
			if err != nil {
				// Likely still being written; a later write event retries.
				continue
			}
			delivered[event.Name] = true
			if err := handler.Handle(rec); err != nil {
				log.Warn("handling watched record", zap.String("file", event.Name), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watching drop directory", zap.Error(err))
		}
	}
}

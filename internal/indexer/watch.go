package indexer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the repository roots and reindexes changed files. Events
// are debounced by the configured interval and flushed through IndexPaths;
// errors are logged and never terminate the loop.
func (ix *Indexer) Watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify: failed to create watcher: %v", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	for _, root := range ix.Cfg.RepoRoots {
		if err := addWatchRecursive(watcher, root); err != nil {
			log.Printf("fsnotify: failed to watch %s: %v", root, err)
		}
	}

	debounce := time.Duration(ix.Cfg.WatchDebounceMs) * time.Millisecond
	log.Printf("watcher started (debounce %s)", debounce)

	var mu sync.Mutex
	pending := map[string]struct{}{}
	var timer *time.Timer

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = map[string]struct{}{}
		mu.Unlock()

		var toIndex []string
		for _, p := range paths {
			info, err := os.Stat(p)
			if err == nil && info.IsDir() {
				_ = addWatchRecursive(watcher, p)
				continue
			}
			toIndex = append(toIndex, p)
		}
		if len(toIndex) == 0 {
			return
		}
		if stats, err := ix.IndexPaths(ctx, toIndex); err != nil {
			log.Printf("watch reindex error: %v", err)
		} else if stats.FilesIndexed > 0 || stats.FilesDeleted > 0 {
			log.Printf("watch reindex: %s", stats)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			mu.Lock()
			pending[event.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, flush)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("fsnotify error: %v", err)
		}
	}
}

func addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		name := info.Name()
		if prunedDirs[name] || name == "node_modules" ||
			(strings.HasPrefix(name, ".") && path != root) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"announcer/pkg/logx"
)

// Watch hot-reloads the announcements file whenever it changes on disk and
// invokes onChange with the new snapshot. Events are debounced so editors
// that write in several steps trigger a single reload, and reloads whose
// content hash matches the committed config are skipped.
//
// Watch blocks until ctx is done. If the underlying watcher breaks it is
// recreated after a short pause rather than giving up.
func (s *Store) Watch(ctx context.Context, onChange func(Announcements)) {
	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)

	const (
		debounceDelay  = 250 * time.Millisecond
		restartBackoff = time.Second
	)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		s.log.Debug("announcements change detected; scheduling reload", logx.String("path", s.path))
		timer = time.AfterFunc(debounceDelay, func() {
			s.mu.RLock()
			before := s.lastHash
			s.mu.RUnlock()

			cfg := s.Reload()

			s.mu.RLock()
			after := s.lastHash
			s.mu.RUnlock()
			if after == before {
				s.log.Debug("announcements unchanged; skipping notify", logx.String("path", s.path))
				return
			}
			if onChange != nil {
				onChange(cfg)
			}
		})
	}

	for {
		if ctx.Err() != nil {
			return
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			s.log.Warn("announcements watch init failed", logx.String("dir", dir), logx.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(restartBackoff):
				continue
			}
		}

		s.log.Debug("announcements watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				// Compare by basename; editors often replace the file via rename.
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case werr, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if werr == nil {
					continue
				}
				s.log.Warn("announcements watch error", logx.String("dir", dir), logx.Err(werr))
				if strings.Contains(strings.ToLower(werr.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("announcements watcher stopped; restarting", logx.String("dir", dir))
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartBackoff):
		}
	}
}

package service

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"storedesign/internal/legacy"
)

// startImportWatcher watches the drafts directory for <storeID>.json, a
// positional-map layout dropped there by an external tool. A valid
// draft replaces the session document as an external modification, so
// autosave persists it like any other edit.
func (s *DesignService) startImportWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("draft watcher: failed to create watcher: %v", err)
		return
	}
	if err := watcher.Add(s.cfg.DraftsDir); err != nil {
		log.Printf("draft watcher: failed to watch %q: %v", s.cfg.DraftsDir, err)
		watcher.Close()
		return
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	target, _ := filepath.Abs(filepath.Join(s.cfg.DraftsDir, s.cfg.StoreID+".json"))

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		for {
			select {
			case <-watchCtx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				if absPath != target {
					continue
				}
				// Editors fire several writes per save; debounce them.
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(500*time.Millisecond, func() { s.importDraft(target) })
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("draft watcher: error: %v", err)
			}
		}
	}()

	log.Printf("draft watcher: watching %s", target)
}

func (s *DesignService) importDraft(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("draft import: read %s: %v", path, err)
		return
	}
	pm, err := legacy.DecodePersistedMap(data)
	if err != nil {
		log.Printf("draft import: bad layout %s: %v", path, err)
		return
	}
	blocks, err := legacy.ToBlocks(pm)
	if err != nil {
		log.Printf("draft import: bad layout %s: %v", path, err)
		return
	}
	if report := s.conflicts.ValidateDataIntegrity(blocks); !report.IsValid {
		log.Printf("draft import: rejected %s: %v", path, report.Errors)
		return
	}

	s.conflicts.CreateBackup(s.cfg.StoreID, s.session.Blocks(), "pre-import", map[string]string{"source": path})
	s.session.SetBlocks(blocks, false)
	log.Printf("draft import: loaded %d block(s) from %s", len(blocks), path)
}

package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	hogarfix "github.com/hogarfix/hogarfix"
)

// watchManifests registers every manifest already present in the manifest
// directory, then watches it for new or rewritten *.json files and
// registers those on the fly. Bad manifests are logged and skipped so one
// broken file cannot stall the watcher.
func (s *Server) watchManifests(ctx context.Context) error {
	entries, err := os.ReadDir(s.cfg.ManifestDir)
	if err != nil {
		return fmt.Errorf("read manifest dir %q: %w", s.cfg.ManifestDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		s.registerManifestFile(ctx, filepath.Join(s.cfg.ManifestDir, entry.Name()))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create manifest watcher: %w", err)
	}
	if err := watcher.Add(s.cfg.ManifestDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch manifest dir %q: %w", s.cfg.ManifestDir, err)
	}
	s.logger.Info("watching manifest directory", "dir", s.cfg.ManifestDir)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
					continue
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				s.registerManifestFile(ctx, event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("manifest watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (s *Server) registerManifestFile(ctx context.Context, path string) {
	manifest, err := hogarfix.ParseManifestFile(path)
	if err != nil {
		s.logger.Warn("skipping manifest file", "path", path, "error", err)
		return
	}
	if _, err := s.runtime.Manager.RegisterModule(ctx, manifest); err != nil {
		s.logger.Warn("failed to register manifest file", "path", path, "slug", manifest.Slug, "error", err)
		return
	}
	s.logger.Info("registered manifest from disk", "path", path, "slug", manifest.Slug)
}

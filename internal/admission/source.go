package admission

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// LoadFile reads an origins file: one origin per line, blank lines and
// lines starting with '#' ignored. Lines containing glob syntax are
// returned as patterns.
func LoadFile(fs afero.Fs, path string) (origins, patterns []string, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open origins file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.ContainsAny(line, "*?[{") {
			patterns = append(patterns, line)
		} else {
			origins = append(origins, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read origins file: %w", err)
	}
	return origins, patterns, nil
}

// FileSource keeps a Policy in sync with an origins file. Entries from the
// file are added to the static origins and patterns it was created with.
type FileSource struct {
	fs       afero.Fs
	path     string
	policy   *Policy
	origins  []string
	patterns []string
	logger   *slog.Logger
}

// NewFileSource creates a source for path. Call Reload once before serving.
func NewFileSource(fs afero.Fs, path string, policy *Policy, staticOrigins, staticPatterns []string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		fs:       fs,
		path:     path,
		policy:   policy,
		origins:  staticOrigins,
		patterns: staticPatterns,
		logger:   logger.With("component", "admission", "file", path),
	}
}

// Reload reads the file and replaces the policy rules.
func (s *FileSource) Reload() error {
	origins, patterns, err := LoadFile(s.fs, s.path)
	if err != nil {
		return err
	}
	all := append(append([]string{}, s.origins...), origins...)
	allPatterns := append(append([]string{}, s.patterns...), patterns...)
	if err := s.policy.Replace(all, allPatterns); err != nil {
		return err
	}
	s.logger.Info("Loaded allowed origins", "origins", len(all), "patterns", len(allPatterns))
	return nil
}

// Watch reloads the policy whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are picked up.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.path, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Error("Failed to reload allowed origins, keeping previous rules", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("Origins file watcher error", "error", err)
			}
		}
	}()
	return nil
}

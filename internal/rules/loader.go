package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// ErrNoRules indicates a rules file with no usable rules.
var ErrNoRules = errors.New("rules file contains no rules")

// maxRulesFileSize bounds rules files to prevent resource exhaustion.
const maxRulesFileSize = 1024 * 1024 // 1MB

// rulesFile is the YAML shape of a rules file:
//
//	rules:
//	  - patterns: ["coffee", "espresso"]
//	    category: Cafe
type rulesFile struct {
	Rules []Rule `koanf:"rules"`
}

// LoadFile parses a YAML rules file.
func LoadFile(path string) ([]Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rules file: %w", err)
	}
	if info.Size() > maxRulesFileSize {
		return nil, fmt.Errorf("rules file %s exceeds %d bytes", path, maxRulesFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	var rf rulesFile
	if err := k.Unmarshal("", &rf); err != nil {
		return nil, fmt.Errorf("unmarshaling rules: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRules, path)
	}
	return rf.Rules, nil
}

// Watcher reloads an Engine whenever its rules file changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts watching path and reloads engine on every write. The watch
// is placed on the parent directory so atomic replace-by-rename (the common
// editor save pattern) is picked up too.
func Watch(path string, engine *Engine, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{watcher: fw, done: make(chan struct{})}
	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				loaded, err := LoadFile(target)
				if err != nil {
					// Keep the previous rule set on a bad reload.
					logger.Warn("rules reload failed",
						zap.String("path", target),
						zap.Error(err))
					continue
				}
				engine.Reload(loaded)
				logger.Info("rules reloaded",
					zap.String("path", target),
					zap.Int("rules", engine.Len()))
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logger.Warn("rules watcher error", zap.Error(err))
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

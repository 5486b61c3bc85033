package alerting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// LoadConfigsFromFile loads alert configs from a YAML file.
func LoadConfigsFromFile(path string) ([]*AlertConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert configs file: %w", err)
	}
	return LoadConfigsFromBytes(data)
}

// LoadConfigs loads alert configs from a reader.
func LoadConfigs(r io.Reader) ([]*AlertConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert configs: %w", err)
	}
	return LoadConfigsFromBytes(data)
}

// LoadConfigsFromBytes parses YAML alert configs. Environment variables in
// the form ${VAR} are expanded before parsing so secrets can stay out of
// the file.
func LoadConfigsFromBytes(data []byte) ([]*AlertConfig, error) {
	expanded := os.ExpandEnv(string(data))

	var file ConfigsFile
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse alert configs YAML: %w", err)
	}

	seen := make(map[string]bool, len(file.Configs))
	for i, cfg := range file.Configs {
		if cfg == nil {
			return nil, fmt.Errorf("config at index %d is empty", i)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config at index %d: %w", i, err)
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("duplicate config id %q", cfg.ID)
		}
		seen[cfg.ID] = true
	}
	return file.Configs, nil
}

// WatchConfigs reloads path whenever it is written or replaced and hands the
// parsed configs to onChange. A file that fails to load is logged and ignored
// so the previous configs stay active. It runs until ctx is cancelled.
//
// The parent directory is watched so saves that rename a temporary file over
// path keep being seen after the original inode is gone.
func WatchConfigs(ctx context.Context, path string, onChange func([]*AlertConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	log.Printf("[alerting] watching %s for changes", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfgs, err := LoadConfigsFromFile(path)
			if err != nil {
				log.Printf("[alerting] reload of %s failed, keeping previous configs: %v", path, err)
				continue
			}
			log.Printf("[alerting] reloaded %d config(s) from %s", len(cfgs), path)
			onChange(cfgs)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[alerting] watcher error: %v", err)
		}
	}
}

// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Catalog provides DAG definitions by identifier.
type Catalog interface {
	Lookup(Id) (Definition, bool)
}

type catalogFile struct {
	Dags []Definition `yaml:"dags"`
}

// ParseCatalog parses YAML document with DAG definitions into Registry. DAG
// names are normalized before validation.
func ParseCatalog(data []byte) (Registry, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("cannot parse DAG catalog: %w", err)
	}
	registry := make(Registry, len(cf.Dags))
	for idx, d := range cf.Dags {
		id, err := NormalizeName(string(d.Id))
		if err != nil {
			return nil, fmt.Errorf("DAG definition %d: %w", idx, err)
		}
		d.Id = id
		if addErr := registry.Add(d); addErr != nil {
			return nil, fmt.Errorf("DAG definition %d: %w", idx, addErr)
		}
	}
	return registry, nil
}

// FileCatalog is a Catalog which reads DAG definitions from YAML file. When
// Watch is running, definitions are reloaded after each change of the file.
// If the file after the change is invalid, previous definitions are kept. It's
// safe for concurrent use.
type FileCatalog struct {
	sync.RWMutex
	path     string
	registry Registry
	loadedAt time.Time
	logger   *slog.Logger
}

// NewFileCatalog loads DAG definitions from given YAML file. When logger is
// nil, slog.Default() is used.
func NewFileCatalog(path string, logger *slog.Logger) (*FileCatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fc := &FileCatalog{path: path, logger: logger}
	if err := fc.Reload(); err != nil {
		return nil, err
	}
	return fc, nil
}

// Lookup returns definition of given DAG.
func (fc *FileCatalog) Lookup(id Id) (Definition, bool) {
	fc.RLock()
	defer fc.RUnlock()
	return fc.registry.Lookup(id)
}

// Ids returns sorted identifiers of currently loaded DAGs.
func (fc *FileCatalog) Ids() []Id {
	fc.RLock()
	defer fc.RUnlock()
	return fc.registry.Ids()
}

// LoadedAt returns time of the latest successful load.
func (fc *FileCatalog) LoadedAt() time.Time {
	fc.RLock()
	defer fc.RUnlock()
	return fc.loadedAt
}

// Reload reads the file again and replaces definitions. On error current
// definitions are kept.
func (fc *FileCatalog) Reload() error {
	start := time.Now()
	data, readErr := os.ReadFile(fc.path)
	if readErr != nil {
		return fmt.Errorf("cannot read DAG catalog %s: %w", fc.path, readErr)
	}
	registry, parseErr := ParseCatalog(data)
	if parseErr != nil {
		return parseErr
	}

	fc.Lock()
	previous := fc.registry
	fc.registry = registry
	fc.loadedAt = time.Now()
	fc.Unlock()

	added, changed, removed := diffRegistries(previous, registry)
	fc.logger.Info("DAG catalog loaded", "path", fc.path, "dags",
		len(registry), "added", added, "changed", changed, "removed", removed,
		"duration", time.Since(start))
	return nil
}

// Watch watches the catalog file and reloads definitions on its changes. It
// blocks until given context is done or the watcher fails. The directory of
// the file is watched rather than the file itself, because editors and config
// map mounts replace files by renaming.
func (fc *FileCatalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create file watcher: %w", err)
	}
	defer w.Close()

	absPath, absErr := filepath.Abs(fc.path)
	if absErr != nil {
		return absErr
	}
	if addErr := w.Add(filepath.Dir(absPath)); addErr != nil {
		return fmt.Errorf("cannot watch %s: %w", filepath.Dir(absPath), addErr)
	}
	fc.logger.Info("Start watching DAG catalog", "path", absPath)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) {
				continue
			}
			if reloadErr := fc.Reload(); reloadErr != nil {
				fc.logger.Error("Cannot reload DAG catalog, keeping previous definitions",
					"path", absPath, "op", event.Op.String(), "err", reloadErr)
			}
		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("DAG catalog watcher failed: %w", watchErr)
		}
	}
}

func diffRegistries(prev, next Registry) (added, changed, removed []Id) {
	for id, d := range next {
		prevDef, existed := prev[id]
		if !existed {
			added = append(added, id)
			continue
		}
		if prevDef.Hash() != d.Hash() {
			changed = append(changed, id)
		}
	}
	for id := range prev {
		if _, exists := next[id]; !exists {
			removed = append(removed, id)
		}
	}
	return
}

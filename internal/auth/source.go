// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package auth

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/whrelay/internal/logging"
)

// TokenSource loads a full token set as token -> name.
type TokenSource interface {
	Tokens(ctx context.Context) (map[string]string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (map[string]string, error)

// Tokens calls f.
func (f TokenSourceFunc) Tokens(ctx context.Context) (map[string]string, error) {
	return f(ctx)
}

// MultiSource merges several sources. Later sources win on conflicts. A
// failing source fails the whole load so a transient error never drops
// tokens from the gate.
type MultiSource []TokenSource

// Tokens loads every source in order.
func (m MultiSource) Tokens(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, src := range m {
		toks, err := src.Tokens(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range toks {
			out[k] = v
		}
	}
	return out, nil
}

type fileToken struct {
	Token string `koanf:"token"`
	Name  string `koanf:"name"`
}

// FileSource reads tokens from a YAML file.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the watched file.
func (f *FileSource) Path() string { return f.path }

// Tokens parses the file.
func (f *FileSource) Tokens(_ context.Context) (map[string]string, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(f.path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load token file %s: %w", f.path, err)
	}

	var entries []fileToken
	if err := k.Unmarshal("tokens", &entries); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", f.path, err)
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Token == "" {
			continue
		}
		out[e.Token] = e.Name
	}
	return out, nil
}

// Watch sends on the returned channel whenever the file is written,
// created or renamed into place. The channel is closed when ctx ends.
// The parent directory is watched so editors that replace the file
// atomically are still seen.
func (f *FileSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", f.path, err)
	}

	target := filepath.Clean(f.path)
	changed := make(chan struct{}, 1)
	go func() {
		defer close(changed)
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Warn().Err(err).Str("path", f.path).Msg("Token file watcher error")
			}
		}
	}()
	return changed, nil
}

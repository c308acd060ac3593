package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
)

const emptyDocument = `{"servers":[]}`

// JSONStore keeps everything in a single config.json document:
//
//	{"servers": [{"ip", "port", "username", "password"}...], "settings": {...}}
//
// Keys it does not know about are preserved across writes. A missing or
// unreadable file reads as an empty document.
type JSONStore struct {
	path string
	log  logging.Logger

	mu        sync.Mutex
	lastWrite uint64
}

// NewJSONStore returns a store backed by path. The file is created on the
// first write.
func NewJSONStore(path string, log logging.Logger) *JSONStore {
	return &JSONStore{path: filepath.Clean(path), log: log.With("store", path)}
}

// Path returns the backing file.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Servers(ctx context.Context) ([]ServerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return parseServers(s.read(ctx)), nil
}

func (s *JSONStore) AddServer(ctx context.Context, e ServerEntry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.read(ctx)
	for _, existing := range parseServers(doc) {
		if existing.SameServer(e) {
			return false, nil
		}
	}

	if !gjson.GetBytes(doc, "servers").IsArray() {
		var err error
		if doc, err = sjson.SetRawBytes(doc, "servers", []byte("[]")); err != nil {
			return false, fmt.Errorf("reset servers: %w", err)
		}
	}
	doc, err := sjson.SetBytes(doc, "servers.-1", e)
	if err != nil {
		return false, fmt.Errorf("append server: %w", err)
	}
	if err := s.write(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (s *JSONStore) FindServer(ctx context.Context, ip string, port int, username string) (ServerEntry, bool, error) {
	entries, err := s.Servers(ctx)
	if err != nil {
		return ServerEntry{}, false, err
	}
	e, ok := findIn(entries, ip, port, username)
	return e, ok, nil
}

func (s *JSONStore) Settings(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := gjson.GetBytes(s.read(ctx), "settings")
	if !raw.IsObject() {
		return DefaultSettings(), nil
	}
	settings := DefaultSettings()
	if err := json.Unmarshal([]byte(raw.Raw), &settings); err != nil {
		s.log.Warn(ctx, "settings unreadable, using defaults", "err", err)
		return DefaultSettings(), nil
	}
	return settings, nil
}

func (s *JSONStore) SaveSettings(ctx context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.SetBytes(s.read(ctx), "settings", settings)
	if err != nil {
		return fmt.Errorf("set settings: %w", err)
	}
	return s.write(doc)
}

func (s *JSONStore) Close() error { return nil }

// read returns the current document, or the empty document when the file
// is missing or not a JSON object.
func (s *JSONStore) read(ctx context.Context) []byte {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn(ctx, "cannot read config, using empty document", "err", err)
		}
		return []byte(emptyDocument)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		s.log.Warn(ctx, "config is not a JSON object, using empty document")
		return []byte(emptyDocument)
	}
	return data
}

// write replaces the file atomically with doc indented by two spaces.
func (s *JSONStore) write(doc []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return fmt.Errorf("format config: %w", err)
	}
	content := buf.Bytes()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}

	s.lastWrite = xxhash.Sum64(content)
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the file is modified by someone other than
// this store. It blocks until ctx is done.
func (s *JSONStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var lastSeen uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(s.path)
			if err != nil {
				continue
			}
			sum := xxhash.Sum64(data)
			s.mu.Lock()
			own := sum == s.lastWrite
			s.mu.Unlock()
			if own || sum == lastSeen {
				continue
			}
			lastSeen = sum
			s.log.Info(ctx, "config changed on disk")
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error(ctx, "config watcher error", "err", err)
		}
	}
}

// parseServers reads the servers array leniently: ports may be numbers or
// numeric strings, and entries missing an address are skipped.
func parseServers(doc []byte) []ServerEntry {
	var out []ServerEntry
	gjson.GetBytes(doc, "servers").ForEach(func(_, v gjson.Result) bool {
		e := ServerEntry{
			IP:       v.Get("ip").String(),
			Port:     int(v.Get("port").Int()),
			Username: v.Get("username").String(),
			Password: v.Get("password").String(),
		}
		if e.IP != "" && e.Port > 0 {
			out = append(out, e)
		}
		return true
	})
	return out
}

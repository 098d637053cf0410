package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"backend-playerroutes/internal/tracking"

	"go.uber.org/zap"
)

// FileStore keeps one JSON document per session under dir, mirrored in memory.
type FileStore struct {
	dir string
	log *zap.Logger

	mu    sync.RWMutex
	cache map[string]tracking.Session
}

// NewFileStore creates dir if needed and loads every readable session file.
// Unreadable files are logged and skipped.
func NewFileStore(dir string, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	fs := &FileStore{dir: dir, log: log, cache: map[string]tracking.Session{}}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("read storage dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(f.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			f.log.Warn("failed to read session file", zap.String("file", path), zap.Error(err))
			continue
		}
		s, err := tracking.DecodeRecord(data)
		if err != nil || s.ID == "" {
			f.log.Warn("failed to load session file", zap.String("file", path), zap.Error(err))
			continue
		}
		f.cache[s.ID] = s
	}
	f.log.Info("loaded sessions", zap.Int("count", len(f.cache)), zap.String("dir", f.dir))
	return nil
}

func (f *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

func (f *FileStore) Save(_ context.Context, s tracking.Session) error {
	path, err := f.path(s.ID)
	if err != nil {
		return err
	}
	data, err := tracking.EncodeRecord(s)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", s.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write session %s: %w", s.ID, err)
	}
	// The cache only reflects what reached disk.
	f.cache[s.ID] = s
	return nil
}

func (f *FileStore) Get(_ context.Context, id string) (tracking.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.cache[id]
	if !ok {
		return tracking.Session{}, ErrNotFound
	}
	return s, nil
}

func (f *FileStore) filter(keep func(tracking.Session) bool) []tracking.Session {
	f.mu.RLock()
	out := make([]tracking.Session, 0, len(f.cache))
	for _, s := range f.cache {
		if keep(s) {
			out = append(out, s)
		}
	}
	f.mu.RUnlock()
	sortNewestFirst(out)
	return out
}

func (f *FileStore) ByPlayer(_ context.Context, playerID string, limit, offset int) ([]tracking.Session, error) {
	return page(f.filter(func(s tracking.Session) bool { return s.PlayerID == playerID }), limit, offset), nil
}

// ByTimeRange lists sessions that started within [from, to].
func (f *FileStore) ByTimeRange(_ context.Context, from, to int64, limit, offset int) ([]tracking.Session, error) {
	return page(f.filter(func(s tracking.Session) bool { return s.StartedAt >= from && s.StartedAt <= to }), limit, offset), nil
}

func (f *FileStore) Active(_ context.Context) ([]tracking.Session, error) {
	return f.filter(func(s tracking.Session) bool { return s.Active }), nil
}

func (f *FileStore) All(_ context.Context, limit, offset int) ([]tracking.Session, error) {
	return page(f.filter(func(tracking.Session) bool { return true }), limit, offset), nil
}

func (f *FileStore) Count(_ context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache), nil
}

func (f *FileStore) CountByPlayer(_ context.Context, playerID string) (int, error) {
	return len(f.filter(func(s tracking.Session) bool { return s.PlayerID == playerID })), nil
}

// Close drops the cache. Every Save is already on disk.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = map[string]tracking.Session{}
	return nil
}

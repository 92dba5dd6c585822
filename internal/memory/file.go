package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dayuer/kira-go/internal/providers"
	"github.com/dayuer/kira-go/internal/session"
)

// FileStore keeps all session history in one JSON file,
// {"adapter:type:id": [[message, ...], ...]}, rewritten on every append.
// Core memory lives in a CoreFile next to it.
type FileStore struct {
	path      string
	maxChunks int
	core      *CoreFile
	logger    *slog.Logger

	mu     sync.Mutex
	chunks map[string][]Chunk
}

// NewFileStore loads dir/chat_memory.json and uses dir/core.txt for core
// memory. A missing file starts empty; a corrupt one is an error.
func NewFileStore(dir string, maxChunks int, logger *slog.Logger) (*FileStore, error) {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	s := &FileStore{
		path:      filepath.Join(dir, "chat_memory.json"),
		maxChunks: maxChunks,
		core:      NewCoreFile(filepath.Join(dir, "core.txt")),
		logger:    logger.With("component", "memory"),
		chunks:    make(map[string][]Chunk),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Core returns the core memory editor.
func (s *FileStore) Core() *CoreFile { return s.core }

// Fetch implements Store.
func (s *FileStore) Fetch(_ context.Context, key session.Key) ([]providers.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return flatten(s.chunks[key.String()]), nil
}

// Append implements Store.
func (s *FileStore) Append(_ context.Context, key session.Key, chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	chunks := append(s.chunks[k], chunk)
	if over := len(chunks) - s.maxChunks; over > 0 {
		chunks = append([]Chunk(nil), chunks[over:]...)
	}
	s.chunks[k] = chunks

	if err := s.save(); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	s.logger.Debug("memory updated", "session", k, "chunks", len(chunks))
	return nil
}

// CoreMemory implements Store.
func (s *FileStore) CoreMemory(ctx context.Context) (string, error) {
	return s.core.Render(ctx)
}

// Sessions implements Store.
func (s *FileStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete drops a session's history.
func (s *FileStore) Delete(_ context.Context, key session.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[key.String()]; !ok {
		return nil
	}
	delete(s.chunks, key.String())
	return s.save()
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read memory: %w", err)
	}
	if err := json.Unmarshal(data, &s.chunks); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	if s.chunks == nil {
		s.chunks = make(map[string][]Chunk)
	}
	return nil
}

// save writes the whole file (called under s.mu).
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.chunks, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

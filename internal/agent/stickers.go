package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dayuer/kira-go/internal/providers"
)

// StickerIndexFile is the catalogue file inside the sticker folder.
const StickerIndexFile = "stickers.yaml"

// ErrUnknownSticker is returned by Load for ids not in the catalogue.
var ErrUnknownSticker = errors.New("unknown sticker")

var stickerExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// StickerEntry is one catalogue entry. Path is relative to the sticker folder.
type StickerEntry struct {
	Desc string `yaml:"desc"`
	Path string `yaml:"path"`
}

// Stickers is the sticker catalogue: image files in a folder plus a YAML
// index of their descriptions. Ids are increasing integers.
type Stickers struct {
	dir string

	mu      sync.RWMutex
	entries map[string]StickerEntry
	last    int
}

// LoadStickers opens the catalogue in dir, creating the folder if needed.
func LoadStickers(dir string) (*Stickers, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sticker dir: %w", err)
	}
	s := &Stickers{dir: dir, entries: map[string]StickerEntry{}}

	data, err := os.ReadFile(filepath.Join(dir, StickerIndexFile))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sticker index: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("parse sticker index: %w", err)
	}
	if s.entries == nil {
		s.entries = map[string]StickerEntry{}
	}
	for id := range s.entries {
		if n, err := strconv.Atoi(id); err == nil && n > s.last {
			s.last = n
		}
	}
	return s, nil
}

// Len returns the number of catalogued stickers.
func (s *Stickers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Prompt lists the catalogue as "[id] desc" lines in id order.
func (s *Stickers) Prompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	for _, id := range s.sortedIDs() {
		fmt.Fprintf(&b, "[%s] %s\n", id, s.entries[id].Desc)
	}
	return b.String()
}

// Load returns a sticker's image as base64.
func (s *Stickers) Load(id string) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return "", ErrUnknownSticker
	}
	data, err := os.ReadFile(filepath.Join(s.dir, entry.Path))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Scan registers image files in the folder that are not catalogued yet,
// describing each with the vision model, and saves the index. It returns
// how many stickers were added.
func (s *Stickers) Scan(ctx context.Context, vision providers.Describer) (int, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list stickers: %w", err)
	}

	s.mu.RLock()
	known := make(map[string]bool, len(s.entries))
	for _, e := range s.entries {
		known[e.Path] = true
	}
	s.mu.RUnlock()

	added := 0
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || known[name] || !stickerExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		desc, err := s.describe(ctx, vision, name)
		if err != nil {
			if ctx.Err() != nil {
				return added, ctx.Err()
			}
			return added, fmt.Errorf("describe sticker %s: %w", name, err)
		}
		s.mu.Lock()
		s.last++
		s.entries[strconv.Itoa(s.last)] = StickerEntry{Desc: desc, Path: name}
		s.mu.Unlock()
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, s.save()
}

// Run rescans the folder every interval until ctx is done.
func (s *Stickers) Run(ctx context.Context, vision providers.Describer, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stickers")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := s.Scan(ctx, vision)
		switch {
		case err != nil:
			logger.Error("sticker scan failed", "error", err)
		case n > 0:
			logger.Info("registered stickers", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Stickers) describe(ctx context.Context, vision providers.Describer, name string) (string, error) {
	if vision == nil {
		return "", errors.New("no vision model configured")
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	desc, err := vision.Describe(ctx, uri, stickerPrompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(desc), nil
}

func (s *Stickers) save() error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.entries)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode sticker index: %w", err)
	}
	tmp := filepath.Join(s.dir, StickerIndexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sticker index: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.dir, StickerIndexFile))
}

// sortedIDs orders ids numerically. Callers hold s.mu.
func (s *Stickers) sortedIDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

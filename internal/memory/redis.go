package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dayuer/kira-go/internal/providers"
	"github.com/dayuer/kira-go/internal/session"
)

// Key layout under the configured prefix.
const (
	keyChunks   = "chunks:"  // list of JSON chunks per session
	keySessions = "sessions" // set of session keys
	keyCore     = "core"     // list of core memory entries
)

const removedMarker = "\x00removed"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL      string // redis://host:port/db
	Password string
	Prefix   string // default "kira:"
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return c, nil
}

// RedisStore keeps history and core memory in Redis so several gateway
// processes can share it. Each session is a list of JSON chunks trimmed to
// the cap on every append.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	maxChunks int
	logger    *slog.Logger

	coreMu sync.Mutex
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client, prefix string, maxChunks int, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "kira:"
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		maxChunks: maxChunks,
		logger:    logger.With("component", "memory", "backend", "redis"),
	}
}

func (s *RedisStore) chunksKey(key session.Key) string { return s.prefix + keyChunks + key.String() }
func (s *RedisStore) sessionsKey() string              { return s.prefix + keySessions }
func (s *RedisStore) coreKey() string                  { return s.prefix + keyCore }

// Fetch implements Store.
func (s *RedisStore) Fetch(ctx context.Context, key session.Key) ([]providers.Message, error) {
	raw, err := s.client.LRange(ctx, s.chunksKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch memory: %w", err)
	}
	chunks := make([]Chunk, 0, len(raw))
	for _, r := range raw {
		var c Chunk
		if err := json.Unmarshal([]byte(r), &c); err != nil {
			s.logger.Warn("skipping corrupt chunk", "session", key.String(), "error", err)
			continue
		}
		chunks = append(chunks, c)
	}
	return flatten(chunks), nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, key session.Key, chunk Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	k := s.chunksKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, data)
		pipe.LTrim(ctx, k, int64(-s.maxChunks), -1)
		pipe.SAdd(ctx, s.sessionsKey(), key.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	return nil
}

// CoreMemory implements Store.
func (s *RedisStore) CoreMemory(ctx context.Context) (string, error) {
	lines, err := s.client.LRange(ctx, s.coreKey(), 0, -1).Result()
	if err != nil {
		return "", fmt.Errorf("read core memory: %w", err)
	}
	return RenderCore(lines), nil
}

// Sessions implements Store.
func (s *RedisStore) Sessions(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.sessionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Add implements CoreEditor.
func (s *RedisStore) Add(ctx context.Context, text string) error {
	return s.client.RPush(ctx, s.coreKey(), singleLine(text)).Err()
}

// Update implements CoreEditor.
func (s *RedisStore) Update(ctx context.Context, index int, text string) error {
	s.coreMu.Lock()
	defer s.coreMu.Unlock()
	if err := s.checkIndex(ctx, index); err != nil {
		return err
	}
	return s.client.LSet(ctx, s.coreKey(), int64(index), singleLine(text)).Err()
}

// Remove implements CoreEditor.
func (s *RedisStore) Remove(ctx context.Context, index int) (string, error) {
	s.coreMu.Lock()
	defer s.coreMu.Unlock()
	if err := s.checkIndex(ctx, index); err != nil {
		return "", err
	}
	removed, err := s.client.LIndex(ctx, s.coreKey(), int64(index)).Result()
	if err != nil {
		return "", err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LSet(ctx, s.coreKey(), int64(index), removedMarker)
		pipe.LRem(ctx, s.coreKey(), 1, removedMarker)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("remove core memory: %w", err)
	}
	return strings.TrimSpace(removed), nil
}

func (s *RedisStore) checkIndex(ctx context.Context, index int) error {
	n, err := s.client.LLen(ctx, s.coreKey()).Result()
	if err != nil {
		return err
	}
	if index < 0 || int64(index) >= n {
		return ErrIndexOutOfRange
	}
	return nil
}

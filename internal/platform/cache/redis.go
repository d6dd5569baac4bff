package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix    = "magus:"
	defaultRedisTimeout   = 150 * time.Millisecond
	defaultRedisScanCount = 200

	encodingRaw  byte = 0x00
	encodingZstd byte = 0x01
)

// RedisStore is a shared Store backed by Redis. Each call is bounded by a short timeout
// so a slow server degrades into a miss instead of stalling callers.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	now     func() time.Time

	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

var _ Store = (*RedisStore)(nil)

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix namespaces every physical key.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && !strings.HasSuffix(prefix, ":") {
			prefix += ":"
		}
		s.prefix = prefix
	}
}

// WithRedisTimeout bounds every Redis round trip.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRedisCompression toggles zstd compression of stored values.
func WithRedisCompression(enabled bool) RedisOption {
	return func(s *RedisStore) { s.compress = enabled }
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("cache: redis client is required")
	}
	s := &RedisStore{
		client:  client,
		prefix:  defaultRedisPrefix,
		timeout: defaultRedisTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	var err error
	if s.compress {
		s.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("cache: create zstd encoder: %w", err)
		}
	}
	// Values written while compression was enabled stay readable after it is turned off.
	s.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cache: create zstd decoder: %w", err)
	}
	return s, nil
}

func (s *RedisStore) Name() string { return "redis" }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	physical := s.prefix + key
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, physical)
	ttlCmd := pipe.PTTL(ctx, physical)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("%w: redis get: %v", ErrUnavailable, err)
	}

	raw, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: redis get: %v", ErrUnavailable, err)
	}

	value, err := s.decode(raw)
	if err != nil {
		return Entry{}, false, err
	}

	entry := Entry{Value: value}
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl)
	}
	return entry, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, s.encode(value), ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", ErrUnavailable, err)
	}
	return nil
}

// DeletePrefix implements Store using SCAN so large keyspaces are never blocked.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*s.timeout)
	defer cancel()

	match := escapeGlob(s.prefix+prefix) + "*"
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, defaultRedisScanCount).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: redis scan: %v", ErrUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := s.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: redis unlink: %v", ErrUnavailable, err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the compression resources. The client is owned by the caller.
func (s *RedisStore) Close() {
	if s.encoder != nil {
		_ = s.encoder.Close()
	}
	if s.decoder != nil {
		s.decoder.Close()
	}
}

func (s *RedisStore) encode(value []byte) []byte {
	if !s.compress || s.encoder == nil {
		return append([]byte{encodingRaw}, value...)
	}
	return s.encoder.EncodeAll(value, []byte{encodingZstd})
}

func (s *RedisStore) decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("cache: empty redis payload")
	}
	switch raw[0] {
	case encodingRaw:
		return raw[1:], nil
	case encodingZstd:
		out, err := s.decoder.DecodeAll(raw[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("cache: decompress redis payload: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cache: unknown payload encoding %#x", raw[0])
	}
}

// escapeGlob quotes the characters Redis MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

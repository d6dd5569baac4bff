package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 10 * time.Second
	defaultWriteTimeout         = 15 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultNamesCollection      = "generated_names"
	defaultRequestLogCollection = "name_requests"
	defaultNamesTopic           = "name-generated"
	defaultRedisPrefix          = "magus:"
	defaultRedisTimeout         = 150 * time.Millisecond
	defaultCacheMaxItems        = 1000
	defaultCacheTTL             = time.Hour
	defaultCacheJanitor         = 5 * time.Minute
	defaultCacheMaxKeyLength    = 128
	defaultMaxAttempts          = 100
	defaultAcceptanceThreshold  = 0.6
	defaultMaxCount             = 20
	defaultWatchDebounce        = 500 * time.Millisecond
	defaultRatePerMinute        = 120
	defaultRateBurst            = 20
	defaultSecurityEnvironment  = "local"
	defaultSignatureHeader      = "X-Signature"
	defaultTimestampHeader      = "X-Signature-Timestamp"
	defaultClockSkew            = 5 * time.Minute
	defaultRecorderQueue        = 256
	defaultRecorderWorkers      = 2
	defaultRecorderTimeout      = 5 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Generation  GenerationConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Persistence PersistenceConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID            string
	EmulatorHost         string
	NamesCollection      string
	RequestLogCollection string
}

// PubSubConfig names the topic generated names are announced on. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID  string
	NamesTopic string
}

// RedisConfig configures the shared cache tier.
type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	Timeout     time.Duration
	Compression bool
}

// CacheConfig configures the in-process cache tier and entry lifetime.
type CacheConfig struct {
	Enabled         bool
	MaxItems        int
	TTL             time.Duration
	JanitorInterval time.Duration
	MaxKeyLength    int
}

// GenerationConfig controls name synthesis.
type GenerationConfig struct {
	Seed                uint64
	MaxAttempts         int
	AcceptanceThreshold float64
	MaxCount            int
	TemplateDir         string
	WatchTemplates      bool
	WatchDebounce       time.Duration
}

// RateLimitConfig controls request throttling of the public name routes.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment     string
	InternalSecret  string
	SignatureHeader string
	TimestampHeader string
	ClockSkew       time.Duration
}

// PersistenceConfig controls asynchronous recording of generated names.
type PersistenceConfig struct {
	Enabled      bool
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Redis.Password") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Lookup returns the raw value of key using the same precedence as Load
// (explicit env map, then OS env, then .env file).
func Lookup(key string, opts ...Option) (string, bool, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := options.lookupFunc()
	if err != nil {
		return "", false, err
	}
	value, ok := lookup(key)
	return value, ok, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := options.lookupFunc()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "MAGUS_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:  durationWithDefault(lookup, "MAGUS_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "MAGUS_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "MAGUS_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:            stringWithDefault(lookup, "MAGUS_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost:         stringWithDefault(lookup, "MAGUS_FIRESTORE_EMULATOR_HOST", ""),
			NamesCollection:      stringWithDefault(lookup, "MAGUS_FIRESTORE_NAMES_COLLECTION", defaultNamesCollection),
			RequestLogCollection: stringWithDefault(lookup, "MAGUS_FIRESTORE_REQUESTS_COLLECTION", defaultRequestLogCollection),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "MAGUS_PUBSUB_PROJECT_ID", ""),
			NamesTopic: stringWithDefault(lookup, "MAGUS_PUBSUB_NAMES_TOPIC", defaultNamesTopic),
		},
		Redis: RedisConfig{
			Enabled:     boolWithDefault(lookup, "MAGUS_REDIS_ENABLED", false),
			Addr:        stringWithDefault(lookup, "MAGUS_REDIS_ADDR", ""),
			Password:    stringWithDefault(lookup, "MAGUS_REDIS_PASSWORD", ""),
			DB:          intWithDefault(lookup, "MAGUS_REDIS_DB", 0),
			KeyPrefix:   stringWithDefault(lookup, "MAGUS_REDIS_KEY_PREFIX", defaultRedisPrefix),
			Timeout:     durationWithDefault(lookup, "MAGUS_REDIS_TIMEOUT", defaultRedisTimeout),
			Compression: boolWithDefault(lookup, "MAGUS_REDIS_COMPRESSION", false),
		},
		Cache: CacheConfig{
			Enabled:         boolWithDefault(lookup, "MAGUS_CACHE_ENABLED", true),
			MaxItems:        intWithDefault(lookup, "MAGUS_CACHE_MAX_ITEMS", defaultCacheMaxItems),
			TTL:             durationWithDefault(lookup, "MAGUS_CACHE_TTL", defaultCacheTTL),
			JanitorInterval: durationWithDefault(lookup, "MAGUS_CACHE_JANITOR_INTERVAL", defaultCacheJanitor),
			MaxKeyLength:    intWithDefault(lookup, "MAGUS_CACHE_MAX_KEY_LENGTH", defaultCacheMaxKeyLength),
		},
		Generation: GenerationConfig{
			Seed:                uint64WithDefault(lookup, "MAGUS_GENERATION_SEED", 0),
			MaxAttempts:         intWithDefault(lookup, "MAGUS_GENERATION_MAX_ATTEMPTS", defaultMaxAttempts),
			AcceptanceThreshold: floatWithDefault(lookup, "MAGUS_GENERATION_ACCEPTANCE_THRESHOLD", defaultAcceptanceThreshold),
			MaxCount:            intWithDefault(lookup, "MAGUS_GENERATION_MAX_COUNT", defaultMaxCount),
			TemplateDir:         stringWithDefault(lookup, "MAGUS_GENERATION_TEMPLATE_DIR", ""),
			WatchTemplates:      boolWithDefault(lookup, "MAGUS_GENERATION_WATCH_TEMPLATES", false),
			WatchDebounce:       durationWithDefault(lookup, "MAGUS_GENERATION_WATCH_DEBOUNCE", defaultWatchDebounce),
		},
		RateLimits: RateLimitConfig{
			PerMinute: intWithDefault(lookup, "MAGUS_RATELIMIT_PER_MIN", defaultRatePerMinute),
			Burst:     intWithDefault(lookup, "MAGUS_RATELIMIT_BURST", defaultRateBurst),
		},
		Security: SecurityConfig{
			Environment:     strings.ToLower(stringWithDefault(lookup, "MAGUS_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			InternalSecret:  stringWithDefault(lookup, "MAGUS_SECURITY_INTERNAL_SECRET", ""),
			SignatureHeader: stringWithDefault(lookup, "MAGUS_SECURITY_SIGNATURE_HEADER", defaultSignatureHeader),
			TimestampHeader: stringWithDefault(lookup, "MAGUS_SECURITY_TIMESTAMP_HEADER", defaultTimestampHeader),
			ClockSkew:       durationWithDefault(lookup, "MAGUS_SECURITY_CLOCK_SKEW", defaultClockSkew),
		},
		Persistence: PersistenceConfig{
			Enabled:      boolWithDefault(lookup, "MAGUS_PERSISTENCE_ENABLED", false),
			QueueSize:    intWithDefault(lookup, "MAGUS_PERSISTENCE_QUEUE_SIZE", defaultRecorderQueue),
			Workers:      intWithDefault(lookup, "MAGUS_PERSISTENCE_WORKERS", defaultRecorderWorkers),
			WriteTimeout: durationWithDefault(lookup, "MAGUS_PERSISTENCE_WRITE_TIMEOUT", defaultRecorderTimeout),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")
	}
	// Pub/Sub project defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Redis.Password", &cfg.Redis.Password},
		{"Security.InternalSecret", &cfg.Security.InternalSecret},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func defaultLoaderOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
}

func (o loaderOptions) lookupFunc() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}, nil
}

// IsLocal reports whether the service runs outside a deployed environment.
func (c SecurityConfig) IsLocal() bool {
	switch c.Environment {
	case "", "local", "dev", "test":
		return true
	}
	return false
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Persistence.Enabled {
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
		if cfg.Persistence.QueueSize <= 0 {
			invalid = append(invalid, "Persistence.QueueSize")
		}
		if cfg.Persistence.Workers <= 0 {
			invalid = append(invalid, "Persistence.Workers")
		}
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		invalid = append(invalid, "Redis.Addr")
	}
	if cfg.Cache.Enabled {
		if cfg.Cache.MaxItems <= 0 {
			invalid = append(invalid, "Cache.MaxItems")
		}
		if cfg.Cache.TTL <= 0 {
			invalid = append(invalid, "Cache.TTL")
		}
	}
	if cfg.Generation.MaxAttempts <= 0 {
		invalid = append(invalid, "Generation.MaxAttempts")
	}
	if cfg.Generation.AcceptanceThreshold < 0 || cfg.Generation.AcceptanceThreshold > 1 {
		invalid = append(invalid, "Generation.AcceptanceThreshold")
	}
	if cfg.Generation.MaxCount <= 0 {
		invalid = append(invalid, "Generation.MaxCount")
	}
	if cfg.RateLimits.PerMinute < 0 {
		invalid = append(invalid, "RateLimits.PerMinute")
	}
	if !cfg.Security.IsLocal() && strings.TrimSpace(cfg.Security.InternalSecret) == "" {
		invalid = append(invalid, "Security.InternalSecret")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func uint64WithDefault(lookup func(string) (string, bool), key string, fallback uint64) uint64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

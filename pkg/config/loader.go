package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option tunes a single Load call.
type Option func(*options)

type options struct {
	prefix   string
	envFiles []string
	noCache  bool
}

// WithPrefix prepends prefix to every variable name of the struct.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvFiles loads the given .env files before parsing. Files are only read
// by the first Load call of the process; missing files are an error.
func WithEnvFiles(files ...string) Option {
	return func(o *options) { o.envFiles = append(o.envFiles, files...) }
}

// WithoutCache parses the environment again and refreshes the cached value.
func WithoutCache() Option {
	return func(o *options) { o.noCache = true }
}

var (
	mu        sync.Mutex
	cache     = make(map[string]any)
	envLoaded bool
)

// Load parses environment variables into v. Results are cached per type and
// prefix for the lifetime of the process.
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	mu.Lock()
	defer mu.Unlock()

	if err := loadEnvFiles(o.envFiles); err != nil {
		return err
	}

	key := cacheKey[T](o.prefix)
	if cached, ok := cache[key]; ok && !o.noCache {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.ParseWithOptions(&parsed, env.Options{Prefix: o.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	cache[key] = parsed
	*v = parsed

	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Reset drops cached values and allows env files to be loaded again. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cache = make(map[string]any)
	envLoaded = false
}

func loadEnvFiles(files []string) error {
	if envLoaded {
		return nil
	}
	envLoaded = true
	if len(files) == 0 {
		// The default .env is optional.
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrEnvFile, err)
	}
	return nil
}

func cacheKey[T any](prefix string) string {
	return reflect.TypeFor[T]().String() + "|" + prefix
}

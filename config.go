package genarena

import (
	"flag"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultChunkSize is the default number of slots per chunk.
const DefaultChunkSize = 64

// DefaultName is the arena name used when Config.Name is empty.
const DefaultName = "default"

var (
	errInvalidChunkSize = errors.New("invalid chunk size, must be greater than or equal to 0")
	errInvalidMaxSlots  = errors.New("invalid max slots, must be greater than or equal to 0")
	errEmptyName        = errors.New("arena name must not be empty")
)

// Config holds the tunables of an Arena.
type Config struct {
	Name      string `yaml:"name"`
	ChunkSize int    `yaml:"chunk_size"`
	MaxSlots  int    `yaml:"max_slots"`
}

// RegisterFlags registers the config flags with no prefix.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("", f)
}

// RegisterFlagsWithPrefix registers the config flags, prefixing each flag name with prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Name, prefix+"name", DefaultName, "Name of the arena, used as the arena label on metrics and log lines.")
	f.IntVar(&cfg.ChunkSize, prefix+"chunk-size", DefaultChunkSize, "Number of slots allocated at once when the arena grows. 0 uses the default.")
	f.IntVar(&cfg.MaxSlots, prefix+"max-slots", 0, "Maximum number of slots the arena may hold. 0 means unlimited.")
}

// Validate the config.
func (cfg *Config) Validate() error {
	if cfg.ChunkSize < 0 {
		return errInvalidChunkSize
	}
	if cfg.MaxSlots < 0 {
		return errInvalidMaxSlots
	}
	if cfg.Name == "" {
		return errEmptyName
	}
	return nil
}

// withDefaults returns a copy of cfg with zero values replaced by defaults.
func (cfg Config) withDefaults() Config {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxSlots < 0 {
		cfg.MaxSlots = 0
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	return cfg
}

type options[T any] struct {
	logger    log.Logger
	reg       prometheus.Registerer
	finalizer func(Handle, *T)
}

// Option configures an Arena at construction time.
type Option[T any] func(*options[T])

// WithLogger sets the logger used for leak reports and teardown summaries.
func WithLogger[T any](logger log.Logger) Option[T] {
	return func(o *options[T]) {
		o.logger = logger
	}
}

// WithRegisterer registers the arena's metrics with reg.
func WithRegisterer[T any](reg prometheus.Registerer) Option[T] {
	return func(o *options[T]) {
		o.reg = reg
	}
}

// WithFinalizer sets a function that runs on a payload right before it is
// dropped, either by Destroy or by Release. The slot is already in
// SlotDestroyed state while fn runs, so the payload can no longer be reached
// through any handle.
func WithFinalizer[T any](fn func(Handle, *T)) Option[T] {
	return func(o *options[T]) {
		o.finalizer = fn
	}
}

package history

import (
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/slug"
)

const meterName = "github.com/urbanautomaton/friendly-id-ancient-history/internal/history"

// Config controls identifier composition and partitioning.
type Config struct {
	// Separator joins a name and its sequence. Must be non-empty and must not
	// be a string slug.Normalize can emit inside a name.
	Separator string

	// Scoped partitions uniqueness and lookups by the owner's scope value.
	Scoped bool

	// ScopedConflicts selects the alternate conflict mode that checks scope
	// alone without history. It cannot be combined with this engine; New
	// rejects it.
	ScopedConflicts bool
}

// DefaultConfig returns an unscoped configuration with the "--" separator.
func DefaultConfig() Config {
	return Config{Separator: slug.DefaultSeparator}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.ScopedConflicts {
		return configError("scoped conflict resolution cannot be combined with slug history; use Scoped instead")
	}
	if c.Separator == "" {
		return configError("separator must not be empty")
	}
	if slug.OccursInName(c.Separator) {
		return configError("separator %q can occur inside a normalized name", c.Separator)
	}
	return nil
}

// Engine implements sequence resolution, history synchronization and
// historical lookup for one owner type registry.
type Engine struct {
	cfg      Config
	types    *TypeRegistry
	metrics  *Metrics
	now      func() time.Time
	isRawKey func(string) bool
	parseKey func(string) (int64, bool)
	provider metric.MeterProvider
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the clock used for Record.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMeterProvider sets the provider for engine metrics. Defaults to the
// global otel provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.provider = mp }
}

// WithKeyFormat overrides how lookups recognize and parse raw primary keys.
// isRaw decides whether an inbound id is looked up by key before anything
// else; parse is used for that lookup and for the final fallback.
func WithKeyFormat(isRaw func(string) bool, parse func(string) (int64, bool)) Option {
	return func(e *Engine) {
		e.isRawKey = isRaw
		e.parseKey = parse
	}
}

// New validates cfg and builds an Engine. Configuration problems are returned
// as *Error with CodeConfiguration.
func New(cfg Config, types *TypeRegistry, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if types == nil {
		return nil, configError("type registry is required")
	}

	e := &Engine{
		cfg:      cfg,
		types:    types,
		now:      time.Now,
		isRawKey: looksLikeKey,
		parseKey: parseKey,
		provider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(e)
	}

	m, err := NewMetrics(e.provider.Meter(meterName))
	if err != nil {
		return nil, err
	}
	e.metrics = m

	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// RootType returns the root of typ's hierarchy.
func (e *Engine) RootType(typ string) (string, error) {
	return e.types.Root(typ)
}

// Compose joins name and sequence with the configured separator.
func (e *Engine) Compose(name string, sequence int) string {
	return slug.Compose(name, sequence, e.cfg.Separator)
}

// Parse splits id with the configured separator.
func (e *Engine) Parse(id string) (string, int) {
	return slug.Parse(id, e.cfg.Separator)
}

// ValidName reports whether name can be stored as a bare identifier: it is
// non-empty, Parse leaves it whole, and lookups do not read it as a raw key.
func (e *Engine) ValidName(name string) bool {
	if name == "" || e.isRawKey(name) {
		return false
	}
	parsed, _ := e.Parse(name)
	return parsed == name
}

// scope returns the partition value stored for s: nil when unscoped.
func (e *Engine) scope(s string) *string {
	if !e.cfg.Scoped {
		return nil
	}
	return &s
}

// looksLikeKey accepts non-empty ASCII digit strings that fit an int64.
func looksLikeKey(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

func parseKey(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

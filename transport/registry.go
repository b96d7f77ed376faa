package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

var (
	// ErrUnknownDriver is returned when no builder is registered under the
	// configured driver name.
	ErrUnknownDriver = errors.New("unknown transport")
	// ErrUnordered is returned when a driver that may reorder records is
	// selected without opting in through GetAllowUnordered.
	ErrUnordered = errors.New("transport does not keep record order")
)

type driver struct {
	build Builder
	caps  *Capabilities
}

// Registry holds the transport drivers a feed can be dialed over.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]driver
}

// DefaultRegistry is the process-wide driver registry.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]driver)}
}

// Register adds a builder whose delivery guarantees are unknown. Such a
// driver is never rejected for ordering; the feed only warns.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = driver{build: builder}
}

// RegisterWithCapabilities adds a builder and the guarantees Build checks it
// against.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = driver{build: builder, caps: &caps}
}

// GetCapabilities returns what the driver declared, or a zero set carrying
// only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.drivers[name]; ok && d.caps != nil {
		return *d.caps
	}
	return Capabilities{Name: name}
}

// Build dials the driver selected by cfg.GetDriver(). A driver declared
// without SupportsOrdering is refused unless cfg.GetAllowUnordered() is set,
// since point-in-time symbology depends on mapping records arriving before
// the records they describe.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	tr, _, err := r.Dial(ctx, cfg, logger)
	return tr, err
}

// Dial is Build that also returns the driver's capabilities.
func (r *Registry) Dial(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, Capabilities, error) {
	if cfg == nil {
		return Transport{}, Capabilities{}, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.GetDriver()
	r.mu.RLock()
	d, ok := r.drivers[name]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, Capabilities{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, name, r.Names())
	}

	caps := Capabilities{Name: name}
	if d.caps != nil {
		caps = *d.caps
		if !caps.SupportsOrdering && !cfg.GetAllowUnordered() {
			return Transport{}, caps, fmt.Errorf("%w: %q (set allow_unordered to use it)", ErrUnordered, name)
		}
	}

	tr, err := d.build(ctx, cfg, logger)
	if err != nil {
		return Transport{}, caps, err
	}
	return tr, caps, nil
}

// Names returns the registered driver names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.drivers[name]
	return ok
}

// Register adds a builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a builder and capabilities to the default
// registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build dials a transport from the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

// Dial dials a transport from the default registry and reports its
// capabilities.
func Dial(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, Capabilities, error) {
	return DefaultRegistry.Dial(ctx, cfg, logger)
}

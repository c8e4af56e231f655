// Package servicecache holds the registered service instances of a host
// process, addressable by generated identifier or by versioned name.
package servicecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/service-host/pkg/introspect"
	"github.com/morezero/service-host/pkg/semver"
)

const logPrefix = "servicecache:cache"

var (
	ErrNotFound       = errors.New("service not found")
	ErrNilService     = errors.New("service is nil")
	ErrInvalidService = errors.New("service is not an object")
)

// Named lets a service choose the name it is registered under. Without it the
// concrete type name is used.
type Named interface {
	ServiceName() string
}

// Versioned lets a service declare a semantic version for Name@range lookups.
type Versioned interface {
	ServiceVersion() string
}

// Entry describes one registered service.
type Entry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Version      string    `json:"version,omitempty"`
	Type         string    `json:"type"`
	RegisteredAt time.Time `json:"registeredAt"`

	instance any
}

// Instance returns the registered service instance.
func (e Entry) Instance() any {
	return e.instance
}

// Cache is a concurrency-safe service cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	byName  map[string][]string
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		byName:  make(map[string][]string),
	}
}

// ServiceName registers the cache under "ServiceCache" when it is added to
// itself.
func (c *Cache) ServiceName() string {
	return "ServiceCache"
}

// Register adds a service and returns its generated identifier. serviceOrCtor
// is either an instance or a constructor: a func taking nothing or a
// context.Context and returning the instance, optionally with an error.
func (c *Cache) Register(ctx context.Context, serviceOrCtor any) (string, error) {
	instance, err := construct(ctx, serviceOrCtor)
	if err != nil {
		return "", err
	}

	entry := &Entry{
		ID:           uuid.NewString(),
		Name:         NameOf(instance),
		Version:      versionOf(instance),
		Type:         fmt.Sprintf("%T", instance),
		RegisteredAt: time.Now().UTC(),
		instance:     instance,
	}

	c.mu.Lock()
	c.entries[entry.ID] = entry
	c.order = append(c.order, entry.ID)
	c.byName[entry.Name] = append(c.byName[entry.Name], entry.ID)
	c.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - Registered %s (%s) as %s", logPrefix, entry.Name, entry.Type, entry.ID))
	return entry.ID, nil
}

func construct(ctx context.Context, serviceOrCtor any) (any, error) {
	if serviceOrCtor == nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, ErrNilService)
	}

	instance := serviceOrCtor
	if rv := reflect.ValueOf(serviceOrCtor); rv.Kind() == reflect.Func {
		if !introspect.IsInvocable(serviceOrCtor) {
			return nil, fmt.Errorf("%s - constructor %T: %w", logPrefix, serviceOrCtor, introspect.ErrNotInvocable)
		}
		result, defined, err := introspect.Invoke(ctx, serviceOrCtor)
		if err != nil {
			return nil, fmt.Errorf("%s - constructor %T failed: %w", logPrefix, serviceOrCtor, err)
		}
		if !defined || result == nil {
			return nil, fmt.Errorf("%s - constructor %T returned nothing: %w", logPrefix, serviceOrCtor, ErrNilService)
		}
		instance = result
	}

	if !introspect.IsContainer(instance) {
		return nil, fmt.Errorf("%s - %T: %w", logPrefix, instance, ErrInvalidService)
	}
	return instance, nil
}

// NameOf returns the name a service registers under.
func NameOf(instance any) string {
	if n, ok := instance.(Named); ok {
		if name := n.ServiceName(); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(instance)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "Object"
	}
	return t.Name()
}

func versionOf(instance any) string {
	if v, ok := instance.(Versioned); ok {
		return v.ServiceVersion()
	}
	return ""
}

// Get returns the instance registered under an identifier, or under a name
// with an optional version range ("LogService", "LogService@^1.2"). A bare
// name with several registrations yields the highest declared version, or
// the earliest registration when none declare one.
func (c *Cache) Get(_ context.Context, idOrName string) (any, error) {
	e, err := c.entry(idOrName)
	if err != nil {
		return nil, err
	}
	return e.instance, nil
}

// Lookup returns the Entry for an identifier or versioned name.
func (c *Cache) Lookup(idOrName string) (Entry, error) {
	e, err := c.entry(idOrName)
	if err != nil {
		return Entry{}, err
	}
	return *e, nil
}

func (c *Cache) entry(idOrName string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[idOrName]; ok {
		return e, nil
	}

	ref, err := semver.ParseServiceRef(idOrName)
	if err != nil {
		return nil, fmt.Errorf("%s - %q: %w", logPrefix, idOrName, ErrNotFound)
	}

	ids := c.byName[ref.Name]
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s - %q: %w", logPrefix, idOrName, ErrNotFound)
	}

	records := make([]semver.VersionRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, semver.VersionRecord{ID: id, Version: c.entries[id].Version})
	}

	if match := semver.ResolveVersion(records, ref.Range); match != nil {
		return c.entries[match.ID], nil
	}
	if !ref.HasRange() {
		return c.entries[ids[0]], nil
	}
	return nil, fmt.Errorf("%s - no version of %s satisfies %q: %w", logPrefix, ref.Name, ref.Range, ErrNotFound)
}

// GetUUIDs returns every registered identifier in registration order.
func (c *Cache) GetUUIDs(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out, nil
}

// Entries returns a snapshot of every registration in registration order.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entries[id])
	}
	return out
}

// Names returns the distinct registered service names, sorted.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registrations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

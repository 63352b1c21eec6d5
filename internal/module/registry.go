// Package module defines the contract a pluggable business module
// implements and the registry the platform serves them from.
package module

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/sokosuite/soko/internal/config"
	"github.com/sokosuite/soko/internal/dispatch"
	"github.com/sokosuite/soko/internal/navigation"
	"go.uber.org/zap"
)

// Module is one installable business domain (point of sale, dealership
// management, hotel operations). A module brings its routes, its schema
// scripts, and its navigation declaration; the platform supplies tenancy.
type Module interface {
	Key() string
	Routes() []dispatch.RouteDecl
	// Migrations returns the module's ordered schema scripts, or nil when
	// the module owns no tables.
	Migrations() fs.FS
	Navigation() []navigation.Item
}

// Registry holds installed modules with their compiled route tables.
// Registration happens at startup; lookups are concurrent.
type Registry struct {
	holder *config.ModulesHolder
	log    *zap.Logger

	mu      sync.RWMutex
	modules map[string]Module
	tables  map[string]*dispatch.Table
}

func NewRegistry(holder *config.ModulesHolder, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		holder:  holder,
		log:     log,
		modules: make(map[string]Module),
		tables:  make(map[string]*dispatch.Table),
	}
}

// Register installs a module, compiling its route table once.
func (r *Registry) Register(m Module) error {
	key := strings.ToLower(strings.TrimSpace(m.Key()))
	if key == "" {
		return fmt.Errorf("module key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[key]; exists {
		return fmt.Errorf("module %q already registered", key)
	}

	table, err := dispatch.CompileTable(m.Routes())
	if err != nil {
		return fmt.Errorf("compile routes for module %q: %w", key, err)
	}

	r.modules[key] = m
	r.tables[key] = table
	r.log.Info("module registered", zap.String("module", key))
	return nil
}

// Get returns an installed, currently enabled module.
func (r *Registry) Get(key string) (Module, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if !r.holder.Enabled(key) {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[key]
	return m, ok
}

// Table returns the compiled route table for an enabled module.
func (r *Registry) Table(key string) (*dispatch.Table, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if !r.holder.Enabled(key) {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.tables[key]
	return table, ok
}

// Keys lists installed module keys in stable order, enabled or not.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.modules))
	for key := range r.modules {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

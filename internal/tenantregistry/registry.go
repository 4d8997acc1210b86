// Package tenantregistry loads, validates, and serves tenant configuration
// documents: one YAML file per tenant, scanned from a directory at startup
// and on demand via Reload.
package tenantregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/omnisql/gateway/pkg/omnitypes"
	"go.yaml.in/yaml/v2"
)

// Registry serves an in-memory, atomically-swapped snapshot of every
// tenant's configuration. Readers (Get, AllTenantIDs, Count) never observe a
// torn half-loaded map: LoadAll builds the whole replacement map before
// installing it.
type Registry struct {
	configDir string
	snapshot  atomic.Pointer[map[string]*omnitypes.TenantConfig]
	loadMu    sync.Mutex // serializes concurrent LoadAll/Reload callers
}

// New creates a Registry rooted at configDir. Call LoadAll before serving
// traffic.
func New(configDir string) *Registry {
	r := &Registry{configDir: configDir}
	empty := map[string]*omnitypes.TenantConfig{}
	r.snapshot.Store(&empty)
	return r
}

// LoadAll scans configDir for *.yaml and *.yml files, parses and validates each one,
// and atomically replaces the served snapshot. On any validation failure the
// previous snapshot is left in place and the failure is returned — a bad
// tenant file never takes down configs that were already loaded.
func (r *Registry) LoadAll() error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	entries, err := os.ReadDir(r.configDir)
	if err != nil {
		return fmt.Errorf("reading tenant config directory %s: %w", r.configDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".yaml" || filepath.Ext(e.Name()) == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	next := make(map[string]*omnitypes.TenantConfig, len(names))
	for _, name := range names {
		path := filepath.Join(r.configDir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading tenant config %s: %w", path, err)
		}

		var doc yamlTenantConfig
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing tenant config %s: %w", path, err)
		}

		cfg, err := toTenantConfig(&doc, name)
		if err != nil {
			return err
		}
		next[cfg.TenantID] = cfg
	}

	r.snapshot.Store(&next)
	return nil
}

// Reload is LoadAll under another name, kept distinct because its callers
// (a SIGHUP handler, a background poll) care about it being safe under
// concurrent Get — which it is, by construction.
func (r *Registry) Reload() error {
	return r.LoadAll()
}

// Get returns the TenantConfig for tenantID, or nil if unknown.
func (r *Registry) Get(tenantID string) *omnitypes.TenantConfig {
	m := *r.snapshot.Load()
	return m[tenantID]
}

// AllTenantIDs returns every currently-registered tenant ID, sorted.
func (r *Registry) AllTenantIDs() []string {
	m := *r.snapshot.Load()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of currently-registered tenants.
func (r *Registry) Count() int {
	return len(*r.snapshot.Load())
}

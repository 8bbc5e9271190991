package directory

import (
	"os"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Directory maps opaque upstream user identifiers to display names. It is
// seeded from a static table, learns lazily from remote lookups, and lives
// for exactly one run; nothing is persisted. Safe for concurrent use: every
// key is write-once/read-many.
type Directory struct {
	mu       sync.RWMutex
	names    map[string]string
	negative map[string]struct{}

	flight singleflight.Group
}

// New creates an empty Directory.
func New() *Directory {
	return NewFromTable(nil)
}

// NewFromTable creates a Directory pre-seeded with a static id-to-name table.
func NewFromTable(table map[string]string) *Directory {
	names := make(map[string]string, len(table))
	for id, name := range table {
		names[id] = name
	}
	return &Directory{
		names:    names,
		negative: make(map[string]struct{}),
	}
}

// LoadFile reads a static directory table from a YAML file holding a flat
// map of user id to display name.
func LoadFile(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read directory file", goerr.V("path", path))
	}

	var table map[string]string
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, goerr.Wrap(err, "failed to parse directory file", goerr.V("path", path))
	}

	return NewFromTable(table), nil
}

// Lookup returns the display name for an id, if known.
func (x *Directory) Lookup(id string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	name, ok := x.names[id]
	return name, ok
}

// put records a resolved name. Empty names are recorded as negative results
// so a failing lookup is issued at most once per run.
func (x *Directory) put(key, name string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if name == "" {
		x.negative[key] = struct{}{}
		return
	}
	x.names[key] = name
}

// known reports whether key has already been resolved this run, positively or
// negatively.
func (x *Directory) known(key string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if name, ok := x.names[key]; ok {
		return name, true
	}
	if _, ok := x.negative[key]; ok {
		return "", true
	}
	return "", false
}

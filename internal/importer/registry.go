package importer

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]RowImporter)
	registryMu sync.RWMutex
)

// Register adds a RowImporter to the registry.
// Panics if an importer with the same type is already registered.
func Register(ri RowImporter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if ri.Type == "" {
		panic("row importer registered with empty type")
	}
	if _, exists := registry[ri.Type]; exists {
		panic(fmt.Sprintf("row importer already registered: %s", ri.Type))
	}

	registry[ri.Type] = ri
}

// Lookup returns the RowImporter for an import type.
// Returns false if no variant is registered for the type.
func Lookup(importType string) (RowImporter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ri, ok := registry[importType]
	return ri, ok
}

// Types returns all registered import types, sorted for consistent ordering.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}

	sort.Strings(types)
	return types
}

// ClearRegistry removes all registered importers.
// Primarily useful for testing.
func ClearRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]RowImporter)
}

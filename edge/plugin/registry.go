package plugin

import "sync"

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds a constructor to the static plugin registry under name,
// the manifest-declared plugin name. Builtin plugin packages call this
// from an init() function; the binary links in only the plugins it
// actually imports, which is the compile-in static registry strategy
// (as opposed to loading arbitrary code from disk at runtime).
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

func lookup(name string) (Constructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	return ctor, ok
}

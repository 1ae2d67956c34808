package guest

import "sync"

var (
	registryMu sync.RWMutex
	registered *Collector
)

// Register installs the collector served by the module's collect and
// deallocate exports. Plugins call it from an init function, because
// reactor modules never run main.
func Register(c *Collector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registered = c
}

func current() *Collector {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registered
}

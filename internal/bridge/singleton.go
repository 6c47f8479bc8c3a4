package bridge

import "sync"

var (
	defaultMu     sync.Mutex
	defaultBridge *Bridge
)

// Default returns the process-wide bridge, creating it from cfg on
// first use. Later calls return the existing instance and ignore cfg.
func Default(cfg Config) *Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBridge == nil {
		defaultBridge = New(cfg)
	}
	return defaultBridge
}

// ResetDefault stops and discards the process-wide bridge.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBridge != nil {
		defaultBridge.Stop()
		defaultBridge = nil
	}
}

// Package goroutine keeps a registry of the long-lived background goroutines the
// session layer starts, so leaks show up by name in tests and debug logs.
package goroutine

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	goroutineCounter uint64
	goroutineMap     sync.Map
)

// RegisterGoroutine records a goroutine under name and returns its ID
func RegisterGoroutine(name string) uint64 {
	id := atomic.AddUint64(&goroutineCounter, 1)
	goroutineMap.Store(id, name)
	return id
}

// DeregisterGoroutine forgets the goroutine with the given ID
func DeregisterGoroutine(id uint64) {
	goroutineMap.Delete(id)
}

// Go runs fn in a new goroutine that stays registered under name until fn returns.
func Go(name string, fn func()) {
	id := RegisterGoroutine(name)
	go func() {
		defer DeregisterGoroutine(id)
		fn()
	}()
}

// GetActiveGoroutines returns the registered goroutines by ID
func GetActiveGoroutines() map[uint64]string {
	result := make(map[uint64]string)
	goroutineMap.Range(func(key, value interface{}) bool {
		id, _ := key.(uint64)
		name, _ := value.(string)
		result[id] = name
		return true
	})
	return result
}

// Names lists the registered goroutines starting with prefix, sorted.
func Names(prefix string) []string {
	var names []string
	for _, name := range GetActiveGoroutines() {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

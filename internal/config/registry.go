// Package config keeps the registry of known configuration keys. Keys are
// registered with a description and an optional default, which lets the
// server load defaults lazily and warn about keys nobody reads.
package config

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/knadh/koanf/v2"
)

// KeyInfo describes a known configuration key.
type KeyInfo struct {
	Key         string      // Full key path, e.g. "server.port".
	Description string      // What the key controls.
	Type        string      // Type hint: "string", "int", "bool", "duration", "[]string".
	Default     interface{} // Optional default value.
	Secret      bool        // Value is redacted when printed.
}

var (
	registry   = make(map[string]KeyInfo)
	registryMu sync.RWMutex
)

// Register records one or more known keys. Registering a key twice replaces
// the earlier entry.
func Register(infos ...KeyInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, info := range infos {
		registry[info.Key] = info
	}
}

// Lookup returns the metadata for a registered key.
func Lookup(key string) (KeyInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[key]
	return info, ok
}

// All returns every registered key, sorted alphabetically.
func All() []KeyInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	infos := make([]KeyInfo, 0, len(registry))
	for _, info := range registry {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// ApplyDefaults sets the registered default for every key that has not been
// loaded from another source.
func ApplyDefaults(k *koanf.Koanf) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for key, info := range registry {
		if info.Default != nil && !k.Exists(key) {
			_ = k.Set(key, info.Default)
		}
	}
}

// FindSimilarKeys returns up to maxResults registered keys close to key, most
// similar first. Keys in the same namespace get a one point bonus.
func FindSimilarKeys(key string, maxResults int) []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	type scored struct {
		key   string
		score int
	}

	var candidates []scored
	prefix := namespace(key)
	for registered := range registry {
		score := levenshtein.ComputeDistance(key, registered)
		if prefix != "" && prefix == namespace(registered) && score > 0 {
			score--
		}
		if score <= 3 {
			candidates = append(candidates, scored{registered, score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].score < candidates[j].score
	})

	result := make([]string, 0, maxResults)
	for i := 0; i < len(candidates) && i < maxResults; i++ {
		result = append(result, candidates[i].key)
	}
	return result
}

// namespace returns everything before the last dot: "server.security" for
// "server.security.corsOrigins".
func namespace(key string) string {
	i := strings.LastIndex(key, ".")
	if i == -1 {
		return ""
	}
	return key[:i]
}

func underRegisteredNamespace(key string) bool {
	parts := strings.Split(key, ".")
	for i := len(parts) - 1; i > 0; i-- {
		if _, ok := Lookup(strings.Join(parts[:i], ".")); ok {
			return true
		}
	}
	return false
}

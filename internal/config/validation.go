package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
)

// Warning reports a loaded key that isn't registered.
type Warning struct {
	Key         string
	Suggestions []string
}

func (w Warning) String() string {
	msg := fmt.Sprintf("'%s' is not a known config key", w.Key)
	switch len(w.Suggestions) {
	case 0:
	case 1:
		msg += fmt.Sprintf(". Did you mean '%s'?", w.Suggestions[0])
	default:
		msg += fmt.Sprintf(". Did you mean one of: %s?", strings.Join(w.Suggestions, ", "))
	}
	return msg
}

// Validate compares every loaded key against the registry. Keys nested under
// a registered key are accepted, so that registering "myapp" allows any
// "myapp.*" key.
func Validate(k *koanf.Koanf) []Warning {
	var warnings []Warning
	for _, key := range k.Keys() {
		if _, ok := Lookup(key); ok || underRegisteredNamespace(key) {
			continue
		}
		warnings = append(warnings, Warning{
			Key:         key,
			Suggestions: FindSimilarKeys(key, 3),
		})
	}
	return warnings
}

// FormatWarnings renders warnings as a block suitable for logs or a terminal.
func FormatWarnings(warnings []Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Configuration warnings:\n")
	for _, w := range warnings {
		sb.WriteString("  - " + w.String() + "\n")
	}
	return sb.String()
}

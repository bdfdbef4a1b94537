package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/iancoleman/strcase"
)

// EnvPrefix marks environment variables that are read into the config.
const EnvPrefix = "GR__"

// SearchForConfig returns the path of filename in startDir or the nearest
// parent that has it, or "" when no directory up to the root does.
func SearchForConfig(filename string, startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// TransformEnv maps an environment variable name to a config key:
// GR__GOOGLE__CLIENT_ID becomes google.clientId. Segments are separated by
// double underscores and each segment is lower camel cased.
func TransformEnv(name string) string {
	segments := strings.Split(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__")
	for i, s := range segments {
		segments[i] = strcase.ToLowerCamel(s)
	}
	return strings.Join(segments, ".")
}

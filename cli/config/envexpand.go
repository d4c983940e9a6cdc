// Package config loads the service's YAML configuration.
package config

import (
	"os"
	"regexp"
)

// placeholder matches ${NAME} and ${NAME:-fallback}.
var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes ${NAME} and ${NAME:-fallback} in input. A variable
// that is unset or empty takes the fallback, or "" without one; required
// values then fail Validate (storage.bucket, adapter.url).
func ExpandEnv(input string) string {
	return placeholder.ReplaceAllStringFunc(input, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		if v := os.Getenv(sub[1]); v != "" {
			return v
		}
		return sub[2]
	})
}

// Package config resolves container labels and a hot-reloadable static
// YAML file into effective per-instance registry configuration (spec.md
// §4.5).
package config

import "strings"

const labelPrefix = "abwart."

// FlattenLabels strips the abwart. namespace prefix from a container's
// label map, returning only the recognized dot-path keys (unprefixed
// labels are not abwart's concern and are dropped here, not "unrecognized
// keys" in the §4.5 sense, which applies after stripping).
func FlattenLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		if rest, ok := strings.CutPrefix(k, labelPrefix); ok {
			out[rest] = v
		}
	}
	return out
}

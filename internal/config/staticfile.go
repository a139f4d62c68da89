package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when CONFIG_PATH is unset (spec.md §6).
const DefaultConfigPath = "./config.yml"

// ConfigPathEnv is the environment variable overriding the static file
// location.
const ConfigPathEnv = "CONFIG_PATH"

// StaticFile is the parsed static configuration, flattened to the same
// dot-path grammar container labels use: Registries[instanceName] is a
// flat key -> raw string value map, keyed exactly like FlattenLabels'
// output, so both sources merge with the same code path.
type StaticFile struct {
	Registries map[string]map[string]string
}

// ConfigPath resolves the static file path from CONFIG_PATH, defaulting to
// DefaultConfigPath.
func ConfigPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadStaticFile reads and parses the static file at path. A missing file
// is not an error: it is treated as an empty static config so the resolver
// can proceed with labels only (spec.md §7, Config-file-IO).
func LoadStaticFile(path string) (StaticFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StaticFile{Registries: map[string]map[string]string{}}, nil
		}
		return StaticFile{}, fmt.Errorf("read static config %s: %w", path, err)
	}
	return ParseStaticFile(data)
}

// ParseStaticFile parses raw YAML bytes into a StaticFile.
func ParseStaticFile(data []byte) (StaticFile, error) {
	var raw struct {
		Registries map[string]any `yaml:"registries"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return StaticFile{}, fmt.Errorf("parse static config: %w", err)
	}

	out := StaticFile{Registries: make(map[string]map[string]string, len(raw.Registries))}
	for name, value := range raw.Registries {
		flat := make(map[string]string)
		flattenInto(flat, "", value)
		out.Registries[name] = flat
	}
	return out, nil
}

// flattenInto recursively walks a YAML-decoded value, joining nested
// mapping keys with "." to build the flat dot-path grammar. A mapping key
// that already contains a dot (a policy identifier like age.min) is never
// split further: nesting comes from YAML structure, not from splitting
// string keys.
func flattenInto(dst map[string]string, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, nested := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(dst, key, nested)
		}
	case nil:
		dst[prefix] = ""
	default:
		dst[prefix] = stringify(v)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

// mergeFlat overlays static on top of label, with static winning on every
// key conflict (spec.md §4.5 step 3). Both inputs are left untouched.
func mergeFlat(label, static map[string]string) map[string]string {
	out := make(map[string]string, len(label)+len(static))
	for k, v := range label {
		out[k] = v
	}
	for k, v := range static {
		out[k] = v
	}
	return out
}

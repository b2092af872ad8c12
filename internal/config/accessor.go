package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// tree is the config as its JSON object form, keyed by the camelCase field names
// that config paths use.
type tree = map[string]any

func toTree(cfg *Config) (tree, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var t tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

func fromTree(t tree) (*Config, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// walk follows keys from node. Numeric keys index into arrays.
func walk(node any, keys []string) (any, error) {
	for i, key := range keys {
		switch v := node.(type) {
		case tree:
			next, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", strings.Join(keys[:i+1], "."))
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			node = v[idx]
		default:
			return nil, fmt.Errorf("%s is a %T, not an object", strings.Join(keys[:i], "."), node)
		}
	}
	return node, nil
}

// GetByPath returns the value at a dot-separated path such as "tools.code.timeoutSeconds".
func GetByPath(cfg *Config, path string) (any, error) {
	t, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	return walk(t, strings.Split(path, "."))
}

// SetByPath assigns value at a dot-separated path and validates the result. cfg is
// only replaced when the new config validates.
func SetByPath(cfg *Config, path string, value any) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}
	t, err := toTree(cfg)
	if err != nil {
		return err
	}

	keys := strings.Split(path, ".")
	parentKeys, leaf := keys[:len(keys)-1], keys[len(keys)-1]
	node, err := walk(t, parentKeys)
	if err != nil {
		return err
	}
	parent, ok := node.(tree)
	if !ok {
		return fmt.Errorf("%s is not a config section", strings.Join(parentKeys, "."))
	}
	coerced := coerce(value)
	parent[leaf] = coerced

	updated, err := fromTree(t)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	// Unknown keys are dropped by the round trip. Empty values of omitempty fields
	// are dropped too, so those cannot be told apart and are allowed.
	if _, err := GetByPath(updated, path); err != nil && coerced != "" {
		return fmt.Errorf("key not found: %s", path)
	}
	if err := Validate(updated); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	*cfg = *updated
	return nil
}

// coerce turns command-line strings into the JSON scalar they spell.
func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a deep copy of cfg with every API key masked.
func Sanitize(cfg *Config) *Config {
	t, err := toTree(cfg)
	if err != nil {
		return cfg
	}
	out, err := fromTree(t)
	if err != nil {
		return cfg
	}
	for _, key := range []*string{&out.Provider.APIKey, &out.Tools.Search.APIKey, &out.Tools.Sports.APIKey} {
		if *key != "" {
			*key = mask(*key)
		}
	}
	return out
}

func mask(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths maps every leaf path of the sanitized config to its value.
func ListPaths(cfg *Config) map[string]any {
	t, err := toTree(Sanitize(cfg))
	if err != nil {
		return nil
	}
	leaves := make(map[string]any)
	collectLeaves(leaves, "", t)
	return leaves
}

func collectLeaves(dst map[string]any, prefix string, node tree) {
	for key, v := range node {
		if prefix != "" {
			key = prefix + "." + key
		}
		if section, ok := v.(tree); ok {
			collectLeaves(dst, key, section)
			continue
		}
		dst[key] = v
	}
}

package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ReadEnvConfig reads a KEY=VALUE env.config file. Missing files yield an
// empty map; key material can live here instead of the JSON config.
func ReadEnvConfig(path string) map[string]string {
	out := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// WriteEnvConfig writes a KEY=VALUE env.config file with sorted keys.
func WriteEnvConfig(path string, values map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// MergeEnvConfig reads an existing env.config, applies updates, writes back.
func MergeEnvConfig(path string, updates map[string]string) error {
	values := ReadEnvConfig(path)
	for k, v := range updates {
		values[k] = v
	}
	return WriteEnvConfig(path, values)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"
)

// ReadDotenv reads a dotenv file into a map. A missing file yields an empty map
// unless required is set.
func ReadDotenv(path string, required bool) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

// EnvPairs renders env as sorted "NAME=value" entries.
func EnvPairs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

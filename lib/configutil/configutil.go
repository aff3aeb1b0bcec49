// Package configutil loads json5 configuration files with optional local
// overrides.
package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// Validator is implemented by configs that check themselves once every
// layer and default has been applied.
type Validator interface {
	Validate() error
}

// layers returns the files making up the config at name in increasing
// priority: "<name>.<ext>" then "<name>.local.<ext>".
func layers(name string) []string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return []string{name, base + ".local" + ext}
}

// readLayer decodes path into out, found is false when the file is missing or
// empty.
func readLayer[T any](path string, out *T) (found bool, err error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return false, nil
	}
	err = json5.Unmarshal(contents, out)
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// ReadConfig merges every layer of the config at name. It returns
// os.ErrNotExist when no layer exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false

	for i, path := range layers(name) {
		var layer T
		ok, err := readLayer(path, &layer)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		found = true
		if i == 0 {
			out = layer
			continue
		}
		err = mergo.Merge(&out, layer, mergo.WithOverride)
		if err != nil {
			return out, fmt.Errorf("merge %s: %w", path, err)
		}
		slog.Info("merging config with local overrides", "local", path)
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// Load reads the config at name, fills every field left unset from defaults
// and validates the result when T implements Validator.
func Load[T any](name string, defaults T) (T, error) {
	out, err := ReadConfig[T](name)
	if err != nil {
		return out, err
	}
	err = mergo.Merge(&out, defaults)
	if err != nil {
		return out, fmt.Errorf("apply defaults to %s: %w", name, err)
	}
	if v, ok := any(&out).(Validator); ok {
		err = v.Validate()
		if err != nil {
			return out, fmt.Errorf("invalid config %s: %w", name, err)
		}
	}
	return out, nil
}

// ReadRecursively looks for name in the working directory and every parent
// up to the filesystem root, returning the first config found.
func ReadRecursively[T any](name string) (T, error) {
	var out T

	current, err := os.Getwd()
	if err != nil {
		return out, err
	}
	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return out, err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return out, os.ErrNotExist
		}
		current = parent
	}
}

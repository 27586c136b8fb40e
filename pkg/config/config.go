// Package config loads YAML configuration files, expanding ${VAR}
// environment references before decoding.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator lets a configuration struct reject its own decoded values.
type Validator interface {
	Validate() error
}

// Load reads filename, expands environment variable references in its
// contents, and decodes the YAML into target. When target implements
// Validator the decoded value is validated before Load returns.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config %s: %w", filename, err)
	}
	return decode(filename, data, target)
}

// LoadIfPresent behaves like Load but reports false instead of failing
// when filename does not exist, leaving target untouched so the caller
// keeps its built-in defaults.
func LoadIfPresent[T any](filename string, target *T) (bool, error) {
	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read config %s: %w", filename, err)
	}
	if err := decode(filename, data, target); err != nil {
		return false, err
	}
	return true, nil
}

// decode strictly: unknown keys are config typos, not extensions. An empty
// file decodes to the zero value.
func decode[T any](filename string, data []byte, target *T) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}
	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

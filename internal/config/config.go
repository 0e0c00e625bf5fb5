// Package config builds immutable configuration values for the license
// server and the client engine. Values are read once at start-up from optional
// dotenv files overlaid by the process environment, validated eagerly, and
// then passed explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var placeholderMarkers = []string{"your-project", "your_", "change-this", "demo_"}

// source resolves keys from dotenv files first, then the process environment.
type source map[string]string

func newSource(files ...string) (source, error) {
	src := source{}
	for _, f := range files {
		values, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		for k, v := range values {
			if _, seen := src[k]; !seen {
				src[k] = v
			}
		}
	}
	return src, nil
}

func (s source) str(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	if val, ok := s[key]; ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return def
}

func (s source) integer(key string, def int) (int, error) {
	raw := s.str(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer: %v", ErrInvalid, key, err)
	}
	return v, nil
}

func (s source) boolean(key string, def bool) (bool, error) {
	raw := s.str(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean: %v", ErrInvalid, key, err)
	}
	return v, nil
}

func (s source) duration(key string, def time.Duration) (time.Duration, error) {
	raw := s.str(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration: %v", ErrInvalid, key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalid, key)
	}
	return v, nil
}

func required(key, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, key)
	}
	if isPlaceholder(value) {
		return fmt.Errorf("%w: %s still holds a placeholder value", ErrInvalid, key)
	}
	return nil
}

func isPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ErrUnknownKey is returned when a config key is well formed but not set.
var ErrUnknownKey = errors.New("unknown config key")

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// Value returns the effective value for a dotted key such as
// "mapping.similarity_threshold", after defaults, file and environment.
func (cm *Manager) Value(key string) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if !cm.v.IsSet(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return cm.v.Get(key), nil
}

// Keys returns every known leaf key, sorted.
func (cm *Manager) Keys() []string {
	keys := cm.v.AllKeys()
	sort.Strings(keys)
	return keys
}

// secretSuffixes name leaf keys whose literal values must not be echoed.
var secretSuffixes = []string{"api_key", "password"}

// Redact masks literal secrets. Environment references such as
// ${DEEPSEEK_API_KEY} and empty values are returned unchanged.
func Redact(key string, value any) any {
	s, ok := value.(string)
	if !ok || envRef.ReplaceAllString(s, "") == "" {
		return value
	}
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(key, suffix) {
			return "********"
		}
	}
	return value
}

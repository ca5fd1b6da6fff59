package env

import "os"

// Get returns the environment variable's value, or fallback when unset/empty.
func Get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// IsSet reports whether the environment variable has a non-empty value.
func IsSet(key string) bool {
	return os.Getenv(key) != ""
}

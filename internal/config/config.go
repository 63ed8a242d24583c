package config

import "os"

// Get reads an environment variable, falling back to a default when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

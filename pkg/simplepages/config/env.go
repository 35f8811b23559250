package config

import (
	"os"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
//	PORT        - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//	DATABASE_URL - Connection string:
//	               "memory" or empty for the in-memory repository,
//	               "postgresql://..." for PostgreSQL,
//	               any other value is a SQLite database path.
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}
		if v, ok := lookupEnv(prefix, "DATABASE_URL"); ok {
			if err := applyDatabaseURL(c, v); err != nil {
				return err
			}
		}
		return nil
	}
}

func lookupEnv(prefix, key string) (string, bool) {
	if prefix != "" {
		if v, ok := os.LookupEnv(prefix + key); ok {
			return v, ok
		}
	}
	return os.LookupEnv(key)
}

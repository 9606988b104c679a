// Package config provides configuration management for the bookd automation
// tools. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Bookd BookdConfig
	Books BooksConfig
	Debug bool
}

// BookdConfig represents bookd data API configuration.
type BookdConfig struct {
	APIURL         string
	ClientID       string
	ClientSecret   string
	AccessToken    string
	TimeoutSeconds int64
}

// BooksConfig represents the local book-keeping configuration.
type BooksConfig struct {
	Root          string
	HistoryDBPath string
	PolicyPath    string
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	// Load .env file
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	timeoutSeconds, err := parseInt64Env("BOOKD_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid BOOKD_TIMEOUT_SECONDS: %w", err)
	}

	config := &Config{
		Bookd: BookdConfig{
			APIURL:         getEnvOrDefault("BOOKD_API_URL", "http://localhost:8080"),
			ClientID:       os.Getenv("BOOKD_CLIENT_ID"),
			ClientSecret:   os.Getenv("BOOKD_CLIENT_SECRET"),
			AccessToken:    os.Getenv("BOOKD_ACCESS_TOKEN"),
			TimeoutSeconds: timeoutSeconds,
		},
		Books: BooksConfig{
			Root:          getEnvOrDefault("BOOKS_ROOT", "./books"),
			HistoryDBPath: os.Getenv("ROLLOVER_DB_PATH"),
			PolicyPath:    os.Getenv("ROLLOVER_POLICY_PATH"),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate validates the configuration.
// It checks if all required fields are set.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) == 0 {
			continue
		}

		var value string
		switch path[0] {
		case "bookd":
			if len(path) < 2 {
				continue
			}
			switch path[1] {
			case "apiUrl":
				value = c.Bookd.APIURL
			case "clientId":
				value = c.Bookd.ClientID
			case "clientSecret":
				value = c.Bookd.ClientSecret
			case "accessToken":
				value = c.Bookd.AccessToken
			}
		case "books":
			if len(path) < 2 {
				continue
			}
			switch path[1] {
			case "root":
				value = c.Books.Root
			case "historyDb":
				value = c.Books.HistoryDBPath
			case "policy":
				value = c.Books.PolicyPath
			}
		}

		if value == "" {
			missing = append(missing, joinPath(path))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// HasCredentials reports whether the config carries either a ready access
// token or a client-credentials pair to fetch one.
func (c *Config) HasCredentials() bool {
	if c.Bookd.AccessToken != "" {
		return true
	}
	return c.Bookd.ClientID != "" && c.Bookd.ClientSecret != ""
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt64Env parses an int64 from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseInt64Env(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}

	return parsed, nil
}

// joinPath joins a path slice into a dot-separated string.
func joinPath(path []string) string {
	result := ""
	for i, p := range path {
		if i > 0 {
			result += "."
		}
		result += p
	}
	return result
}

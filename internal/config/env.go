package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// EnvProjectID names the Google Cloud project being verified.
	EnvProjectID = "PROD_PROJECT_ID"

	// EnvRegion names the Vertex AI region.
	EnvRegion = "LOCATION"

	// DefaultEnvFile is the dotenv file read from the working directory.
	DefaultEnvFile = ".env"
)

// LookupFunc reports the value of an environment variable.
// os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ReadEnvFile reads a dotenv file without touching the process environment.
// A missing file yields an empty map.
func ReadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

// ApplyEnv overlays PROD_PROJECT_ID and LOCATION onto c. Values from the
// process environment win over values from the dotenv file.
func (c *Config) ApplyEnv(lookup LookupFunc, fileValues map[string]string) {
	get := func(key string) string {
		if lookup != nil {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return strings.TrimSpace(fileValues[key])
	}

	if v := get(EnvProjectID); v != "" {
		c.ProjectID = v
	}
	if v := get(EnvRegion); v != "" {
		c.Region = v
	}
}

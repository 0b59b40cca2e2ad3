package cli

import (
	"os"

	"github.com/mcoot/pingpong/internal/config"
)

// Config holds CLI configuration
type Config struct {
	EnvFile   string
	LocalDB   string
	ServerURL string
	Output    string
	Verbose   bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		EnvFile:   os.Getenv("PINGPONG_ENV_FILE"),
		ServerURL: getEnvOrDefault("PINGPONG_SERVER", "http://localhost:8080"),
		Output:    "text",
		Verbose:   false,
	}
}

// Env loads the process configuration and applies flag overrides
func (c *Config) Env() (*config.Config, error) {
	var files []string
	if c.EnvFile != "" {
		files = append(files, c.EnvFile)
	}
	env, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if c.LocalDB != "" {
		env.LocalDBPath = c.LocalDB
	}
	return env, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

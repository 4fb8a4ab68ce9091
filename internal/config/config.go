// Package config reads the generator's environment toggles.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables.
const (
	EnvDisableLintFix = "ROUTETREE_DISABLE_LINT_FIX"
	EnvDisableFormat  = "ROUTETREE_DISABLE_FORMAT"
)

// Config holds the generator settings taken from the environment.
type Config struct {
	LintFix bool
	Format  bool
}

// Load reads dir/.env without overriding variables that are already set,
// then resolves the toggles. A missing .env file is not an error.
func Load(dir string) (*Config, error) {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return &Config{
		LintFix: !Truthy(os.Getenv(EnvDisableLintFix)),
		Format:  !Truthy(os.Getenv(EnvDisableFormat)),
	}, nil
}

// Truthy treats "", "0" and "false" as false and anything else as true.
func Truthy(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}

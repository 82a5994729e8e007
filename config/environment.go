package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appEnvVar         = "APP_ENV"
	DefaultConfigPath = "config/config.yml"

	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"
)

var environmentAliases = map[string]string{
	"dev":   EnvironmentDevelopment,
	"prod":  EnvironmentProduction,
	"stag":  EnvironmentStaging,
	"stage": EnvironmentStaging,
}

// AppEnvironment returns APP_ENV normalised through the alias table,
// defaulting to development.
func AppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// ResolvePath picks the config file to load. An explicit path wins; an empty
// path or the default path is replaced by config/config.<env>.yml when that
// file exists.
func ResolvePath(path string) string {
	if path != "" && path != DefaultConfigPath {
		return path
	}
	dir, file := filepath.Split(DefaultConfigPath)
	ext := filepath.Ext(file)
	envPath := filepath.Join(dir, strings.TrimSuffix(file, ext)+"."+AppEnvironment()+ext)
	if _, err := os.Stat(envPath); err == nil {
		return envPath
	}
	return DefaultConfigPath
}

// IsProductionLike reports whether env should fail hard on optional sinks
// that cannot be reached.
func IsProductionLike(env string) bool {
	switch env {
	case EnvironmentProduction, EnvironmentStaging:
		return true
	default:
		return false
	}
}

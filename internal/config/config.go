// Package config reads the client settings from the environment and from the
// config.env file in the user's config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/raine/didup-famiglia/internal/didup"
	"github.com/raine/didup-famiglia/internal/didup/auth"
)

const (
	AppName     = "didup"
	EnvFileName = "config.env"
)

const (
	EnvSchoolCode          = "DIDUP_SCHOOL_CODE"
	EnvUsername            = "DIDUP_USERNAME"
	EnvPassword            = "DIDUP_PASSWORD"
	EnvMobileClientID      = "DIDUP_MOBILE_CLIENT_ID"
	EnvClientID            = "DIDUP_CLIENT_ID"
	EnvRedirectURI         = "DIDUP_REDIRECT_URI"
	EnvScope               = "DIDUP_SCOPE"
	EnvCodeChallengeMethod = "DIDUP_CODE_CHALLENGE_METHOD"
	EnvAppVersion          = "DIDUP_APP_VERSION"
	EnvTimeout             = "DIDUP_TIMEOUT"
	EnvDebug               = "DIDUP_DEBUG"
)

// RequiredEnvVars must be set before a client can log in.
var RequiredEnvVars = []string{EnvSchoolCode, EnvUsername, EnvPassword, EnvMobileClientID}

// ConfigDir returns the application's config directory, creating it when
// missing.
func ConfigDir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

func ConfigPath() (string, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file. Errors are
// ignored since the file may not exist. Variables already set win.
func LoadEnvFile() {
	configPath, err := ConfigPath()
	if err != nil {
		return
	}
	_ = godotenv.Load(configPath)
}

// CheckRequired returns the names of the required variables that are unset.
func CheckRequired() []string {
	var missing []string
	for _, v := range RequiredEnvVars {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// FromEnv builds client options from the environment. Unset optional
// variables keep the client defaults.
func FromEnv() (didup.Options, error) {
	opts := didup.Options{
		SchoolCode: os.Getenv(EnvSchoolCode),
		Username:   os.Getenv(EnvUsername),
		Password:   os.Getenv(EnvPassword),
		Auth: auth.Config{
			ClientID:            os.Getenv(EnvClientID),
			MobileClientID:      os.Getenv(EnvMobileClientID),
			RedirectURI:         os.Getenv(EnvRedirectURI),
			Scopes:              strings.Fields(os.Getenv(EnvScope)),
			CodeChallengeMethod: os.Getenv(EnvCodeChallengeMethod),
			AppVersion:          os.Getenv(EnvAppVersion),
		},
	}

	if v := os.Getenv(EnvTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return didup.Options{}, fmt.Errorf("%s must be a duration like 30s: %w", EnvTimeout, err)
		}
		opts.Timeout = timeout
	}

	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return didup.Options{}, fmt.Errorf("%s must be a boolean: %w", EnvDebug, err)
		}
		opts.Debug = debug
	}

	return opts, nil
}

// WriteEnvFile writes the required variables found in values to the config
// file with owner-only permissions and returns its path.
func WriteEnvFile(values map[string]string) (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	env := map[string]string{}
	for _, key := range RequiredEnvVars {
		if v, ok := values[key]; ok {
			env[key] = v
		}
	}

	content, err := godotenv.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configPath, nil
}

package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	baseURLVar          = "EVOLVE_BASE_URL"
	credentialsFileVar  = "EVOLVE_CREDENTIALS_FILE"
	requestTimeoutVar   = "EVOLVE_REQUEST_TIMEOUT"
	renewalIntervalVar  = "EVOLVE_RENEWAL_INTERVAL"
	renewalThresholdVar = "EVOLVE_RENEWAL_THRESHOLD"
	logLevelVar         = "EVOLVE_LOG_LEVEL"
)

type EnvVars struct{}

var _ Config = EnvVars{}

func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8000")
}

func (EnvVars) GetCredentialsFile() string {
	if file := os.Getenv(credentialsFileVar); file != "" {
		return file
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".evolve-credentials.json"
	}
	return filepath.Join(home, ".config", "evolve", "credentials.json")
}

func (EnvVars) GetRequestTimeout() time.Duration {
	return getDuration(requestTimeoutVar, 30*time.Second)
}

func (EnvVars) GetRenewalInterval() time.Duration {
	return getDuration(renewalIntervalVar, 30*time.Minute)
}

func (EnvVars) GetRenewalThreshold() time.Duration {
	return getDuration(renewalThresholdVar, 15*time.Minute)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

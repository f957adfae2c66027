package config

import "time"

// Config exposes the client's environment-driven settings.
type Config interface {
	GetBaseURL() string
	GetCredentialsFile() string
	GetRequestTimeout() time.Duration
	GetRenewalInterval() time.Duration
	GetRenewalThreshold() time.Duration
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}

package config

import (
	"time"
)

// ClientConfig configures the taskctl command line client.
type ClientConfig struct {
	Server  string
	Timeout time.Duration
	// TokenFile empty means the default location under the user config dir.
	TokenFile string
}

func LoadClient() ClientConfig {
	return ClientConfig{
		Server:    getEnv("TASKCTL_SERVER", "http://localhost:3000/api"),
		Timeout:   getEnvAsDuration("TASKCTL_TIMEOUT", 10*time.Second),
		TokenFile: getEnv("TASKCTL_TOKEN_FILE", ""),
	}
}

package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings are the process-level knobs, distinct from per-session strategy
// parameters. Everything comes from the environment (a .env file is loaded
// by main) with sane defaults.
type Settings struct {
	AccountsPath   string // file or directory of account lines
	ProxyCachePath string
	APIBase        string
	ProfileBase    string
	FeedURL        string
	ChainID        int
	DataPath       string // bbolt store location, empty disables persistence
	MetricsPort    int
	RESTTimeout    time.Duration
	ResolveTimeout time.Duration
	PidFile        string
}

func LoadSettings() (Settings, error) {
	s := Settings{
		AccountsPath:   getEnv("ACCOUNTS_PATH", "trader_configs.txt"),
		ProxyCachePath: getEnv("PROXY_CACHE_PATH", "proxy_cache.json"),
		APIBase:        getEnv("API_BASE", "https://proxy.opinion.trade:8443/api/bsc/api/v2"),
		ProfileBase:    getEnv("PROFILE_BASE", "https://proxy.opinion.trade:8443/api/bsc/api/v2"),
		FeedURL:        getEnv("FEED_URL", ""),
		ChainID:        getEnvAsInt("CHAIN_ID", 56),
		DataPath:       getEnv("DATA_PATH", ""),
		MetricsPort:    getEnvAsInt("METRICS_PORT", 8080),
		RESTTimeout:    getEnvAsDuration("REST_TIMEOUT", 10*time.Second),
		ResolveTimeout: getEnvAsDuration("RESOLVE_TIMEOUT", 30*time.Second),
		PidFile:        getEnv("PID_FILE", "optrader.pid"),
	}

	if s.AccountsPath == "" {
		return Settings{}, fmt.Errorf("ACCOUNTS_PATH must not be empty")
	}
	if s.MetricsPort < 1024 || s.MetricsPort > 65535 {
		return Settings{}, fmt.Errorf("metrics port must be between 1024 and 65535, got %d", s.MetricsPort)
	}
	if s.RESTTimeout < time.Second || s.RESTTimeout > time.Minute {
		return Settings{}, fmt.Errorf("REST timeout must be between 1s and 1m, got %v", s.RESTTimeout)
	}
	return s, nil
}

func getEnv(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	if v, err := strconv.Atoi(getEnv(name, "")); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(name, "")); err == nil {
		return v
	}
	return defaultVal
}

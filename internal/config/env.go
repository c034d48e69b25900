package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes the variables that override pactrend.yaml
const EnvPrefix = "PACTREND_"

// LookupFunc reads one environment variable. os.LookupEnv outside tests.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from PACTREND_* variables and validates the
// result. Unset variables leave the file value alone.
//
//	PACTREND_API_BASE_URL   api.base_url
//	PACTREND_HOST           server.host
//	PACTREND_PORT           server.port
//	PACTREND_POLL_INTERVAL  poll.interval (Go duration)
//	PACTREND_CACHE_DIR      cache.dir
//	PACTREND_CACHE_DISABLED cache.disabled (bool)
//	PACTREND_LOG_LEVEL      log.level
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("API_BASE_URL", &c.API.BaseURL)
	str("HOST", &c.Server.Host)
	str("CACHE_DIR", &c.Cache.Dir)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(EnvPrefix + "PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvPrefix + "POLL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sPOLL_INTERVAL: %w", EnvPrefix, err)
		}
		c.Poll.Interval = d
	}
	if v, ok := lookup(EnvPrefix + "CACHE_DISABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_DISABLED: %w", EnvPrefix, err)
		}
		c.Cache.Disabled = b
	}
	return c.Validate()
}

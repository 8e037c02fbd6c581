package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SONGTRACKER_STORE_DRIVER.
const EnvPrefix = "SONGTRACKER"

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-format":     "log.format",
	"store-driver":   "store.driver",
	"store-dsn":      "store.dsn",
	"api-keys":       "youtube.api_keys",
	"timezone":       "schedule.timezone",
	"redis-url":      "ranking.redis_url",
	"metrics-addr":   "metrics.addr",
	"dapr-port":      "dapr.port",
	"pubsub":         "dapr.pubsub",
	"lock-dir":       "lock_dir",
	"concurrency":    "discovery.concurrency",
	"views-workers":  "views.concurrency",
	"recency-window": "discovery.recency_window",
}

// Load builds the configuration from, in increasing precedence, the defaults,
// the config file at path, SONGTRACKER_ environment variables and the flags
// that were set on the command line. The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	} else {
		v.SetConfigName("songtracker")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/songtracker")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			log.Debug().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.YouTube.APIKeys = splitKeys(cfg.YouTube.APIKeys)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables can override keys
// that appear in no config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("youtube.api_keys", d.YouTube.APIKeys)
	v.SetDefault("youtube.timeout", d.YouTube.Timeout)
	v.SetDefault("youtube.requests_per_second", d.YouTube.RequestsPerSecond)
	v.SetDefault("youtube.burst", d.YouTube.Burst)
	v.SetDefault("youtube.endpoint", d.YouTube.Endpoint)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.state_store", d.Store.StateStore)
	v.SetDefault("store.grpc_port", d.Store.GRPCPort)

	v.SetDefault("discovery.recency_window", d.Discovery.RecencyWindow)
	v.SetDefault("discovery.page_size", d.Discovery.PageSize)
	v.SetDefault("discovery.max_pages", d.Discovery.MaxPages)
	v.SetDefault("discovery.concurrency", d.Discovery.Concurrency)

	v.SetDefault("views.concurrency", d.Views.Concurrency)
	v.SetDefault("views.weekly_delta_day", d.Views.WeeklyDeltaDay)
	v.SetDefault("lifecycle.status_transition_day", d.Lifecycle.StatusTransitionDay)

	v.SetDefault("schedule.timezone", d.Schedule.Timezone)
	v.SetDefault("schedule.discovery", d.Schedule.Discovery)
	v.SetDefault("schedule.views", d.Schedule.Views)
	v.SetDefault("schedule.lifecycle", d.Schedule.Lifecycle)

	v.SetDefault("ranking.redis_url", d.Ranking.RedisURL)
	v.SetDefault("ranking.cache_ttl", d.Ranking.CacheTTL)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("dapr.port", d.Dapr.Port)
	v.SetDefault("dapr.pubsub", d.Dapr.PubSub)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("lock_dir", d.LockDir)
}

// splitKeys accepts keys given either as a list or as one comma separated
// value and drops blanks.
func splitKeys(raw []string) []string {
	var keys []string
	for _, entry := range raw {
		for _, key := range strings.Split(entry, ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

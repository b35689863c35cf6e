// Package config loads service settings from an optional config file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the resolved service configuration.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
	PebbleDir   string

	KafkaBrokers    []string
	KafkaTopic      string
	KafkaMarksTopic string
	KafkaGroupID    string

	FeeBps             decimal.Decimal
	RejectCrossedBooks bool

	MaxPerMarket  decimal.Decimal
	MaxCorrelated decimal.Decimal
}

// bindings maps config keys to their environment variables.
var bindings = map[string]string{
	"server.port":            "PORT",
	"store.database_url":     "DATABASE_URL",
	"store.redis_url":        "REDIS_URL",
	"store.cache_ttl":        "CACHE_TTL",
	"store.pebble_dir":       "PEBBLE_DIR",
	"kafka.brokers":          "KAFKA_BROKERS",
	"kafka.topic":            "KAFKA_TOPIC",
	"kafka.marks_topic":      "KAFKA_MARKS_TOPIC",
	"kafka.group_id":         "KAFKA_GROUP_ID",
	"trading.fee_bps":        "FEE_BPS",
	"trading.reject_crossed": "REJECT_CROSSED_BOOKS",
	"limits.max_per_market":  "LIMITS_MAX_PER_MARKET",
	"limits.max_correlated":  "LIMITS_MAX_CORRELATED",
}

// Load reads path (if non-empty) and overlays environment variables.
// A missing file at path is an error; an empty path means env only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("server.port", "8080")
	v.SetDefault("store.cache_ttl", "30s")
	v.SetDefault("kafka.topic", "shoken.wallet-events")
	v.SetDefault("kafka.group_id", "shoken-core")
	v.SetDefault("trading.fee_bps", "0")
	v.SetDefault("trading.reject_crossed", false)
	v.SetDefault("limits.max_per_market", "1000")
	v.SetDefault("limits.max_correlated", "5000")

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:               v.GetString("server.port"),
		DatabaseURL:        v.GetString("store.database_url"),
		RedisURL:           v.GetString("store.redis_url"),
		CacheTTL:           v.GetDuration("store.cache_ttl"),
		PebbleDir:          v.GetString("store.pebble_dir"),
		KafkaBrokers:       splitList(v.GetStringSlice("kafka.brokers")),
		KafkaTopic:         v.GetString("kafka.topic"),
		KafkaMarksTopic:    v.GetString("kafka.marks_topic"),
		KafkaGroupID:       v.GetString("kafka.group_id"),
		RejectCrossedBooks: v.GetBool("trading.reject_crossed"),
	}

	var err error
	if cfg.FeeBps, err = decimalKey(v, "trading.fee_bps"); err != nil {
		return Config{}, err
	}
	if cfg.MaxPerMarket, err = decimalKey(v, "limits.max_per_market"); err != nil {
		return Config{}, err
	}
	if cfg.MaxCorrelated, err = decimalKey(v, "limits.max_correlated"); err != nil {
		return Config{}, err
	}
	if cfg.FeeBps.IsNegative() {
		return Config{}, errors.New("config: trading.fee_bps must not be negative")
	}
	return cfg, nil
}

// decimalKey reads key as a string so fractional limits keep their exact
// decimal value.
func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: %s: invalid decimal %q", key, raw)
	}
	return d, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type InvalidationConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type Config struct {
	Addr        string
	LogLevel    string
	LogConsole  bool
	MetricsPath string

	RedisAddr string

	ProviderBaseURL string
	ProviderAPIKey  string

	TTLFloorData     time.Duration
	TTLFloorLocation time.Duration

	PartnerParam  string
	PartnerNewtab string
	PartnerUrlbar string

	RegionMemorySize int
	HTTPTimeout      time.Duration

	Invalidation InvalidationConfig
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("ADDR", ":8090")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_CONSOLE", false)
	v.SetDefault("METRICS_PATH", "/metrics")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("PROVIDER_BASE_URL", "https://dataservice.accuweather.com")
	v.SetDefault("TTL_FLOOR_DATA", 5*time.Minute)
	v.SetDefault("TTL_FLOOR_LOCATION", 7*24*time.Hour)
	v.SetDefault("PARTNER_PARAM", "partner")
	v.SetDefault("PARTNER_NEWTAB", "")
	v.SetDefault("PARTNER_URLBAR", "")
	v.SetDefault("REGION_MEMORY_SIZE", 16384)
	v.SetDefault("HTTP_TIMEOUT", 10*time.Second)
	v.SetDefault("INVALIDATION_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "weather-invalidation")
	v.SetDefault("KAFKA_GROUP_ID", "weather-backend")

	v.AutomaticEnv()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Addr:             v.GetString("ADDR"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogConsole:       v.GetBool("LOG_CONSOLE"),
		MetricsPath:      v.GetString("METRICS_PATH"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		ProviderBaseURL:  v.GetString("PROVIDER_BASE_URL"),
		ProviderAPIKey:   v.GetString("PROVIDER_API_KEY"),
		TTLFloorData:     v.GetDuration("TTL_FLOOR_DATA"),
		TTLFloorLocation: v.GetDuration("TTL_FLOOR_LOCATION"),
		PartnerParam:     v.GetString("PARTNER_PARAM"),
		PartnerNewtab:    v.GetString("PARTNER_NEWTAB"),
		PartnerUrlbar:    v.GetString("PARTNER_URLBAR"),
		RegionMemorySize: v.GetInt("REGION_MEMORY_SIZE"),
		HTTPTimeout:      v.GetDuration("HTTP_TIMEOUT"),
		Invalidation: InvalidationConfig{
			Enabled: v.GetBool("INVALIDATION_ENABLED"),
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
			GroupID: v.GetString("KAFKA_GROUP_ID"),
		},
	}

	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY is required")
	}
	return cfg, nil
}

// PartnerCodes maps request sources to their URL decoration codes.
func (c *Config) PartnerCodes() map[string]string {
	codes := map[string]string{}
	if c.PartnerNewtab != "" {
		codes["newtab"] = c.PartnerNewtab
	}
	if c.PartnerUrlbar != "" {
		codes["urlbar"] = c.PartnerUrlbar
	}
	return codes
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

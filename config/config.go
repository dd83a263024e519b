package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Slots    SlotsConfig    `yaml:"slots"`
	Session  SessionConfig  `yaml:"session"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	SessionEventsTopic string   `yaml:"session_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type CatalogConfig struct {
	CacheTTLSeconds   int     `yaml:"cache_ttl_seconds"`
	SynthBasePrice    float64 `yaml:"synth_base_price"`
	SynthPriceStep    float64 `yaml:"synth_price_step"`
	SynthMinutes      int     `yaml:"synth_minutes"`
	SynthWarrantyDays int     `yaml:"synth_warranty_days"`
}

type SlotsConfig struct {
	HorizonDays    int `yaml:"horizon_days"`
	HoldTTLMinutes int `yaml:"hold_ttl_minutes"`
}

type SessionConfig struct {
	InactivityTTLMinutes int `yaml:"inactivity_ttl_minutes"`
}

type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type WorkerConfig struct {
	AbandonSweepMinutes int `yaml:"abandon_sweep_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Catalog.SynthBasePrice == 0 {
		c.Catalog.SynthBasePrice = 49
	}
	if c.Catalog.SynthPriceStep == 0 {
		c.Catalog.SynthPriceStep = 20
	}
	if c.Catalog.SynthMinutes == 0 {
		c.Catalog.SynthMinutes = 60
	}
	if c.Catalog.SynthWarrantyDays == 0 {
		c.Catalog.SynthWarrantyDays = 90
	}
	if c.Slots.HorizonDays == 0 {
		c.Slots.HorizonDays = 14
	}
	if c.Slots.HoldTTLMinutes == 0 {
		c.Slots.HoldTTLMinutes = 30
	}
	if c.Session.InactivityTTLMinutes == 0 {
		c.Session.InactivityTTLMinutes = 30
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 8
	}
	if c.Worker.AbandonSweepMinutes == 0 {
		c.Worker.AbandonSweepMinutes = 5
	}
}

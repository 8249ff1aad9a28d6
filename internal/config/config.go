// Package config loads service configuration from an optional YAML file with
// environment variable overrides. Env wins over file wins over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Listen string `yaml:"listen"`

	Shopify struct {
		ShopDomain    string `yaml:"shop_domain"`
		AdminToken    string `yaml:"admin_token"`
		APIVersion    string `yaml:"api_version"`
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"shopify"`

	Partner struct {
		BaseURL   string  `yaml:"base_url"`
		RateRPS   float64 `yaml:"rate_rps"`
		RateBurst int     `yaml:"rate_burst"`
	} `yaml:"partner"`

	// QualifyingProducts maps a product id to its single-letter code prefix.
	QualifyingProducts map[int64]string `yaml:"qualifying_products"`

	SkipTestOrders  bool `yaml:"skip_test_orders"`
	PipelineSync    bool `yaml:"pipeline_sync"`
	CodeMaxAttempts int  `yaml:"code_max_attempts"`

	Annotation struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"annotation"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
}

// Load reads CONFIG_FILE when set (or the given path), then applies env
// overrides. A missing file is only an error when it was explicitly requested.
func Load(path string) (Config, error) {
	cfg := Config{}
	cfg.SkipTestOrders = true
	if v := os.Getenv("CONFIG_FILE"); v != "" {
		path = v
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config parse: %w", err)
		}
	}
	cfg.applyEnv()
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	setStr(&c.Shopify.ShopDomain, "SHOPIFY_SHOP_DOMAIN")
	setStr(&c.Shopify.AdminToken, "SHOPIFY_ADMIN_TOKEN")
	setStr(&c.Shopify.APIVersion, "SHOPIFY_API_VERSION")
	setStr(&c.Shopify.WebhookSecret, "SHOPIFY_WEBHOOK_SECRET")
	setStr(&c.Partner.BaseURL, "PARTNER_BASE_URL")
	setStr(&c.DatabaseURL, "DATABASE_URL")
	setStr(&c.RedisURL, "REDIS_URL")
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Partner.RateRPS = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Partner.RateBurst = n
		}
	}
	if v := os.Getenv("CODE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CodeMaxAttempts = n
		}
	}
	if v := os.Getenv("ANNOTATION_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Annotation.MaxAttempts = n
		}
	}
	if v := os.Getenv("SKIP_TEST_ORDERS"); v != "" {
		c.SkipTestOrders = v != "false" && v != "0"
	}
	if v := os.Getenv("PIPELINE_SYNC"); v != "" {
		c.PipelineSync = v == "true" || v == "1"
	}
	if v := os.Getenv("QUALIFYING_PRODUCTS"); v != "" {
		if m, err := ParseQualifyingProducts(v); err == nil {
			c.QualifyingProducts = m
		}
	}
}

// ParseQualifyingProducts parses "productID:prefix,productID:prefix" pairs.
func ParseQualifyingProducts(s string) (map[int64]string, error) {
	out := map[int64]string{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("qualifying products: bad pair %q", pair)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("qualifying products: bad product id %q", parts[0])
		}
		prefix := strings.TrimSpace(parts[1])
		if len(prefix) != 1 || prefix[0] < 'A' || prefix[0] > 'Z' {
			return nil, fmt.Errorf("qualifying products: prefix must be a single uppercase letter, got %q", prefix)
		}
		out[id] = prefix
	}
	return out, nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                int    `env:"PORT" envDefault:"8080"`
	DatabaseURL         string `env:"DATABASE_URL,required"`
	RedisURL            string `env:"REDIS_URL,required"`
	PaymentServiceURL   string `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:3006"`
	WarehouseServiceURL string `env:"WAREHOUSE_SERVICE_URL" envDefault:"http://localhost:3011"`
	OrderServiceURL     string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:3005"`
	WalletServiceURL    string `env:"WALLET_SERVICE_URL" envDefault:"http://localhost:3010"`
	BotUserID           string `env:"BOT_USER_ID"`
	InternalToken       string `env:"INTERNAL_SERVICE_TOKEN"`
	JoinRateLimitPerMin int    `env:"JOIN_RATE_LIMIT_PER_MIN" envDefault:"30"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.JoinRateLimitPerMin <= 0 {
		return fmt.Errorf("JOIN_RATE_LIMIT_PER_MIN must be positive")
	}

	if c.BotUserID == "" {
		log.Warn().Msg("BOT_USER_ID is empty: sessions will settle on real fill only, no synthetic demand")
	}

	if isProduction && c.InternalToken == "" {
		return fmt.Errorf("INTERNAL_SERVICE_TOKEN must be set in production (generate with: openssl rand -base64 32)")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

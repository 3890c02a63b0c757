// Package config содержит логику чтения конфигурации сервиса prism.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса prism.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	RendererAddress string        `env:"RENDERER_ADDRESS"`
	AdvisorAddress  string        `env:"ADVISOR_ADDRESS"`
	TicketTTL       time.Duration `env:"TICKET_TTL"`
	RedeemSecret    string        `env:"REDEEM_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRendererAddress := cfg.RendererAddress
	envAdvisorAddress := cfg.AdvisorAddress
	envTicketTTL := cfg.TicketTTL
	envRedeemSecret := cfg.RedeemSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RendererAddress, "r", "", "code rendering service address")
	flag.StringVar(&cfg.AdvisorAddress, "s", "", "AI suggestion service address")
	flag.DurationVar(&cfg.TicketTTL, "t", 30*time.Minute, "redemption ticket lifetime")
	flag.StringVar(&cfg.RedeemSecret, "k", "prism-redeem-secret", "ticket payload signing secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRendererAddress != "" {
		cfg.RendererAddress = envRendererAddress
	}
	if envAdvisorAddress != "" {
		cfg.AdvisorAddress = envAdvisorAddress
	}
	if envTicketTTL != 0 {
		cfg.TicketTTL = envTicketTTL
	}
	if envRedeemSecret != "" {
		cfg.RedeemSecret = envRedeemSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.TicketTTL <= 0 {
		cfg.TicketTTL = 30 * time.Minute
	}

	return cfg, nil
}

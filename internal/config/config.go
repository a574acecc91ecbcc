/**
 * @description
 * This file handles the configuration management for the controller service.
 * It uses the 'viper' library to load configuration from environment variables,
 * providing a centralized and consistent way to manage application settings.
 */
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	LedgerServiceURL string `mapstructure:"LEDGER_SERVICE_URL"`
	LedgerAPIKey     string `mapstructure:"LEDGER_API_KEY"`

	JWKSURL        string `mapstructure:"JWKS_URL"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	// TriggerAuthorities is the comma-separated allow-list of principals
	// permitted to invoke trigger. SchedulerAuthority is the identity the
	// embedded cron scan presents; it defaults to the first entry.
	TriggerAuthorities string `mapstructure:"TRIGGER_AUTHORITIES"`
	SchedulerAuthority string `mapstructure:"SCHEDULER_AUTHORITY"`

	TriggerScanSchedule string `mapstructure:"TRIGGER_SCAN_SCHEDULE"`

	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("TRIGGER_SCAN_SCHEDULE", "*/1 * * * *")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("LEDGER_SERVICE_URL")
	_ = viper.BindEnv("LEDGER_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("TRIGGER_AUTHORITIES")
	_ = viper.BindEnv("SCHEDULER_AUTHORITY")
	_ = viper.BindEnv("TRIGGER_SCAN_SCHEDULE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if config.DatabaseURL == "" {
		return config, fmt.Errorf("DATABASE_URL is required")
	}
	if config.LedgerServiceURL == "" {
		return config, fmt.Errorf("LEDGER_SERVICE_URL is required")
	}
	if strings.TrimSpace(config.TriggerAuthorities) == "" {
		return config, fmt.Errorf("TRIGGER_AUTHORITIES is required")
	}

	if config.SchedulerAuthority == "" {
		config.SchedulerAuthority = strings.TrimSpace(strings.Split(config.TriggerAuthorities, ",")[0])
	}

	return
}

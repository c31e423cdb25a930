package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Logger   Logger   `mapstructure:"logger"`
	Poller   Poller   `mapstructure:"poller"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string  `mapstructure:"api_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port       int    `mapstructure:"port"`
	AuthSecret string `mapstructure:"auth_secret"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Poller holds the timing configuration for the background tasks.
type Poller struct {
	// Interval between reconciliation passes, in seconds.
	Interval int `mapstructure:"interval"`
	// ExchangeInfoRefresh is the exchange-info cache refresh interval, in seconds.
	ExchangeInfoRefresh int `mapstructure:"exchange_info_refresh"`
	// FillCheckWait is how long to wait after a market order before the
	// first status check, in seconds.
	FillCheckWait int `mapstructure:"fill_check_wait"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; everything can come from the
// environment (BINANCE_API_KEY, SERVER_AUTH_SECRET, ...).
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Defaults also register the keys so AutomaticEnv can find them.
	viper.SetDefault("binance.api_key", "")
	viper.SetDefault("binance.secret_key", "")
	viper.SetDefault("binance.base_url", "")
	viper.SetDefault("binance.rate_limit", 20)      // requests per second
	viper.SetDefault("binance.rate_limit_burst", 5) // burst size
	viper.SetDefault("server.port", 4000)
	viper.SetDefault("server.auth_secret", "")
	viper.SetDefault("database.dsn", "trades.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("poller.interval", 60)
	viper.SetDefault("poller.exchange_info_refresh", 3600)
	viper.SetDefault("poller.fill_check_wait", 2)

	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}

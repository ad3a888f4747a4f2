package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DB       *DBconfig
	RabbitMq *RabbitMqconfig
	Srv      *Serviceconfig
	App      *Appconfig
	Log      *Loggerconfig
}

type DBconfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMqconfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type Serviceconfig struct {
	AuthServicePort     string `yaml:"auth_service"`
	BookingServicePort  string `yaml:"booking_service"`
	DispatchServicePort string `yaml:"dispatch_service"`
}

type Appconfig struct {
	JwtSecret string `yaml:"jwt_secret"`

	// Reservation holds.
	DefaultHoldTTLSeconds int `yaml:"default_hold_ttl_seconds"`
	MinHoldTTLSeconds     int `yaml:"min_hold_ttl_seconds"`
	MaxHoldTTLSeconds     int `yaml:"max_hold_ttl_seconds"`

	// Dispatch fan-out.
	MaxOfferFanout        int `yaml:"max_offer_fanout"`
	ReofferIntervalSec    int `yaml:"reoffer_interval_seconds"`
	MaxReofferAttempts    int `yaml:"max_reoffer_attempts"`
	DefaultSearchRadiusKm int `yaml:"default_search_radius_km"`
}

type Loggerconfig struct {
	Level string `yaml:"level"`
}

func New() (*Config, error) {
	getEnv := func(key, def string) string {
		val := os.Getenv(key)
		if val == "" {
			fmt.Printf("using default for %v: %v\n", key, def)
			return def
		}
		return val
	}

	getEnvInt := func(key string, def int) int {
		valStr := os.Getenv(key)
		if valStr == "" {
			fmt.Printf("using default for %v: %v\n", key, def)
			return def
		}
		val, err := strconv.Atoi(valStr)
		if err != nil {
			fmt.Printf("using default for %v: %v\n", key, def)
			return def
		}
		return val
	}

	cnf := &Config{
		DB: &DBconfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "medilink_user"),
			Password: getEnv("DB_PASSWORD", "medilink_pass"),
			Database: getEnv("DB_NAME", "medilink_db"),
		},
		RabbitMq: &RabbitMqconfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnvInt("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", ""),
		},
		Srv: &Serviceconfig{
			AuthServicePort:     getEnv("AUTH_SERVICE_PORT", "3000"),
			BookingServicePort:  getEnv("BOOKING_SERVICE_PORT", "3001"),
			DispatchServicePort: getEnv("DISPATCH_SERVICE_PORT", "3002"),
		},
		App: &Appconfig{
			JwtSecret:             getEnv("JWT_SECRET", "medilink-dev-secret"),
			DefaultHoldTTLSeconds: getEnvInt("DEFAULT_HOLD_TTL_SECONDS", 180),
			MinHoldTTLSeconds:     getEnvInt("MIN_HOLD_TTL_SECONDS", 10),
			MaxHoldTTLSeconds:     getEnvInt("MAX_HOLD_TTL_SECONDS", 900),
			MaxOfferFanout:        getEnvInt("MAX_OFFER_FANOUT", 10),
			ReofferIntervalSec:    getEnvInt("REOFFER_INTERVAL_SECONDS", 30),
			MaxReofferAttempts:    getEnvInt("MAX_REOFFER_ATTEMPTS", 5),
			DefaultSearchRadiusKm: getEnvInt("DEFAULT_SEARCH_RADIUS_KM", 15),
		},
		Log: &Loggerconfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}

	return cnf, nil
}

package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    Server
	Database  Database
	JWT       JWT
	Websocket Websocket
}

type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Database struct {
	DSN string
}

type JWT struct {
	AccessSecret string
}

type Websocket struct {
	// AllowedOrigins is a comma-separated list; "*" disables the origin check.
	AllowedOrigins string
}

// Load reads NOMU_* environment variables into a Config. The .env file, if
// any, must already have been loaded by the caller.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOMU")
	v.AutomaticEnv()

	v.SetDefault("ADDR", ":8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("WS_ALLOWED_ORIGINS", "*")

	timeout, err := time.ParseDuration(v.GetString("SHUTDOWN_TIMEOUT"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: Server{
			Addr:            v.GetString("ADDR"),
			ShutdownTimeout: timeout,
		},
		Database: Database{
			DSN: v.GetString("DATABASE_URL"),
		},
		JWT: JWT{
			AccessSecret: v.GetString("ACCESS_SECRET"),
		},
		Websocket: Websocket{
			AllowedOrigins: v.GetString("WS_ALLOWED_ORIGINS"),
		},
	}, nil
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries every setting the bot needs. It is built once in main
// and injected through the App context; nothing reads the environment
// after startup.
type Config struct {
	DiscordToken    string   `yaml:"discord_token"`
	ClientID        string   `yaml:"client_id"`
	EventChannelID  string   `yaml:"event_channel_id"`
	AuthorizedUsers []string `yaml:"authorized_users"`

	RedisAddr    string `yaml:"redis_addr"`
	StoreBackend string `yaml:"store_backend"` // "redis" (default) or "postgres"

	DebugAddr  string `yaml:"debug_addr"`
	DebugToken string `yaml:"debug_token"`
}

func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ Warning: .env file not found, using system environment variables")
	}
}

// LoadConfig reads settings from the environment, then overlays an
// optional config.yaml from the working directory.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		ClientID:        os.Getenv("CLIENT_ID"),
		EventChannelID:  strings.TrimSpace(os.Getenv("EVENT_CHANNEL_ID")),
		AuthorizedUsers: parseAllowList(os.Getenv("AUTHORIZED_USERS")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		StoreBackend:    os.Getenv("STORE_BACKEND"),
		DebugAddr:       os.Getenv("DEBUG_ADDR"),
		DebugToken:      os.Getenv("DEBUG_TOKEN"),
	}

	data, err := os.ReadFile("config.yaml")
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.yaml: %w", err)
		}
		log.Println("Configuration loaded from config.yaml")
	case errors.Is(err, fs.ErrNotExist):
		// Env-only configuration is the common case.
	default:
		return nil, fmt.Errorf("config.yaml: %w", err)
	}

	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "redis"
	}

	if cfg.DiscordToken == "" {
		return nil, errors.New("DISCORD_TOKEN is missing")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("CLIENT_ID is missing")
	}
	if cfg.EventChannelID == "" {
		return nil, errors.New("EVENT_CHANNEL_ID is missing")
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"os"

	"github.com/pager/server/internal/notify"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL    string
	Port           string
	JWTSecret      string
	ServerURL      string
	MediaDir       string
	AdminGroupName string
	ExpoPushURL    string
	DevMode        bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           "8149",
		MediaDir:       "./media/img",
		AdminGroupName: "Admin Group Group",
		ExpoPushURL:    notify.DefaultExpoPushURL,
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	// Public base URL clients use to fetch media, defaults to the bind port
	// on localhost for development
	cfg.ServerURL = os.Getenv("SERVER_URL")
	if cfg.ServerURL == "" {
		cfg.ServerURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	if dir := os.Getenv("MEDIA_DIR"); dir != "" {
		cfg.MediaDir = dir
	}

	if name := os.Getenv("ADMIN_GROUP_NAME"); name != "" {
		cfg.AdminGroupName = name
	}

	if u := os.Getenv("EXPO_PUSH_URL"); u != "" {
		cfg.ExpoPushURL = u
	}

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	return cfg, nil
}

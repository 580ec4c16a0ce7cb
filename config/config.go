package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	AppName     = "appraisald"
	EnvFileName = "config.env"
)

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// Config holds the runtime configuration read from the environment.
type Config struct {
	GeminiAPIKey string
	DBPath       string
	DataKey      string
	OutputDir    string
	ListenAddr   string

	// Price research backend; research is disabled when BaseURL is empty.
	PriceAPIBaseURL string
	PriceAPIKey     string
}

// FromEnv reads the configuration from environment variables. GEMINI_API_KEY
// and APPRAISAL_DATA_KEY are required; everything else has a default.
func FromEnv() (*Config, error) {
	cfg := &Config{
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DBPath:          envOr("APPRAISAL_DB_PATH", "appraisals.db"),
		DataKey:         os.Getenv("APPRAISAL_DATA_KEY"),
		OutputDir:       envOr("APPRAISAL_OUTPUT_DIR", "reports"),
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		PriceAPIBaseURL: os.Getenv("PRICE_API_BASE_URL"),
		PriceAPIKey:     os.Getenv("PRICE_API_KEY"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if cfg.DataKey == "" {
		return nil, fmt.Errorf("APPRAISAL_DATA_KEY is not set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

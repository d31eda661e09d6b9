package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort             string
	BinanceBaseURL      string
	BinanceStreamURL    string
	Symbols             []string
	PollInterval        time.Duration
	FundingHistoryLimit int
	NotionalUSD         float64
	PeriodsPerYear      float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment directly")
	}

	return &Config{
		AppPort:             getEnv("APP_PORT", "3000"),
		BinanceBaseURL:      getEnv("BINANCE_BASE_URL", ""),
		BinanceStreamURL:    getEnv("BINANCE_WS_URL", ""),
		Symbols:             splitList(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT")),
		PollInterval:        time.Duration(getEnvInt("POLL_INTERVAL_SEC", 30)) * time.Second,
		FundingHistoryLimit: getEnvInt("FUNDING_HISTORY_LIMIT", 90),
		NotionalUSD:         getEnvFloat("NOTIONAL_USD", 100000),
		// 3 funding intervals per day, 365 days.
		PeriodsPerYear: getEnvFloat("PERIODS_PER_YEAR", 1095),
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid value for %s, using default %d", key, fallback)
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("invalid value for %s, using default %v", key, fallback)
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr      string
	RPCURL          string
	ChainID         int64
	DatabaseDSN     string
	TreasuryAddress string
	TreasuryPrivKey string
	ClaimAmountWei  string
	Confirmations   uint64
	Candidates      []string
	LogLevel        string
	Environment     string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		RPCURL:          getEnv("RPC_URL", "https://mainnet.base.org"),
		ChainID:         getEnvInt64("CHAIN_ID", 8453),
		DatabaseDSN:     getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=castgate port=5432 sslmode=disable"),
		TreasuryAddress: getEnv("TREASURY_ADDRESS", ""),
		TreasuryPrivKey: getEnv("TREASURY_PRIVATE_KEY", ""),
		ClaimAmountWei:  getEnv("CLAIM_AMOUNT_WEI", "1000000000000000000"),
		Confirmations:   uint64(getEnvInt64("CONFIRMATIONS", 1)),
		Candidates:      strings.Split(getEnv("PREDICTION_CANDIDATES", "up,down"), ","),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Environment:     getEnv("ENVIRONMENT", "development"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

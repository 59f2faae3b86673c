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
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	OTP   OTPConfig
	Order OrderConfig

	CallbackBaseURL string
	GatewayTimeout  time.Duration
	Bkash           BkashConfig
	SSLCommerz      SSLCommerzConfig

	SMSBaseURL string
	SMSAPIKey  string
	SMSSender  string
}

type OTPConfig struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	VerifiedWindow time.Duration
	// Store selects the challenge backend: "postgres" or "redis".
	Store            string
	RequiredForGuest bool
}

type OrderConfig struct {
	NumberPrefix string
}

type BkashConfig struct {
	BaseURL   string
	AppKey    string
	AppSecret string
	Username  string
	Password  string
}

type SSLCommerzConfig struct {
	BaseURL       string
	StoreID       string
	StorePassword string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    getenv("APP_PORT", "8080"),
		AppEnv:     os.Getenv("APP_ENV"),
		JWTSecret:  os.Getenv("SECRET_KEY"),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "storefront.orders"),

		OTP: OTPConfig{
			TTL:              getDuration("OTP_TTL", 5*time.Minute),
			ResendCooldown:   getDuration("OTP_RESEND_COOLDOWN", 60*time.Second),
			VerifiedWindow:   getDuration("OTP_VERIFIED_WINDOW", 30*time.Minute),
			Store:            getenv("OTP_STORE", "postgres"),
			RequiredForGuest: getBool("OTP_REQUIRED_FOR_GUEST", true),
		},
		Order: OrderConfig{
			NumberPrefix: getenv("ORDER_NUMBER_PREFIX", "ORD"),
		},

		CallbackBaseURL: os.Getenv("CALLBACK_BASE_URL"),
		GatewayTimeout:  getDuration("GATEWAY_TIMEOUT", 15*time.Second),
		Bkash: BkashConfig{
			BaseURL:   getenv("BKASH_BASE_URL", "https://tokenized.sandbox.bka.sh/v1.2.0-beta"),
			AppKey:    os.Getenv("BKASH_APP_KEY"),
			AppSecret: os.Getenv("BKASH_APP_SECRET"),
			Username:  os.Getenv("BKASH_USERNAME"),
			Password:  os.Getenv("BKASH_PASSWORD"),
		},
		SSLCommerz: SSLCommerzConfig{
			BaseURL:       getenv("SSLCOMMERZ_BASE_URL", "https://sandbox.sslcommerz.com"),
			StoreID:       os.Getenv("SSLCOMMERZ_STORE_ID"),
			StorePassword: os.Getenv("SSLCOMMERZ_STORE_PASSWORD"),
		},

		SMSBaseURL: os.Getenv("SMS_BASE_URL"),
		SMSAPIKey:  os.Getenv("SMS_API_KEY"),
		SMSSender:  os.Getenv("SMS_SENDER_ID"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid duration for %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

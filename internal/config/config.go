package config

import (
	"errors"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	BackendBaseURL string
	BackendTimeout time.Duration

	PollInterval time.Duration
	PollAttempts int

	AttributionTTL         time.Duration
	AttributionFallbackTTL time.Duration
	AttributionParams      []string // query parameters inspected on route entry

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	VisitorTokenSecret string
	VisitorTokenTTL    time.Duration
	SessionIdleTimeout time.Duration
	AllowedOrigins     []string // CORS allowed origins; credentials are allowed, so never "*" in production

	SNSRegion string

	TwinPort              string
	TwinSNSEnable         bool
	TwinDeliverAfterPolls int
	TwinWhatsAppIncapable []string // phones that cannot receive WhatsApp
	TwinUndeliverable     []string // phones whose messages always fail
	TwinReferralBaseURL   string
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Attributions string
}

// DefaultAllowedOrigins covers local frontends only.
const DefaultAllowedOrigins = "http://localhost:3000,http://localhost:5173"

// ErrWildcardOrigin is returned by Validate for a production config that
// lets any site make credentialed requests.
var ErrWildcardOrigin = errors.New(`ALLOWED_ORIGINS must list concrete origins in production, not "*"`)

// Validate rejects settings that are unsafe for the current environment.
func (c *Config) Validate() error {
	if c.AppEnv == "production" && slices.Contains(c.AllowedOrigins, "*") {
		return ErrWildcardOrigin
	}
	return nil
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:                getEnv("APP_PORT", "3000"),
		AppEnv:                 getEnv("APP_ENV", "development"),
		BackendBaseURL:         strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://localhost:4000"), "/"),
		BackendTimeout:         time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 10)) * time.Second,
		PollInterval:           time.Duration(getEnvInt("DELIVERY_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		PollAttempts:           getEnvInt("DELIVERY_POLL_ATTEMPTS", 10),
		AttributionTTL:         time.Duration(getEnvInt("ATTRIBUTION_TTL_DAYS", 30)) * 24 * time.Hour,
		AttributionFallbackTTL: time.Duration(getEnvInt("ATTRIBUTION_FALLBACK_TTL_HOURS", 24)) * time.Hour,
		AttributionParams:      splitList(getEnv("ATTRIBUTION_QUERY_PARAMS", "ref,referral")),
		AWSRegion:              getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL:         getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID:         getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:           getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Attributions: getEnv("DYNAMO_TABLE_ATTRIBUTIONS", "referral_attributions"),
		},
		VisitorTokenSecret: getEnv("VISITOR_TOKEN_SECRET", ""),
		VisitorTokenTTL:    time.Duration(getEnvInt("VISITOR_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
		SessionIdleTimeout: time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", DefaultAllowedOrigins)),
		SNSRegion:          getEnv("SNS_REGION", "us-east-1"),

		TwinPort:              getEnv("TWIN_PORT", "4000"),
		TwinSNSEnable:         getEnvBool("TWIN_SNS_ENABLED", false),
		TwinDeliverAfterPolls: getEnvInt("TWIN_DELIVER_AFTER_POLLS", 2),
		TwinWhatsAppIncapable: splitList(getEnv("TWIN_WHATSAPP_INCAPABLE", "")),
		TwinUndeliverable:     splitList(getEnv("TWIN_UNDELIVERABLE", "")),
		TwinReferralBaseURL:   strings.TrimRight(getEnv("TWIN_REFERRAL_BASE_URL", "https://refer.example/r"), "/"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

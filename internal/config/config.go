package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig configures the terminal client and its flow controllers
type ClientConfig struct {
	Env                 string
	APIBaseURL          string
	HTTPTimeout         time.Duration
	TickInterval        time.Duration
	CodeMinLength       int
	CodeMaxLength       int
	CredentialMinLength int
}

// AuthorityConfig configures the development authority server
type AuthorityConfig struct {
	Server ServerConfig
	OTP    OTPConfig
	Email  EmailConfig
}

type ServerConfig struct {
	Port                   string
	Env                    string
	AllowedOrigins         []string
	TrustedProxies         []string
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	IdleTimeout            time.Duration
	AuthRateLimitPerMinute int
}

type OTPConfig struct {
	CorrelationTokenSecret string
	CorrelationTokenTTL    time.Duration
	AccessTokenTTL         time.Duration
	SignupExpiry           time.Duration
	ResetExpiry            time.Duration
	MaxAttempts            int
	Digits                 int
	CleanupInterval        time.Duration
	FailureDelay           time.Duration
	FailureJitter          time.Duration
}

type EmailConfig struct {
	AWSRegion string // empty selects the log mailer
	From      string
}

// LoadClient reads the client configuration from the environment and an optional .env file
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{
		Env:                 getEnv("ENV", "development"),
		APIBaseURL:          strings.TrimRight(getEnv("OTPFLOW_API_BASE_URL", "http://localhost:8000"), "/"),
		HTTPTimeout:         getEnvAsDuration("OTPFLOW_HTTP_TIMEOUT", 10*time.Second),
		TickInterval:        getEnvAsDuration("OTPFLOW_TICK_INTERVAL", time.Second),
		CodeMinLength:       getEnvAsInt("OTPFLOW_CODE_MIN_LENGTH", 4),
		CodeMaxLength:       getEnvAsInt("OTPFLOW_CODE_MAX_LENGTH", 6),
		CredentialMinLength: getEnvAsInt("OTPFLOW_CREDENTIAL_MIN_LENGTH", 6),
	}

	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		return nil, fmt.Errorf("OTPFLOW_API_BASE_URL must be an http(s) URL (got %q)", cfg.APIBaseURL)
	}
	if cfg.CodeMinLength <= 0 || cfg.CodeMaxLength < cfg.CodeMinLength {
		return nil, fmt.Errorf("invalid code length bounds %d..%d", cfg.CodeMinLength, cfg.CodeMaxLength)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("OTPFLOW_TICK_INTERVAL must be positive")
	}

	return cfg, nil
}

// LoadAuthority reads the authority configuration from the environment and an optional .env file
func LoadAuthority() (*AuthorityConfig, error) {
	_ = godotenv.Load()

	secret := getEnv("CORRELATION_TOKEN_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("CORRELATION_TOKEN_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &AuthorityConfig{
		Server: ServerConfig{
			Port:                   getEnv("PORT", "8000"),
			Env:                    env,
			AllowedOrigins:         parseAllowedOrigins(env),
			TrustedProxies:         parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:            getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AuthRateLimitPerMinute: getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
		},
		OTP: OTPConfig{
			CorrelationTokenSecret: secret,
			CorrelationTokenTTL:    getEnvAsDuration("CORRELATION_TOKEN_TTL", 30*time.Minute),
			AccessTokenTTL:         getEnvAsDuration("ACCESS_TOKEN_TTL", 60*time.Minute),
			SignupExpiry:           getEnvAsDuration("SIGNUP_OTP_EXPIRY", 5*time.Minute),
			ResetExpiry:            getEnvAsDuration("RESET_OTP_EXPIRY", 2*time.Minute),
			MaxAttempts:            getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			Digits:                 getEnvAsInt("OTP_DIGITS", 6),
			CleanupInterval:        getEnvAsDuration("CHALLENGE_CLEANUP_INTERVAL", 10*time.Minute),
			FailureDelay:           getEnvAsDuration("OTP_FAILURE_DELAY", 250*time.Millisecond),
			FailureJitter:          getEnvAsDuration("OTP_FAILURE_JITTER", 100*time.Millisecond),
		},
		Email: EmailConfig{
			AWSRegion: getEnv("AWS_REGION", ""),
			From:      getEnv("EMAIL_FROM", "no-reply@otpflow.local"),
		},
	}

	if err := validateTokenSecret(secret, env); err != nil {
		return nil, err
	}
	if cfg.OTP.Digits != 6 && cfg.OTP.Digits != 8 {
		return nil, fmt.Errorf("OTP_DIGITS must be 6 or 8 (got %d)", cfg.OTP.Digits)
	}
	if cfg.OTP.MaxAttempts <= 0 {
		return nil, fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	// the token must outlive the code or a reset after verification would be impossible
	if cfg.OTP.CorrelationTokenTTL < cfg.OTP.SignupExpiry || cfg.OTP.CorrelationTokenTTL < cfg.OTP.ResetExpiry {
		return nil, fmt.Errorf("CORRELATION_TOKEN_TTL must not be shorter than the OTP expiry")
	}

	return cfg, nil
}

// validateTokenSecret enforces minimum security standards for the signing secret
func validateTokenSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("CORRELATION_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("CORRELATION_TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}

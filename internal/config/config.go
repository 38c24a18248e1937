package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Twilio TwilioConfig
	Push   PushConfig
	Calls  CallsConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// TwilioConfig carries provider credentials. Voice/SMS credentials and the
// video API key are independent capabilities: either may be absent, in which
// case the corresponding feature runs simulated (voice/SMS) or disabled (video).
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	APIKeySID    string
	APIKeySecret string

	// CallbackBaseURL is the externally reachable base URL the provider
	// calls back on, e.g. https://caller.example.com
	CallbackBaseURL string
}

// Simulated reports whether the process should run without a live provider.
func (t TwilioConfig) Simulated() bool {
	return t.AccountSID == "" || t.AuthToken == ""
}

// VideoEnabled reports whether media access tokens can be issued.
func (t TwilioConfig) VideoEnabled() bool {
	return t.AccountSID != "" && t.APIKeySID != "" && t.APIKeySecret != ""
}

type PushConfig struct {
	// MaxObservers caps concurrently connected push channels.
	MaxObservers int

	HeartbeatInterval time.Duration
}

type CallsConfig struct {
	GCInterval         time.Duration
	TerminalRetention  time.Duration
	MaxRecordAge       time.Duration
	InboundRingTimeout time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.APIKeySID = strings.TrimSpace(os.Getenv("TWILIO_API_KEY_SID"))
	c.Twilio.APIKeySecret = os.Getenv("TWILIO_API_KEY_SECRET")
	c.Twilio.CallbackBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("CALLBACK_BASE_URL")), "/")

	c.Push.MaxObservers = optInt("PUSH_MAX_OBSERVERS", 1000)
	c.Push.HeartbeatInterval = optDuration("PUSH_HEARTBEAT_INTERVAL", 30*time.Second)

	c.Calls.GCInterval = optDuration("CALL_GC_INTERVAL", 5*time.Minute)
	c.Calls.TerminalRetention = optDuration("CALL_TERMINAL_RETENTION", time.Hour)
	c.Calls.MaxRecordAge = optDuration("CALL_MAX_AGE", 24*time.Hour)
	c.Calls.InboundRingTimeout = optDuration("INBOUND_RING_TIMEOUT", 45*time.Second)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	// Provider credentials are optional as a group (simulated mode), but a
	// partially configured provider is a deployment mistake worth failing on.
	if c.Twilio.AccountSID != "" {
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required when TWILIO_ACCOUNT_SID is set"))
		}
		if c.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required when TWILIO_ACCOUNT_SID is set"))
		}
		if c.Twilio.CallbackBaseURL == "" {
			errs = append(errs, errors.New("CALLBACK_BASE_URL is required when TWILIO_ACCOUNT_SID is set"))
		}
	}
	if c.IsProduction() && c.Twilio.Simulated() {
		errs = append(errs, errors.New("simulated provider mode is not allowed in production"))
	}

	if c.Push.MaxObservers <= 0 {
		errs = append(errs, fmt.Errorf("PUSH_MAX_OBSERVERS must be positive, got %d", c.Push.MaxObservers))
	}
	if c.Push.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("PUSH_HEARTBEAT_INTERVAL must be positive"))
	}
	if c.Calls.GCInterval <= 0 {
		errs = append(errs, errors.New("CALL_GC_INTERVAL must be positive"))
	}
	if c.Calls.TerminalRetention <= 0 {
		errs = append(errs, errors.New("CALL_TERMINAL_RETENTION must be positive"))
	}
	if c.Calls.MaxRecordAge <= c.Calls.TerminalRetention {
		errs = append(errs, errors.New("CALL_MAX_AGE must be greater than CALL_TERMINAL_RETENTION"))
	}
	if c.Calls.InboundRingTimeout <= 0 {
		errs = append(errs, errors.New("INBOUND_RING_TIMEOUT must be positive"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func optDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

package globals

import (
	"context"
	"database/sql"
	"errors"
	"steamcommunity/internal/sessiondb"
	"steamcommunity/lib/telemetry"
	"time"
)

type ctxKey struct{}

type Config struct {
	AccountName string `json:"account_name"`
	Password    string `json:"password"`
	// AuthCode answers an email steam guard challenge.
	AuthCode string `json:"auth_code"`
	// SharedSecret generates two factor login codes.
	SharedSecret string `json:"shared_secret"`
	// IdentitySecret generates confirmation keys.
	IdentitySecret        string  `json:"identity_secret"`
	CommunityURL          string  `json:"community_url"`
	APIURL                string  `json:"api_url"`
	RequestsPerSecond     float64 `json:"requests_per_second"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds"`
	PollIntervalSeconds   int     `json:"poll_interval_seconds"`
	CloudflareBypass      bool    `json:"cloudflare_bypass"`
	SessionDB             string  `json:"session_db"`
}

// DefaultConfig holds the values used for every field a config file leaves out.
func DefaultConfig() Config {
	return Config{
		RequestTimeoutSeconds: 30,
		PollIntervalSeconds:   30,
		SessionDB:             ".dev/sessions.db",
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.AccountName == "" {
		errs = append(errs, errors.New("account_name is required"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests_per_second cannot be negative"))
	}
	if c.RequestTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("request_timeout_seconds must be positive"))
	}
	if c.PollIntervalSeconds <= 0 {
		errs = append(errs, errors.New("poll_interval_seconds must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

type Value struct {
	Config  Config
	Verbose bool
	// DumpDir receives every request and response when set.
	DumpDir string

	DB        *sql.DB
	Store     sessiondb.Store
	Telemetry telemetry.Telemetry
}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, ctxKey{}, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(ctxKey{}).(*Value)
}

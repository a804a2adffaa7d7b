// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Identity provider
	IdentityProviderURL string        `env:"IDENTITY_PROVIDER_URL,required,notEmpty"`
	IdentityProviderKey string        `env:"IDENTITY_PROVIDER_KEY,required,notEmpty"`
	OAuthFlowTTL        time.Duration `env:"OAUTH_FLOW_TTL" envDefault:"10m"`

	// Application user service
	UserServiceURL string `env:"USER_SERVICE_URL" envDefault:"http://localhost:8000"`

	// Outbound HTTP
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"10s"`

	// Contact
	ContactEmail         string `env:"CONTACT_EMAIL" envDefault:"info@solidfoundation.com"`
	ContactRetentionDays int    `env:"CONTACT_RETENTION_DAYS" envDefault:"0"`

	// SMTP（未設定の場合は通知メールをログ出力のみとする）
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"no-reply@solidfoundation.com"`

	// Rate Limit (req/min/IP)
	RateLimitContact int `env:"RATE_LIMIT_CONTACT" envDefault:"5"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"20"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	AppURL     string `env:"APP_URL,required,notEmpty"`

	// Worker（空の場合はメトリクスを公開しない）
	WorkerMetricsPort string `env:"WORKER_METRICS_PORT"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("required environment variables are not set: %v", missingVars(err))
	}

	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	cfg.IdentityProviderURL = strings.TrimRight(cfg.IdentityProviderURL, "/")
	cfg.UserServiceURL = strings.TrimRight(cfg.UserServiceURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.AppURL, "https://")

	return cfg, nil
}

// SMTPEnabled はSMTP送信の設定がされているかを返す。
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// missingVars はenv.Parseのエラーから未設定の変数名を取り出す。
// 取り出せない場合は元のエラーをそのまま返す。
func missingVars(err error) any {
	var aggErr env.AggregateError
	if !errors.As(err, &aggErr) {
		return err
	}

	var missing []string
	for _, e := range aggErr.Errors {
		var notSet env.VarIsNotSetError
		var empty env.EmptyVarError
		switch {
		case errors.As(e, &notSet):
			missing = append(missing, notSet.Key)
		case errors.As(e, &empty):
			missing = append(missing, empty.Key)
		}
	}
	if len(missing) == 0 {
		return err
	}
	return missing
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	MailTransportLog  = "log"
	MailTransportSMTP = "smtp"
	MailTransportS3   = "s3"

	SMSTransportLog  = "log"
	SMSTransportHTTP = "http"
)

type Config struct {
	Port               string   `env:"PORT" envDefault:"8080"`
	MetricsAddr        string   `env:"METRICS_ADDR" envDefault:"127.0.0.1:9090"`
	Environment        string   `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL        string   `env:"DATABASE_URL"`
	AppBaseURL         string   `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RedisURL           string   `env:"REDIS_URL"`

	Postgres PostgresConfig `envPrefix:"PSQL_"`
	Reset    ResetConfig    `envPrefix:"RESET_"`
	Mail     MailConfig
	SMTP     SMTPConfig     `envPrefix:"SMTP_"`
	MailDrop MailDropConfig `envPrefix:"MAIL_DROP_"`
	AWS      AWSConfig      `envPrefix:"AWS_"`
	SMS      SMSConfig      `envPrefix:"SMS_"`
}

// PostgresConfig is used to build DatabaseURL when it is not set directly.
type PostgresConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME" envDefault:"asklytics"`
}

type ResetConfig struct {
	EmailTTL          time.Duration `env:"EMAIL_TTL" envDefault:"1h"`
	MobileTTL         time.Duration `env:"MOBILE_TTL" envDefault:"15m"`
	MinPasswordLength int           `env:"MIN_PASSWORD_LENGTH" envDefault:"8"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"12"`
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	DeliveryTimeout   time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`
	IssueCooldown     time.Duration `env:"ISSUE_COOLDOWN" envDefault:"0s"`
}

type MailConfig struct {
	Transport string `env:"MAIL_TRANSPORT" envDefault:"log"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

type MailDropConfig struct {
	Bucket string `env:"BUCKET"`
	Prefix string `env:"PREFIX" envDefault:"password-resets"`
	From   string `env:"FROM" envDefault:"no-reply@localhost"`
}

type AWSConfig struct {
	Region          string `env:"REGION"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

type SMSConfig struct {
	Transport   string `env:"TRANSPORT" envDefault:"log"`
	GatewayURL  string `env:"GATEWAY_URL"`
	APIKey      string `env:"API_KEY"`
	SenderID    string `env:"SENDER_ID"`
	CountryCode string `env:"COUNTRY_CODE" envDefault:"+91"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFromMap parses cfg from vars only, ignoring the process environment.
func LoadFromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.Postgres.URL()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p PostgresConfig) URL() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Host + ":" + p.Port,
		Path:   p.DBName,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) validate() error {
	var errs []error

	if u, err := url.Parse(c.AppBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("APP_BASE_URL must be an absolute URL, got %q", c.AppBaseURL))
	}
	if c.MetricsAddr == ":"+c.Port {
		errs = append(errs, errors.New("METRICS_ADDR must not share the public PORT"))
	}
	if c.Reset.EmailTTL <= 0 || c.Reset.MobileTTL <= 0 {
		errs = append(errs, errors.New("RESET_EMAIL_TTL and RESET_MOBILE_TTL must be positive"))
	}
	if c.Reset.StoreTimeout <= 0 || c.Reset.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("RESET_STORE_TIMEOUT and RESET_DELIVERY_TIMEOUT must be positive"))
	}
	if c.Reset.IssueCooldown > 0 && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when RESET_ISSUE_COOLDOWN is set"))
	}

	switch c.Mail.Transport {
	case MailTransportLog:
		if c.IsProduction() {
			errs = append(errs, errors.New("MAIL_TRANSPORT=log is not allowed in production"))
		}
	case MailTransportSMTP:
		if c.SMTP.Host == "" || c.SMTP.Port == 0 || c.SMTP.From == "" {
			errs = append(errs, errors.New("MAIL_TRANSPORT=smtp requires SMTP_HOST, SMTP_PORT and SMTP_FROM"))
		}
	case MailTransportS3:
		if c.MailDrop.Bucket == "" || c.AWS.Region == "" {
			errs = append(errs, errors.New("MAIL_TRANSPORT=s3 requires MAIL_DROP_BUCKET and AWS_REGION"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_TRANSPORT %q", c.Mail.Transport))
	}

	switch c.SMS.Transport {
	case SMSTransportLog:
		if c.IsProduction() {
			errs = append(errs, errors.New("SMS_TRANSPORT=log is not allowed in production"))
		}
	case SMSTransportHTTP:
		if c.SMS.GatewayURL == "" {
			errs = append(errs, errors.New("SMS_TRANSPORT=http requires SMS_GATEWAY_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SMS_TRANSPORT %q", c.SMS.Transport))
	}

	return errors.Join(errs...)
}

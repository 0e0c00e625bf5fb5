package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Server is the license server configuration.
type Server struct {
	Env              string
	HTTPAddr         string
	DatabaseDSN      string
	MigrateOnStart   bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	PaymentsEnabled  bool
	YooKassa         YooKassa
	AdminAccessKey   string
	PlansFile        string
	ExpiryNotice     time.Duration
	ExpiryBatchLimit int
}

type YooKassa struct {
	ShopID    string
	SecretKey string
	APIURL    string
	ReturnURL string
	Timeout   time.Duration
}

func (c Server) IsDev() bool {
	return c.Env == "dev"
}

// LoadServer reads and validates the server configuration.
func LoadServer(files ...string) (Server, error) {
	src, err := newSource(files...)
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Env:            src.str("APP_ENV", "prod"),
		HTTPAddr:       src.str("HTTP_ADDR", ":8080"),
		DatabaseDSN:    src.str("DB_DSN", ""),
		RedisAddr:      src.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  src.str("REDIS_PASSWORD", ""),
		AdminAccessKey: src.str("ADMIN_ACCESS_KEY", ""),
		PlansFile:      src.str("PLANS_FILE", ""),
		YooKassa: YooKassa{
			ShopID:    src.str("YOOKASSA_SHOP_ID", ""),
			SecretKey: src.str("YOOKASSA_SECRET_KEY", ""),
			APIURL:    src.str("YOOKASSA_API_URL", "https://api.yookassa.ru/v3"),
			ReturnURL: src.str("PAYMENT_RETURN_URL", ""),
		},
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			src.str("DB_USER", ""),
			src.str("DB_PASSWORD", ""),
			src.str("DB_HOST", "127.0.0.1"),
			src.str("DB_PORT", "3306"),
			src.str("DB_NAME", ""),
		)
		if src.str("DB_USER", "") == "" || src.str("DB_NAME", "") == "" {
			cfg.DatabaseDSN = ""
		}
	}

	var errs []error
	var e error
	if cfg.RedisDB, e = src.integer("REDIS_DB", 0); e != nil {
		errs = append(errs, e)
	}
	if cfg.MigrateOnStart, e = src.boolean("MIGRATE_ON_START", false); e != nil {
		errs = append(errs, e)
	}
	if cfg.PaymentsEnabled, e = src.boolean("PAYMENTS_ENABLED", true); e != nil {
		errs = append(errs, e)
	}
	if cfg.YooKassa.Timeout, e = src.duration("YOOKASSA_TIMEOUT", 30*time.Second); e != nil {
		errs = append(errs, e)
	}
	if cfg.ExpiryNotice, e = src.duration("EXPIRY_NOTICE_WINDOW", 72*time.Hour); e != nil {
		errs = append(errs, e)
	}
	if cfg.ExpiryBatchLimit, e = src.integer("EXPIRY_BATCH_LIMIT", 500); e != nil {
		errs = append(errs, e)
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Server{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Server) validate() []error {
	var errs []error
	if err := required("DB_DSN", c.DatabaseDSN); err != nil {
		errs = append(errs, err)
	}
	if err := required("ADMIN_ACCESS_KEY", c.AdminAccessKey); err != nil {
		errs = append(errs, err)
	} else if len(c.AdminAccessKey) < 16 {
		errs = append(errs, fmt.Errorf("%w: ADMIN_ACCESS_KEY must be at least 16 characters", ErrInvalid))
	}
	if c.PaymentsEnabled {
		if err := required("YOOKASSA_SHOP_ID", c.YooKassa.ShopID); err != nil {
			errs = append(errs, err)
		}
		if err := required("YOOKASSA_SECRET_KEY", c.YooKassa.SecretKey); err != nil {
			errs = append(errs, err)
		}
		if err := required("PAYMENT_RETURN_URL", c.YooKassa.ReturnURL); err != nil {
			errs = append(errs, err)
		}
		if _, err := url.ParseRequestURI(c.YooKassa.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("%w: YOOKASSA_API_URL: %v", ErrInvalid, err))
		}
	}
	if c.ExpiryBatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("%w: EXPIRY_BATCH_LIMIT must be positive", ErrInvalid))
	}
	return errs
}

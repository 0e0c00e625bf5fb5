package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultHTTPTimeout     = 15 * time.Second
	DefaultFreshnessWindow = 7 * 24 * time.Hour
	DefaultClientDir       = ".license-sync"
)

// Client is the configuration of the verification client.
type Client struct {
	ServerURL         string
	Dir               string
	HTTPTimeout       time.Duration
	FreshnessWindow   time.Duration
	ClientVersion     string
	DemoMode          bool
	AllowInsecureHTTP bool
}

// LoadClient reads and validates the client configuration.
func LoadClient(files ...string) (Client, error) {
	src, err := newSource(files...)
	if err != nil {
		return Client{}, err
	}

	cfg := Client{
		ServerURL:     strings.TrimRight(src.str("LICENSE_SERVER_URL", ""), "/"),
		Dir:           src.str("LICENSE_CLIENT_DIR", ""),
		ClientVersion: src.str("CLIENT_VERSION", "2.2.0"),
	}

	var errs []error
	var e error
	if cfg.HTTPTimeout, e = src.duration("LICENSE_HTTP_TIMEOUT", DefaultHTTPTimeout); e != nil {
		errs = append(errs, e)
	}
	if cfg.FreshnessWindow, e = src.duration("LICENSE_FRESHNESS_WINDOW", DefaultFreshnessWindow); e != nil {
		errs = append(errs, e)
	}
	if cfg.DemoMode, e = src.boolean("LICENSE_DEMO_MODE", false); e != nil {
		errs = append(errs, e)
	}
	if cfg.AllowInsecureHTTP, e = src.boolean("LICENSE_ALLOW_INSECURE_HTTP", false); e != nil {
		errs = append(errs, e)
	}

	if cfg.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			errs = append(errs, fmt.Errorf("resolving home directory: %w", err))
		} else {
			cfg.Dir = filepath.Join(home, DefaultClientDir)
		}
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Client{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Client) validate() []error {
	var errs []error
	if err := required("LICENSE_SERVER_URL", c.ServerURL); err != nil {
		return append(errs, err)
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return append(errs, fmt.Errorf("%w: LICENSE_SERVER_URL must be an absolute URL", ErrInvalid))
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !c.AllowInsecureHTTP {
			errs = append(errs, fmt.Errorf("%w: LICENSE_SERVER_URL uses http; set LICENSE_ALLOW_INSECURE_HTTP=true for development", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unsupported LICENSE_SERVER_URL scheme %q", ErrInvalid, u.Scheme))
	}
	return errs
}

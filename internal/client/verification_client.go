// Package client verifies a license against the license server and keeps the
// local cache that allows offline use.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/umit144/license-sync/internal/api"
	"github.com/umit144/license-sync/internal/config"
	"github.com/umit144/license-sync/internal/logger"
	"github.com/umit144/license-sync/internal/models"
	"go.uber.org/zap"
)

// ErrNetwork marks a verification attempt that got no usable answer.
var ErrNetwork = errors.New("license server unreachable")

const networkErrorMessage = "could not verify subscription, check your internet connection"

// Result is the outcome of a verification. Denials set Error and the flag
// that explains them.
type Result struct {
	Valid       bool
	Email       string
	Expires     time.Time
	Plan        string
	Status      string
	DaysLeft    int
	DeviceBound bool
	LastChecked time.Time

	Cached  bool
	Offline bool

	Error          string
	Expired        bool
	DeviceConflict bool
	NetworkError   bool
	Details        string
}

func (Result) reply() {}

type VerificationClient struct {
	serverURL string
	version   string
	freshness time.Duration
	timeout   time.Duration
	http      *http.Client

	store    Storage
	cache    *LicenseCache
	identity *DeviceIdentity
	log      *zap.Logger
	now      func() time.Time
}

func NewVerificationClient(cfg config.Client, store Storage, log *zap.Logger, now func() time.Time) *VerificationClient {
	if now == nil {
		now = time.Now
	}
	return &VerificationClient{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		version:   cfg.ClientVersion,
		freshness: cfg.FreshnessWindow,
		timeout:   cfg.HTTPTimeout,
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		store:     store,
		cache:     NewLicenseCache(store),
		identity:  NewDeviceIdentity(store, log, now),
		log:       log,
		now:       now,
	}
}

func (c *VerificationClient) Identity() *DeviceIdentity { return c.identity }

// Verify answers from a fresh cache entry when possible, otherwise asks the
// server. When the server cannot be reached an unexpired cache entry is
// accepted regardless of its age.
func (c *VerificationClient) Verify(ctx context.Context, email, licenseKey string) Result {
	email = models.NormalizeEmail(email)
	licenseKey = strings.TrimSpace(licenseKey)
	if email == "" || licenseKey == "" {
		return Result{Error: "email and license key are required"}
	}

	now := c.now()
	entry, err := c.cache.Read()
	if err != nil {
		c.log.Warn("cache read failed", zap.Error(err))
	}
	if entry.fresh(email, now, c.freshness) {
		c.log.Debug("using cached subscription data")
		return cachedResult(entry, now, false)
	}

	fp := c.identity.GetOrCreate()
	c.log.Info("checking subscription online", zap.String("email", email), logger.MaskKey(licenseKey), zap.String("fingerprint", fp.Value))

	resp, err := c.call(ctx, api.VerifyRequest{
		Email:             email,
		LicenseKey:        licenseKey,
		DeviceFingerprint: fp.Value,
		PluginVersion:     c.version,
	})
	if err != nil {
		c.log.Warn("online verification failed", zap.Error(err))
		return c.fallback(email, now, err)
	}

	if !resp.Valid {
		msg := resp.Error
		if msg == "" {
			msg = "subscription is not valid"
		}
		return Result{
			Email:          email,
			Error:          msg,
			Expired:        resp.Expired,
			DeviceConflict: resp.DeviceConflict,
		}
	}

	res := Result{
		Valid:       true,
		Email:       email,
		Plan:        resp.Plan,
		Status:      resp.Status,
		DaysLeft:    resp.DaysLeft,
		DeviceBound: resp.DeviceBound,
		LastChecked: now,
	}
	if resp.Expires != nil {
		res.Expires = *resp.Expires
	}
	if resp.Email != "" {
		res.Email = resp.Email
	}
	c.remember(res, licenseKey, now)
	return res
}

// IsActive verifies the stored credentials. Any failure counts as inactive.
func (c *VerificationClient) IsActive(ctx context.Context) bool {
	email, key, err := c.credentials()
	if err != nil || email == "" || key == "" {
		return false
	}
	return c.Verify(ctx, email, key).Valid
}

// Reset forgets the cached verification and stored credentials. The device
// fingerprint is kept.
func (c *VerificationClient) Reset() error {
	if err := c.store.Delete(KeySubscriptionCache, KeyUserEmail, KeyLicenseKey); err != nil {
		return fmt.Errorf("clearing subscription data: %w", err)
	}
	return nil
}

func (c *VerificationClient) remember(res Result, licenseKey string, now time.Time) {
	err := c.cache.Write(CacheEntry{
		Valid:       true,
		Expires:     res.Expires,
		LastChecked: now,
		Email:       res.Email,
		Plan:        res.Plan,
		DaysLeft:    res.DaysLeft,
	})
	if err == nil {
		err = c.storeCredentials(res.Email, licenseKey)
	}
	if err != nil {
		c.log.Warn("failed to persist verification", zap.Error(err))
	}
}

func (c *VerificationClient) storeCredentials(email, licenseKey string) error {
	if err := c.store.Set(KeyUserEmail, email); err != nil {
		return err
	}
	return c.store.Set(KeyLicenseKey, licenseKey)
}

func (c *VerificationClient) credentials() (string, string, error) {
	email, _, err := c.store.Get(KeyUserEmail)
	if err != nil {
		return "", "", err
	}
	key, _, err := c.store.Get(KeyLicenseKey)
	if err != nil {
		return "", "", err
	}
	return email, key, nil
}

func (c *VerificationClient) fallback(email string, now time.Time, cause error) Result {
	entry, err := c.cache.Read()
	if err != nil {
		c.log.Warn("cache fallback failed", zap.Error(err))
	}
	if entry.usable(email, now) {
		c.log.Info("using cached data due to network error")
		return cachedResult(entry, now, true)
	}
	return Result{
		Email:        email,
		Error:        networkErrorMessage,
		NetworkError: true,
		Details:      cause.Error(),
	}
}

func cachedResult(entry *CacheEntry, now time.Time, networkError bool) Result {
	return Result{
		Valid:        true,
		Email:        entry.Email,
		Expires:      entry.Expires,
		Plan:         entry.Plan,
		DaysLeft:     models.DaysUntil(entry.Expires, now),
		LastChecked:  entry.LastChecked,
		Cached:       true,
		Offline:      true,
		NetworkError: networkError,
	}
}

// call posts the request. Transport failures, 5xx answers and bodies that are
// not a verification response are reported as ErrNetwork.
func (c *VerificationClient) call(ctx context.Context, body api.VerifyRequest) (*api.VerifyResponse, error) {
	var out api.VerifyResponse
	status, err := c.post(ctx, api.PathVerify, body, &out)
	if status >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: HTTP %d", ErrNetwork, status)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// post returns the HTTP status whenever a response arrived.
func (c *VerificationClient) post(ctx context.Context, path string, body, out any) (int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: reading response: %v", ErrNetwork, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: HTTP %d: unexpected response body", ErrNetwork, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

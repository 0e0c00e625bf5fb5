package client

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fingerprint identifies this installation. A Degraded fingerprint could not
// be persisted and changes between calls.
type Fingerprint struct {
	Value    string
	Degraded bool
}

type DeviceIdentity struct {
	store Storage
	log   *zap.Logger
	now   func() time.Time
}

func NewDeviceIdentity(store Storage, log *zap.Logger, now func() time.Time) *DeviceIdentity {
	if now == nil {
		now = time.Now
	}
	return &DeviceIdentity{store: store, log: log, now: now}
}

// GetOrCreate returns the persisted fingerprint, creating it on first use.
func (d *DeviceIdentity) GetOrCreate() Fingerprint {
	existing, ok, err := d.store.Get(KeyDeviceFingerprint)
	if err == nil && ok && existing != "" {
		return Fingerprint{Value: existing}
	}
	if err != nil {
		return d.fallback(err)
	}

	fp := d.generate()
	if err := d.store.Set(KeyDeviceFingerprint, fp); err != nil {
		return d.fallback(err)
	}
	d.log.Info("device fingerprint created", zap.String("fingerprint", fp))
	return Fingerprint{Value: fp}
}

func (d *DeviceIdentity) generate() string {
	ts := strconv.FormatInt(d.now().UnixMilli(), 36)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("fp-%s-%s", ts, random)
}

func (d *DeviceIdentity) fallback(cause error) Fingerprint {
	ms := strconv.FormatInt(d.now().UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	fp := "fallback-" + ms
	d.log.Warn("device fingerprint storage unavailable, using fallback", zap.String("fingerprint", fp), zap.Error(cause))
	return Fingerprint{Value: fp, Degraded: true}
}

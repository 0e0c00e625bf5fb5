package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/umit144/license-sync/internal/models"
	"github.com/umit144/license-sync/internal/ports"
)

// memStore is an in-memory ports.Store. InTx works on a copy of the state
// that replaces the live state only when fn succeeds.
type memStore struct {
	mu       sync.Mutex
	state    memState
	touchErr error
	linkErr  error
	findErr  error
}

type memState struct {
	subs     map[string]models.Subscription
	payments map[string]models.Payment
}

func newMemStore(subs ...models.Subscription) *memStore {
	s := &memStore{state: memState{
		subs:     make(map[string]models.Subscription),
		payments: make(map[string]models.Payment),
	}}
	for _, sub := range subs {
		s.state.subs[sub.ID] = sub
	}
	return s
}

func (st memState) clone() memState {
	c := memState{
		subs:     make(map[string]models.Subscription, len(st.subs)),
		payments: make(map[string]models.Payment, len(st.payments)),
	}
	for k, v := range st.subs {
		c.subs[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	return c
}

func (s *memStore) sub(id string) *models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.state.subs[id]
	return &sub
}

func (s *memStore) payment(paymentID string) (models.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payments[paymentID]
	return p, ok
}

func (s *memStore) subsByEmail(email string) []models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.state.subs {
		if sub.Email == email {
			out = append(out, sub)
		}
	}
	return out
}

func (s *memStore) FindByCredentials(_ context.Context, email, licenseKey string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, sub := range s.state.subs {
		if sub.Email == email && sub.LicenseKey == licenseKey {
			return &sub, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (s *memStore) FindByPaymentID(_ context.Context, paymentID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.state.subs {
		if sub.PaymentID != nil && *sub.PaymentID == paymentID {
			return &sub, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (s *memStore) BindDevice(_ context.Context, id, fingerprint string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.state.subs[id]
	if !ok {
		return "", ports.ErrNotFound
	}
	if !sub.IsBound() {
		fp := fingerprint
		sub.DeviceFingerprint = &fp
		sub.UpdatedAt = now
		s.state.subs[id] = sub
	}
	return sub.BoundFingerprint(), nil
}

func (s *memStore) TouchLastChecked(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return s.touchErr
	}
	sub := s.state.subs[id]
	sub.LastChecked = &now
	s.state.subs[id] = sub
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status models.SubscriptionStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.state.subs[id]
	if !ok {
		return ports.ErrNotFound
	}
	sub.Status = status
	sub.UpdatedAt = now
	s.state.subs[id] = sub
	return nil
}

func (s *memStore) ClearDevice(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.state.subs[id]
	if !ok {
		return ports.ErrNotFound
	}
	sub.DeviceFingerprint = nil
	sub.UpdatedAt = now
	s.state.subs[id] = sub
	return nil
}

// ListExpiring mirrors the SQL: (expires_at, id) order and keyset resume.
func (s *memStore) ListExpiring(_ context.Context, q ports.ExpiryQuery) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.state.subs {
		if sub.Status != models.StatusActive || sub.ExpiresAt.Before(q.From) || !sub.ExpiresAt.Before(q.Before) {
			continue
		}
		if q.AfterID != "" && !expiryAfter(sub, q.AfterExpiry, q.AfterID) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return expiryAfter(out[j], out[i].ExpiresAt, out[i].ID)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func expiryAfter(sub models.Subscription, expiresAt time.Time, id string) bool {
	if sub.ExpiresAt.Equal(expiresAt) {
		return sub.ID > id
	}
	return sub.ExpiresAt.After(expiresAt)
}

func (s *memStore) UpsertPayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.state.payments[p.PaymentID]
	if !ok {
		s.state.payments[p.PaymentID] = *p
		return nil
	}
	existing.Amount = p.Amount
	existing.Currency = p.Currency
	existing.Provider = p.Provider
	existing.Metadata = p.Metadata
	existing.UpdatedAt = p.UpdatedAt
	s.state.payments[p.PaymentID] = existing
	return nil
}

func (s *memStore) UpdatePaymentStatus(_ context.Context, paymentID string, status models.PaymentStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payments[paymentID]
	if !ok {
		return false, nil
	}
	p.Status = status
	p.UpdatedAt = now
	s.state.payments[paymentID] = p
	return true, nil
}

func (s *memStore) InTx(_ context.Context, fn func(tx ports.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{state: s.state.clone(), linkErr: s.linkErr}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }

type memTx struct {
	state   memState
	linkErr error
}

func (t *memTx) InsertPayment(_ context.Context, p *models.Payment) error {
	if _, ok := t.state.payments[p.PaymentID]; ok {
		return ports.ErrDuplicatePayment
	}
	t.state.payments[p.PaymentID] = *p
	return nil
}

func (t *memTx) LockSubscriptionByEmail(_ context.Context, email string) (*models.Subscription, error) {
	for _, sub := range t.state.subs {
		if sub.Email == email {
			return &sub, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (t *memTx) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	t.state.subs[sub.ID] = *sub
	return nil
}

func (t *memTx) RenewSubscription(_ context.Context, sub *models.Subscription) error {
	t.state.subs[sub.ID] = *sub
	return nil
}

func (t *memTx) LinkPayment(_ context.Context, paymentID, subscriptionID string, now time.Time) error {
	if t.linkErr != nil {
		return t.linkErr
	}
	p := t.state.payments[paymentID]
	id := subscriptionID
	p.SubscriptionID = &id
	p.UpdatedAt = now
	t.state.payments[paymentID] = p
	return nil
}

var _ ports.Store = (*memStore)(nil)

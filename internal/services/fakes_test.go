package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asklytics/internal/models"
	"asklytics/internal/repository"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memStore is an in-memory UserStore and ResetStore with the same
// compare-and-clear semantics as the Postgres repository.
type memStore struct {
	mu    sync.Mutex
	users map[string]*models.User

	lookupErr    error
	calls        int
	passwordSets int
}

func newMemStore(users ...*models.User) *memStore {
	s := &memStore{users: map[string]*models.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) get(id string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *memStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) GetByMobile(ctx context.Context, mobile string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for _, u := range s.users {
		if u.Mobile != nil && *u.Mobile == mobile {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func fields(u *models.User, channel models.Channel) (**string, **time.Time) {
	if channel == models.ChannelMobileOTP {
		return &u.ResetOTP, &u.ResetOTPExpiresAt
	}
	return &u.ResetToken, &u.ResetTokenExpiresAt
}

func (s *memStore) SetSecret(ctx context.Context, channel models.Channel, userID string, secret string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	val, exp := fields(u, channel)
	v, e := secret, expiresAt
	*val, *exp = &v, &e
	return nil
}

func (s *memStore) matches(u *models.User, channel models.Channel, identifier, secret string, now time.Time) bool {
	if channel == models.ChannelMobileOTP && (u.Mobile == nil || *u.Mobile != identifier) {
		return false
	}
	val, exp := fields(u, channel)
	return *val != nil && **val == secret && *exp != nil && (*exp).After(now)
}

func (s *memStore) FindBySecret(ctx context.Context, channel models.Channel, identifier string, secret string, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, u := range s.users {
		if s.matches(u, channel, identifier, secret, now) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) ClearSecret(ctx context.Context, channel models.Channel, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	val, exp := fields(u, channel)
	*val, *exp = nil, nil
	return nil
}

func (s *memStore) RedeemSecret(ctx context.Context, channel models.Channel, userID string, secret string, now time.Time, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	identifier := ""
	if u.Mobile != nil {
		identifier = *u.Mobile
	}
	if !s.matches(u, channel, identifier, secret, now) {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	s.passwordSets++
	val, exp := fields(u, channel)
	*val, *exp = nil, nil
	return nil
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sent struct {
	channel models.Channel
	to      string
	secret  string
}

type fakeDelivery struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (d *fakeDelivery) SendResetLink(ctx context.Context, email string, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{models.ChannelEmailLink, email, token})
	return d.err
}

func (d *fakeDelivery) SendResetOTP(ctx context.Context, mobile string, otp string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{models.ChannelMobileOTP, mobile, otp})
	return d.err
}

func (d *fakeDelivery) all() []sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sent(nil), d.sent...)
}

// seqGenerator hands out fixed secrets in order.
type seqGenerator struct {
	mu     sync.Mutex
	tokens []string
	otps   []string
}

func (g *seqGenerator) GenerateToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.tokens) == 0 {
		return "", errors.New("no tokens left")
	}
	t := g.tokens[0]
	g.tokens = g.tokens[1:]
	return t, nil
}

func (g *seqGenerator) GenerateOTP() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.otps) == 0 {
		return "", errors.New("no otps left")
	}
	o := g.otps[0]
	g.otps = g.otps[1:]
	return o, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixedThrottle struct {
	allow bool
	err   error
}

func (f fixedThrottle) Allow(ctx context.Context, channel string, identifier string) (bool, error) {
	return f.allow, f.err
}

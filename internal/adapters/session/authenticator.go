package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// Profiles loads and creates user profiles.
type Profiles interface {
	EnsureUser(ctx context.Context, u model.User) (model.User, error)
}

// Authenticator turns bearer tokens into sessions.
type Authenticator struct {
	verifier *Verifier
	profiles Profiles
	cache    Cache
	log      logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	byUser map[string]map[string]time.Time // user id -> token hash -> expiry
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(a *Authenticator) {
		if c != nil {
			a.cache = c
		}
	}
}

// WithLogger sets the authenticator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(v *Verifier, profiles Profiles, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier: v,
		profiles: profiles,
		cache:    NewMemoryCache(),
		now:      time.Now,
		byUser:   make(map[string]map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Get().Named("session")
	}
	return a
}

// BearerToken extracts the token of an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Authenticate resolves token. An empty token yields the guest session.
// The profile is created on first sight with the user role.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Guest(), nil
	}
	hash := HashToken(token)

	revoked, err := a.cache.Revoked(ctx, hash)
	if err != nil {
		a.log.Warn(ctx, "revocation check failed", logger.Error(err))
	}
	if revoked {
		metrics.RecordSessionCacheLookup("revoked")
		return Session{}, ErrRevoked
	}

	if s, ok, err := a.cache.Get(ctx, hash); err != nil {
		a.log.Warn(ctx, "session cache lookup failed", logger.Error(err))
	} else if ok {
		metrics.RecordSessionCacheLookup("hit")
		return s, nil
	}
	metrics.RecordSessionCacheLookup("miss")

	claims, err := a.verifier.Verify(token)
	if err != nil {
		return Session{}, err
	}

	now := a.now().UTC()
	user, err := a.profiles.EnsureUser(ctx, model.User{
		ID:          claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Role:        model.RoleUser,
		CreatedAt:   now,
	})
	if err != nil {
		return Session{}, fmt.Errorf("load profile: %w", err)
	}
	role, err := model.ParseRole(string(user.Role))
	if err != nil {
		a.log.Warn(ctx, "unknown stored role", logger.String("user", user.ID), logger.Error(err))
		role = model.RoleUser
	}
	if role == model.RoleGuest {
		role = model.RoleUser
	}
	s := Session{User: user, Role: role}

	until := claims.ExpiresAt.Time
	if err := a.cache.Put(ctx, hash, s, until); err != nil {
		a.log.Warn(ctx, "session cache store failed", logger.Error(err))
	} else {
		a.remember(user.ID, hash, until)
	}
	return s, nil
}

func (a *Authenticator) remember(userID, hash string, until time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	hashes, ok := a.byUser[userID]
	if !ok {
		hashes = make(map[string]time.Time)
		a.byUser[userID] = hashes
	}
	now := a.now()
	for h, exp := range hashes {
		if !now.Before(exp) {
			delete(hashes, h)
		}
	}
	hashes[hash] = until
}

// SignOut drops the cached session of token and blocks the token until it
// expires. Invalid tokens are accepted silently.
func (a *Authenticator) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	until := a.now().Add(24 * time.Hour)
	if claims, err := a.verifier.Verify(token); err == nil {
		until = claims.ExpiresAt.Time
	} else if errors.Is(err, ErrExpiredToken) {
		return nil
	}
	return a.cache.Revoke(ctx, HashToken(token), until)
}

// Forget drops the cached session of token so the next request resolves it
// again.
func (a *Authenticator) Forget(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.cache.Delete(ctx, HashToken(token))
}

// Deliver drops the cached sessions of a user whose profile changed, so the
// next request sees a new role or name. It serves as a change sink.
func (a *Authenticator) Deliver(ctx context.Context, c model.Change) error {
	if c.Collection != model.CollectionUsers || c.DocID == "" {
		return nil
	}
	a.mu.Lock()
	hashes := a.byUser[c.DocID]
	delete(a.byUser, c.DocID)
	a.mu.Unlock()

	var errs []error
	for hash := range hashes {
		if err := a.cache.Delete(ctx, hash); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

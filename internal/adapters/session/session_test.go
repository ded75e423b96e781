package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var secret = []byte("test-secret")

func TestVerifier(t *testing.T) {
	Convey("Given a verifier", t, func() {
		v := session.NewVerifier(secret, session.WithIssuer("idp"))

		Convey("A token it issued verifies", func() {
			token, err := v.Issue(session.NewClaims("u1", "ana@example.com", "Ana", time.Hour))
			So(err, ShouldBeNil)
			claims, err := v.Verify(token)
			So(err, ShouldBeNil)
			So(claims.Subject, ShouldEqual, "u1")
			So(claims.Email, ShouldEqual, "ana@example.com")
			So(claims.Issuer, ShouldEqual, "idp")
		})

		Convey("Expired tokens are reported as expired", func() {
			token, _ := v.Issue(session.NewClaims("u1", "", "", -time.Hour))
			_, err := v.Verify(token)
			So(err, ShouldEqual, session.ErrExpiredToken)
		})

		Convey("Tokens signed with another secret are invalid", func() {
			other := session.NewVerifier([]byte("other"), session.WithIssuer("idp"))
			token, _ := other.Issue(session.NewClaims("u1", "", "", time.Hour))
			_, err := v.Verify(token)
			So(errors.Is(err, session.ErrInvalidToken), ShouldBeTrue)
		})

		Convey("Tokens without a subject or expiry are invalid", func() {
			token, _ := v.Issue(session.Claims{RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}})
			_, err := v.Verify(token)
			So(errors.Is(err, session.ErrInvalidToken), ShouldBeTrue)

			token, _ = v.Issue(session.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})
			_, err = v.Verify(token)
			So(errors.Is(err, session.ErrInvalidToken), ShouldBeTrue)
		})

		Convey("Garbage is invalid", func() {
			_, err := v.Verify("not-a-token")
			So(errors.Is(err, session.ErrInvalidToken), ShouldBeTrue)
		})
	})

	Convey("Bearer headers are parsed case-insensitively", t, func() {
		So(session.BearerToken("Bearer abc"), ShouldEqual, "abc")
		So(session.BearerToken("bearer  abc "), ShouldEqual, "abc")
		So(session.BearerToken("Basic abc"), ShouldEqual, "")
		So(session.BearerToken(""), ShouldEqual, "")
	})
}

func testAuthenticator(caches ...session.Cache) (*session.Authenticator, *session.Verifier, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	v := session.NewVerifier(secret)
	opts := []session.Option{}
	for _, c := range caches {
		opts = append(opts, session.WithCache(c))
	}
	return session.NewAuthenticator(v, store, opts...), v, store
}

func TestAuthenticator(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given an authenticator over an empty store", t, func() {
		auth, v, store := testAuthenticator()
		token, _ := v.Issue(session.NewClaims("u1", "ana@example.com", "Ana", time.Hour))

		Convey("No token is a guest", func() {
			s, err := auth.Authenticate(ctx, "")
			So(err, ShouldBeNil)
			So(s.Role, ShouldEqual, model.RoleGuest)
			So(s.SignedIn(), ShouldBeFalse)
		})

		Convey("A first sight creates the profile with the user role", func() {
			s, err := auth.Authenticate(ctx, token)
			So(err, ShouldBeNil)
			So(s.Role, ShouldEqual, model.RoleUser)
			So(s.User.DisplayName, ShouldEqual, "Ana")
			u, err := store.GetUser(ctx, "u1")
			So(err, ShouldBeNil)
			So(u.Email, ShouldEqual, "ana@example.com")
		})

		Convey("A committee profile yields a committee session", func() {
			_, err := store.EnsureUser(ctx, model.User{ID: "u1", Role: model.RoleCommittee})
			So(err, ShouldBeNil)
			s, err := auth.Authenticate(ctx, token)
			So(err, ShouldBeNil)
			So(s.IsCommittee(), ShouldBeTrue)
		})

		Convey("Cached sessions are dropped when the profile changes", func() {
			s, _ := auth.Authenticate(ctx, token)
			So(s.Role, ShouldEqual, model.RoleUser)

			So(store.CreateInvite(ctx, model.Invite{
				Code: "ABCD1234", Role: model.RoleCommittee, ExpiresAt: time.Now().Add(time.Hour),
			}), ShouldBeNil)
			_, _, err := store.RedeemInvite(ctx, repository.Redemption{Code: "ABCD1234", UserID: "u1", At: time.Now()})
			So(err, ShouldBeNil)

			s, _ = auth.Authenticate(ctx, token)
			So(s.Role, ShouldEqual, model.RoleUser)

			So(auth.Deliver(ctx, model.NewChange(model.CollectionUsers, "", "u1", model.OpUpdate)), ShouldBeNil)
			s, _ = auth.Authenticate(ctx, token)
			So(s.Role, ShouldEqual, model.RoleCommittee)
		})

		Convey("Forget forces a fresh lookup", func() {
			_, _ = auth.Authenticate(ctx, token)
			_, _ = store.UpdateDisplayName(ctx, "u1", "Ana Maria", time.Now())
			So(auth.Forget(ctx, token), ShouldBeNil)
			s, _ := auth.Authenticate(ctx, token)
			So(s.User.DisplayName, ShouldEqual, "Ana Maria")
		})

		Convey("Signing out blocks the token", func() {
			_, err := auth.Authenticate(ctx, token)
			So(err, ShouldBeNil)
			So(auth.SignOut(ctx, token), ShouldBeNil)
			_, err = auth.Authenticate(ctx, token)
			So(err, ShouldEqual, session.ErrRevoked)
		})

		Convey("Invalid tokens fail", func() {
			_, err := auth.Authenticate(ctx, "nope")
			So(errors.Is(err, session.ErrInvalidToken), ShouldBeTrue)
		})
	})
}

func TestRedisCache(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a Redis cache", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		cache := session.NewRedisCache(client)
		s := session.Session{User: model.User{ID: "u1", DisplayName: "Ana"}, Role: model.RoleCommittee}

		Convey("Sessions round-trip until their expiry", func() {
			So(cache.Put(ctx, "h1", s, time.Now().Add(time.Minute)), ShouldBeNil)
			got, ok, err := cache.Get(ctx, "h1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(got.User.DisplayName, ShouldEqual, "Ana")
			So(got.Role, ShouldEqual, model.RoleCommittee)

			mr.FastForward(2 * time.Minute)
			_, ok, err = cache.Get(ctx, "h1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Revocation removes the session and blocks the hash", func() {
			So(cache.Put(ctx, "h2", s, time.Now().Add(time.Minute)), ShouldBeNil)
			So(cache.Revoke(ctx, "h2", time.Now().Add(time.Minute)), ShouldBeNil)
			_, ok, _ := cache.Get(ctx, "h2")
			So(ok, ShouldBeFalse)
			revoked, err := cache.Revoked(ctx, "h2")
			So(err, ShouldBeNil)
			So(revoked, ShouldBeTrue)
		})

		Convey("An authenticator shares sessions through it", func() {
			auth, v, _ := testAuthenticator(cache)
			token, _ := v.Issue(session.NewClaims("u9", "z@example.com", "Zed", time.Hour))
			_, err := auth.Authenticate(ctx, token)
			So(err, ShouldBeNil)
			So(mr.Exists("ideabox:session:"+session.HashToken(token)), ShouldBeTrue)
		})
	})
}

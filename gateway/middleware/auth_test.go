package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "stakepool-test-secret"

func newTestAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "stakepool",
		Audience:   "stakepool-api",
	}, nil)
}

func mint(t *testing.T, subject string, scopes []string, ttl time.Duration) string {
	t.Helper()
	token, err := IssueToken(TokenRequest{
		Secret:   testSecret,
		Subject:  subject,
		Issuer:   "stakepool",
		Audience: "stakepool-api",
		Scopes:   scopes,
		TTL:      ttl,
	})
	require.NoError(t, err)
	return token
}

func TestAuthenticatorExposesSubject(t *testing.T) {
	auth := newTestAuth()
	var subject string
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, "0xabc", nil, time.Minute))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "0xabc", subject)
}

func TestAuthenticatorRejections(t *testing.T) {
	auth := newTestAuth()
	handler := auth.Middleware("stakepool:admin")(okHandler())

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "malformed", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + mint(t, "0xabc", []string{"stakepool:admin"}, -time.Hour), status: http.StatusUnauthorized},
		{name: "scope", header: "Bearer " + mint(t, "0xabc", []string{"stakepool:user"}, time.Minute), status: http.StatusForbidden},
		{name: "ok", header: "Bearer " + mint(t, "0xabc", []string{"stakepool:user", "stakepool:admin"}, time.Minute), status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/fund", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.status, res.Code)
		})
	}
}

func TestAuthenticatorRejectsForeignAudience(t *testing.T) {
	auth := newTestAuth()
	token, err := IssueToken(TokenRequest{Secret: testSecret, Subject: "0xabc", Issuer: "stakepool", Audience: "other", TTL: time.Minute})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	auth.Middleware()(okHandler()).ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestIssueTokenValidation(t *testing.T) {
	_, err := IssueToken(TokenRequest{Subject: "0xabc", TTL: time.Minute})
	require.Error(t, err)
	_, err = IssueToken(TokenRequest{Secret: testSecret, TTL: time.Minute})
	require.Error(t, err)
	_, err = IssueToken(TokenRequest{Secret: testSecret, Subject: "0xabc"})
	require.Error(t, err)
}

func TestDisabledAuthIgnoresSubjectHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	subject := "unset"
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Stakepool-Subject", "0xdef")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Empty(t, subject)

	scoped := auth.Middleware("stakepool:admin")(okHandler())
	res := httptest.NewRecorder()
	scoped.ServeHTTP(res, req)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestDisabledAuthTrustsSubjectHeaderWhenAllowed(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{TrustSubjectHeader: true}, nil)
	var subject string
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Stakepool-Subject", " 0xdef ")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "0xdef", subject)
}

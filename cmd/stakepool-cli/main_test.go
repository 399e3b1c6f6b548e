package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stakepool/gateway/middleware"
)

const (
	testSecret  = "cli-test-secret"
	testAccount = "0x00000000000000000000000000000000000000A1"
)

type recorded struct {
	Method  string
	Path    string
	Query   string
	Subject string
	Scopes  []string
	Body    map[string]any
}

type stubAPI struct {
	mu       sync.Mutex
	requests []recorded
}

func (s *stubAPI) last(t *testing.T) recorded {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func newStubServer(t *testing.T) (*httptest.Server, *stubAPI) {
	t.Helper()
	stub := &stubAPI{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "stakepoold",
		Audience:   "stakepool-clients",
	}, logger)

	record := func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Subject: middleware.Subject(r.Context()),
			Scopes:  middleware.Scopes(r.Context()),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		stub.mu.Lock()
		stub.requests = append(stub.requests, rec)
		stub.mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/withdrawals/complete") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"stakepool: cooldown not elapsed"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/admin/", auth.Middleware(adminScope)(http.HandlerFunc(record)))
	mux.Handle("/v1/accounts/", http.HandlerFunc(record))
	mux.Handle("/v1/pool", http.HandlerFunc(record))
	mux.Handle("/v1/events", http.HandlerFunc(record))
	mux.Handle("/v1/", auth.Middleware()(http.HandlerFunc(record)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, stub
}

func writeProfile(t *testing.T, endpoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.toml")
	body := strings.Join([]string{
		`Endpoint = "` + endpoint + `/"`,
		`Account = "` + testAccount + `"`,
		`SecretEnv = "STAKEPOOL_CLI_TEST_SECRET"`,
		`Issuer = "stakepoold"`,
		`Audience = "stakepool-clients"`,
		`TokenTTL = "2m"`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestLedgerCommandsSendSignedRequests(t *testing.T) {
	t.Setenv("STAKEPOOL_CLI_TEST_SECRET", testSecret)
	srv, stub := newStubServer(t)
	profilePath := writeProfile(t, srv.URL)

	code, stdout, stderr := runCLI(t, "-profile", profilePath, "deposit", "-amount", "1500")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, `"status": "ok"`)
	req := stub.last(t)
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/v1/deposit", req.Path)
	require.Equal(t, common.HexToAddress(testAccount).Hex(), req.Subject)
	require.Equal(t, "1500", req.Body["amount"])

	code, _, stderr = runCLI(t, "-profile", profilePath, "claim")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "/v1/rewards/claim", stub.last(t).Path)

	code, _, stderr = runCLI(t, "-profile", profilePath, "complete")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "server returned 409: stakepool: cooldown not elapsed")
}

func TestAdminCommandsCarryOwnerScope(t *testing.T) {
	t.Setenv("STAKEPOOL_CLI_TEST_SECRET", testSecret)
	srv, stub := newStubServer(t)
	profilePath := writeProfile(t, srv.URL)

	code, _, stderr := runCLI(t, "-profile", profilePath, "fund", "-amount", "3000")
	require.Equal(t, 0, code, stderr)
	req := stub.last(t)
	require.Equal(t, "/v1/admin/fund", req.Path)
	require.Contains(t, req.Scopes, adminScope)

	code, _, stderr = runCLI(t, "-profile", profilePath, "set-cooldown", "-duration", "2h")
	require.Equal(t, 0, code, stderr)
	req = stub.last(t)
	require.Equal(t, http.MethodPut, req.Method)
	require.Equal(t, float64(7200), req.Body["seconds"])

	code, _, stderr = runCLI(t, "-profile", profilePath, "set-asset", "-asset", "0x00000000000000000000000000000000000000cc")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, common.HexToAddress("0xcc").Hex(), stub.last(t).Body["asset"])
}

func TestQueriesAreUnauthenticated(t *testing.T) {
	srv, stub := newStubServer(t)
	profilePath := writeProfile(t, srv.URL)

	code, _, stderr := runCLI(t, "-profile", profilePath, "account", "-events")
	require.Equal(t, 0, code, stderr)
	req := stub.last(t)
	require.Equal(t, "/v1/accounts/"+common.HexToAddress(testAccount).Hex()+"/events", req.Path)
	require.Empty(t, req.Subject)

	code, _, stderr = runCLI(t, "-profile", profilePath, "events", "-limit", "5")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "limit=5", stub.last(t).Query)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("STAKEPOOL_CLI_TEST_SECRET", testSecret)
	profilePath := writeProfile(t, "http://127.0.0.1:1")

	code, stdout, stderr := runCLI(t, "-profile", profilePath, "token", "-admin")
	require.Equal(t, 0, code, stderr)
	token := strings.TrimSpace(stdout)
	require.Len(t, strings.Split(token, "."), 3)
}

func TestArgumentValidation(t *testing.T) {
	profilePath := writeProfile(t, "http://127.0.0.1:1")
	original := apiCall
	apiCall = func(method, url string, body any, token string) (json.RawMessage, error) {
		t.Fatalf("unexpected API call %s %s", method, url)
		return nil, nil
	}
	defer func() { apiCall = original }()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"usage", nil, "Usage: stakepool-cli"},
		{"unknown", []string{"bogus"}, "Unknown command: bogus"},
		{"missing amount", []string{"deposit"}, "--amount is required"},
		{"zero amount", []string{"withdraw", "-amount", "0"}, "--amount must be positive"},
		{"bad amount", []string{"fund", "-amount", "1.5"}, "invalid amount"},
		{"positional", []string{"claim", "extra"}, "unexpected positional arguments"},
		{"bad asset", []string{"set-asset", "-asset", "xyz"}, "invalid address"},
		{"zero duration", []string{"set-duration"}, "--seconds must be positive"},
		{"both units", []string{"set-cooldown", "-seconds", "5", "-duration", "1h"}, "either --seconds or --duration"},
		{"bad limit", []string{"events", "-limit", "0"}, "--limit must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"-profile", profilePath}, tc.args...)
			if tc.args == nil {
				args = []string{"-profile", profilePath}
			}
			code, _, stderr := runCLI(t, args...)
			require.Equal(t, 1, code)
			require.Contains(t, stderr, tc.want)
		})
	}
}

func TestLoadProfileDefaults(t *testing.T) {
	p, err := loadProfile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, defaultEndpoint, p.Endpoint)
	require.Equal(t, defaultSecretEnv, p.SecretEnv)
	require.Equal(t, defaultTokenTTL, p.ttl)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`TokenTTL = "soon"`), 0o600))
	_, err = loadProfile(bad)
	require.Error(t, err)
}

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
listen: "127.0.0.1:0"
public_url: "https://id.example.test"
login_url: "https://id.example.test/realms/{realm}/login"
log:
  level: warn
  format: json
state:
  key: "0123456789abcdef0123456789abcdef"
jwt:
  signing_method: hs256
  secret: "0123456789abcdef0123456789abcdef"
  ttl: 2m
password:
  memory_kb: 8192
  time: 1
  parallelism: 1
audit:
  enabled: true
  sink: log
users:
  - realm: demo
    id: u-1
    username: alice
    email: alice@example.test
    password: "correct horse battery"
    roles: [manage-account]
  - realm: demo
    id: u-2
    username: bob
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accountd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseConfigDefaultsAndDurations(t *testing.T) {
	cfg, err := parseConfig([]byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.JWT.TTL)
	assert.Equal(t, 12*time.Hour, cfg.State.TTL)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.True(t, cfg.Features.PasswordUpdate)
	assert.Len(t, cfg.Users, 2)

	consoleCfg, err := cfg.consoleConfig()
	require.NoError(t, err)
	assert.Equal(t, goAccount.ModeStrict, consoleCfg.ValidationMode)
	assert.Equal(t, "hs256", consoleCfg.JWT.SigningMethod)
	assert.Equal(t, uint32(8192), consoleCfg.Password.Memory)
	assert.True(t, consoleCfg.Audit.Enabled)
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"short state key": "state:\n  key: short\n",
		"bad sink":        "state:\n  key: \"0123456789abcdef0123456789abcdef\"\naudit:\n  sink: kafka\n",
		"file sink path":  "state:\n  key: \"0123456789abcdef0123456789abcdef\"\naudit:\n  enabled: true\n  sink: file\n",
		"user without id": "state:\n  key: \"0123456789abcdef0123456789abcdef\"\nusers:\n  - realm: demo\n",
		"duplicate user":  "state:\n  key: \"0123456789abcdef0123456789abcdef\"\nusers:\n  - {realm: demo, id: a}\n  - {realm: demo, id: a}\n",
		"bad yaml":        "state: [",
		"unknown feature": "state:\n  key: \"0123456789abcdef0123456789abcdef\"\nfeatures:\n  authorization: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestConsoleConfigRejects(t *testing.T) {
	cfg, err := parseConfig([]byte(testConfig))
	require.NoError(t, err)

	cfg.JWT.ValidationMode = "sometimes"
	_, err = cfg.consoleConfig()
	assert.Error(t, err)

	cfg.JWT.ValidationMode = "jwt_only"
	cfg.JWT.Secret = ""
	_, err = cfg.consoleConfig()
	assert.Error(t, err)
}

func TestLoadConfigRequiresPath(t *testing.T) {
	_, err := loadConfig("")
	assert.Error(t, err)
	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTokenCommandPrintsUsableToken(t *testing.T) {
	path := writeConfig(t, testConfig)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"token", "--config", path, "--memory-redis", "--realm", "demo", "--user", "u-1"})
	require.NoError(t, root.Execute())

	token := strings.TrimSpace(out.String())
	assert.Len(t, strings.Split(token, "."), 3)
}

func TestTokenCommandUnknownUser(t *testing.T) {
	path := writeConfig(t, testConfig)

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"token", "--config", path, "--memory-redis", "--realm", "demo", "--user", "nobody"})
	assert.Error(t, root.Execute())
}

func TestRouterServesConsoleHealthAndMetrics(t *testing.T) {
	cfg, err := parseConfig([]byte(testConfig))
	require.NoError(t, err)
	cfg.Metrics.Histograms = true

	a, err := buildApp(cfg, true, io.Discard)
	require.NoError(t, err)
	t.Cleanup(a.close)

	ctx := context.Background()
	require.NoError(t, a.seedUsers(ctx))

	user, err := a.users.GetUserByID(ctx, "demo", "u-1")
	require.NoError(t, err)
	assert.NotEmpty(t, user.PasswordHash, "seeded password must be hashed")

	bob, err := a.users.GetUserByID(ctx, "demo", "u-2")
	require.NoError(t, err)
	assert.Empty(t, bob.PasswordHash)

	h, err := a.router()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/realms/demo/account/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)

	token, _, err := a.console.OpenSession(ctx, "demo", user, []string{goAccount.PermissionManageAccount})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/realms/demo/account/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goaccount_login_redirect_total 1")
	assert.Contains(t, rec.Body.String(), "goaccount_page_rendered_total 1")
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg, err := parseConfig([]byte(testConfig))
	require.NoError(t, err)

	a, err := buildApp(cfg, true, io.Discard)
	require.NoError(t, err)
	t.Cleanup(a.close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestLoadtestCommand(t *testing.T) {
	path := writeConfig(t, testConfig)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"loadtest", "--config", path, "--memory-redis", "--users", "3", "--sessions-per-user", "2", "--ops", "20", "--concurrency", "4"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "authenticate: ops=20 failures=0")
	assert.Contains(t, out.String(), "sessions: ops=20 failures=0")
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

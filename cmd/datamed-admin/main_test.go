package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/datamed/datamed-api/config"
	"github.com/datamed/datamed-api/internal/adapters/localjwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestContext(cfg config.AppConfig, in string) (*commandContext, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		In:     strings.NewReader(in),
		Out:    out,
	}, out
}

func localConfig() config.AppConfig {
	return config.AppConfig{Auth: config.AuthConfig{
		Mode:             config.AuthModeLocal,
		TokenKey:         "admin-cli-secret",
		TokenTTL:         time.Hour,
		PasswordHashCost: bcrypt.MinCost,
	}}
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
}

func TestCheckPESEL(t *testing.T) {
	cmdCtx, out := newTestContext(config.AppConfig{}, "")
	require.NoError(t, runCheckPESEL(cmdCtx, []string{"44051401359"}))
	assert.Equal(t, "valid\n", out.String())

	cmdCtx, out = newTestContext(config.AppConfig{}, "")
	err := runCheckPESEL(cmdCtx, []string{"44051401358"})
	require.ErrorIs(t, err, errInvalidPESEL)
	assert.Equal(t, "invalid\n", out.String())

	require.Error(t, runCheckPESEL(cmdCtx, nil))
}

func TestIssueTokenVerifies(t *testing.T) {
	cfg := localConfig()
	cmdCtx, out := newTestContext(cfg, "")

	require.NoError(t, runIssueToken(cmdCtx, []string{"--ttl", "5m", "17"}))

	engine, err := localjwt.NewEngine([]byte(cfg.Auth.TokenKey))
	require.NoError(t, err)
	ident, err := engine.Verify(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "17", ident.UserID)
}

func TestIssueTokenRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AppConfig
		args []string
	}{
		{name: "missing user id", cfg: localConfig(), args: nil},
		{name: "extra args", cfg: localConfig(), args: []string{"1", "2"}},
		{name: "non-positive ttl", cfg: localConfig(), args: []string{"--ttl", "0s", "1"}},
		{
			name: "keycloak mode",
			cfg:  config.AppConfig{Auth: config.AuthConfig{Mode: config.AuthModeKeycloak, TokenTTL: time.Hour}},
			args: []string{"1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmdCtx, out := newTestContext(tt.cfg, "")
			require.Error(t, runIssueToken(cmdCtx, tt.args))
			assert.Empty(t, out.String())
		})
	}
}

func TestHashPassword(t *testing.T) {
	cmdCtx, out := newTestContext(localConfig(), "Str0ng!Pass\n")
	require.NoError(t, runHashPassword(cmdCtx, nil))

	hash := strings.TrimSpace(out.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Str0ng!Pass")))
}

func TestHashPasswordPolicy(t *testing.T) {
	cmdCtx, _ := newTestContext(localConfig(), "weak\n")
	err := runHashPassword(cmdCtx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weak password")

	cmdCtx, out := newTestContext(localConfig(), "weak")
	require.NoError(t, runHashPassword(cmdCtx, []string{"--skip-policy"}))
	assert.NotEmpty(t, out.String())

	cmdCtx, _ = newTestContext(localConfig(), "")
	require.Error(t, runHashPassword(cmdCtx, nil))
}

func TestFindAccountRequiresDirectory(t *testing.T) {
	cmdCtx, _ := newTestContext(localConfig(), "")
	err := runFindAccount(cmdCtx, []string{"jan@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_MODE=keycloak")
}

func TestResetRateLimitRequiresRedisBackend(t *testing.T) {
	cfg := localConfig()
	cfg.Gate.RateLimitBackend = config.RateLimitBackendMemory
	cmdCtx, _ := newTestContext(cfg, "")

	require.Error(t, runResetRateLimit(cmdCtx, []string{"auth:10.0.0.1"}))
	require.Error(t, runResetRateLimit(cmdCtx, []string{"no-scope"}))
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	opts, err = parseMigrateFlags([]string{"--dry-run", "--timeout", "30s"})
	require.NoError(t, err)
	assert.True(t, opts.DryRun)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)
}

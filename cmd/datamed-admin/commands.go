package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/datamed/datamed-api/config"
	"github.com/datamed/datamed-api/internal/adapters/localjwt"
	redisadapter "github.com/datamed/datamed-api/internal/adapters/redis"
	"github.com/datamed/datamed-api/internal/bootstrap"
	"github.com/datamed/datamed-api/internal/data/cryptoutil"
	"github.com/datamed/datamed-api/internal/http/validation"
	"github.com/datamed/datamed-api/internal/migrate"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultLookupTimeout    = 15 * time.Second
)

var errInvalidPESEL = errors.New("invalid PESEL")

type migrateOptions struct {
	Timeout time.Duration
	DryRun  bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.DryRun {
		pending, pendingErr := migrate.Pending(ctx, db)
		if pendingErr != nil {
			return fmt.Errorf("list pending migrations: %w", pendingErr)
		}
		if len(pending) == 0 {
			return writeln(cmdCtx.Out, "no pending migrations")
		}
		for _, v := range pending {
			if err := writeln(cmdCtx.Out, v); err != nil {
				return err
			}
		}
		return nil
	}

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "List pending migrations without applying them")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

type issueTokenOptions struct {
	UserID string
	TTL    time.Duration
}

func runIssueToken(cmdCtx *commandContext, args []string) error {
	opts, err := parseIssueTokenFlags(args, cmdCtx.Config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	if cmdCtx.Config.Auth.Mode != config.AuthModeLocal {
		return fmt.Errorf("issue-token requires AUTH_MODE=local (current: %s)", cmdCtx.Config.Auth.Mode)
	}

	secret, err := cmdCtx.Config.Auth.TokenSecret()
	if err != nil {
		return err
	}
	engine, err := localjwt.NewEngine(secret, localjwt.WithTTL(opts.TTL))
	if err != nil {
		return err
	}
	token, err := engine.Issue(opts.UserID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	return writeln(cmdCtx.Out, token)
}

func parseIssueTokenFlags(args []string, defaultTTL time.Duration) (issueTokenOptions, error) {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := issueTokenOptions{TTL: defaultTTL}
	fs.DurationVar(&opts.TTL, "ttl", defaultTTL, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return issueTokenOptions{}, err
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return issueTokenOptions{}, errors.New("usage: issue-token [--ttl 24h] <user_id>")
	}
	if opts.TTL <= 0 {
		return issueTokenOptions{}, errors.New("--ttl must be greater than zero")
	}
	opts.UserID = strings.TrimSpace(fs.Arg(0))
	return opts, nil
}

// runHashPassword reads the password from stdin so it never lands in shell history.
func runHashPassword(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	skipPolicy := fs.Bool("skip-policy", false, "Hash even if the password fails the strength rules")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := readLine(cmdCtx.In)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password is required on stdin")
	}
	if msg := validation.PasswordStrength(password); msg != "" && !*skipPolicy {
		return fmt.Errorf("weak password: %s", msg)
	}

	hasher, err := cryptoutil.NewBcryptHasher(cmdCtx.Config.Auth.PasswordHashCost)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return writeln(cmdCtx.Out, hash)
}

func readLine(r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("no input")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runCheckPESEL(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: check-pesel <pesel>")
	}
	if !validation.ValidPESEL(args[0]) {
		if err := writeln(cmdCtx.Out, "invalid"); err != nil {
			return err
		}
		return errInvalidPESEL
	}
	return writeln(cmdCtx.Out, "valid")
}

func runFindAccount(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: find-account <email>")
	}

	dir, err := bootstrap.BuildAccountDirectory(bootstrap.AuthConfig{
		Auth:   cmdCtx.Config.Auth,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	if dir == nil {
		return errors.New("find-account requires AUTH_MODE=keycloak with KEYCLOAK_ADMIN_USERNAME and KEYCLOAK_ADMIN_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultLookupTimeout)
	defer cancel()

	id, err := dir.FindAccountByEmail(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	return writeln(cmdCtx.Out, id)
}

func runResetRateLimit(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 || !strings.Contains(args[0], ":") {
		return errors.New("usage: reset-rate-limit <scope>:<client> (e.g. auth:203.0.113.7)")
	}
	if cmdCtx.Config.Gate.RateLimitBackend != config.RateLimitBackendRedis {
		return errors.New("reset-rate-limit requires RATE_LIMIT_BACKEND=redis; memory logs live in the API process")
	}

	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	store := redisadapter.NewRateLimitStoreWithPrefix(client, cmdCtx.Config.Gate.RateLimitKeyPrefix)
	if err := store.Reset(cmdCtx.Ctx, args[0]); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return writef(cmdCtx.Out, "cleared %s\n", args[0])
}

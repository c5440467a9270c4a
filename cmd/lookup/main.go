package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Amund211/mojangdirectory"
	"github.com/Amund211/mojangdirectory/internal/config"
	"github.com/Amund211/mojangdirectory/internal/logging"
	"github.com/Amund211/mojangdirectory/internal/reporting"
	"github.com/Amund211/mojangdirectory/internal/strutils"
	"github.com/Amund211/mojangdirectory/internal/telemetry"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/crypto/x509roots/fallback"
)

const usage = `Usage:
  lookup [flags] name <username>
  lookup [flags] batch <username>...
  lookup [flags] uuid <uuid>
  lookup [flags] history <uuid>

Flags:
`

type accountOutput struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

type historyOutput struct {
	UUID       string             `json:"uuid"`
	Original   string             `json:"original"`
	Current    string             `json:"current"`
	Changes    []nameChangeOutput `json:"changes"`
	UsernameAt *string            `json:"usernameAt,omitempty"`
}

type nameChangeOutput struct {
	ChangedToAt int64  `json:"changedToAt"`
	Username    string `json:"username"`
}

func toAccountOutput(account mojangdirectory.Account) accountOutput {
	return accountOutput{
		UUID:     account.UUID().String(),
		Username: account.Username(),
	}
}

func main() {
	flags := pflag.NewFlagSet("lookup", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}

	connectTimeout := flags.Duration("connect-timeout", 0, "bound on obtaining a connection (default from MOJANG_CONNECT_TIMEOUT_MS)")
	readTimeout := flags.Duration("read-timeout", 0, "bound on reading the response (default from MOJANG_READ_TIMEOUT_MS)")
	at := flags.String("at", "", "point in time for name lookups (RFC3339)")
	atMillis := flags.Int64("at-ms", -1, "also print the name held at this time (epoch milliseconds) for history lookups")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	args := flags.Args()
	if len(args) < 2 {
		flags.Usage()
		os.Exit(2)
	}

	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stderr, nil)))
	slog.SetDefault(logger)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	conf, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", conf.NonSensitiveString())

	flush, err := reporting.NewSentryOrMock(conf)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()

	ctx := context.Background()

	if !conf.IsDevelopment() {
		shutdown, err := telemetry.SetupOTelSDK(ctx, "mojangdirectory-lookup")
		if err != nil {
			fail("Failed to initialize OpenTelemetry", "error", err.Error())
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
	}

	ctx = logging.AddToContext(ctx, logger)
	ctx = reporting.AddHubToContext(ctx)

	opts := mojangdirectory.RequestOptions{
		ConnectTimeout: conf.ConnectTimeout(),
		ReadTimeout:    conf.ReadTimeout(),
	}
	if *connectTimeout > 0 {
		opts.ConnectTimeout = *connectTimeout
	}
	if *readTimeout > 0 {
		opts.ReadTimeout = *readTimeout
	}
	if *at != "" {
		opts.At, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			fail("Invalid --at", "error", err.Error())
		}
	}

	clientOptions := []mojangdirectory.Option{}
	if conf.RequestsPerSecond() > 0 {
		limiter, stop := mojangdirectory.NewTokenBucketLimiter(conf.RequestsPerSecond(), conf.RequestsPerSecond())
		defer stop()
		clientOptions = append(clientOptions, mojangdirectory.WithLimiter(limiter))
	}

	client, err := mojangdirectory.NewClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, clientOptions...)
	if err != nil {
		fail("Failed to initialize client", "error", err.Error())
	}

	result, err := run(ctx, client, args[0], args[1:], opts, *atMillis)
	if err != nil {
		fail("Lookup failed", "error", err.Error())
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fail("Failed to write result", "error", err.Error())
	}
}

func run(ctx context.Context, client *mojangdirectory.Client, command string, args []string, opts mojangdirectory.RequestOptions, atMillis int64) (any, error) {
	switch command {
	case "name":
		account, err := client.GetAccountByUsername(ctx, args[0], opts)
		if err != nil {
			return nil, err
		}
		return toAccountOutput(account), nil
	case "batch":
		accounts, err := client.GetAccountsByUsernames(ctx, args, opts)
		if err != nil {
			return nil, err
		}
		output := make([]accountOutput, 0, len(accounts))
		for _, account := range accounts {
			output = append(output, toAccountOutput(account))
		}
		return output, nil
	case "uuid":
		id, err := parseUUID(args[0])
		if err != nil {
			return nil, err
		}
		account, err := client.GetAccountByUUID(ctx, id, opts)
		if err != nil {
			return nil, err
		}
		return toAccountOutput(account), nil
	case "history":
		id, err := parseUUID(args[0])
		if err != nil {
			return nil, err
		}
		history, err := client.GetAccountHistory(ctx, id, opts)
		if err != nil {
			return nil, err
		}

		output := historyOutput{
			UUID:     history.UUID().String(),
			Original: history.OriginalUsername(),
			Current:  history.CurrentUsername(),
			Changes:  make([]nameChangeOutput, 0, history.Len()),
		}
		for changedToAt, username := range history.Changes() {
			output.Changes = append(output.Changes, nameChangeOutput{
				ChangedToAt: changedToAt,
				Username:    username,
			})
		}
		if atMillis >= 0 {
			username := history.UsernameAt(atMillis)
			output.UsernameAt = &username
		}
		return output, nil
	}

	return nil, fmt.Errorf("unknown command '%s'", command)
}

// Accepts both the dashed and the compact form
func parseUUID(raw string) (uuid.UUID, error) {
	normalized, err := strutils.NormalizeUUID(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid uuid '%s': %w", raw, err)
	}
	return uuid.Parse(normalized)
}

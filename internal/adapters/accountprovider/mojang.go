package accountprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Amund211/mojangdirectory/internal/constants"
	"github.com/Amund211/mojangdirectory/internal/domain"
	"github.com/Amund211/mojangdirectory/internal/logging"
	"github.com/Amund211/mojangdirectory/internal/ratelimiting"
	"github.com/Amund211/mojangdirectory/internal/reporting"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const MaxBatchSize = 10

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type RequestLimiter interface {
	Consume(key string) bool
}

// Per-call settings. The zero value uses the defaults.
type RequestOptions struct {
	// Point in time for username lookups, sent as the at parameter.
	// Defaults to now. The service has ignored this parameter since it removed
	// support for historical lookups, so it has no effect on the result.
	At time.Time

	// Bound on obtaining a connection. Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// Bound on receiving the response once connected. Defaults to DefaultReadTimeout.
	ReadTimeout time.Duration
}

func (o RequestOptions) withDefaults(now time.Time) RequestOptions {
	if o.At.IsZero() {
		o.At = now
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	return o
}

type operation string

const (
	getAccountByUsername   operation = "get_account_by_username"
	getAccountsByUsernames operation = "get_accounts_by_usernames"
	getAccountByUUID       operation = "get_account_by_uuid"
	getAccountHistory      operation = "get_account_history"
)

type mojangMetricsCollection struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
}

func setupMojangMetrics(meter metric.Meter) (mojangMetricsCollection, error) {
	requestCount, err := meter.Int64Counter(
		"accountprovider/mojang/request_count",
		metric.WithDescription("Requests made to the Mojang API"),
	)
	if err != nil {
		return mojangMetricsCollection{}, fmt.Errorf("failed to create request count metric: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"accountprovider/mojang/request_duration_seconds",
		metric.WithDescription("Round trip time for requests made to the Mojang API"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return mojangMetricsCollection{}, fmt.Errorf("failed to create request duration metric: %w", err)
	}

	return mojangMetricsCollection{
		requestCount:    requestCount,
		requestDuration: requestDuration,
	}, nil
}

// Client for the Mojang account directory.
//
// Every lookup is a single request with no retries. Safe for concurrent use.
type Mojang struct {
	httpClient HttpClient
	limiter    RequestLimiter
	nowFunc    func() time.Time

	metrics mojangMetricsCollection
	tracer  trace.Tracer
}

// limiter may be nil, in which case requests are not limited
func NewMojang(httpClient HttpClient, limiter RequestLimiter, nowFunc func() time.Time) (*Mojang, error) {
	const name = "mojangdirectory/accountprovider/mojang"

	meter := otel.Meter(name)
	tracer := otel.Tracer(name)

	metrics, err := setupMojangMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	if limiter == nil {
		limiter = ratelimiting.NewUnlimited()
	}

	return &Mojang{
		httpClient: httpClient,
		limiter:    limiter,
		nowFunc:    nowFunc,

		metrics: metrics,
		tracer:  tracer,
	}, nil
}

func (m *Mojang) GetAccountByUsername(ctx context.Context, username string, opts RequestOptions) (domain.Account, error) {
	ctx, span := m.startOperation(ctx, getAccountByUsername, "Mojang.GetAccountByUsername")
	defer span.End()

	ctx = reporting.AddExtrasToContext(ctx, map[string]string{"username": username})
	ctx = logging.AddMetaToContext(ctx, slog.String("username", username))

	if username == "" {
		return domain.Account{}, endSpan(span, fmt.Errorf("%w: username must not be empty", domain.ErrValidation))
	}

	opts = opts.withDefaults(m.nowFunc())
	requestURL := fmt.Sprintf(
		"%s/users/profiles/minecraft/%s?at=%d",
		constants.MOJANG_API_BASE_URL, url.PathEscape(username), opts.At.Unix(),
	)

	statusCode, data, err := m.send(ctx, getAccountByUsername, http.MethodGet, requestURL, nil, opts)
	if err != nil {
		return domain.Account{}, endSpan(span, err)
	}

	account, err := accountFromMojangResponse(statusCode, data, fmt.Sprintf("username %s", username), invalidUsernameMessage)
	if err != nil {
		reportResponseError(ctx, err, statusCode, data)
		return domain.Account{}, endSpan(span, err)
	}

	return account, nil
}

// Looks up at most MaxBatchSize usernames in one request.
//
// The accounts are returned in the order the service returned them. The service
// leaves out unknown usernames and may deduplicate or reorder the rest.
func (m *Mojang) GetAccountsByUsernames(ctx context.Context, usernames []string, opts RequestOptions) ([]domain.Account, error) {
	ctx, span := m.startOperation(ctx, getAccountsByUsernames, "Mojang.GetAccountsByUsernames")
	defer span.End()

	ctx = reporting.AddExtrasToContext(ctx, map[string]string{"usernames": strings.Join(usernames, ",")})
	ctx = logging.AddMetaToContext(ctx, slog.Any("usernames", usernames))

	if len(usernames) > MaxBatchSize {
		return nil, endSpan(span, fmt.Errorf(
			"%w: cannot request %d usernames (maximum %d)",
			domain.ErrBatchLimit, len(usernames), MaxBatchSize,
		))
	}

	for i, username := range usernames {
		if username == "" {
			return nil, endSpan(span, fmt.Errorf("%w: username at index %d must not be empty", domain.ErrValidation, i))
		}
	}

	if usernames == nil {
		usernames = []string{}
	}
	body, err := json.Marshal(usernames)
	if err != nil {
		err := fmt.Errorf("failed to serialize usernames: %w", err)
		reporting.Report(ctx, err)
		return nil, endSpan(span, err)
	}

	opts = opts.withDefaults(m.nowFunc())
	requestURL := fmt.Sprintf("%s/profiles/minecraft", constants.MOJANG_API_BASE_URL)

	statusCode, data, err := m.send(ctx, getAccountsByUsernames, http.MethodPost, requestURL, body, opts)
	if err != nil {
		return nil, endSpan(span, err)
	}

	accounts, err := accountsFromMojangResponse(statusCode, data, fmt.Sprintf("usernames [%s]", strings.Join(usernames, ", ")))
	if err != nil {
		reportResponseError(ctx, err, statusCode, data)
		return nil, endSpan(span, err)
	}

	return accounts, nil
}

func (m *Mojang) GetAccountByUUID(ctx context.Context, id uuid.UUID, opts RequestOptions) (domain.Account, error) {
	ctx, span := m.startOperation(ctx, getAccountByUUID, "Mojang.GetAccountByUUID")
	defer span.End()

	ctx = reporting.AddExtrasToContext(ctx, map[string]string{"uuid": id.String()})
	ctx = logging.AddMetaToContext(ctx, slog.String("uuid", id.String()))

	opts = opts.withDefaults(m.nowFunc())
	requestURL := fmt.Sprintf("%s/user/profile/%s", constants.MOJANG_API_BASE_URL, id)

	statusCode, data, err := m.send(ctx, getAccountByUUID, http.MethodGet, requestURL, nil, opts)
	if err != nil {
		return domain.Account{}, endSpan(span, err)
	}

	account, err := accountFromMojangResponse(statusCode, data, fmt.Sprintf("UUID %s", id), fmt.Sprintf(invalidUUIDMessage, id))
	if err != nil {
		reportResponseError(ctx, err, statusCode, data)
		return domain.Account{}, endSpan(span, err)
	}

	return account, nil
}

func (m *Mojang) GetAccountHistory(ctx context.Context, id uuid.UUID, opts RequestOptions) (domain.AccountHistory, error) {
	ctx, span := m.startOperation(ctx, getAccountHistory, "Mojang.GetAccountHistory")
	defer span.End()

	ctx = reporting.AddExtrasToContext(ctx, map[string]string{"uuid": id.String()})
	ctx = logging.AddMetaToContext(ctx, slog.String("uuid", id.String()))

	opts = opts.withDefaults(m.nowFunc())
	requestURL := fmt.Sprintf("%s/user/profiles/%s/names", constants.MOJANG_API_BASE_URL, id)

	statusCode, data, err := m.send(ctx, getAccountHistory, http.MethodGet, requestURL, nil, opts)
	if err != nil {
		return domain.AccountHistory{}, endSpan(span, err)
	}

	history, err := historyFromMojangResponse(statusCode, data, id)
	if err != nil {
		reportResponseError(ctx, err, statusCode, data)
		return domain.AccountHistory{}, endSpan(span, err)
	}

	return history, nil
}

func (m *Mojang) startOperation(ctx context.Context, op operation, spanName string) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("operation", string(op))))
	ctx = reporting.AddTagsToContext(ctx, map[string]string{"operation": string(op)})
	ctx = reporting.SetStartedAtInContext(ctx, m.nowFunc())
	ctx = logging.AddMetaToContext(ctx, slog.String("operation", string(op)))
	return ctx, span
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Performs a single round trip and returns the status code and the full body
func (m *Mojang) send(ctx context.Context, op operation, method string, requestURL string, body []byte, opts RequestOptions) (int, []byte, error) {
	if !m.limiter.Consume(string(op)) {
		m.recordRequest(ctx, op, "limited", 0)
		logging.FromContext(ctx).DebugContext(ctx, "Did not send request to the Mojang API due to rate limiting")
		return -1, nil, fmt.Errorf("%w: too many requests to the mojang API", domain.ErrTemporarilyUnavailable)
	}

	ctx, deadlines, stop := withPhaseDeadlines(ctx, opts.ConnectTimeout, opts.ReadTimeout)
	defer stop()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err)
		return -1, nil, err
	}

	req.Header.Set("User-Agent", constants.USER_AGENT)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		err := deadlines.transportError(fmt.Errorf("failed to send request: %w", err))
		m.recordRequest(ctx, op, "error", time.Since(start))
		reporting.Report(ctx, err)
		return -1, nil, err
	}

	// Responses from transports that don't report connections still end the connect phase
	deadlines.connected()

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		err := deadlines.transportError(fmt.Errorf("failed to read response body: %w", err))
		m.recordRequest(ctx, op, "error", time.Since(start))
		reporting.Report(ctx, err, map[string]string{
			"status": strconv.Itoa(resp.StatusCode),
		})
		return -1, nil, err
	}

	duration := time.Since(start)
	m.recordRequest(ctx, op, strconv.Itoa(resp.StatusCode), duration)
	logging.FromContext(ctx).DebugContext(
		ctx,
		"mojang request completed",
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
		slog.String("duration", duration.String()),
	)

	return resp.StatusCode, data, nil
}

func (m *Mojang) recordRequest(ctx context.Context, op operation, status string, duration time.Duration) {
	attributesOption := metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("status_code", status),
	)
	m.metrics.requestCount.Add(ctx, 1, attributesOption)
	if duration > 0 {
		m.metrics.requestDuration.Record(ctx, duration.Seconds(), attributesOption)
	}
}

// Unexpected responses are reported. Answers the service gives for bad input are not.
func reportResponseError(ctx context.Context, err error, statusCode int, data []byte) {
	if errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrInvalidRequest) ||
		errors.Is(err, domain.ErrTemporarilyUnavailable) {
		return
	}

	reporting.Report(ctx, fmt.Errorf("failed to interpret mojang response: %w", err), map[string]string{
		"data":   string(data),
		"status": strconv.Itoa(statusCode),
	})
}

package accountprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"sync"
	"testing"
	"time"

	"github.com/Amund211/mojangdirectory/internal/domain"
	"github.com/Amund211/mojangdirectory/internal/domaintest"
	"github.com/Amund211/mojangdirectory/internal/logging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordedRequest struct {
	method  string
	url     string
	headers http.Header
	body    []byte
}

type mockedHttpClient struct {
	t *testing.T

	statusCode int
	body       string
	doFunc     func(req *http.Request) (*http.Response, error)

	mutex    sync.Mutex
	requests []recordedRequest
}

func (m *mockedHttpClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		require.NoError(m.t, err)
	}

	m.mutex.Lock()
	m.requests = append(m.requests, recordedRequest{
		method:  req.Method,
		url:     req.URL.String(),
		headers: req.Header.Clone(),
		body:    body,
	})
	m.mutex.Unlock()

	if m.doFunc != nil {
		return m.doFunc(req)
	}

	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func (m *mockedHttpClient) recorded() []recordedRequest {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]recordedRequest(nil), m.requests...)
}

type denyAll struct{}

func (denyAll) Consume(string) bool {
	return false
}

// Blocks until the request context is done
type stalledBody struct {
	ctx context.Context
}

func (b stalledBody) Read([]byte) (int, error) {
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b stalledBody) Close() error {
	return nil
}

func newMojang(t *testing.T, httpClient HttpClient, limiter RequestLimiter) *Mojang {
	t.Helper()

	provider, err := NewMojang(httpClient, limiter, func() time.Time { return now })
	require.NoError(t, err)
	return provider
}

func TestGetAccountByUsername(t *testing.T) {
	t.Parallel()

	t.Run("Dinnerbone", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{
			t:          t,
			statusCode: 200,
			body:       `{"id":"61699b2ed3274a019f1e0ea8c3f06bc6","name":"Dinnerbone"}`,
		}
		provider := newMojang(t, httpClient, nil)

		account, err := provider.GetAccountByUsername(t.Context(), "dinnerbone", RequestOptions{})
		require.NoError(t, err)
		require.Equal(t, domaintest.NewAccount(t, dinnerboneUUID, "Dinnerbone"), account)
		require.Equal(t, "61699b2e-d327-4a01-9f1e-0ea8c3f06bc6", account.UUID().String())

		requests := httpClient.recorded()
		require.Len(t, requests, 1)
		require.Equal(t, http.MethodGet, requests[0].method)
		require.Equal(t, "https://api.mojang.com/users/profiles/minecraft/dinnerbone?at=1709294400", requests[0].url)
		require.Equal(t, "application/json", requests[0].headers.Get("Accept"))
		require.Contains(t, requests[0].headers.Get("User-Agent"), "mojangdirectory")
		require.Empty(t, requests[0].body)
	})

	t.Run("explicit point in time", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{
			t:          t,
			statusCode: 200,
			body:       `{"id":"61699b2ed3274a019f1e0ea8c3f06bc6","name":"Dinnerbone"}`,
		}
		provider := newMojang(t, httpClient, nil)

		_, err := provider.GetAccountByUsername(t.Context(), "Dinnerbone", RequestOptions{
			At: time.Unix(1423047146, 0),
		})
		require.NoError(t, err)

		requests := httpClient.recorded()
		require.Len(t, requests, 1)
		require.Equal(t, "https://api.mojang.com/users/profiles/minecraft/Dinnerbone?at=1423047146", requests[0].url)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{t: t, statusCode: 204}, nil)

		_, err := provider.GetAccountByUsername(t.Context(), "somenickeduser", RequestOptions{})
		var notFound *domain.NotFoundError
		require.ErrorAs(t, err, &notFound)
		require.Contains(t, notFound.Key, "somenickeduser")
	})

	t.Run("empty username is rejected without a request", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{t: t, statusCode: 200}
		provider := newMojang(t, httpClient, nil)

		_, err := provider.GetAccountByUsername(t.Context(), "", RequestOptions{})
		require.ErrorIs(t, err, domain.ErrValidation)
		require.Empty(t, httpClient.recorded())
	})

	t.Run("invalid record", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{
			t:          t,
			statusCode: 200,
			body:       `{"id":"61699b2e-d327-4a01-9f1e-0ea8c3f06bc6","name":"Dinnerbone"}`,
		}, nil)

		_, err := provider.GetAccountByUsername(t.Context(), "Dinnerbone", RequestOptions{})
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestGetAccountsByUsernames(t *testing.T) {
	t.Parallel()

	t.Run("posts the names as a JSON array", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{
			t:          t,
			statusCode: 200,
			body: `[
  {"id":"a937646bf11544c38dbf9ae4a65669a0","name":"Skydeath"},
  {"id":"61699b2ed3274a019f1e0ea8c3f06bc6","name":"Dinnerbone"}
]`,
		}
		provider := newMojang(t, httpClient, nil)

		accounts, err := provider.GetAccountsByUsernames(t.Context(), []string{"dinnerbone", "skydeath", "nobody"}, RequestOptions{})
		require.NoError(t, err)
		require.Equal(t, []domain.Account{
			domaintest.NewAccount(t, skydeathUUID, "Skydeath"),
			domaintest.NewAccount(t, dinnerboneUUID, "Dinnerbone"),
		}, accounts)

		requests := httpClient.recorded()
		require.Len(t, requests, 1)
		require.Equal(t, http.MethodPost, requests[0].method)
		require.Equal(t, "https://api.mojang.com/profiles/minecraft", requests[0].url)
		require.Equal(t, "application/json; charset=utf-8", requests[0].headers.Get("Content-Type"))
		require.Equal(t, "application/json", requests[0].headers.Get("Accept"))

		var sent []string
		require.NoError(t, json.Unmarshal(requests[0].body, &sent))
		require.Equal(t, []string{"dinnerbone", "skydeath", "nobody"}, sent)
	})

	t.Run("no known names", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{t: t, statusCode: 200, body: `[]`}, nil)

		accounts, err := provider.GetAccountsByUsernames(t.Context(), []string{"nobody"}, RequestOptions{})
		require.NoError(t, err)
		require.NotNil(t, accounts)
		require.Empty(t, accounts)
	})

	t.Run("no names still sends an empty array", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{t: t, statusCode: 200, body: `[]`}
		provider := newMojang(t, httpClient, nil)

		accounts, err := provider.GetAccountsByUsernames(t.Context(), nil, RequestOptions{})
		require.NoError(t, err)
		require.Empty(t, accounts)

		requests := httpClient.recorded()
		require.Len(t, requests, 1)
		require.JSONEq(t, `[]`, string(requests[0].body))
	})

	t.Run("ten names are allowed", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{t: t, statusCode: 200, body: `[]`}
		provider := newMojang(t, httpClient, nil)

		usernames := make([]string, MaxBatchSize)
		for i := range usernames {
			usernames[i] = "user"
		}

		_, err := provider.GetAccountsByUsernames(t.Context(), usernames, RequestOptions{})
		require.NoError(t, err)
		require.Len(t, httpClient.recorded(), 1)
	})

	t.Run("eleven names are rejected without a request", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{t: t, statusCode: 200, body: `[]`}
		provider := newMojang(t, httpClient, nil)

		usernames := make([]string, MaxBatchSize+1)
		for i := range usernames {
			usernames[i] = "user"
		}

		_, err := provider.GetAccountsByUsernames(t.Context(), usernames, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrBatchLimit)
		require.Empty(t, httpClient.recorded())
	})

	t.Run("empty name is rejected without a request", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{t: t, statusCode: 200, body: `[]`}
		provider := newMojang(t, httpClient, nil)

		_, err := provider.GetAccountsByUsernames(t.Context(), []string{"Dinnerbone", ""}, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrValidation)
		require.Empty(t, httpClient.recorded())
	})

	t.Run("non-object element", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{t: t, statusCode: 200, body: `["Dinnerbone"]`}, nil)

		_, err := provider.GetAccountsByUsernames(t.Context(), []string{"Dinnerbone"}, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrParse)
		require.ErrorContains(t, err, "index 0")
	})

	t.Run("rejected request", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{
			t:          t,
			statusCode: 400,
			body:       `{"error":"IllegalArgumentException","errorMessage":"profileName can not be null or empty."}`,
		}, nil)

		_, err := provider.GetAccountsByUsernames(t.Context(), []string{"Dinnerbone"}, RequestOptions{})
		var requestErr *domain.RequestError
		require.ErrorAs(t, err, &requestErr)
		require.Equal(t, "profileName can not be null or empty.", requestErr.Message)
	})
}

func TestGetAccountByUUID(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{
			t:          t,
			statusCode: 200,
			body:       `{"id":"61699b2ed3274a019f1e0ea8c3f06bc6","name":"Dinnerbone"}`,
		}
		provider := newMojang(t, httpClient, nil)

		account, err := provider.GetAccountByUUID(t.Context(), dinnerboneUUID, RequestOptions{})
		require.NoError(t, err)
		require.Equal(t, domaintest.NewAccount(t, dinnerboneUUID, "Dinnerbone"), account)

		requests := httpClient.recorded()
		require.Len(t, requests, 1)
		require.Equal(t, http.MethodGet, requests[0].method)
		require.Equal(t, "https://api.mojang.com/user/profile/61699b2e-d327-4a01-9f1e-0ea8c3f06bc6", requests[0].url)
	})

	t.Run("no content", func(t *testing.T) {
		t.Parallel()

		id := uuid.MustParse("00000000-0000-0000-0000-000000000000")
		provider := newMojang(t, &mockedHttpClient{t: t, statusCode: 204}, nil)

		_, err := provider.GetAccountByUUID(t.Context(), id, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrAccountNotFound)

		var notFound *domain.NotFoundError
		require.ErrorAs(t, err, &notFound)
		require.Contains(t, notFound.Key, id.String())
	})

	t.Run("bad request", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{t: t, statusCode: 400, body: `{"errorMessage":"bad request"}`}, nil)

		_, err := provider.GetAccountByUUID(t.Context(), dinnerboneUUID, RequestOptions{})
		var requestErr *domain.RequestError
		require.ErrorAs(t, err, &requestErr)
		require.Equal(t, "bad request", requestErr.Message)
	})

	t.Run("bad request without message", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{t: t, statusCode: 400}, nil)

		_, err := provider.GetAccountByUUID(t.Context(), dinnerboneUUID, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
		require.ErrorContains(t, err, dinnerboneUUID.String())
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{t: t, statusCode: 503}, nil)

		_, err := provider.GetAccountByUUID(t.Context(), dinnerboneUUID, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)
	})
}

func TestGetAccountHistory(t *testing.T) {
	t.Parallel()

	t.Run("gold and silver", func(t *testing.T) {
		t.Parallel()

		httpClient := &mockedHttpClient{
			t:          t,
			statusCode: 200,
			body:       `[{"name":"gold"},{"name":"silver","changedToAt":1000}]`,
		}
		provider := newMojang(t, httpClient, nil)

		history, err := provider.GetAccountHistory(t.Context(), dinnerboneUUID, RequestOptions{})
		require.NoError(t, err)

		require.Equal(t, dinnerboneUUID, history.UUID())
		require.Equal(t, "gold", history.OriginalUsername())
		require.Equal(t, "silver", history.CurrentUsername())
		require.Equal(t, "gold", history.UsernameAt(0))
		require.Equal(t, "gold", history.UsernameAt(999))
		require.Equal(t, "silver", history.UsernameAt(1000))
		require.Equal(t, "silver", history.UsernameAt(5000))

		requests := httpClient.recorded()
		require.Len(t, requests, 1)
		require.Equal(t, "https://api.mojang.com/user/profiles/61699b2e-d327-4a01-9f1e-0ea8c3f06bc6/names", requests[0].url)
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{t: t, statusCode: 200, body: `[]`}, nil)

		_, err := provider.GetAccountHistory(t.Context(), dinnerboneUUID, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestTransportFailures(t *testing.T) {
	t.Parallel()

	t.Run("connect timeout", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{
			t: t,
			doFunc: func(req *http.Request) (*http.Response, error) {
				<-req.Context().Done()
				return nil, req.Context().Err()
			},
		}, nil)

		_, err := provider.GetAccountByUUID(t.Context(), dinnerboneUUID, RequestOptions{
			ConnectTimeout: 20 * time.Millisecond,
			ReadTimeout:    time.Hour,
		})
		require.ErrorIs(t, err, domain.ErrTransport)
		require.ErrorIs(t, err, context.Canceled)

		var transportErr *domain.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Equal(t, domain.TimeoutPhaseConnect, transportErr.Phase)
		require.True(t, transportErr.TimedOut())
		require.Equal(t, 20*time.Millisecond, transportErr.ConnectTimeout)
		require.Equal(t, time.Hour, transportErr.ReadTimeout)
	})

	t.Run("read timeout", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{
			t: t,
			doFunc: func(req *http.Request) (*http.Response, error) {
				trace := httptrace.ContextClientTrace(req.Context())
				require.NotNil(t, trace)
				trace.GotConn(httptrace.GotConnInfo{})

				return &http.Response{
					StatusCode: 200,
					Body:       stalledBody{ctx: req.Context()},
				}, nil
			},
		}, nil)

		_, err := provider.GetAccountHistory(t.Context(), dinnerboneUUID, RequestOptions{
			ConnectTimeout: time.Hour,
			ReadTimeout:    20 * time.Millisecond,
		})

		var transportErr *domain.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Equal(t, domain.TimeoutPhaseRead, transportErr.Phase)
	})

	t.Run("slow connection within the connect timeout", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{
			t: t,
			doFunc: func(req *http.Request) (*http.Response, error) {
				select {
				case <-time.After(30 * time.Millisecond):
				case <-req.Context().Done():
					return nil, req.Context().Err()
				}
				httptrace.ContextClientTrace(req.Context()).GotConn(httptrace.GotConnInfo{})

				return &http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(bytes.NewBufferString(`{"id":"61699b2ed3274a019f1e0ea8c3f06bc6","name":"Dinnerbone"}`)),
				}, nil
			},
		}, nil)

		account, err := provider.GetAccountByUUID(t.Context(), dinnerboneUUID, RequestOptions{
			ConnectTimeout: time.Hour,
			ReadTimeout:    10 * time.Millisecond,
		})
		require.NoError(t, err)
		require.Equal(t, "Dinnerbone", account.Username())
	})

	t.Run("other failures have no phase", func(t *testing.T) {
		t.Parallel()

		provider := newMojang(t, &mockedHttpClient{
			t: t,
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
		}, nil)

		_, err := provider.GetAccountByUsername(t.Context(), "Dinnerbone", RequestOptions{})

		var transportErr *domain.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Equal(t, domain.TimeoutPhaseNone, transportErr.Phase)
		require.False(t, transportErr.TimedOut())
		require.ErrorContains(t, err, "connection refused")
		require.Equal(t, DefaultConnectTimeout, transportErr.ConnectTimeout)
		require.Equal(t, DefaultReadTimeout, transportErr.ReadTimeout)
	})

	t.Run("caller cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		provider := newMojang(t, &mockedHttpClient{
			t: t,
			doFunc: func(req *http.Request) (*http.Response, error) {
				<-req.Context().Done()
				return nil, req.Context().Err()
			},
		}, nil)

		_, err := provider.GetAccountByUsername(ctx, "Dinnerbone", RequestOptions{})
		require.ErrorIs(t, err, domain.ErrTransport)
		require.ErrorIs(t, err, context.Canceled)

		var transportErr *domain.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Equal(t, domain.TimeoutPhaseNone, transportErr.Phase)
	})
}

func TestRateLimited(t *testing.T) {
	t.Parallel()

	httpClient := &mockedHttpClient{t: t, statusCode: 200, body: `[]`}
	provider := newMojang(t, httpClient, denyAll{})

	_, err := provider.GetAccountsByUsernames(t.Context(), []string{"Dinnerbone"}, RequestOptions{})
	require.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)
	require.Empty(t, httpClient.recorded())
}

func TestRequestOptionsDefaults(t *testing.T) {
	t.Parallel()

	opts := RequestOptions{}.withDefaults(now)
	require.Equal(t, now, opts.At)
	require.Equal(t, 30*time.Second, opts.ConnectTimeout)
	require.Equal(t, 30*time.Second, opts.ReadTimeout)

	at := time.Unix(1000, 0)
	opts = RequestOptions{At: at, ConnectTimeout: time.Second, ReadTimeout: 2 * time.Second}.withDefaults(now)
	require.Equal(t, at, opts.At)
	require.Equal(t, time.Second, opts.ConnectTimeout)
	require.Equal(t, 2*time.Second, opts.ReadTimeout)
}

func TestLogging(t *testing.T) {
	t.Parallel()

	t.Run("quiet at info level", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		ctx := logging.AddToContext(t.Context(), slog.New(slog.NewJSONHandler(buf, nil)))

		provider := newMojang(t, &mockedHttpClient{
			t:          t,
			statusCode: 200,
			body:       `{"id":"61699b2ed3274a019f1e0ea8c3f06bc6","name":"Dinnerbone"}`,
		}, nil)
		_, err := provider.GetAccountByUsername(ctx, "Dinnerbone", RequestOptions{})
		require.NoError(t, err)

		failing := newMojang(t, &mockedHttpClient{
			t: t,
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
		}, nil)
		_, err = failing.GetAccountByUUID(ctx, dinnerboneUUID, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrTransport)

		limited := newMojang(t, &mockedHttpClient{t: t, statusCode: 200}, denyAll{})
		_, err = limited.GetAccountHistory(ctx, dinnerboneUUID, RequestOptions{})
		require.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)

		require.Empty(t, buf.String())
	})

	t.Run("debug records carry the lookup", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		ctx := logging.AddToContext(t.Context(), logger)

		provider := newMojang(t, &mockedHttpClient{
			t:          t,
			statusCode: 200,
			body:       `{"id":"61699b2ed3274a019f1e0ea8c3f06bc6","name":"Dinnerbone"}`,
		}, nil)
		_, err := provider.GetAccountByUUID(ctx, dinnerboneUUID, RequestOptions{})
		require.NoError(t, err)

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		require.Equal(t, "DEBUG", record["level"])
		require.Equal(t, "mojang request completed", record["msg"])
		require.Equal(t, "get_account_by_uuid", record["operation"])
		require.Equal(t, dinnerboneUUID.String(), record["uuid"])
		require.Equal(t, http.MethodGet, record["method"])
		require.Equal(t, float64(200), record["status"])
	})
}

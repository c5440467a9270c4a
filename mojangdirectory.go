// Package mojangdirectory resolves Minecraft accounts through the Mojang account directory.
//
// A Client looks up an account by username or by UUID, resolves a batch of up to
// MaxBatchSize usernames in one request, and fetches the name history of an account.
// Every lookup is a single request. Failures are reported as errors matching one of
// the exported sentinels with errors.Is.
package mojangdirectory

import (
	"context"
	"net/http"
	"time"

	"github.com/Amund211/mojangdirectory/internal/adapters/accountprovider"
	"github.com/Amund211/mojangdirectory/internal/domain"
	"github.com/Amund211/mojangdirectory/internal/ratelimiting"
	"github.com/Amund211/mojangdirectory/internal/strutils"
	"github.com/google/uuid"
)

type (
	Account        = domain.Account
	AccountHistory = domain.AccountHistory
	NameChange     = domain.NameChange
	RequestOptions = accountprovider.RequestOptions

	TransportError = domain.TransportError
	TimeoutPhase   = domain.TimeoutPhase
	NotFoundError  = domain.NotFoundError
	RequestError   = domain.RequestError
)

const (
	TimeoutPhaseNone    = domain.TimeoutPhaseNone
	TimeoutPhaseConnect = domain.TimeoutPhaseConnect
	TimeoutPhaseRead    = domain.TimeoutPhaseRead
)

const (
	MaxBatchSize          = accountprovider.MaxBatchSize
	DefaultConnectTimeout = accountprovider.DefaultConnectTimeout
	DefaultReadTimeout    = accountprovider.DefaultReadTimeout
)

var (
	ErrValidation             = domain.ErrValidation
	ErrBatchLimit             = domain.ErrBatchLimit
	ErrTransport              = domain.ErrTransport
	ErrAccountNotFound        = domain.ErrAccountNotFound
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrParse                  = domain.ErrParse
	ErrTemporarilyUnavailable = domain.ErrTemporarilyUnavailable
	ErrInvalidUUIDFormat      = strutils.ErrInvalidUUIDFormat
)

// Builds an account, validating the username
func NewAccount(id uuid.UUID, username string) (Account, error) {
	return domain.NewAccount(id, username)
}

// Builds a name history from changes in any order
func NewAccountHistory(id uuid.UUID, changes []NameChange) (AccountHistory, error) {
	return domain.NewAccountHistory(id, changes)
}

// Parses the 32 character undashed form used by the directory
func UUIDFromCompact(compact string) (uuid.UUID, error) {
	return strutils.UUIDFromCompact(compact)
}

// Decides whether a request for an operation may be sent now. Must not block.
type Limiter interface {
	Consume(operation string) bool
}

// Allows refillPerSecond requests per second per operation, with bursts of burstSize.
// Call stop when the limiter is no longer used.
func NewTokenBucketLimiter(refillPerSecond int, burstSize int) (limiter Limiter, stop func()) {
	return ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(refillPerSecond),
		ratelimiting.BurstSize(burstSize),
	)
}

type clientOptions struct {
	limiter Limiter
	nowFunc func() time.Time
}

type Option func(*clientOptions)

// Requests denied by limiter fail with ErrTemporarilyUnavailable without being sent
func WithLimiter(limiter Limiter) Option {
	return func(o *clientOptions) {
		o.limiter = limiter
	}
}

// Clock used for the default point in time of username lookups
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(o *clientOptions) {
		o.nowFunc = nowFunc
	}
}

type Client struct {
	mojang *accountprovider.Mojang
}

// A nil httpClient uses a default *http.Client. Timeouts are applied per call
// through RequestOptions, so httpClient should not set its own Timeout.
//
// The client logs at debug level only. Records go to slog.Default() unless the
// context passed to a call carries another logger. Failures are returned, and
// are only reported when the context carries a Sentry hub.
func NewClient(httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	options := clientOptions{
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	var limiter accountprovider.RequestLimiter
	if options.limiter != nil {
		limiter = options.limiter
	}

	mojang, err := accountprovider.NewMojang(httpClient, limiter, options.nowFunc)
	if err != nil {
		return nil, err
	}

	return &Client{mojang: mojang}, nil
}

// Resolves a username to the account currently holding it, with the name in its
// canonical capitalization. Unknown names fail with a *NotFoundError.
func (c *Client) GetAccountByUsername(ctx context.Context, username string, opts RequestOptions) (Account, error) {
	return c.mojang.GetAccountByUsername(ctx, username, opts)
}

// Resolves up to MaxBatchSize usernames in one request. Unknown names are left out.
func (c *Client) GetAccountsByUsernames(ctx context.Context, usernames []string, opts RequestOptions) ([]Account, error) {
	return c.mojang.GetAccountsByUsernames(ctx, usernames, opts)
}

func (c *Client) GetAccountByUUID(ctx context.Context, id uuid.UUID, opts RequestOptions) (Account, error) {
	return c.mojang.GetAccountByUUID(ctx, id, opts)
}

func (c *Client) GetAccountHistory(ctx context.Context, id uuid.UUID, opts RequestOptions) (AccountHistory, error) {
	return c.mojang.GetAccountHistory(ctx, id, opts)
}

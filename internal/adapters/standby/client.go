package standby

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Config configures the remote standby client
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Breaker      resilience.Settings
}

// DefaultConfig returns production settings for baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      5 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// Client is a restriction.StandbySource backed by a remote standby service
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	logger  *logging.Logger
}

var _ restriction.StandbySource = (*Client)(nil)

// BucketResponse is the wire form of one package's bucket
type BucketResponse struct {
	Package string              `json:"package"`
	Bucket  types.StandbyBucket `json:"bucket"`
}

// BucketsResponse is the wire form of a user's buckets
type BucketsResponse struct {
	Buckets []restriction.AppStandbyInfo `json:"buckets"`
}

// RestrictRequest is the body of a restrict call
type RestrictRequest struct {
	Reason types.Reason `json:"reason"`
}

// UnrestrictRequest is the body of an unrestrict call
type UnrestrictRequest struct {
	PrevReason types.Reason `json:"prev_reason"`
	Reason     types.Reason `json:"reason"`
}

// New creates a client for cfg.BaseURL
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("standby: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("standby: invalid base url: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("standby")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = leveledLogger{logger.Sugar()}

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "bgrestrict-standby/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	settings := cfg.Breaker
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, restriction.ErrPackageNotFound)
		}
	}

	return &Client{
		resty:   restyClient,
		breaker: resilience.New("standby", settings, logger.Logger),
		logger:  logger,
	}, nil
}

// Breaker returns the client's circuit breaker
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Bucket implements restriction.StandbySource
func (c *Client) Bucket(ctx context.Context, pkg string, userID int) (types.StandbyBucket, error) {
	resp, err := resilience.Do(ctx, c.breaker, func(ctx context.Context) (*BucketResponse, error) {
		var out BucketResponse
		r, err := c.resty.R().
			SetContext(ctx).
			SetPathParams(pathParams(pkg, userID)).
			SetResult(&out).
			Get("/v1/standby/users/{user}/packages/{package}/bucket")
		if err := check(r, err, "bucket"); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return 0, err
	}
	return resp.Bucket, nil
}

// Buckets implements restriction.StandbySource
func (c *Client) Buckets(ctx context.Context, userID int) ([]restriction.AppStandbyInfo, error) {
	resp, err := resilience.Do(ctx, c.breaker, func(ctx context.Context) (*BucketsResponse, error) {
		var out BucketsResponse
		r, err := c.resty.R().
			SetContext(ctx).
			SetPathParam("user", strconv.Itoa(userID)).
			SetResult(&out).
			Get("/v1/standby/users/{user}/buckets")
		if err := check(r, err, "buckets"); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Buckets, nil
}

// Restrict implements restriction.StandbySource
func (c *Client) Restrict(ctx context.Context, pkg string, userID int, reason types.Reason) error {
	return c.breaker.Call(ctx, func(ctx context.Context) error {
		r, err := c.resty.R().
			SetContext(ctx).
			SetPathParams(pathParams(pkg, userID)).
			SetBody(RestrictRequest{Reason: reason}).
			Post("/v1/standby/users/{user}/packages/{package}/restrict")
		return check(r, err, "restrict")
	})
}

// Unrestrict implements restriction.StandbySource
func (c *Client) Unrestrict(ctx context.Context, pkg string, userID int, prevReason, reason types.Reason) error {
	return c.breaker.Call(ctx, func(ctx context.Context) error {
		r, err := c.resty.R().
			SetContext(ctx).
			SetPathParams(pathParams(pkg, userID)).
			SetBody(UnrestrictRequest{PrevReason: prevReason, Reason: reason}).
			Post("/v1/standby/users/{user}/packages/{package}/unrestrict")
		return check(r, err, "unrestrict")
	})
}

func pathParams(pkg string, userID int) map[string]string {
	return map[string]string{
		"user":    strconv.Itoa(userID),
		"package": pkg,
	}
}

func check(r *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("standby %s: %w", op, err)
	}
	switch {
	case r.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("standby %s: %w", op, restriction.ErrPackageNotFound)
	case r.IsError():
		return fmt.Errorf("standby %s: unexpected status %s", op, r.Status())
	}
	return nil
}

// leveledLogger adapts zap to retryablehttp's leveled logger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

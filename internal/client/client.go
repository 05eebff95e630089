package client

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/retry"
	"github.com/the127/resumable/internal/storage"
	"google.golang.org/grpc/status"
)

type Options struct {
	RetryPolicy   retry.Policy
	BackoffPolicy retry.BackoffPolicy

	// Unary calls are retried with retry-go using these settings.
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration

	ChunkSize int
}

func DefaultOptions() Options {
	return Options{
		RetryPolicy: retry.NewCombinedPolicy(
			retry.NewLimitedErrorCountPolicy(10),
			retry.NewLimitedTimePolicy(10*time.Minute),
		),
		BackoffPolicy: retry.NewExponentialBackoffPolicy(time.Second, 5*time.Minute, 2),
		MaxAttempts:   11,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Minute,
		ChunkSize:     8 * 1024 * 1024,
	}
}

func OptionsFromConfig(c config.Config) Options {
	return Options{
		RetryPolicy: retry.NewCombinedPolicy(
			retry.NewLimitedErrorCountPolicy(c.Retry.MaxFailures),
			retry.NewLimitedTimePolicy(c.Retry.MaxDuration),
		),
		BackoffPolicy: retry.NewExponentialBackoffPolicy(c.Backoff.InitialDelay, c.Backoff.MaxDelay, c.Backoff.Scaling),
		MaxAttempts:   uint(c.Retry.MaxFailures) + 1,
		InitialDelay:  c.Backoff.InitialDelay,
		MaxDelay:      c.Backoff.MaxDelay,
		ChunkSize:     c.Client.ChunkSize,
	}
}

// Client adds retries to a RawClient. Unary calls are only retried when
// repeating them cannot change the outcome.
type Client struct {
	raw     storage.RawClient
	options Options
}

func NewClient(raw storage.RawClient, options Options) *Client {
	return &Client{
		raw:     raw,
		options: options,
	}
}

func (c *Client) Raw() storage.RawClient {
	return c.raw
}

func (c *Client) Options() Options {
	return c.options
}

func (c *Client) newSession(session storage.ResumableUploadSession) *RetryResumableUploadSession {
	return NewRetryResumableUploadSession(session, c.options.RetryPolicy, c.options.BackoffPolicy)
}

// CreateResumableUpload starts a new session. Session creation is retried
// since an abandoned session has no visible effect.
func (c *Client) CreateResumableUpload(ctx context.Context, request storage.ResumableUploadRequest) (*RetryResumableUploadSession, error) {
	var session storage.ResumableUploadSession
	err := c.do(ctx, "CreateResumableUpload", true, func() error {
		var err error
		session, err = c.raw.CreateResumableUpload(ctx, request)
		return err
	})
	if err != nil {
		return nil, err
	}

	return c.newSession(session), nil
}

// RestoreResumableUpload reattaches to an existing session and queries its
// committed size.
func (c *Client) RestoreResumableUpload(ctx context.Context, sessionID string) (*RetryResumableUploadSession, error) {
	raw, err := c.raw.RestoreResumableUpload(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session := c.newSession(raw)
	_, err = session.ResetSession(ctx)
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (c *Client) DeleteResumableUpload(ctx context.Context, sessionID string) error {
	return c.do(ctx, "DeleteResumableUpload", true, func() error {
		return c.raw.DeleteResumableUpload(ctx, sessionID)
	})
}

func (c *Client) WriteObject(ctx context.Context, request storage.ResumableUploadRequest) (*ObjectWriteStream, error) {
	session, err := c.CreateResumableUpload(ctx, request)
	if err != nil {
		return nil, err
	}

	return newObjectWriteStream(ctx, session, c.options.ChunkSize), nil
}

func (c *Client) RestoreObjectWriteStream(ctx context.Context, sessionID string) (*ObjectWriteStream, error) {
	session, err := c.RestoreResumableUpload(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return c.NewObjectWriteStream(ctx, session), nil
}

func (c *Client) NewObjectWriteStream(ctx context.Context, session *RetryResumableUploadSession) *ObjectWriteStream {
	return newObjectWriteStream(ctx, session, c.options.ChunkSize)
}

func (c *Client) ReadObject(ctx context.Context, request storage.ReadObjectRangeRequest) (*ObjectReadStream, error) {
	source, err := NewRetryObjectReadSource(ctx, c.raw, request, c.options.RetryPolicy, c.options.BackoffPolicy)
	if err != nil {
		return nil, err
	}

	return newObjectReadStream(ctx, source, request), nil
}

func (c *Client) InsertObjectMedia(ctx context.Context, request storage.InsertObjectMediaRequest) (*storage.ObjectMetadata, error) {
	var metadata *storage.ObjectMetadata
	err := c.do(ctx, "InsertObjectMedia", request.IfGenerationMatch != nil, func() error {
		var err error
		metadata, err = c.raw.InsertObjectMedia(ctx, request)
		return err
	})
	return metadata, err
}

func (c *Client) GetObjectMetadata(ctx context.Context, request storage.GetObjectMetadataRequest) (*storage.ObjectMetadata, error) {
	var metadata *storage.ObjectMetadata
	err := c.do(ctx, "GetObjectMetadata", true, func() error {
		var err error
		metadata, err = c.raw.GetObjectMetadata(ctx, request)
		return err
	})
	return metadata, err
}

func (c *Client) ComposeObject(ctx context.Context, request storage.ComposeObjectRequest) (*storage.ObjectMetadata, error) {
	var metadata *storage.ObjectMetadata
	err := c.do(ctx, "ComposeObject", request.IfGenerationMatch != nil, func() error {
		var err error
		metadata, err = c.raw.ComposeObject(ctx, request)
		return err
	})
	return metadata, err
}

func (c *Client) DeleteObject(ctx context.Context, request storage.DeleteObjectRequest) error {
	idempotent := request.Generation != nil || request.IfGenerationMatch != nil
	return c.do(ctx, "DeleteObject", idempotent, func() error {
		return c.raw.DeleteObject(ctx, request)
	})
}

func (c *Client) do(ctx context.Context, operation string, idempotent bool, f func() error) error {
	attempts := c.options.MaxAttempts
	if !idempotent || attempts == 0 {
		attempts = 1
	}

	err := retrygo.Do(
		f,
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.Delay(c.options.InitialDelay),
		retrygo.MaxDelay(c.options.MaxDelay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(retry.IsTransient),
		retrygo.OnRetry(func(n uint, err error) {
			logging.Logger.Warnf("%s failed (attempt %d), retrying: %v", operation, n+1, err)
		}),
	)
	if err == nil {
		return nil
	}

	s := status.Convert(err)
	if retry.IsTransient(err) && idempotent {
		return status.Errorf(s.Code(), "Retry policy exhausted in %s: %s", operation, s.Message())
	}
	if retry.IsTransient(err) {
		return err
	}
	return status.Errorf(s.Code(), "Permanent error in %s: %s", operation, s.Message())
}

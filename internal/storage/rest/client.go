package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxErrorBodySize = 64 * 1024

type Options struct {
	// Endpoint is the scheme and host of the service, e.g.
	// https://storage.googleapis.com.
	Endpoint string
	// HttpClient must not decompress responses transparently. A client that
	// does is replaced by the default one.
	HttpClient   *http.Client
	ExtraHeaders map[string]string
}

func OptionsFromConfig(c config.ClientConfig) Options {
	return Options{
		Endpoint:     c.Endpoint,
		ExtraHeaders: c.Headers,
	}
}

// Client speaks the JSON API. Every call is issued exactly once.
type Client struct {
	endpoint     string
	httpClient   *http.Client
	extraHeaders map[string]string
}

var _ storage.RawClient = (*Client)(nil)

func NewClient(options Options) *Client {
	httpClient := options.HttpClient
	if httpClient == nil {
		httpClient = newHttpClient()
	}

	return &Client{
		endpoint:     strings.TrimSuffix(options.Endpoint, "/"),
		httpClient:   httpClient,
		extraHeaders: options.ExtraHeaders,
	}
}

func newHttpClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true

	return &http.Client{
		Transport: transport,
		// 308 means "resume incomplete" here, never a redirect.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (c *Client) objectUrl(bucket string, object string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s", c.endpoint, url.PathEscape(bucket), url.PathEscape(object))
}

func (c *Client) uploadUrl(bucket string, query url.Values) string {
	return fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.endpoint, url.PathEscape(bucket), query.Encode())
}

func (c *Client) newRequest(ctx context.Context, method string, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "building %s request: %v", method, err)
	}

	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	logging.Logger.Debugf("%s %s", req.Method, req.URL.Redacted())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		return nil, status.Errorf(codes.Unavailable, "%s %s: %v", req.Method, req.URL.Path, err)
	}

	return resp, nil
}

// errorFromResponse consumes and closes the body of a failed response.
func errorFromResponse(resp *http.Response) error {
	defer utils.IgnoreError(resp.Body.Close)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return status.Errorf(codes.Unavailable, "reading error response: %v", err)
	}

	return storageError.FromHttpResponse(resp.StatusCode, body)
}

func decodeObject(resp *http.Response) (*storage.ObjectMetadata, error) {
	defer utils.IgnoreError(resp.Body.Close)

	var object storage.ObjectMetadata
	err := json.NewDecoder(resp.Body).Decode(&object)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "decoding object resource: %v", err)
	}

	return &object, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func setGeneration(query url.Values, name string, generation *int64) {
	if generation != nil {
		query.Set(name, strconv.FormatInt(*generation, 10))
	}
}

type objectResource struct {
	Name            string            `json:"name,omitempty"`
	ContentType     string            `json:"contentType,omitempty"`
	ContentEncoding string            `json:"contentEncoding,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (c *Client) CreateResumableUpload(ctx context.Context, request storage.ResumableUploadRequest) (storage.ResumableUploadSession, error) {
	query := url.Values{}
	query.Set("uploadType", "resumable")
	query.Set("name", request.Object)
	setGeneration(query, "ifGenerationMatch", request.IfGenerationMatch)

	body, err := json.Marshal(objectResource{
		Name:            request.Object,
		ContentType:     request.ContentType,
		ContentEncoding: request.ContentEncoding,
		Metadata:        request.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding object resource: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.uploadUrl(request.Bucket, query), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if request.ContentType != "" {
		req.Header.Set(storage.HeaderUploadContentType, request.ContentType)
	}
	if request.UploadContentLength != nil {
		req.Header.Set(storage.HeaderUploadContentLength, strconv.FormatUint(*request.UploadContentLength, 10))
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, errorFromResponse(resp)
	}
	utils.IgnoreError(resp.Body.Close)

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, status.Error(codes.Internal, "resumable upload response has no Location header")
	}

	return newSession(c, location), nil
}

// RestoreResumableUpload does not contact the service. The session has to be
// reset to learn its committed size.
func (c *Client) RestoreResumableUpload(_ context.Context, sessionID string) (storage.ResumableUploadSession, error) {
	if _, err := url.Parse(sessionID); err != nil || sessionID == "" {
		return nil, status.Errorf(codes.InvalidArgument, "invalid upload session id %q", sessionID)
	}

	return newSession(c, sessionID), nil
}

func (c *Client) DeleteResumableUpload(ctx context.Context, sessionID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, sessionID, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}

	// a cancelled session answers 499
	if isSuccess(resp.StatusCode) || resp.StatusCode == statusClientClosedRequest {
		utils.IgnoreError(resp.Body.Close)
		return nil
	}

	return errorFromResponse(resp)
}

func (c *Client) InsertObjectMedia(ctx context.Context, request storage.InsertObjectMediaRequest) (*storage.ObjectMetadata, error) {
	query := url.Values{}
	query.Set("uploadType", "media")
	query.Set("name", request.Object)
	if request.ContentEncoding != "" {
		query.Set("contentEncoding", request.ContentEncoding)
	}
	setGeneration(query, "ifGenerationMatch", request.IfGenerationMatch)

	if len(request.Metadata) > 0 {
		logging.Logger.Warnf("media uploads cannot carry custom metadata, dropping it for %s", request.Object)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.uploadUrl(request.Bucket, query), bytes.NewReader(request.Contents))
	if err != nil {
		return nil, err
	}
	if request.ContentType != "" {
		req.Header.Set("Content-Type", request.ContentType)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, errorFromResponse(resp)
	}

	return decodeObject(resp)
}

func (c *Client) GetObjectMetadata(ctx context.Context, request storage.GetObjectMetadataRequest) (*storage.ObjectMetadata, error) {
	query := url.Values{}
	setGeneration(query, "generation", request.Generation)

	req, err := c.newRequest(ctx, http.MethodGet, c.objectUrl(request.Bucket, request.Object)+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, errorFromResponse(resp)
	}

	return decodeObject(resp)
}

type composeDestination struct {
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type composeRequest struct {
	SourceObjects []storage.ComposeSourceObject `json:"sourceObjects"`
	Destination   composeDestination            `json:"destination"`
}

func (c *Client) ComposeObject(ctx context.Context, request storage.ComposeObjectRequest) (*storage.ObjectMetadata, error) {
	query := url.Values{}
	setGeneration(query, "ifGenerationMatch", request.IfGenerationMatch)

	body, err := json.Marshal(composeRequest{
		SourceObjects: request.SourceObjects,
		Destination: composeDestination{
			ContentType: request.ContentType,
			Metadata:    request.Metadata,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding compose request: %w", err)
	}

	target := c.objectUrl(request.Bucket, request.Destination) + "/compose?" + query.Encode()
	req, err := c.newRequest(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, errorFromResponse(resp)
	}

	return decodeObject(resp)
}

func (c *Client) DeleteObject(ctx context.Context, request storage.DeleteObjectRequest) error {
	query := url.Values{}
	setGeneration(query, "generation", request.Generation)
	setGeneration(query, "ifGenerationMatch", request.IfGenerationMatch)

	req, err := c.newRequest(ctx, http.MethodDelete, c.objectUrl(request.Bucket, request.Object)+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		return errorFromResponse(resp)
	}

	utils.IgnoreError(resp.Body.Close)
	return nil
}

func (c *Client) ReadObject(ctx context.Context, request storage.ReadObjectRangeRequest) (storage.ObjectReadSource, error) {
	query := url.Values{}
	query.Set("alt", "media")
	setGeneration(query, "generation", request.Generation)

	req, err := c.newRequest(ctx, http.MethodGet, c.objectUrl(request.Bucket, request.Object)+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if rangeHeader := formatReadRange(request); rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, errorFromResponse(resp)
	}

	return newReadSource(resp), nil
}

func formatReadRange(request storage.ReadObjectRangeRequest) string {
	switch {
	case request.ReadLast != nil:
		return fmt.Sprintf("bytes=-%d", *request.ReadLast)
	case request.ReadRange != nil && request.ReadRange.End > request.ReadRange.Begin:
		return fmt.Sprintf("bytes=%d-%d", request.ReadRange.Begin, request.ReadRange.End-1)
	case request.ReadFromOffset > 0:
		return fmt.Sprintf("bytes=%d-", request.ReadFromOffset)
	default:
		return ""
	}
}

func isTransportError(err error) bool {
	return err != nil && !errors.Is(err, io.EOF)
}

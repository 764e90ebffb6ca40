// Package client is the command line client's view of the server API.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"immich-service/models"

	"github.com/go-resty/resty/v2"
)

const (
	apiKeyHeader   = "x-api-key"
	defaultTimeout = 30 * time.Second
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// errorBody covers the error shapes the server and proxies in front of it send
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Client calls one server with one API key.
// API calls share a fixed timeout; uploads are bounded only by their context.
type Client struct {
	http   *resty.Client
	upload *resty.Client
}

// New creates a client for instanceURL (e.g. http://host:2283/api)
func New(instanceURL, apiKey string) *Client {
	return &Client{
		http:   newResty(instanceURL, apiKey).SetTimeout(defaultTimeout),
		upload: newResty(instanceURL, apiKey),
	}
}

func newResty(instanceURL, apiKey string) *resty.Client {
	r := resty.New().
		SetBaseURL(strings.TrimRight(instanceURL, "/")).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		r.SetHeader(apiKeyHeader, apiKey)
	}
	return r
}

func (c *Client) request(ctx context.Context, result interface{}) *resty.Request {
	return newRequest(ctx, c.http, result)
}

func newRequest(ctx context.Context, r *resty.Client, result interface{}) *resty.Request {
	return r.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&errorBody{})
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}

// Ping checks that the server is reachable
func (c *Client) Ping(ctx context.Context) (*models.ServerPingResponse, error) {
	var out models.ServerPingResponse
	if err := check(c.request(ctx, &out).Get("/server-info/ping")); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &out, nil
}

// Version returns the server version
func (c *Client) Version(ctx context.Context) (*models.ServerVersionResponse, error) {
	var out models.ServerVersionResponse
	if err := check(c.request(ctx, &out).Get("/server-info/version")); err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &out, nil
}

// Me returns the user the API key belongs to
func (c *Client) Me(ctx context.Context) (*models.UserResponse, error) {
	var out models.UserResponse
	if err := check(c.request(ctx, &out).Get("/users/me")); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &out, nil
}

// BulkUploadCheck asks which checksums the server already has
func (c *Client) BulkUploadCheck(ctx context.Context, items []models.AssetBulkUploadCheckItem) ([]models.AssetBulkUploadCheckResult, error) {
	var out models.AssetBulkUploadCheckResponse
	req := c.request(ctx, &out).SetBody(models.AssetBulkUploadCheck{Assets: items})
	if err := check(req.Post("/asset/bulk-upload-check")); err != nil {
		return nil, fmt.Errorf("bulk upload check: %w", err)
	}
	return out.Results, nil
}

// AssetUpload is one file to send to POST /asset/upload
type AssetUpload struct {
	FileName       string
	Content        io.Reader
	DeviceAssetID  string
	DeviceID       string
	FileCreatedAt  time.Time
	FileModifiedAt time.Time
}

// UploadAsset sends one file as multipart form data
func (c *Client) UploadAsset(ctx context.Context, upload AssetUpload) (*models.AssetFileUploadResponse, error) {
	var out models.AssetFileUploadResponse
	req := newRequest(ctx, c.upload, &out).
		SetFileReader("assetData", upload.FileName, upload.Content).
		SetFormData(map[string]string{
			"deviceAssetId":  upload.DeviceAssetID,
			"deviceId":       upload.DeviceID,
			"fileCreatedAt":  upload.FileCreatedAt.UTC().Format(time.RFC3339Nano),
			"fileModifiedAt": upload.FileModifiedAt.UTC().Format(time.RFC3339Nano),
		})
	if err := check(req.Post("/asset/upload")); err != nil {
		return nil, fmt.Errorf("upload %s: %w", upload.FileName, err)
	}
	return &out, nil
}

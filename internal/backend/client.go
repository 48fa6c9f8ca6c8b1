// Package backend is the HTTP client for the deck-to-video backend: deck
// upload, content extraction, storyboard and image generation, logo and
// image uploads, avatar/voice catalogs, video generation and status.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"slide2video/internal/models"
)

type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	uploadClient *http.Client
	limiter      *rate.Limiter

	catalogAttempts int
	retryBackoff    time.Duration
}

type Option func(*Client)

// WithTimeout sets the timeout for JSON requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUploadTimeout sets the timeout for multipart uploads.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.uploadClient.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRetries sets how many times catalog reads are attempted and the
// initial backoff between attempts. Mutating calls are never retried.
func WithRetries(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.catalogAttempts = attempts
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithTransport replaces the round tripper of both underlying clients.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
		c.uploadClient.Transport = rt
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		uploadClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		catalogAttempts: 3,
		retryBackoff:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadDeck uploads a presentation and returns the backend file id.
// onProgress receives upload percentages and may be nil.
func (c *Client) UploadDeck(ctx context.Context, filename, contentType string, data []byte, onProgress ProgressFunc) (string, error) {
	body, formType, err := buildMultipart(nil, filePart{
		field:       "file",
		filename:    filename,
		contentType: contentType,
		data:        data,
	})
	if err != nil {
		return "", err
	}

	var result models.UploadResponse
	if err := c.postMultipart(ctx, "/upload", body, formType, onProgress, &result, "failed to upload file"); err != nil {
		return "", err
	}
	if result.FileID == "" {
		return "", &APIError{Message: "upload succeeded but no file_id was returned"}
	}
	return result.FileID, nil
}

// Extract returns the extraction payload for an uploaded file. The payload
// is passed back to GenerateScenes untouched.
func (c *Client) Extract(ctx context.Context, fileID string) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.postJSON(ctx, "/extract", models.ExtractRequest{FileID: fileID}, &result, "failed to extract content"); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(result)) == 0 || bytes.Equal(bytes.TrimSpace(result), []byte("null")) {
		return nil, &APIError{Message: "extraction returned an empty payload"}
	}
	return result, nil
}

func (c *Client) GenerateScenes(ctx context.Context, extraction json.RawMessage) (*models.GenerateScenesResponse, error) {
	var result models.GenerateScenesResponse
	if err := c.postJSON(ctx, "/generate-scenes", models.GenerateScenesRequest{ExtractionData: extraction}, &result, "failed to generate scenes"); err != nil {
		return nil, err
	}
	if result.Scenes == nil {
		result.Scenes = []models.SceneOut{}
	}
	if result.TableImageURLs == nil {
		result.TableImageURLs = map[string][]string{}
	}
	return &result, nil
}

// GenerateImage requests a background image for one scene and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, req models.GenerateImageRequest) (string, error) {
	var result models.GenerateImageResponse
	if err := c.postJSON(ctx, "/generate-image", req, &result, "failed to generate image"); err != nil {
		return "", err
	}
	if result.ImageURL == "" {
		return "", &APIError{Message: "image generation returned no image_url"}
	}
	return result.ImageURL, nil
}

func (c *Client) UploadLogo(ctx context.Context, filename, contentType string, data []byte) (*models.LogoUploadResponse, error) {
	body, formType, err := buildMultipart(nil, filePart{
		field:       "logo",
		filename:    filename,
		contentType: contentType,
		data:        data,
	})
	if err != nil {
		return nil, err
	}

	var result models.LogoUploadResponse
	if err := c.postMultipart(ctx, "/upload-logo", body, formType, nil, &result, "failed to upload logo"); err != nil {
		return nil, err
	}
	if result.LogoID == "" || result.LogoURL == "" {
		return nil, &APIError{Message: "logo upload returned no logo_id or logo_url"}
	}
	return &result, nil
}

// UploadImage uploads an ad-hoc scene image. logoURL is sent as auxiliary
// context and may be empty.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, data []byte, logoURL string, onProgress ProgressFunc) (string, error) {
	body, formType, err := buildMultipart(map[string]string{"logo_url": logoURL}, filePart{
		field:       "image",
		filename:    filename,
		contentType: contentType,
		data:        data,
	})
	if err != nil {
		return "", err
	}

	var result models.ImageUploadResponse
	if err := c.postMultipart(ctx, "/upload-image", body, formType, onProgress, &result, "failed to upload image"); err != nil {
		return "", err
	}
	if result.ImageURL == "" {
		return "", &APIError{Message: "image upload returned no image_url"}
	}
	return result.ImageURL, nil
}

// UploadMergedImage uploads a composited PNG and returns its URL.
func (c *Client) UploadMergedImage(ctx context.Context, png []byte) (string, error) {
	name := "merged-" + uuid.New().String() + ".png"
	return c.UploadImage(ctx, name, "image/png", png, "", nil)
}

func (c *Client) ListAvatars(ctx context.Context) ([]models.Avatar, error) {
	var result models.AvatarsResponse
	err := c.RetryWithBackoff(ctx, func() error {
		return c.getJSON(ctx, "/get_avatars", &result, "failed to fetch avatars")
	}, c.catalogAttempts)
	if err != nil {
		return nil, err
	}
	if result.Data == nil {
		return []models.Avatar{}, nil
	}
	return result.Data, nil
}

func (c *Client) ListVoices(ctx context.Context) ([]models.Voice, error) {
	var result models.VoicesResponse
	err := c.RetryWithBackoff(ctx, func() error {
		return c.getJSON(ctx, "/get_voices", &result, "failed to fetch voices")
	}, c.catalogAttempts)
	if err != nil {
		return nil, err
	}
	if result.Data == nil {
		return []models.Voice{}, nil
	}
	return result.Data, nil
}

// GenerateVideo submits a render job. A 2xx body with success=false or no
// video_id is reported as an APIError built from that body.
func (c *Client) GenerateVideo(ctx context.Context, req models.GenerateVideoRequest) (*models.GenerateVideoResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	status, body, err := c.send(ctx, c.httpClient, http.MethodPost, "/generate-video", bytes.NewReader(payload), "application/json", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, normalizeError(status, body, "failed to generate video")
	}

	var result models.GenerateVideoResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError(status, body, err)
	}
	if (result.Success != nil && !*result.Success) || result.VideoID == "" {
		apiErr := normalizeError(status, body, "")
		if strings.HasPrefix(apiErr.Message, "request failed:") {
			apiErr.Message = "Failed to initiate video generation"
		}
		return nil, apiErr
	}
	return &result, nil
}

// VideoStatus fetches the render status for a video id. Non-2xx responses
// (the backend reports failed renders as 422) come back as APIError.
func (c *Client) VideoStatus(ctx context.Context, videoID string) (*models.VideoStatusResponse, error) {
	var result models.VideoStatusResponse
	if err := c.getJSON(ctx, "/video-status/"+url.PathEscape(videoID), &result, "failed to check video status"); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}, action string) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, c.httpClient, http.MethodPost, path, bytes.NewReader(payload), "application/json", nil, out, action)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}, action string) error {
	return c.do(ctx, c.httpClient, http.MethodGet, path, nil, "", nil, out, action)
}

func (c *Client) postMultipart(ctx context.Context, path string, body *bytes.Buffer, formType string, onProgress ProgressFunc, out interface{}, action string) error {
	var reader io.Reader = body
	if onProgress != nil {
		reader = newProgressReader(body, int64(body.Len()), onProgress)
	}
	return c.do(ctx, c.uploadClient, http.MethodPost, path, reader, formType, &bodyLength{n: int64(body.Len())}, out, action)
}

type bodyLength struct {
	n int64
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body io.Reader, contentType string, length *bodyLength, out interface{}, action string) error {
	status, respBody, err := c.send(ctx, hc, method, path, body, contentType, length)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return normalizeError(status, respBody, action)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return decodeError(status, respBody, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, body io.Reader, contentType string, length *bodyLength) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, transportError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if length != nil {
		req.ContentLength = length.n
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, transportError(fmt.Errorf("failed to read response body: %w", err))
	}

	return resp.StatusCode, respBody, nil
}

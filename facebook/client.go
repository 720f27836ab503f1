// Package facebook talks to the backend broker that owns the Facebook app: login initiation,
// token refresh, profile and pages lookups and post creation. Responses are validated here
// so malformed bodies never travel past this package.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/jrsteele09/fb-page-poster/internal/metrics"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	pathLogin      = "/facebook/login/"
	pathRefresh    = "/token/refresh/"
	pathProfile    = "/facebook/profile/"
	pathPages      = "/facebook/pages/"
	pathCreatePost = "/facebook/create_post/"

	maxBodyBytes = 4 << 20
)

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	metrics    *metrics.Metrics
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    time.Minute,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// BeginLogin asks the broker for the Facebook OAuth URL. next is where the broker sends
// the browser back to once Facebook is done.
func (c *Client) BeginLogin(ctx context.Context, next string) (string, error) {
	body, _ := json.Marshal(map[string]string{"next": next})
	resp, err := c.do(ctx, "login", c.httpClient, http.MethodPost, pathLogin, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrLoginFailed, err)
	}

	var data struct {
		RedirectURL string `json:"redirect_url"`
		Detail      string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("%w: server returned invalid response format", apperrors.ErrLoginFailed)
	}
	if !isSuccess(resp.StatusCode) {
		return "", fmt.Errorf("%w: %w", apperrors.ErrLoginFailed, &StatusError{Operation: "login", StatusCode: resp.StatusCode, Detail: data.Detail})
	}
	if data.RedirectURL == "" {
		return "", fmt.Errorf("%w: no redirect URL received from server", apperrors.ErrLoginFailed)
	}
	return data.RedirectURL, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body, _ := json.Marshal(map[string]string{"refresh": refreshToken})
	resp, err := c.do(ctx, "refresh", c.httpClient, http.MethodPost, pathRefresh, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, &StatusError{Operation: "refresh", StatusCode: resp.StatusCode})
	}
	var data struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&data); err != nil {
		return "", fmt.Errorf("%w: %w: %v", apperrors.ErrRefreshFailed, apperrors.ErrInvalidResponse, err)
	}
	if strings.TrimSpace(data.Access) == "" {
		return "", fmt.Errorf("%w: %w: missing access", apperrors.ErrRefreshFailed, apperrors.ErrInvalidResponse)
	}
	return data.Access, nil
}

// Profile fetches the profile of the identity behind accessToken.
func (c *Client) Profile(ctx context.Context, accessToken string) (Profile, error) {
	raw, err := c.getJSON(ctx, "profile", pathProfile, accessToken)
	if err != nil {
		return Profile{}, err
	}
	return DecodeProfile(raw)
}

// Pages lists the Pages the identity behind accessToken administers.
func (c *Client) Pages(ctx context.Context, accessToken string) ([]Page, error) {
	raw, err := c.getJSON(ctx, "pages", pathPages, accessToken)
	if err != nil {
		return nil, err
	}
	return DecodePages(raw)
}

// CreatePost submits a post as multipart form data. Any non-2xx answer is ErrPostFailed;
// the broker's error body is not interpreted.
func (c *Client) CreatePost(ctx context.Context, accessToken string, req PostRequest) (string, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		pw.CloseWithError(writePostForm(form, req))
	}()
	// Closing the reader unblocks the writer when the backend answers before reading the
	// whole upload; the media body is not read after CreatePost returns.
	defer func() {
		_ = pr.Close()
		<-written
	}()

	resp, err := c.do(ctx, "create_post", c.bearerClient(ctx, accessToken), http.MethodPost, pathCreatePost, form.FormDataContentType(), pr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrPostFailed, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", fmt.Errorf("%w: %w", apperrors.ErrPostFailed, &StatusError{Operation: "create_post", StatusCode: resp.StatusCode})
	}
	var data struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&data); err != nil && err != io.EOF {
		return "", fmt.Errorf("%w: %w: %v", apperrors.ErrPostFailed, apperrors.ErrInvalidResponse, err)
	}
	return data.Message, nil
}

func writePostForm(form *multipart.Writer, req PostRequest) error {
	if err := form.WriteField("page_id", req.PageID); err != nil {
		return err
	}
	if m := req.Media; m != nil && m.Kind != MediaNone && m.Body != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, string(m.Kind), m.Filename))
		if m.ContentType != "" {
			header.Set("Content-Type", m.ContentType)
		}
		part, err := form.CreatePart(header)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, m.Body); err != nil {
			return pkgerrors.Wrap(err, "copy media")
		}
	}
	for _, tag := range req.Hashtags {
		if err := form.WriteField("hashtag", tag); err != nil {
			return err
		}
	}
	return form.Close()
}

func (c *Client) getJSON(ctx context.Context, op, path, accessToken string) ([]byte, error) {
	resp, err := c.do(ctx, op, c.bearerClient(ctx, accessToken), http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "%s read body", op)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, &StatusError{Operation: op, StatusCode: resp.StatusCode, Detail: detail(raw)}
	}
	return raw, nil
}

// bearerClient returns a client that sends accessToken as a Bearer credential on top of
// the configured transport.
func (c *Client) bearerClient(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: strings.TrimSpace(accessToken),
		TokenType:   "Bearer",
	})
	return oauth2.NewClient(ctx, src)
}

func (c *Client) do(ctx context.Context, op string, hc *http.Client, method, path, contentType string, body io.Reader) (*http.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		resp, err := c.send(ctx, op, hc, method, path, contentType, body)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.send(ctx, op, hc, method, path, contentType, body)
}

func (c *Client) send(ctx context.Context, op string, hc *http.Client, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "%s new request", op)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := hc.Do(req)
	if c.metrics != nil {
		c.metrics.BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "%s request", op)
	}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// detail extracts a short reason from an error body, if it has one.
func detail(raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Error
}

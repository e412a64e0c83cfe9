package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

// InitDataProvider supplies the raw Telegram initData string used for login.
// Dev builds plug in a deterministic mock here.
type InitDataProvider func() string

// Client is the single point of contact with the Pixel Pop backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
	initData   InitDataProvider
	log        *slog.Logger
}

type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Session  *Session
	InitData InitDataProvider
	Log      *slog.Logger
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	session := opts.Session
	if session == nil {
		session = NewSession()
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		session:    session,
		initData:   opts.InitData,
		log:        opts.Log,
	}
}

func (c *Client) Session() *Session {
	return c.session
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges Telegram initData for a bearer token. Repeated calls return
// the cached token without a network round-trip.
func (c *Client) Login(ctx context.Context) (string, error) {
	if token := c.session.Token(); token != "" {
		return token, nil
	}

	var initData string
	if c.initData != nil {
		initData = c.initData()
	}

	body, err := json.Marshal(map[string]string{"initData": initData})
	if err != nil {
		return "", fmt.Errorf("marshal login body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/auth/login"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post login: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrLoginFailed, resp.StatusCode, truncateBody(rawBody))
	}

	var parsed loginResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access_token", ErrLoginFailed)
	}

	c.session.Set(parsed.AccessToken)
	return parsed.AccessToken, nil
}

// UserInfo mirrors GET /api/user/me.
type UserInfo struct {
	ID              int64  `json:"id"`
	TelegramID      int64  `json:"telegram_id"`
	FirstName       string `json:"first_name"`
	Username        string `json:"username"`
	StandardCredits int    `json:"standard_credits"`
	PremiumCredits  int    `json:"premium_credits"`
}

// GetUser fetches the current user record. It fails soft: any error yields a
// nil user so the UI can keep rendering with stale balances.
func (c *Client) GetUser(ctx context.Context) (*UserInfo, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/api/user/me", nil, "")
	if err != nil {
		if c.log != nil {
			c.log.Warn("get user failed", "err", err)
		}
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Warn("get user failed", "status", resp.StatusCode)
		}
		return nil, nil
	}

	var user UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		if c.log != nil {
			c.log.Warn("decode user failed", "err", err)
		}
		return nil, nil
	}
	return &user, nil
}

type uploadResponse struct {
	URL string `json:"url"`
}

// UploadImage posts a multipart file and returns its durable URL.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/api/upload", &buf, writer.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("post upload: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", &UploadError{Status: resp.StatusCode, Message: truncateBody(rawBody)}
	}

	var parsed uploadResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("empty url in upload response")
	}
	return parsed.URL, nil
}

type enqueueResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// EnqueueGeneration posts a generation request and returns the job id.
// A 401 invalidates the cached token so the next call re-authenticates.
func (c *Client) EnqueueGeneration(ctx context.Context, prompt, styleID, slug string, extra map[string]any) (string, error) {
	modelConfig := map[string]any{
		"model":    "gpt-image-1.5",
		"quality":  "standard",
		"size":     "1024x1024",
		"style_id": styleID,
	}
	for k, v := range extra {
		modelConfig[k] = v
	}

	body, err := json.Marshal(map[string]any{
		"prompt":       prompt,
		"slug":         slug,
		"model_config": modelConfig,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation body: %w", err)
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/api/generation", bytes.NewReader(body), "application/json")
	if err != nil {
		return "", fmt.Errorf("post generation: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Invalidate()
		return "", ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return "", &EnqueueError{Status: resp.StatusCode, Message: truncateBody(rawBody)}
	}

	var parsed enqueueResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if parsed.JobID == "" {
		return "", fmt.Errorf("empty job_id in response")
	}
	return parsed.JobID, nil
}

// JobState mirrors one GET /api/generation/{id} response.
type JobState struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
	Result *struct {
		ImageURL string `json:"image_url"`
	} `json:"result"`
	Error string `json:"error"`
}

// PollJob performs a single status fetch. Transport and non-OK failures come
// back wrapped as TransientError; the poll loop skips those.
func (c *Client) PollJob(ctx context.Context, jobID string) (*JobState, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/api/generation/"+url.PathEscape(jobID), nil, "")
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &TransientError{Err: fmt.Errorf("status=%d body=%s", resp.StatusCode, truncateBody(rawBody))}
	}

	var state JobState
	if err := json.Unmarshal(rawBody, &state); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("decode status: %w", err)}
	}
	return &state, nil
}

// GalleryItem is one entry of the paginated history.
type GalleryItem struct {
	ID        string `json:"id"`
	ImageURL  string `json:"image_url"`
	CreatedAt string `json:"created_at"`
	Feedback  string `json:"feedback,omitempty"`

	// Optimistic marks entries inserted locally before server confirmation.
	Optimistic bool `json:"-"`
}

// GalleryPage is one cursor-paginated slice of the history.
type GalleryPage struct {
	Items      []GalleryItem `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

// FetchGalleryPage fetches one page. An empty cursor starts from the newest
// item; an empty next_cursor in the response signals the end.
func (c *Client) FetchGalleryPage(ctx context.Context, cursor string, limit int) (*GalleryPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	resp, err := c.doAuthorized(ctx, http.MethodGet, "/api/gallery?"+params.Encode(), nil, "")
	if err != nil {
		return nil, fmt.Errorf("fetch gallery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch gallery: status=%d", resp.StatusCode)
	}

	var page GalleryPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode gallery page: %w", err)
	}
	return &page, nil
}

// DeleteGeneration removes one item. The server is the source of truth; the
// call is not retried.
func (c *Client) DeleteGeneration(ctx context.Context, id string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/api/generation/"+url.PathEscape(id), nil, "")
	if err != nil {
		return fmt.Errorf("delete generation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete generation: status=%d", resp.StatusCode)
	}
	return nil
}

// SubmitFeedback records a like/dislike verdict for one item.
func (c *Client) SubmitFeedback(ctx context.Context, id string, verdict models.Feedback) error {
	body, err := json.Marshal(map[string]string{"verdict": string(verdict)})
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/api/generation/"+url.PathEscape(id)+"/feedback", bytes.NewReader(body), "application/json")
	if err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("submit feedback: status=%d", resp.StatusCode)
	}
	return nil
}

type invoiceResponse struct {
	InvoiceLink string `json:"invoice_link"`
}

// CreateInvoice asks the backend for a Telegram Stars invoice link.
func (c *Client) CreateInvoice(ctx context.Context, planID string) (string, error) {
	body, err := json.Marshal(map[string]string{"plan_id": planID})
	if err != nil {
		return "", fmt.Errorf("marshal invoice body: %w", err)
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/api/payment/create-invoice", bytes.NewReader(body), "application/json")
	if err != nil {
		return "", fmt.Errorf("create invoice: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read invoice response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("create invoice: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var parsed invoiceResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode invoice response: %w", err)
	}
	if parsed.InvoiceLink == "" {
		return "", fmt.Errorf("empty invoice_link in response")
	}
	return parsed.InvoiceLink, nil
}

// doAuthorized ensures a session token exists, then performs the request.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
